package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/seat-reservation-engine/internal/config"
	"github.com/smarttransit/seat-reservation-engine/pkg/metrics"
)

// countingBucket allows the first `capacity` takes per key
type countingBucket struct {
	mu       sync.Mutex
	capacity int64
	taken    map[string]int64
	err      error
}

func (b *countingBucket) Take(_ context.Context, key string) (RateDecision, error) {
	if b.err != nil {
		return RateDecision{}, b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taken == nil {
		b.taken = make(map[string]int64)
	}
	if b.taken[key] >= b.capacity {
		return RateDecision{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
	}
	b.taken[key]++
	return RateDecision{Allowed: true, Remaining: b.capacity - b.taken[key]}, nil
}

func rateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		Prefix:         "rl:test",
	}
}

func setupRateLimitedRouter(bucket TokenBucket, cfg config.RateLimitConfig, m *metrics.Metrics) *gin.Engine {
	router := setupTestRouter()
	router.POST("/bookings", RateLimit(bucket, cfg, m, testLogger()), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"message": "created"})
	})
	return router
}

func TestRateLimit_BlocksAfterCapacity(t *testing.T) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	router := setupRateLimitedRouter(&countingBucket{capacity: 2}, rateLimitConfig(), m)

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/bookings", nil)
		req.RemoteAddr = "198.51.100.7:5000"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("Retry-After"))
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, last.Body.String(), "RATE_LIMITED")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

func TestRateLimit_SeparateBucketsPerClient(t *testing.T) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	router := setupRateLimitedRouter(&countingBucket{capacity: 1}, rateLimitConfig(), m)

	for _, addr := range []string{"198.51.100.7:5000", "198.51.100.8:5000"} {
		req := httptest.NewRequest("POST", "/bookings", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	router := setupRateLimitedRouter(&countingBucket{err: errors.New("redis down")}, rateLimitConfig(), m)

	req := httptest.NewRequest("POST", "/bookings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_Disabled(t *testing.T) {
	cfg := rateLimitConfig()
	cfg.Enabled = false
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	router := setupRateLimitedRouter(&countingBucket{capacity: 0}, cfg, m)

	req := httptest.NewRequest("POST", "/bookings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRedisTokenBucket_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	bucket := NewRedisTokenBucket(client, rateLimitConfig())
	_, err := bucket.Take(context.Background(), "rl:test:ip:127.0.0.1")
	assert.Error(t, err)

	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	router := setupRateLimitedRouter(bucket, rateLimitConfig(), m)
	req := httptest.NewRequest("POST", "/bookings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRateLimitKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupTestRouter()
	userID := uuid.New()

	var keys []string
	router.POST("/bookings", func(c *gin.Context) {
		keys = append(keys, rateLimitKey("rl", c))
		c.Set(UserContextKey, UserContext{UserID: userID})
		keys = append(keys, rateLimitKey("rl", c))
	})

	req := httptest.NewRequest("POST", "/bookings", nil)
	req.RemoteAddr = "198.51.100.7:5000"
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, keys, 2)
	assert.Equal(t, "rl:ip:198.51.100.7:route:POST /bookings", keys[0])
	assert.Equal(t, "rl:user:"+userID.String()+":route:POST /bookings", keys[1])
}

func TestRequestLogger(t *testing.T) {
	router := setupTestRouter()
	router.Use(RequestLogger(testLogger()))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
