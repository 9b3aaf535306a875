package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const slugAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewSlug generates a public reservation slug.
// Format: BK-<10 random chars>-<base36 unix millis>
// Example: BK-x3Fq9LmA0c-mh2k1z9s
func NewSlug(now time.Time) (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = slugAlphabet[int(b)%len(slugAlphabet)]
	}
	return "BK-" + string(buf) + "-" + strconv.FormatInt(now.UnixMilli(), 36), nil
}

// NewBookingReference generates a 16 character uppercase hex reference code
func NewBookingReference() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// SecurityHash fingerprints a reservation for fraud review
func SecurityHash(slug string, userID uuid.UUID, vehicleID int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%d", slug, userID, vehicleID)))
	return hex.EncodeToString(sum[:])
}
