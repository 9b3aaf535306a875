package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

var tabletIndicators = []string{
	"ipad", "tablet", "kindle", "playbook", "nexus 7", "nexus 9", "nexus 10", "xoom", "sm-t",
}

var platformMap = []struct{ key, platform string }{
	{"android", "android"},
	{"iphone os", "ios"},
	{"ios", "ios"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"chrome os", "chromeos"},
	{"ubuntu", "linux"},
	{"linux", "linux"},
}

// ParseClientDevice parses a User-Agent string into the device record stored
// with a reservation for fraud review.
func ParseClientDevice(userAgent string) models.DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return models.DeviceInfo{
			"device_type": "unknown",
			"os":          "Unknown",
			"browser":     "Unknown",
			"is_bot":      false,
			"platform":    "unknown",
		}
	}

	parser := ua.New(userAgent)
	browser, version := parser.Browser()
	if browser == "" {
		browser = "Unknown"
	}

	return models.DeviceInfo{
		"device_type": deviceType(parser),
		"os":          osName(parser),
		"browser":     browser,
		"browser_ver": version,
		"is_bot":      parser.Bot(),
		"platform":    platform(parser),
	}
}

func deviceType(parser *ua.UserAgent) string {
	if !parser.Mobile() {
		return "desktop"
	}
	lower := strings.ToLower(parser.UA())
	for _, indicator := range tabletIndicators {
		if strings.Contains(lower, indicator) {
			return "tablet"
		}
	}
	return "mobile"
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}

func platform(parser *ua.UserAgent) string {
	name := strings.ToLower(parser.OSInfo().Name)
	for _, p := range platformMap {
		if strings.Contains(name, p.key) {
			return p.platform
		}
	}
	return "unknown"
}
