package device

import (
	"strings"
)

// Class is the device/OS classification derived from a user-agent string.
type Class struct {
	OS     string
	Device string
}

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceBot     = "bot"
	DeviceOther   = "other"
)

var osSignatures = []struct {
	token string
	os    string
}{
	{"android", "Android"},
	{"iphone", "iOS"},
	{"ipad", "iPadOS"},
	{"ipod", "iOS"},
	{"windows phone", "Windows Phone"},
	{"windows nt", "Windows"},
	{"mac os x", "macOS"},
	{"macintosh", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

var botTokens = []string{
	"bot", "crawler", "spider", "slurp", "curl/", "wget/", "python-requests",
	"go-http-client", "headlesschrome",
}

// Classify maps a user-agent string to a device/OS class. It is a pure
// heuristic and never fails; unrecognized input maps to the "other" class.
func Classify(userAgent string) Class {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return Class{OS: "", Device: DeviceOther}
	}

	for _, token := range botTokens {
		if strings.Contains(ua, token) {
			return Class{OS: detectOS(ua), Device: DeviceBot}
		}
	}

	os := detectOS(ua)

	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return Class{OS: os, Device: DeviceTablet}
	case strings.Contains(ua, "mobi"),
		strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "windows phone"):
		return Class{OS: os, Device: DeviceMobile}
	case strings.Contains(ua, "windows nt"),
		strings.Contains(ua, "macintosh"),
		strings.Contains(ua, "mac os x"),
		strings.Contains(ua, "cros"),
		strings.Contains(ua, "x11"),
		strings.Contains(ua, "linux"):
		return Class{OS: os, Device: DeviceDesktop}
	default:
		return Class{OS: os, Device: DeviceOther}
	}
}

func detectOS(ua string) string {
	for _, sig := range osSignatures {
		if strings.Contains(ua, sig.token) {
			return sig.os
		}
	}
	return ""
}
