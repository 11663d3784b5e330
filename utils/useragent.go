package utils

import (
	"fmt"
	"strings"

	ua "github.com/mileusna/useragent"
)

// ParseUserAgent extracts useful information from User-Agent string
func ParseUserAgent(userAgent string) (browser, os, device string) {
	if userAgent == "" {
		return "Unknown Browser", "Unknown OS", "Desktop"
	}

	parsedUA := ua.Parse(userAgent)

	// Get browser name (without version)
	if parsedUA.Name != "" {
		browser = parsedUA.Name
	} else {
		browser = "Unknown Browser"
	}

	// Get OS name (without version)
	if parsedUA.OS != "" {
		os = parsedUA.OS
	} else {
		os = "Unknown OS"
	}

	// Determine device type
	device = "Desktop"
	if parsedUA.Mobile {
		if strings.Contains(userAgent, "iPhone") {
			device = "iPhone"
		} else {
			device = "Mobile"
		}
	} else if parsedUA.Tablet {
		device = "Tablet"
	}

	return strings.TrimSpace(browser), strings.TrimSpace(os), device
}

// PlatformFromUserAgent derives a platform name when the device did not report
// one. Returns "" if the user agent carries no OS information.
func PlatformFromUserAgent(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	parsed := ua.Parse(userAgent)
	if parsed.OS == "" {
		return ""
	}
	if parsed.OSVersion != "" {
		return parsed.OS + " " + parsed.OSVersion
	}
	return parsed.OS
}

// DeviceLabel creates a user-friendly device name, e.g. "Chrome on Windows (Desktop)"
func DeviceLabel(userAgent string) string {
	browser, os, device := ParseUserAgent(userAgent)
	return fmt.Sprintf("%s on %s (%s)", browser, os, device)
}
