package model

import (
	"strings"
	"time"
)

// FingerprintSignals are the raw entropy signals a fingerprint was folded from.
type FingerprintSignals struct {
	UserAgent         string `json:"user_agent"`
	ScreenResolution  string `json:"screen_resolution"`
	Timezone          string `json:"timezone"`
	Language          string `json:"language"`
	Platform          string `json:"platform"`
	CookiesEnabled    bool   `json:"cookies_enabled"`
	HasLocalStorage   bool   `json:"has_local_storage"`
	HasSessionStorage bool   `json:"has_session_storage"`
	HasIndexedDB      bool   `json:"has_indexed_db"`
	WebGLSignature    string `json:"webgl_signature"`
	CanvasSignature   string `json:"canvas_signature"`
	AudioSignature    string `json:"audio_signature"`
}

// DeviceFingerprint approximates "this physical device". It is generated and
// cached on the device and is only ever compared against itself.
type DeviceFingerprint struct {
	ID          string             `json:"id"`
	RawSignals  FingerprintSignals `json:"raw_signals"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Core returns the id without its generation-time suffix, i.e. the part that
// only depends on the collected signals.
func (f DeviceFingerprint) Core() string {
	i := strings.LastIndexByte(f.ID, '_')
	if i <= 0 {
		return f.ID
	}
	return f.ID[:i]
}

// Expired reports whether the fingerprint is older than validity at now.
func (f DeviceFingerprint) Expired(now time.Time, validity time.Duration) bool {
	return now.Sub(f.GeneratedAt) >= validity
}
