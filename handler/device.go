package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"attendguard/model"
	"attendguard/services"
)

// DeviceSignals is what the browser reports about itself. Anything missing
// degrades to the unavailable sentinel in the fingerprint.
type DeviceSignals struct {
	UserAgent     string                `json:"user_agent"`
	ScreenWidth   int                   `json:"screen_width" binding:"gte=0"`
	ScreenHeight  int                   `json:"screen_height" binding:"gte=0"`
	Timezone      string                `json:"timezone"`
	Language      string                `json:"language"`
	Platform      string                `json:"platform"`
	Features      services.FeatureFlags `json:"features"`
	WebGLVendor   string                `json:"webgl_vendor"`
	WebGLRenderer string                `json:"webgl_renderer"`
	CanvasDataURL string                `json:"canvas_data_url"`
	AudioBins     []int                 `json:"audio_bins" binding:"omitempty,max=64,dive,gte=0,lte=255"`
}

// PositionReport is the outcome of the browser's geolocation request: either
// coordinates or one of permission_denied, timeout and unavailable.
type PositionReport struct {
	Latitude  *float64 `json:"latitude" binding:"omitempty,lat"`
	Longitude *float64 `json:"longitude" binding:"omitempty,lng"`
	Accuracy  float64  `json:"accuracy" binding:"gte=0"`
	Error     string   `json:"error" binding:"omitempty,oneof=permission_denied timeout unavailable"`
}

// requestEnvironment serves DeviceSignals as a services.DeviceEnvironment,
// falling back to request headers where the body is silent.
type requestEnvironment struct {
	signals DeviceSignals
	headers func(string) string
}

func newRequestEnvironment(c *gin.Context, signals DeviceSignals) *requestEnvironment {
	return &requestEnvironment{signals: signals, headers: c.GetHeader}
}

func (e *requestEnvironment) UserAgent() string {
	if e.signals.UserAgent != "" {
		return e.signals.UserAgent
	}
	return e.headers("User-Agent")
}

func (e *requestEnvironment) ScreenResolution() (int, int, error) {
	if e.signals.ScreenWidth <= 0 || e.signals.ScreenHeight <= 0 {
		return 0, 0, services.ErrSignalUnavailable
	}
	return e.signals.ScreenWidth, e.signals.ScreenHeight, nil
}

func (e *requestEnvironment) Timezone() (string, error) {
	if e.signals.Timezone == "" {
		return "", services.ErrSignalUnavailable
	}
	return e.signals.Timezone, nil
}

func (e *requestEnvironment) Language() string {
	if e.signals.Language != "" {
		return e.signals.Language
	}
	// first tag of Accept-Language, e.g. "en-US,en;q=0.9"
	accept := e.headers("Accept-Language")
	lang, _, _ := strings.Cut(accept, ",")
	lang, _, _ = strings.Cut(lang, ";")
	return strings.TrimSpace(lang)
}

func (e *requestEnvironment) Platform() string {
	return e.signals.Platform
}

func (e *requestEnvironment) Features() services.FeatureFlags {
	return e.signals.Features
}

func (e *requestEnvironment) WebGL(context.Context) (string, string, error) {
	return e.signals.WebGLVendor, e.signals.WebGLRenderer, nil
}

func (e *requestEnvironment) CanvasDataURL(context.Context, services.CanvasSpec) (string, error) {
	return e.signals.CanvasDataURL, nil
}

func (e *requestEnvironment) AudioFrequencyBins(context.Context, services.AudioSpec) ([]uint8, error) {
	if len(e.signals.AudioBins) == 0 {
		return nil, services.ErrSignalUnavailable
	}
	bins := make([]uint8, len(e.signals.AudioBins))
	for i, b := range e.signals.AudioBins {
		bins[i] = uint8(min(max(b, 0), 255))
	}
	return bins, nil
}

// reportedPosition replays a PositionReport as a services.PositionProvider.
type reportedPosition struct {
	report PositionReport
	at     time.Time
}

func (p reportedPosition) CurrentPosition(ctx context.Context) (services.Position, error) {
	if err := ctx.Err(); err != nil {
		return services.Position{}, err
	}
	switch p.report.Error {
	case "":
	case string(services.ReasonPermissionDenied):
		return services.Position{}, &services.LocationError{Reason: services.ReasonPermissionDenied}
	case string(services.ReasonTimeout):
		return services.Position{}, &services.LocationError{Reason: services.ReasonTimeout}
	default:
		return services.Position{}, &services.LocationError{Reason: services.ReasonUnavailable}
	}
	if p.report.Latitude == nil || p.report.Longitude == nil {
		return services.Position{}, &services.LocationError{Reason: services.ReasonUnavailable}
	}
	return services.Position{
		Coordinates: model.GeoCoordinate{
			Latitude:  *p.report.Latitude,
			Longitude: *p.report.Longitude,
		},
		AccuracyMeters: p.report.Accuracy,
		Timestamp:      p.at,
	}, nil
}
