package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"attendguard/logger"
	"attendguard/model"
	"attendguard/utils"
)

// SignalUnavailable replaces any entropy signal that could not be collected.
const SignalUnavailable = "unavailable"

// Signal names, in the order they are folded into the fingerprint.
const (
	SignalUserAgent      = "user_agent"
	SignalScreen         = "screen_resolution"
	SignalTimezone       = "timezone"
	SignalLanguage       = "language"
	SignalPlatform       = "platform"
	SignalCookies        = "cookies_enabled"
	SignalLocalStorage   = "local_storage"
	SignalSessionStorage = "session_storage"
	SignalIndexedDB      = "indexed_db"
	SignalWebGL          = "webgl"
	SignalCanvas         = "canvas"
	SignalAudio          = "audio"
)

const (
	fingerprintDelimiter  = "|"
	canvasSignatureLength = 50
	audioSignatureBins    = 10
	defaultSignalTimeout  = time.Second
)

var ErrSignalUnavailable = errors.New("signal unavailable")

// FeatureFlags are the storage/cookie capabilities a device reports.
type FeatureFlags struct {
	Cookies        bool `json:"cookies"`
	LocalStorage   bool `json:"local_storage"`
	SessionStorage bool `json:"session_storage"`
	IndexedDB      bool `json:"indexed_db"`
}

// CanvasSpec is the fixed drawing used for the canvas signature.
type CanvasSpec struct {
	Text     string
	Font     string
	Baseline string
}

// AudioSpec is the fixed oscillator used for the audio signature.
type AudioSpec struct {
	Waveform    string
	FrequencyHz float64
	Bins        int
}

var (
	DefaultCanvasSpec = CanvasSpec{
		Text:     "Device fingerprinting for attendance security",
		Font:     "14px Arial",
		Baseline: "top",
	}
	DefaultAudioSpec = AudioSpec{
		Waveform:    "triangle",
		FrequencyHz: 10000,
		Bins:        audioSignatureBins,
	}
)

// DeviceEnvironment exposes the raw signal sources of one device. Any method
// may fail; the generator substitutes SignalUnavailable for failures.
type DeviceEnvironment interface {
	UserAgent() string
	ScreenResolution() (width, height int, err error)
	Timezone() (string, error)
	Language() string
	Platform() string
	Features() FeatureFlags
	WebGL(ctx context.Context) (vendor, renderer string, err error)
	CanvasDataURL(ctx context.Context, spec CanvasSpec) (string, error)
	AudioFrequencyBins(ctx context.Context, spec AudioSpec) ([]uint8, error)
}

// SignalProbe collects one entropy signal.
type SignalProbe struct {
	Name    string
	Collect func(ctx context.Context) (string, error)
}

// DefaultProbes builds the standard probe list for env.
func DefaultProbes(env DeviceEnvironment) []SignalProbe {
	return []SignalProbe{
		{Name: SignalUserAgent, Collect: func(context.Context) (string, error) {
			return env.UserAgent(), nil
		}},
		{Name: SignalScreen, Collect: func(context.Context) (string, error) {
			w, h, err := env.ScreenResolution()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%dx%d", w, h), nil
		}},
		{Name: SignalTimezone, Collect: func(context.Context) (string, error) {
			return env.Timezone()
		}},
		{Name: SignalLanguage, Collect: func(context.Context) (string, error) {
			return env.Language(), nil
		}},
		{Name: SignalPlatform, Collect: func(context.Context) (string, error) {
			if p := env.Platform(); p != "" {
				return p, nil
			}
			return utils.PlatformFromUserAgent(env.UserAgent()), nil
		}},
		{Name: SignalCookies, Collect: func(context.Context) (string, error) {
			return strconv.FormatBool(env.Features().Cookies), nil
		}},
		{Name: SignalLocalStorage, Collect: func(context.Context) (string, error) {
			return strconv.FormatBool(env.Features().LocalStorage), nil
		}},
		{Name: SignalSessionStorage, Collect: func(context.Context) (string, error) {
			return strconv.FormatBool(env.Features().SessionStorage), nil
		}},
		{Name: SignalIndexedDB, Collect: func(context.Context) (string, error) {
			return strconv.FormatBool(env.Features().IndexedDB), nil
		}},
		{Name: SignalWebGL, Collect: func(ctx context.Context) (string, error) {
			vendor, renderer, err := env.WebGL(ctx)
			if err != nil {
				return "", err
			}
			if vendor == "" && renderer == "" {
				return "", ErrSignalUnavailable
			}
			return vendor + "~" + renderer, nil
		}},
		{Name: SignalCanvas, Collect: func(ctx context.Context) (string, error) {
			dataURL, err := env.CanvasDataURL(ctx, DefaultCanvasSpec)
			if err != nil {
				return "", err
			}
			if dataURL == "" {
				return "", ErrSignalUnavailable
			}
			if len(dataURL) > canvasSignatureLength {
				dataURL = dataURL[len(dataURL)-canvasSignatureLength:]
			}
			return dataURL, nil
		}},
		{Name: SignalAudio, Collect: func(ctx context.Context) (string, error) {
			bins, err := env.AudioFrequencyBins(ctx, DefaultAudioSpec)
			if err != nil {
				return "", err
			}
			if len(bins) == 0 {
				return "", ErrSignalUnavailable
			}
			if len(bins) > DefaultAudioSpec.Bins {
				bins = bins[:DefaultAudioSpec.Bins]
			}
			parts := make([]string, len(bins))
			for i, b := range bins {
				parts[i] = strconv.Itoa(int(b))
			}
			return strings.Join(parts, ","), nil
		}},
	}
}

// FingerprintGenerator folds device signals into a composite identifier.
type FingerprintGenerator struct {
	Clock utils.Clock
	// SignalTimeout bounds each probe; slow probes count as unavailable.
	SignalTimeout time.Duration
	// Probes overrides DefaultProbes, mainly for tests.
	Probes func(env DeviceEnvironment) []SignalProbe
}

func NewFingerprintGenerator(clock utils.Clock) *FingerprintGenerator {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &FingerprintGenerator{Clock: clock, SignalTimeout: defaultSignalTimeout}
}

// Generate never fails: every probe failure degrades to SignalUnavailable.
func (g *FingerprintGenerator) Generate(ctx context.Context, env DeviceEnvironment) model.DeviceFingerprint {
	probes := DefaultProbes
	if g.Probes != nil {
		probes = g.Probes
	}

	values := make(map[string]string)
	order := make([]string, 0, 12)
	degraded := 0
	for _, probe := range probes(env) {
		value, err := g.run(ctx, probe)
		if err != nil {
			degraded++
			logger.Debug(ctx).Err(err).Str("signal", probe.Name).Msg("fingerprint signal unavailable")
			value = SignalUnavailable
		}
		if _, seen := values[probe.Name]; !seen {
			order = append(order, probe.Name)
		}
		values[probe.Name] = value
	}

	parts := make([]string, len(order))
	for i, name := range order {
		parts[i] = values[name]
	}

	now := g.Clock.Now()
	utils.FingerprintsGenerated.WithLabelValues(strconv.Itoa(degraded)).Inc()

	return model.DeviceFingerprint{
		ID:          fingerprintCore(strings.Join(parts, fingerprintDelimiter)) + "_" + strconv.FormatInt(now.UnixMilli(), 10),
		RawSignals:  signalsFrom(values),
		GeneratedAt: now,
	}
}

// run executes one probe with its own timeout and panic recovery.
func (g *FingerprintGenerator) run(ctx context.Context, probe SignalProbe) (string, error) {
	timeout := g.SignalTimeout
	if timeout <= 0 {
		timeout = defaultSignalTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("probe %s panicked: %v", probe.Name, r)}
			}
		}()
		v, err := probe.Collect(ctx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("probe %s: %w", probe.Name, ctx.Err())
	}
}

// fingerprintCore hashes the composite signal string with 32-bit FNV-1a
// (xor then multiply per byte) and renders it in base 36.
func fingerprintCore(composite string) string {
	h := fnv.New32a()
	h.Write([]byte(composite))
	return "fp_" + strconv.FormatUint(uint64(h.Sum32()), 36)
}

func signalsFrom(values map[string]string) model.FingerprintSignals {
	flag := func(name string) bool {
		v, _ := strconv.ParseBool(values[name])
		return v
	}
	return model.FingerprintSignals{
		UserAgent:         values[SignalUserAgent],
		ScreenResolution:  values[SignalScreen],
		Timezone:          values[SignalTimezone],
		Language:          values[SignalLanguage],
		Platform:          values[SignalPlatform],
		CookiesEnabled:    flag(SignalCookies),
		HasLocalStorage:   flag(SignalLocalStorage),
		HasSessionStorage: flag(SignalSessionStorage),
		HasIndexedDB:      flag(SignalIndexedDB),
		WebGLSignature:    values[SignalWebGL],
		CanvasSignature:   values[SignalCanvas],
		AudioSignature:    values[SignalAudio],
	}
}
