package services_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"attendguard/services"
	"attendguard/testutils"
	"attendguard/utils"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestGenerateStableCore(t *testing.T) {
	clock := utils.NewManualClock(epoch)
	gen := services.NewFingerprintGenerator(clock)
	env := testutils.NewStaticEnvironment()

	first := gen.Generate(context.Background(), env)
	clock.Advance(90 * time.Minute)
	second := gen.Generate(context.Background(), env)

	assert.NotEqual(t, first.ID, second.ID, "ids carry the generation time")
	assert.Equal(t, first.Core(), second.Core())
	assert.True(t, strings.HasPrefix(first.ID, "fp_"))
	assert.Equal(t, first.Core()+"_"+strconv.FormatInt(epoch.UnixMilli(), 10), first.ID)
	assert.Equal(t, epoch, first.GeneratedAt)
}

func TestGenerateCoreDependsOnSignals(t *testing.T) {
	gen := services.NewFingerprintGenerator(utils.NewManualClock(epoch))

	a := testutils.NewStaticEnvironment()
	b := testutils.NewStaticEnvironment()
	b.Width, b.Height = 1280, 720

	assert.NotEqual(t, gen.Generate(context.Background(), a).Core(), gen.Generate(context.Background(), b).Core())
}

func TestGenerateSignals(t *testing.T) {
	gen := services.NewFingerprintGenerator(utils.NewManualClock(epoch))
	env := testutils.NewStaticEnvironment()

	signals := gen.Generate(context.Background(), env).RawSignals

	assert.Equal(t, testutils.ChromeOnWindows, signals.UserAgent)
	assert.Equal(t, "1920x1080", signals.ScreenResolution)
	assert.Equal(t, "Europe/Berlin", signals.Timezone)
	assert.Equal(t, "de-DE", signals.Language)
	assert.Equal(t, "Win32", signals.Platform)
	assert.True(t, signals.CookiesEnabled)
	assert.True(t, signals.HasLocalStorage)
	assert.True(t, signals.HasSessionStorage)
	assert.True(t, signals.HasIndexedDB)
	assert.Equal(t, "Google Inc. (NVIDIA)~ANGLE (NVIDIA GeForce RTX 3070)", signals.WebGLSignature)
	assert.Len(t, signals.CanvasSignature, 50)
	assert.True(t, strings.HasSuffix(env.Canvas, signals.CanvasSignature), "canvas keeps the tail of the data URL")
	assert.Equal(t, "120,118,117,115,110,108,104,100,98,96", signals.AudioSignature)
}

func TestGenerateDegradedSignals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(env *testutils.StaticEnvironment)
	}{
		{
			name:   "screen error",
			mutate: func(env *testutils.StaticEnvironment) { env.ScreenErr = errors.New("no screen") },
		},
		{
			name:   "timezone error",
			mutate: func(env *testutils.StaticEnvironment) { env.TimezoneErr = errors.New("no intl") },
		},
		{
			name:   "webgl error",
			mutate: func(env *testutils.StaticEnvironment) { env.WebGLErr = errors.New("no context") },
		},
		{
			name:   "webgl empty",
			mutate: func(env *testutils.StaticEnvironment) { env.Vendor, env.Renderer = "", "" },
		},
		{
			name:   "canvas panics",
			mutate: func(env *testutils.StaticEnvironment) { env.PanicCanvas = true },
		},
		{
			name:   "audio error",
			mutate: func(env *testutils.StaticEnvironment) { env.AudioErr = errors.New("autoplay blocked") },
		},
		{
			name:   "audio too slow",
			mutate: func(env *testutils.StaticEnvironment) { env.Slow = time.Second },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := services.NewFingerprintGenerator(utils.NewManualClock(epoch))
			gen.SignalTimeout = 20 * time.Millisecond
			env := testutils.NewStaticEnvironment()
			tt.mutate(env)

			fp := gen.Generate(context.Background(), env)
			assert.NotEmpty(t, fp.ID)

			s := fp.RawSignals
			got := []string{s.ScreenResolution, s.Timezone, s.WebGLSignature, s.CanvasSignature, s.AudioSignature}
			assert.Contains(t, got, services.SignalUnavailable)

			baseline := gen.Generate(context.Background(), testutils.NewStaticEnvironment())
			assert.NotEqual(t, baseline.Core(), fp.Core())
		})
	}
}

func TestGeneratePlatformFallsBackToUserAgent(t *testing.T) {
	gen := services.NewFingerprintGenerator(utils.NewManualClock(epoch))
	env := testutils.NewStaticEnvironment()
	env.Plat = ""

	signals := gen.Generate(context.Background(), env).RawSignals
	assert.Contains(t, signals.Platform, "Windows")
}

func TestGenerateCustomProbes(t *testing.T) {
	gen := services.NewFingerprintGenerator(utils.NewManualClock(epoch))
	gen.Probes = func(services.DeviceEnvironment) []services.SignalProbe {
		return []services.SignalProbe{
			{Name: services.SignalUserAgent, Collect: func(context.Context) (string, error) { return "agent", nil }},
			{Name: services.SignalLanguage, Collect: func(context.Context) (string, error) { return "", errors.New("boom") }},
		}
	}

	fp := gen.Generate(context.Background(), nil)
	assert.Equal(t, "agent", fp.RawSignals.UserAgent)
	assert.Equal(t, services.SignalUnavailable, fp.RawSignals.Language)
}
