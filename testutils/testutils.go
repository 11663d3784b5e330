package testutils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attendguard/model"
	"attendguard/services"
)

const ChromeOnWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// StaticEnvironment is a services.DeviceEnvironment with fixed answers. The
// *Err fields make the matching probe fail; Slow delays the audio probe.
type StaticEnvironment struct {
	UA            string
	Width, Height int
	TZ            string
	Lang          string
	Plat          string
	Flags         services.FeatureFlags
	Vendor        string
	Renderer      string
	Canvas        string
	Audio         []uint8

	ScreenErr   error
	TimezoneErr error
	WebGLErr    error
	CanvasErr   error
	AudioErr    error
	PanicCanvas bool
	Slow        time.Duration
}

// NewStaticEnvironment returns a fully capable desktop browser.
func NewStaticEnvironment() *StaticEnvironment {
	return &StaticEnvironment{
		UA:       ChromeOnWindows,
		Width:    1920,
		Height:   1080,
		TZ:       "Europe/Berlin",
		Lang:     "de-DE",
		Plat:     "Win32",
		Flags:    services.FeatureFlags{Cookies: true, LocalStorage: true, SessionStorage: true, IndexedDB: true},
		Vendor:   "Google Inc. (NVIDIA)",
		Renderer: "ANGLE (NVIDIA GeForce RTX 3070)",
		Canvas:   "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAASwAAACWCAYAAABkW7XSAAAAAXNSR0IArs4c6QAAIABJREFUeF7t",
		Audio:    []uint8{120, 118, 117, 115, 110, 108, 104, 100, 98, 96, 90, 88},
	}
}

func (e *StaticEnvironment) UserAgent() string { return e.UA }

func (e *StaticEnvironment) ScreenResolution() (int, int, error) {
	return e.Width, e.Height, e.ScreenErr
}

func (e *StaticEnvironment) Timezone() (string, error) { return e.TZ, e.TimezoneErr }
func (e *StaticEnvironment) Language() string          { return e.Lang }
func (e *StaticEnvironment) Platform() string          { return e.Plat }

func (e *StaticEnvironment) Features() services.FeatureFlags { return e.Flags }

func (e *StaticEnvironment) WebGL(context.Context) (string, string, error) {
	return e.Vendor, e.Renderer, e.WebGLErr
}

func (e *StaticEnvironment) CanvasDataURL(context.Context, services.CanvasSpec) (string, error) {
	if e.PanicCanvas {
		panic("canvas context lost")
	}
	return e.Canvas, e.CanvasErr
}

func (e *StaticEnvironment) AudioFrequencyBins(ctx context.Context, _ services.AudioSpec) ([]uint8, error) {
	if e.Slow > 0 {
		select {
		case <-time.After(e.Slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.Audio, e.AudioErr
}

// FixedPosition always reports the given coordinate.
func FixedPosition(lat, lng float64) services.PositionProvider {
	return services.PositionFunc(func(ctx context.Context) (services.Position, error) {
		return services.Position{
			Coordinates:    model.GeoCoordinate{Latitude: lat, Longitude: lng},
			AccuracyMeters: 5,
			Timestamp:      time.Now(),
		}, nil
	})
}

// FailingPosition always fails with the given reason.
func FailingPosition(reason services.LocationReason) services.PositionProvider {
	return services.PositionFunc(func(ctx context.Context) (services.Position, error) {
		return services.Position{}, &services.LocationError{Reason: reason}
	})
}

// Location is an active geofence of radius meters around (lat, lng).
func Location(id string, lat, lng, radius float64) model.AttendanceLocation {
	return model.AttendanceLocation{
		ID:           id,
		Name:         "Lecture Hall " + id,
		Center:       model.GeoCoordinate{Latitude: lat, Longitude: lng},
		RadiusMeters: radius,
		IsActive:     true,
	}
}

// SetupTestDB connects to TEST_MONGO_URI (default localhost) and returns a
// fresh database that is dropped by the cleanup function. The test is skipped
// when MongoDB is not reachable.
func SetupTestDB(t *testing.T) (*mongo.Database, func()) {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("MongoDB not available: %v", err)
	}

	db := client.Database("attendguard_test_" + uuid.New().String()[:8])
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("Warning: Failed to drop test database %s: %v", db.Name(), err)
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("Warning: Failed to disconnect: %v", err)
		}
	}
	return db, cleanup
}

// RedisURL returns TEST_REDIS_URL or the local default.
func RedisURL() string {
	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379/15"
}
