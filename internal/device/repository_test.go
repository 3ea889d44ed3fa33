package device

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quadrumtech/signal-gateway/internal/infrastructure/database"
	_ "github.com/quadrumtech/signal-gateway/migrations"
)

// setupTestDB opens a migrated database in a temporary directory.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "device.db")})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close() //nolint:errcheck // Test cleanup
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})
	return db.DB
}

func setupRepo(t *testing.T) (*SQLiteRepository, context.Context) {
	t.Helper()
	return NewSQLiteRepository(setupTestDB(t)), context.Background()
}

func TestCreateAndGetDevice(t *testing.T) {
	repo, ctx := setupRepo(t)

	d := &Device{ID: "TSLC-001", OwnerEmail: "alice@x.com"}
	if err := repo.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	got, err := repo.GetDevice(ctx, "TSLC-001")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if got.OwnerEmail != "alice@x.com" || got.Status != StatusActive || got.Type != DefaultType {
		t.Errorf("GetDevice() = %+v", got)
	}
	if got.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", got.LastSeen)
	}

	if err := repo.CreateDevice(ctx, &Device{ID: "TSLC-001", OwnerEmail: "bob@x.com"}); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate CreateDevice() error = %v, want ErrDeviceExists", err)
	}
	if _, err := repo.GetDevice(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestCreateDeviceValidation(t *testing.T) {
	repo, ctx := setupRepo(t)

	tests := []struct {
		name string
		d    Device
	}{
		{"missing id", Device{OwnerEmail: "a@x.com"}},
		{"missing owner", Device{ID: "D1"}},
		{"bad status", Device{ID: "D1", OwnerEmail: "a@x.com", Status: "lost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.CreateDevice(ctx, &tt.d); !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("CreateDevice() error = %v, want ErrInvalidDevice", err)
			}
		})
	}
}

func TestSetLastSeen(t *testing.T) {
	repo, ctx := setupRepo(t)
	if err := repo.CreateDevice(ctx, &Device{ID: "D1", OwnerEmail: "a@x.com"}); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	seen := time.Date(2026, 3, 1, 12, 0, 20, 500, time.UTC)
	if err := repo.SetLastSeen(ctx, "D1", &seen); err != nil {
		t.Fatalf("SetLastSeen() error = %v", err)
	}
	got, _ := repo.GetDevice(ctx, "D1")
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}

	if err := repo.SetLastSeen(ctx, "D1", nil); err != nil {
		t.Fatalf("SetLastSeen(nil) error = %v", err)
	}
	got, _ = repo.GetDevice(ctx, "D1")
	if got.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", got.LastSeen)
	}

	if err := repo.SetLastSeen(ctx, "unknown", &seen); err != nil {
		t.Errorf("SetLastSeen(unknown) error = %v, want nil", err)
	}
}

func TestControlStateRoundTrip(t *testing.T) {
	repo, ctx := setupRepo(t)

	if _, err := repo.GetControlState(ctx, "D1"); !errors.Is(err, ErrControlStateNotFound) {
		t.Fatalf("GetControlState() error = %v, want ErrControlStateNotFound", err)
	}

	s := NewControlState("D1")
	s.Hold = true
	s.SignalLevel = 55
	if err := repo.SaveControlState(ctx, s); err != nil {
		t.Fatalf("SaveControlState() error = %v", err)
	}

	s.Hold = false
	s.Power = true
	if err := repo.SaveControlState(ctx, s); err != nil {
		t.Fatalf("SaveControlState() update error = %v", err)
	}

	got, err := repo.GetControlState(ctx, "D1")
	if err != nil {
		t.Fatalf("GetControlState() error = %v", err)
	}
	if got.Hold || !got.Power || got.SignalLevel != 55 || got.SignalConfig != DefaultSignalConfig {
		t.Errorf("GetControlState() = %+v", got)
	}
}

func TestSetPower(t *testing.T) {
	repo, ctx := setupRepo(t)
	if err := repo.SaveControlState(ctx, NewControlState("D1")); err != nil {
		t.Fatalf("SaveControlState() error = %v", err)
	}

	if err := repo.SetPower(ctx, "D1", true); err != nil {
		t.Fatalf("SetPower() error = %v", err)
	}
	got, _ := repo.GetControlState(ctx, "D1")
	if !got.Power {
		t.Error("Power should be true")
	}

	if err := repo.SetPower(ctx, "ghost", true); err != nil {
		t.Errorf("SetPower(ghost) error = %v, want nil", err)
	}
	if _, err := repo.GetControlState(ctx, "ghost"); !errors.Is(err, ErrControlStateNotFound) {
		t.Error("SetPower should not create records")
	}
}

func TestTelemetryRoundTrip(t *testing.T) {
	repo, ctx := setupRepo(t)

	tel := &Telemetry{
		DeviceID:   "D1",
		Directions: map[string]Reading{"North": {Battery: "12.6", Temperature: "31"}},
		Rtc:        "1767225600",
		Plan:       "1",
		Period:     "P08:30",
		JunctionID: "J-7",
	}
	if err := repo.SaveTelemetry(ctx, tel); err != nil {
		t.Fatalf("SaveTelemetry() error = %v", err)
	}

	got, err := repo.GetTelemetry(ctx, "D1")
	if err != nil {
		t.Fatalf("GetTelemetry() error = %v", err)
	}
	if got.Directions["North"].Battery != "12.6" || got.JunctionID != "J-7" || got.Period != "P08:30" {
		t.Errorf("GetTelemetry() = %+v", got)
	}

	if _, err := repo.GetTelemetry(ctx, "D2"); !errors.Is(err, ErrTelemetryNotFound) {
		t.Errorf("GetTelemetry(D2) error = %v, want ErrTelemetryNotFound", err)
	}
}

func TestDeleteDeviceLeavesOthers(t *testing.T) {
	repo, ctx := setupRepo(t)

	for _, id := range []string{"D1", "D2"} {
		if err := repo.CreateDevice(ctx, &Device{ID: id, OwnerEmail: "a@x.com"}); err != nil {
			t.Fatalf("CreateDevice(%s) error = %v", id, err)
		}
		if err := repo.SaveControlState(ctx, NewControlState(id)); err != nil {
			t.Fatalf("SaveControlState(%s) error = %v", id, err)
		}
		if err := repo.SaveTelemetry(ctx, &Telemetry{DeviceID: id}); err != nil {
			t.Fatalf("SaveTelemetry(%s) error = %v", id, err)
		}
	}

	if err := repo.DeleteDevice(ctx, "D1"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := repo.GetDevice(ctx, "D1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("device survived delete: %v", err)
	}
	if _, err := repo.GetControlState(ctx, "D1"); !errors.Is(err, ErrControlStateNotFound) {
		t.Errorf("control state survived delete: %v", err)
	}
	if _, err := repo.GetTelemetry(ctx, "D1"); !errors.Is(err, ErrTelemetryNotFound) {
		t.Errorf("telemetry survived delete: %v", err)
	}

	if _, err := repo.GetDevice(ctx, "D2"); err != nil {
		t.Errorf("D2 device removed: %v", err)
	}
	if _, err := repo.GetControlState(ctx, "D2"); err != nil {
		t.Errorf("D2 control state removed: %v", err)
	}
	if _, err := repo.GetTelemetry(ctx, "D2"); err != nil {
		t.Errorf("D2 telemetry removed: %v", err)
	}

	if err := repo.DeleteDevice(ctx, "D1"); err != nil {
		t.Errorf("second DeleteDevice() error = %v, want nil", err)
	}
}
