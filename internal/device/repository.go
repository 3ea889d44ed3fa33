package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the device persistence operations the gateway needs.
type Repository interface {
	// GetDevice retrieves a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetDevice(ctx context.Context, id string) (*Device, error)

	// CreateDevice inserts a new device.
	// Returns ErrDeviceExists if the ID is taken.
	CreateDevice(ctx context.Context, d *Device) error

	// SetLastSeen records when a device went offline; nil marks it online.
	// Unknown devices are ignored.
	SetLastSeen(ctx context.Context, id string, lastSeen *time.Time) error

	// GetControlState retrieves a device's control state.
	// Returns ErrControlStateNotFound if there is no record.
	GetControlState(ctx context.Context, id string) (*ControlState, error)

	// SaveControlState inserts or replaces a control-state record.
	SaveControlState(ctx context.Context, s *ControlState) error

	// SetPower updates only the Power flag. Devices without a control-state
	// record are ignored.
	SetPower(ctx context.Context, id string, on bool) error

	// GetTelemetry retrieves a device's last telemetry report.
	// Returns ErrTelemetryNotFound if there is no record.
	GetTelemetry(ctx context.Context, id string) (*Telemetry, error)

	// SaveTelemetry inserts or replaces a telemetry record.
	SaveTelemetry(ctx context.Context, t *Telemetry) error

	// DeleteDevice removes the device, its control state and its telemetry in
	// one transaction. Missing records are not an error.
	DeleteDevice(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetDevice retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetDevice(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT device_id, device_type, owner_email, status, last_seen,
			trashed_at, recalled_at, created_at, updated_at
		FROM devices
		WHERE device_id = ?`

	var (
		d                               Device
		status                          string
		lastSeen, trashedAt, recalledAt sql.NullString
		createdAt, updatedAt            string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Type, &d.OwnerEmail, &status, &lastSeen,
		&trashedAt, &recalledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}

	d.Status = Status(status)
	d.LastSeen = parseNullableTime(lastSeen)
	d.TrashedAt = parseNullableTime(trashedAt)
	d.RecalledAt = parseNullableTime(recalledAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// CreateDevice inserts a new device.
func (r *SQLiteRepository) CreateDevice(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO devices (
			device_id, device_type, owner_email, status, last_seen,
			trashed_at, recalled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.Type,
		d.OwnerEmail,
		string(d.Status),
		nullableTime(d.LastSeen),
		nullableTime(d.TrashedAt),
		nullableTime(d.RecalledAt),
		formatTime(d.CreatedAt),
		formatTime(d.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// SetLastSeen records the offline instant, or clears it.
func (r *SQLiteRepository) SetLastSeen(ctx context.Context, id string, lastSeen *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_seen = ?, updated_at = ? WHERE device_id = ?",
		nullableTime(lastSeen), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("updating last seen: %w", err)
	}
	return nil
}

// GetControlState retrieves a device's control state.
func (r *SQLiteRepository) GetControlState(ctx context.Context, id string) (*ControlState, error) {
	query := `
		SELECT device_id, auto, hold, next, reboot, power, reset,
			signal_level, error_flash, signal_config, updated_at
		FROM device_control_states
		WHERE device_id = ?`

	var (
		s                                      ControlState
		auto, hold, next, reboot, power, reset int
		errorFlash                             int
		updatedAt                              string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.DeviceID, &auto, &hold, &next, &reboot, &power, &reset,
		&s.SignalLevel, &errorFlash, &s.SignalConfig, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrControlStateNotFound
		}
		return nil, fmt.Errorf("querying control state: %w", err)
	}

	s.Auto = auto != 0
	s.Hold = hold != 0
	s.Next = next != 0
	s.Reboot = reboot != 0
	s.Power = power != 0
	s.Reset = reset != 0
	s.ErrorFlash = errorFlash != 0
	s.UpdatedAt = parseTime(updatedAt)
	s.ApplyDefaults()
	return &s, nil
}

// SaveControlState inserts or replaces a control-state record.
func (r *SQLiteRepository) SaveControlState(ctx context.Context, s *ControlState) error {
	s.ApplyDefaults()
	s.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO device_control_states (
			device_id, auto, hold, next, reboot, power, reset,
			signal_level, error_flash, signal_config, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			auto = excluded.auto, hold = excluded.hold, next = excluded.next,
			reboot = excluded.reboot, power = excluded.power, reset = excluded.reset,
			signal_level = excluded.signal_level, error_flash = excluded.error_flash,
			signal_config = excluded.signal_config, updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		s.DeviceID,
		boolToInt(s.Auto),
		boolToInt(s.Hold),
		boolToInt(s.Next),
		boolToInt(s.Reboot),
		boolToInt(s.Power),
		boolToInt(s.Reset),
		s.SignalLevel,
		boolToInt(s.ErrorFlash),
		s.SignalConfig,
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving control state: %w", err)
	}
	return nil
}

// SetPower updates the Power flag only.
func (r *SQLiteRepository) SetPower(ctx context.Context, id string, on bool) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE device_control_states SET power = ?, updated_at = ? WHERE device_id = ?",
		boolToInt(on), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("updating power: %w", err)
	}
	return nil
}

// GetTelemetry retrieves a device's last telemetry report.
func (r *SQLiteRepository) GetTelemetry(ctx context.Context, id string) (*Telemetry, error) {
	query := `
		SELECT device_id, directions, rtc, plan, period, junction_id,
			junction_password, communication_frequency, communication_channel, updated_at
		FROM device_telemetry
		WHERE device_id = ?`

	var (
		t          Telemetry
		directions string
		updatedAt  string
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.DeviceID, &directions, &t.Rtc, &t.Plan, &t.Period, &t.JunctionID,
		&t.JunctionPassword, &t.CommunicationFrequency, &t.CommunicationChannel, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTelemetryNotFound
		}
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}

	if err := json.Unmarshal([]byte(directions), &t.Directions); err != nil {
		return nil, fmt.Errorf("unmarshalling directions: %w", err)
	}
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// SaveTelemetry inserts or replaces a telemetry record.
func (r *SQLiteRepository) SaveTelemetry(ctx context.Context, t *Telemetry) error {
	directions := t.Directions
	if directions == nil {
		directions = map[string]Reading{}
	}
	directionsJSON, err := json.Marshal(directions)
	if err != nil {
		return fmt.Errorf("marshalling directions: %w", err)
	}
	t.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO device_telemetry (
			device_id, directions, rtc, plan, period, junction_id,
			junction_password, communication_frequency, communication_channel, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			directions = excluded.directions, rtc = excluded.rtc, plan = excluded.plan,
			period = excluded.period, junction_id = excluded.junction_id,
			junction_password = excluded.junction_password,
			communication_frequency = excluded.communication_frequency,
			communication_channel = excluded.communication_channel,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		t.DeviceID,
		string(directionsJSON),
		t.Rtc,
		t.Plan,
		t.Period,
		t.JunctionID,
		t.JunctionPassword,
		t.CommunicationFrequency,
		t.CommunicationChannel,
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving telemetry: %w", err)
	}
	return nil
}

// DeleteDevice removes every record held for the device.
func (r *SQLiteRepository) DeleteDevice(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op

	for _, table := range []string{"device_control_states", "device_telemetry", "devices"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE device_id = ?", id); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// Helper functions for SQL mapping.

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
