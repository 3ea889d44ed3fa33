package program

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for phases, patterns and plans.
type Repository interface {
	// GetPhase retrieves a phase by ID.
	// Returns ErrPhaseNotFound if it does not exist.
	GetPhase(ctx context.Context, id string) (*Phase, error)

	// ListPhases returns an account's phases for one device.
	ListPhases(ctx context.Context, ownerEmail, deviceID string) ([]Phase, error)

	// CreatePhase inserts a phase, assigning an ID if empty.
	CreatePhase(ctx context.Context, p *Phase) error

	// GetPatternByName retrieves an account's pattern for a device by name.
	// Returns ErrPatternNotFound if none matches.
	GetPatternByName(ctx context.Context, ownerEmail, deviceID, name string) (*Pattern, error)

	// CreatePattern inserts a pattern, assigning an ID if empty.
	CreatePattern(ctx context.Context, p *Pattern) error

	// ListPlans returns an account's plans for one device.
	ListPlans(ctx context.Context, ownerEmail, deviceID string) ([]Plan, error)

	// CreatePlan inserts a plan, assigning an ID if empty.
	CreatePlan(ctx context.Context, p *Plan) error

	// RemoveDevice deletes every phase, pattern and plan the account holds
	// for the device.
	RemoveDevice(ctx context.Context, ownerEmail, deviceID string) (Removed, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetPhase retrieves a phase by ID.
func (r *SQLiteRepository) GetPhase(ctx context.Context, id string) (*Phase, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_email, device_id, name, signal_string, transition, created_at
		FROM phases
		WHERE id = ?`, id)

	p, err := scanPhase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPhaseNotFound
		}
		return nil, fmt.Errorf("querying phase: %w", err)
	}
	return p, nil
}

// ListPhases returns an account's phases for one device.
func (r *SQLiteRepository) ListPhases(ctx context.Context, ownerEmail, deviceID string) ([]Phase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_email, device_id, name, signal_string, transition, created_at
		FROM phases
		WHERE owner_email = ? AND device_id = ?
		ORDER BY created_at, name`, ownerEmail, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying phases: %w", err)
	}
	defer rows.Close()

	var phases []Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning phase: %w", err)
		}
		phases = append(phases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating phases: %w", err)
	}
	return phases, nil
}

// CreatePhase inserts a phase.
func (r *SQLiteRepository) CreatePhase(ctx context.Context, p *Phase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	transition, err := json.Marshal(p.Transition)
	if err != nil {
		return fmt.Errorf("marshalling transition: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO phases (id, owner_email, device_id, name, signal_string, transition, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerEmail, p.DeviceID, p.Name, p.Signal, string(transition), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting phase: %w", err)
	}
	return nil
}

// GetPatternByName retrieves a pattern by account, device and name.
func (r *SQLiteRepository) GetPatternByName(ctx context.Context, ownerEmail, deviceID, name string) (*Pattern, error) {
	var (
		p         Pattern
		phases    string
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_email, device_id, name, phases, created_at
		FROM patterns
		WHERE owner_email = ? AND device_id = ? AND name = ?`,
		ownerEmail, deviceID, name,
	).Scan(&p.ID, &p.OwnerEmail, &p.DeviceID, &p.Name, &phases, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPatternNotFound
		}
		return nil, fmt.Errorf("querying pattern: %w", err)
	}

	if err := json.Unmarshal([]byte(phases), &p.Phases); err != nil {
		return nil, fmt.Errorf("unmarshalling pattern phases: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// CreatePattern inserts a pattern.
func (r *SQLiteRepository) CreatePattern(ctx context.Context, p *Pattern) error {
	if p.OwnerEmail == "" || p.DeviceID == "" || p.Name == "" {
		return fmt.Errorf("%w: pattern requires owner, device and name", ErrInvalidRecord)
	}
	for _, occ := range p.Phases {
		if occ.Duration < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidDuration, occ.Duration)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	occurrences := p.Phases
	if occurrences == nil {
		occurrences = []PatternPhase{}
	}
	phases, err := json.Marshal(occurrences)
	if err != nil {
		return fmt.Errorf("marshalling pattern phases: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO patterns (id, owner_email, device_id, name, phases, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerEmail, p.DeviceID, p.Name, string(phases), formatTime(p.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: pattern %q already exists", ErrInvalidRecord, p.Name)
		}
		return fmt.Errorf("inserting pattern: %w", err)
	}
	return nil
}

// ListPlans returns an account's plans for one device.
func (r *SQLiteRepository) ListPlans(ctx context.Context, ownerEmail, deviceID string) ([]Plan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_email, device_id, name, day_type, schedule, custom_date, created_at
		FROM plans
		WHERE owner_email = ? AND device_id = ?
		ORDER BY created_at, name`, ownerEmail, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var (
			p          Plan
			schedule   string
			customDate sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&p.ID, &p.OwnerEmail, &p.DeviceID, &p.Name, &p.DayType,
			&schedule, &customDate, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		p.Schedule = json.RawMessage(schedule)
		p.CustomDate = customDate.String
		p.CreatedAt = parseTime(createdAt)
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plans: %w", err)
	}
	return plans, nil
}

// CreatePlan inserts a plan.
func (r *SQLiteRepository) CreatePlan(ctx context.Context, p *Plan) error {
	if p.OwnerEmail == "" || p.DeviceID == "" || p.Name == "" || p.DayType == "" {
		return fmt.Errorf("%w: plan requires owner, device, name and day type", ErrInvalidRecord)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	schedule := string(p.Schedule)
	if schedule == "" {
		schedule = "{}"
	}
	var customDate any
	if p.CustomDate != "" {
		customDate = p.CustomDate
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plans (id, owner_email, device_id, name, day_type, schedule, custom_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerEmail, p.DeviceID, p.Name, p.DayType, schedule, customDate, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}
	return nil
}

// RemoveDevice deletes an account's phases, patterns and plans for a device
// in one transaction.
func (r *SQLiteRepository) RemoveDevice(ctx context.Context, ownerEmail, deviceID string) (Removed, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Removed{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op

	var removed Removed
	for _, target := range []struct {
		table string
		count *int64
	}{
		{"phases", &removed.Phases},
		{"patterns", &removed.Patterns},
		{"plans", &removed.Plans},
	} {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM "+target.table+" WHERE owner_email = ? AND device_id = ?",
			ownerEmail, deviceID)
		if err != nil {
			return Removed{}, fmt.Errorf("deleting %s: %w", target.table, err)
		}
		*target.count, _ = res.RowsAffected() //nolint:errcheck // SQLite always reports affected rows
	}

	if err := tx.Commit(); err != nil {
		return Removed{}, fmt.Errorf("committing removal: %w", err)
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPhase(row scanner) (*Phase, error) {
	var (
		p          Phase
		transition string
		createdAt  string
	)
	if err := row.Scan(&p.ID, &p.OwnerEmail, &p.DeviceID, &p.Name, &p.Signal, &transition, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transition), &p.Transition); err != nil {
		return nil, fmt.Errorf("unmarshalling transition: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
