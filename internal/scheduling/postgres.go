package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightsmile/clinic-assistant/internal/clinic"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

// PgxIface is the subset of pgxpool.Pool the scheduler needs; pgxmock
// implements it for tests.
type PgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresScheduler is the durable backend. Mutations for a resource are
// serialized with a transaction-scoped advisory lock keyed on the resource ID,
// so the availability check and the insert commit as one atomic step while
// bookings for different dentists proceed in parallel.
type PostgresScheduler struct {
	db     PgxIface
	clinic *clinic.Info
	logger *logging.Logger
}

var _ Scheduler = (*PostgresScheduler)(nil)

// NewPostgresScheduler creates the durable backend.
func NewPostgresScheduler(db PgxIface, info *clinic.Info, logger *logging.Logger) *PostgresScheduler {
	if db == nil {
		panic("scheduling: database required")
	}
	if info == nil {
		panic("scheduling: clinic info required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresScheduler{db: db, clinic: info, logger: logger}
}

const conflictExistsSQL = `
SELECT EXISTS(
	SELECT 1 FROM appointments
	WHERE resource_id = $1
	  AND status = 'scheduled'
	  AND start_at < $3
	  AND start_at + make_interval(mins => duration_mins) > $2
)`

// CheckAvailability reports whether the slot is free of scheduled conflicts.
func (p *PostgresScheduler) CheckAvailability(ctx context.Context, slot TimeSlot) (bool, error) {
	var conflict bool
	err := p.db.QueryRow(ctx, conflictExistsSQL,
		slot.ResourceID, slot.Start.UTC(), slot.End().UTC(),
	).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("scheduling: check availability: %w", err)
	}
	return !conflict, nil
}

// ListAvailableSlots loads the day's scheduled bookings once and filters the
// business-hours grid against them.
func (p *PostgresScheduler) ListAvailableSlots(ctx context.Context, resourceID string, date time.Time, duration time.Duration) ([]time.Time, error) {
	if duration <= 0 {
		duration = slotGranularity
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := p.db.Query(ctx, `
		SELECT start_at, duration_mins FROM appointments
		WHERE resource_id = $1 AND status = 'scheduled'
		  AND start_at >= $2 AND start_at < $3
	`, resourceID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("scheduling: list booked: %w", err)
	}
	defer rows.Close()

	var booked []TimeSlot
	for rows.Next() {
		var start time.Time
		var mins int32
		if err := rows.Scan(&start, &mins); err != nil {
			return nil, fmt.Errorf("scheduling: scan booked: %w", err)
		}
		booked = append(booked, TimeSlot{
			ResourceID: resourceID,
			Start:      start.In(date.Location()),
			Duration:   time.Duration(mins) * time.Minute,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: list booked: %w", err)
	}

	var out []time.Time
	for _, start := range businessHourStarts(p.clinic, date, duration) {
		candidate := TimeSlot{ResourceID: resourceID, Start: start, Duration: duration}
		free := true
		for _, b := range booked {
			if candidate.Conflicts(b) {
				free = false
				break
			}
		}
		if free {
			out = append(out, start)
		}
	}
	return out, nil
}

// CreateAppointment takes the per-resource advisory lock, re-checks conflicts
// and inserts, all in one transaction.
func (p *PostgresScheduler) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	slot := req.Slot
	if slot.Duration <= 0 {
		slot.Duration = p.clinic.ServiceDuration(req.ServiceKind)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockResource(ctx, tx, slot.ResourceID); err != nil {
		return nil, err
	}

	var conflict bool
	if err := tx.QueryRow(ctx, conflictExistsSQL,
		slot.ResourceID, slot.Start.UTC(), slot.End().UTC(),
	).Scan(&conflict); err != nil {
		return nil, fmt.Errorf("scheduling: conflict check: %w", err)
	}
	if conflict {
		return nil, ErrSlotConflict
	}

	appt := &Appointment{
		ID:          uuid.New(),
		PatientName: req.PatientName,
		ContactInfo: req.ContactInfo,
		Slot:        slot,
		ServiceKind: req.ServiceKind,
		Status:      StatusScheduled,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_name, contact_info, resource_id, start_at, duration_mins, service_kind, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, appt.ID, appt.PatientName, appt.ContactInfo, slot.ResourceID,
		slot.Start.UTC(), int32(slot.Duration.Minutes()), appt.ServiceKind, string(appt.Status), appt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scheduling: insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("scheduling: commit: %w", err)
	}

	p.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"resource_id", slot.ResourceID,
		"start", slot.Start,
		"service", req.ServiceKind,
	)
	return appt, nil
}

// CancelAppointment transitions to cancelled; already-cancelled rows succeed
// without a write.
func (p *PostgresScheduler) CancelAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled' WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return fmt.Errorf("scheduling: cancel: %w", err)
	}
	if tag.RowsAffected() > 0 {
		p.logger.Info("appointment cancelled", "appointment_id", id)
		return nil
	}

	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("scheduling: cancel lookup: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// UpdateAppointment moves the booking inside one locked transaction; on
// conflict nothing is written.
func (p *PostgresScheduler) UpdateAppointment(ctx context.Context, id uuid.UUID, newSlot TimeSlot) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current TimeSlot
	var mins int32
	err = tx.QueryRow(ctx, `
		SELECT resource_id, start_at, duration_mins FROM appointments
		WHERE id = $1 AND status = 'scheduled'
		FOR UPDATE
	`, id).Scan(&current.ResourceID, &current.Start, &mins)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scheduling: load for update: %w", err)
	}
	current.Duration = time.Duration(mins) * time.Minute

	if newSlot.Duration <= 0 {
		newSlot.Duration = current.Duration
	}
	if newSlot.ResourceID == "" {
		newSlot.ResourceID = current.ResourceID
	}

	if err := lockResource(ctx, tx, newSlot.ResourceID); err != nil {
		return err
	}

	var conflict bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM appointments
			WHERE resource_id = $1
			  AND status = 'scheduled'
			  AND id <> $4
			  AND start_at < $3
			  AND start_at + make_interval(mins => duration_mins) > $2
		)`, newSlot.ResourceID, newSlot.Start.UTC(), newSlot.End().UTC(), id,
	).Scan(&conflict); err != nil {
		return fmt.Errorf("scheduling: conflict check: %w", err)
	}
	if conflict {
		return ErrSlotConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments SET resource_id = $2, start_at = $3, duration_mins = $4 WHERE id = $1
	`, id, newSlot.ResourceID, newSlot.Start.UTC(), int32(newSlot.Duration.Minutes()))
	if err != nil {
		return fmt.Errorf("scheduling: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit: %w", err)
	}
	p.logger.Info("appointment rescheduled", "appointment_id", id, "start", newSlot.Start)
	return nil
}

// FindAppointment returns the earliest scheduled match.
func (p *PostgresScheduler) FindAppointment(ctx context.Context, patientName, contactInfo string) (*Appointment, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, patient_name, contact_info, resource_id, start_at, duration_mins, service_kind, status, created_at
		FROM appointments
		WHERE lower(patient_name) = lower($1)
		  AND status = 'scheduled'
		  AND ($2 = '' OR contact_info = $2)
		ORDER BY start_at ASC
		LIMIT 1
	`, strings.TrimSpace(patientName), strings.TrimSpace(contactInfo))
	return scanAppointment(row)
}

// GetAppointment returns the appointment by ID regardless of status.
func (p *PostgresScheduler) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, patient_name, contact_info, resource_id, start_at, duration_mins, service_kind, status, created_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	var mins int32
	var status string
	err := row.Scan(&appt.ID, &appt.PatientName, &appt.ContactInfo, &appt.Slot.ResourceID,
		&appt.Slot.Start, &mins, &appt.ServiceKind, &status, &appt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
	}
	appt.Slot.Duration = time.Duration(mins) * time.Minute
	appt.Status = Status(status)
	return &appt, nil
}

func lockResource(ctx context.Context, tx pgx.Tx, resourceID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, resourceID); err != nil {
		return fmt.Errorf("scheduling: advisory lock: %w", err)
	}
	return nil
}
