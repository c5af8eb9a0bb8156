package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-assistant/internal/clinic"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

func newPGScheduler(t *testing.T) (*PostgresScheduler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresScheduler(mock, clinic.Default(), logging.Default()), mock
}

func TestPGCreateAppointment(t *testing.T) {
	s, mock := newPGScheduler(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("Dr. Ana Popescu").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("Dr. Ana Popescu", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "Jane Doe", "555-0100", "Dr. Ana Popescu",
			pgxmock.AnyArg(), int32(45), "teeth_cleaning", "scheduled", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback() // deferred rollback after commit is a no-op

	appt, err := s.CreateAppointment(context.Background(), CreateRequest{
		PatientName: "Jane Doe",
		ContactInfo: "555-0100",
		Slot: TimeSlot{
			ResourceID: "Dr. Ana Popescu",
			Start:      time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		},
		ServiceKind: "teeth_cleaning",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 45*time.Minute, appt.Slot.Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGCreateAppointmentConflict(t *testing.T) {
	s, mock := newPGScheduler(t)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("Dr. Ana Popescu").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("Dr. Ana Popescu", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := s.CreateAppointment(context.Background(), CreateRequest{
		PatientName: "Jane Doe",
		Slot: TimeSlot{
			ResourceID: "Dr. Ana Popescu",
			Start:      time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
			Duration:   time.Hour,
		},
		ServiceKind: "general_dentistry",
	})
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGCheckAvailability(t *testing.T) {
	s, mock := newPGScheduler(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("Dr. Ana Popescu", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := s.CheckAvailability(context.Background(), TimeSlot{
		ResourceID: "Dr. Ana Popescu",
		Start:      time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC),
		Duration:   time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGCancelIdempotent(t *testing.T) {
	s, mock := newPGScheduler(t)
	id := uuid.New()

	// First cancel transitions the row.
	mock.ExpectExec("UPDATE appointments SET status = 'cancelled'").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CancelAppointment(context.Background(), id))

	// Second cancel touches nothing but still succeeds.
	mock.ExpectExec("UPDATE appointments SET status = 'cancelled'").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	require.NoError(t, s.CancelAppointment(context.Background(), id))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGCancelUnknown(t *testing.T) {
	s, mock := newPGScheduler(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments SET status = 'cancelled'").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	assert.ErrorIs(t, s.CancelAppointment(context.Background(), id), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGUpdateConflictRollsBack(t *testing.T) {
	s, mock := newPGScheduler(t)
	id := uuid.New()
	current := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"resource_id", "start_at", "duration_mins"}).
			AddRow("Dr. Ana Popescu", current, int32(60)))
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("Dr. Ana Popescu").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("Dr. Ana Popescu", pgxmock.AnyArg(), pgxmock.AnyArg(), id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.UpdateAppointment(context.Background(), id, TimeSlot{
		ResourceID: "Dr. Ana Popescu",
		Start:      time.Date(2026, 9, 7, 11, 0, 0, 0, time.UTC),
		Duration:   time.Hour,
	})
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGFindAppointment(t *testing.T) {
	s, mock := newPGScheduler(t)
	id := uuid.New()
	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, patient_name").
		WithArgs("Jane Doe", "").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "patient_name", "contact_info", "resource_id", "start_at",
			"duration_mins", "service_kind", "status", "created_at",
		}).AddRow(id, "Jane Doe", "555-0100", "Dr. Ana Popescu", start,
			int32(60), "general_dentistry", "scheduled", start))

	appt, err := s.FindAppointment(context.Background(), "Jane Doe", "")
	require.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	assert.Equal(t, time.Hour, appt.Slot.Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGListAvailableSlotsFiltersBooked(t *testing.T) {
	s, mock := newPGScheduler(t)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT start_at, duration_mins FROM appointments").
		WithArgs("Dr. Ana Popescu", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"start_at", "duration_mins"}).
			AddRow(monday.Add(10*time.Hour), int32(60)))

	slots, err := s.ListAvailableSlots(context.Background(), "Dr. Ana Popescu", monday, time.Hour)
	require.NoError(t, err)
	assert.Len(t, slots, 9)
	for _, start := range slots {
		assert.NotEqual(t, 10, start.Hour())
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
