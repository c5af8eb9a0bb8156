package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/clinic-assistant/internal/clinic"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

func newMemoryScheduler(t *testing.T) *MemoryScheduler {
	t.Helper()
	return NewMemoryScheduler(clinic.Default(), logging.Default())
}

// Monday within business hours.
func mondaySlot(hour int, dur time.Duration) TimeSlot {
	return TimeSlot{
		ResourceID: "Dr. Ana Popescu",
		Start:      time.Date(2026, 9, 7, hour, 0, 0, 0, time.UTC),
		Duration:   dur,
	}
}

func TestCreateAndFindRoundTrip(t *testing.T) {
	s := newMemoryScheduler(t)
	ctx := context.Background()

	created, err := s.CreateAppointment(ctx, CreateRequest{
		PatientName: "Jane Doe",
		ContactInfo: "555-0100",
		Slot:        mondaySlot(10, 0), // duration filled from the service
		ServiceKind: "teeth_cleaning",
	})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, created.Slot.Duration)
	assert.Equal(t, StatusScheduled, created.Status)

	found, err := s.FindAppointment(ctx, "jane doe", "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "teeth_cleaning", found.ServiceKind)
	assert.True(t, created.Slot.Start.Equal(found.Slot.Start))

	// Contact info, when supplied, must match.
	_, err = s.FindAppointment(ctx, "Jane Doe", "555-9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentCreateExactlyOneWinner(t *testing.T) {
	s := newMemoryScheduler(t)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateAppointment(ctx, CreateRequest{
				PatientName: "Racer",
				Slot:        mondaySlot(11, time.Hour),
				ServiceKind: "general_dentistry",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotConflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCancelIsIdempotent(t *testing.T) {
	s := newMemoryScheduler(t)
	ctx := context.Background()

	created, err := s.CreateAppointment(ctx, CreateRequest{
		PatientName: "Jane Doe",
		Slot:        mondaySlot(9, time.Hour),
		ServiceKind: "general_dentistry",
	})
	require.NoError(t, err)

	require.NoError(t, s.CancelAppointment(ctx, created.ID))
	require.NoError(t, s.CancelAppointment(ctx, created.ID), "second cancel succeeds")

	got, err := s.GetAppointment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// After cancellation the patient lookup finds nothing.
	_, err = s.FindAppointment(ctx, "Jane Doe", "")
	assert.ErrorIs(t, err, ErrNotFound)

	// And the slot is bookable again.
	_, err = s.CreateAppointment(ctx, CreateRequest{
		PatientName: "John Roe",
		Slot:        mondaySlot(9, time.Hour),
		ServiceKind: "general_dentistry",
	})
	assert.NoError(t, err)
}

func TestCancelUnknown(t *testing.T) {
	s := newMemoryScheduler(t)
	assert.ErrorIs(t, s.CancelAppointment(context.Background(), uuid.New()), ErrNotFound)
}

func TestUpdateConflictLeavesOriginal(t *testing.T) {
	s := newMemoryScheduler(t)
	ctx := context.Background()

	first, err := s.CreateAppointment(ctx, CreateRequest{
		PatientName: "Jane Doe",
		Slot:        mondaySlot(9, time.Hour),
		ServiceKind: "general_dentistry",
	})
	require.NoError(t, err)
	_, err = s.CreateAppointment(ctx, CreateRequest{
		PatientName: "John Roe",
		Slot:        mondaySlot(11, time.Hour),
		ServiceKind: "general_dentistry",
	})
	require.NoError(t, err)

	err = s.UpdateAppointment(ctx, first.ID, mondaySlot(11, time.Hour))
	assert.ErrorIs(t, err, ErrSlotConflict)

	got, err := s.GetAppointment(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Slot.Start.Equal(first.Slot.Start), "original slot unchanged on conflict")

	// Moving to a free slot works.
	require.NoError(t, s.UpdateAppointment(ctx, first.ID, mondaySlot(14, time.Hour)))
	got, err = s.GetAppointment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Slot.Start.Hour())
}

func TestListAvailableSlots(t *testing.T) {
	s := newMemoryScheduler(t)
	ctx := context.Background()

	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	slots, err := s.ListAvailableSlots(ctx, "Dr. Ana Popescu", monday, time.Hour)
	require.NoError(t, err)
	// Monday 08:00-18:00, hourly grid, 60-minute service: 08..17 inclusive.
	require.Len(t, slots, 10)
	assert.Equal(t, 8, slots[0].Hour())
	assert.Equal(t, 17, slots[len(slots)-1].Hour())
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].Before(slots[i]), "ascending order")
	}

	// Book 10:00 and it disappears from the listing.
	_, err = s.CreateAppointment(ctx, CreateRequest{
		PatientName: "Jane Doe",
		Slot:        mondaySlot(10, time.Hour),
		ServiceKind: "general_dentistry",
	})
	require.NoError(t, err)

	slots, err = s.ListAvailableSlots(ctx, "Dr. Ana Popescu", monday, time.Hour)
	require.NoError(t, err)
	assert.Len(t, slots, 9)
	for _, start := range slots {
		assert.NotEqual(t, 10, start.Hour())
	}

	// A two-hour service cannot start at 17:00.
	slots, err = s.ListAvailableSlots(ctx, "Dr. Mihai Ionescu", monday, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 16, slots[len(slots)-1].Hour())
}

func TestListAvailableSlotsClosedDay(t *testing.T) {
	s := newMemoryScheduler(t)

	sunday := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	slots, err := s.ListAvailableSlots(context.Background(), "Dr. Ana Popescu", sunday, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestScheduledSetStaysPairwiseNonConflicting(t *testing.T) {
	s := newMemoryScheduler(t)
	ctx := context.Background()

	// Hammer overlapping windows concurrently, then verify the invariant.
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Date(2026, 9, 7, 8+(i%9), 30*(i%2), 0, 0, time.UTC)
			_, _ = s.CreateAppointment(ctx, CreateRequest{
				PatientName: "Racer",
				Slot:        TimeSlot{ResourceID: "Dr. Ana Popescu", Start: start, Duration: time.Hour},
				ServiceKind: "general_dentistry",
			})
		}(i)
	}
	wg.Wait()

	booked := s.calendar.BookedSlots("Dr. Ana Popescu")
	for i := range booked {
		for j := i + 1; j < len(booked); j++ {
			assert.False(t, booked[i].Conflicts(booked[j]),
				"scheduled slots %v and %v overlap", booked[i], booked[j])
		}
	}
}
