package scheduling

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Calendar is the in-process ground truth of booked time ranges per resource.
// Each resource has its own lane with its own lock, so contention on one
// dentist's calendar never blocks bookings for another.
type Calendar struct {
	mu    sync.Mutex // guards the lanes map only
	lanes map[string]*lane
}

type lane struct {
	mu    sync.Mutex
	slots map[uuid.UUID]TimeSlot
}

// NewCalendar creates an empty calendar.
func NewCalendar() *Calendar {
	return &Calendar{lanes: make(map[string]*lane)}
}

func (c *Calendar) lane(resourceID string) *lane {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lanes[resourceID]
	if !ok {
		l = &lane{slots: make(map[uuid.UUID]TimeSlot)}
		c.lanes[resourceID] = l
	}
	return l
}

// Book atomically checks the slot against the resource's existing bookings and
// records it. Returns ErrSlotConflict if any overlap exists.
func (c *Calendar) Book(id uuid.UUID, slot TimeSlot) error {
	l := c.lane(slot.ResourceID)
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.slots {
		if slot.Conflicts(existing) {
			return ErrSlotConflict
		}
	}
	l.slots[id] = slot
	return nil
}

// Release frees the booking. Releasing an unknown ID is a no-op.
func (c *Calendar) Release(id uuid.UUID, resourceID string) {
	l := c.lane(resourceID)
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.slots, id)
}

// Move rebooks id from its current slot to newSlot as one atomic step: on
// conflict the old booking stays in place. The old and new slot may belong to
// different resources; lanes are locked in a stable order to avoid deadlock.
func (c *Calendar) Move(id uuid.UUID, oldSlot, newSlot TimeSlot) error {
	if oldSlot.ResourceID == newSlot.ResourceID {
		l := c.lane(oldSlot.ResourceID)
		l.mu.Lock()
		defer l.mu.Unlock()

		for existingID, existing := range l.slots {
			if existingID == id {
				continue
			}
			if newSlot.Conflicts(existing) {
				return ErrSlotConflict
			}
		}
		l.slots[id] = newSlot
		return nil
	}

	first, second := c.lane(oldSlot.ResourceID), c.lane(newSlot.ResourceID)
	if oldSlot.ResourceID > newSlot.ResourceID {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	target := c.lanes[newSlot.ResourceID]
	for _, existing := range target.slots {
		if newSlot.Conflicts(existing) {
			return ErrSlotConflict
		}
	}
	delete(c.lanes[oldSlot.ResourceID].slots, id)
	target.slots[id] = newSlot
	return nil
}

// Free reports whether the slot has no overlap with existing bookings.
func (c *Calendar) Free(slot TimeSlot) bool {
	l := c.lane(slot.ResourceID)
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.slots {
		if slot.Conflicts(existing) {
			return false
		}
	}
	return true
}

// BookedSlots returns a snapshot of the resource's bookings sorted by start.
func (c *Calendar) BookedSlots(resourceID string) []TimeSlot {
	l := c.lane(resourceID)
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]TimeSlot, 0, len(l.slots))
	for _, slot := range l.slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
