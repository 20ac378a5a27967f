package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/muhzee733/madical-erp-backend/internal/config"
)

// passLocker runs the critical section directly; lock behavior itself is
// covered by the conditional claim in the repository.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestService starts the clock on a Monday morning so weekday-based slot
// grids behave predictably.
func newTestService(t *testing.T) (*Service, *memRepo, *fakeClock) {
	t.Helper()

	repo := newMemRepo()
	clk := &fakeClock{t: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)}

	svc := NewService(repo, passLocker{}, config.Config{
		PendingTTL:   15 * time.Minute,
		CancelCutoff: 60 * time.Minute,
		LockTTL:      5 * time.Second,
	})
	svc.now = clk.Now

	return svc, repo, clk
}

func newActor(role Role) Actor {
	return Actor{ID: uuid.New(), Role: role}
}

// mustCreateSlot publishes a slot starting at the given offset from now.
func mustCreateSlot(t *testing.T, svc *Service, doctor Actor, startIn time.Duration, kind SlotKind) *AvailabilitySlot {
	t.Helper()

	start := svc.now().Add(startIn)
	slot, err := svc.CreateSlot(context.Background(), doctor, doctor.ID, start, start.Add(kind.Duration()), kind)
	require.NoError(t, err)
	return slot
}

// mustBook books a slot and returns the pending appointment.
func mustBook(t *testing.T, svc *Service, patient Actor, slotID uuid.UUID) *Appointment {
	t.Helper()

	appt, err := svc.Book(context.Background(), patient, slotID)
	require.NoError(t, err)
	return appt
}

// mustBooked books and confirms, yielding a booked appointment.
func mustBooked(t *testing.T, svc *Service, patient Actor, slotID uuid.UUID) *Appointment {
	t.Helper()

	appt := mustBook(t, svc, patient, slotID)
	confirmed, err := svc.Confirm(context.Background(), patient, appt.ID)
	require.NoError(t, err)
	return confirmed
}
