package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// BulkSlotSpec describes a grid of slots to generate: every matching weekday
// between From and To (inclusive, dates in Location), the daily window
// [DayStart, DayEnd) tiled with Kind-duration slots. DayStart and DayEnd are
// "15:04" clock times.
type BulkSlotSpec struct {
	From     time.Time
	To       time.Time
	Weekdays []time.Weekday
	DayStart string
	DayEnd   string
	Kind     SlotKind
}

// CreateSlot publishes a single slot. Doctors create their own; admins may
// create for any doctor.
func (s *Service) CreateSlot(ctx context.Context, actor Actor, doctorID uuid.UUID, start, end time.Time, kind SlotKind) (*AvailabilitySlot, error) {
	if err := s.slotWriteAllowed(actor, doctorID); err != nil {
		return nil, err
	}
	if err := s.validateSlotRange(start, end, kind); err != nil {
		return nil, err
	}

	overlapping, err := s.repo.FindOverlappingSlots(ctx, doctorID, start, end, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("check slot overlap: %w", err)
	}
	if len(overlapping) > 0 {
		return nil, ErrOverlap
	}

	slot := &AvailabilitySlot{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
		Kind:      kind,
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// CreateSlotsBulk tiles the requested daily window with fixed-duration slots on
// every matching weekday. Generated slots whose (doctor, start) already
// exists, and slots that would start in the past, are skipped silently so a
// re-run is idempotent. Returns the slots actually created.
func (s *Service) CreateSlotsBulk(ctx context.Context, actor Actor, doctorID uuid.UUID, spec BulkSlotSpec) ([]AvailabilitySlot, error) {
	if err := s.slotWriteAllowed(actor, doctorID); err != nil {
		return nil, err
	}
	if !spec.Kind.Valid() {
		return nil, ErrInvalidRange
	}
	if spec.To.Before(spec.From) {
		return nil, ErrInvalidRange
	}

	dayStart, err := time.Parse("15:04", spec.DayStart)
	if err != nil {
		return nil, ErrInvalidRange
	}
	dayEnd, err := time.Parse("15:04", spec.DayEnd)
	if err != nil {
		return nil, ErrInvalidRange
	}
	if !dayStart.Before(dayEnd) {
		return nil, ErrInvalidRange
	}

	wanted := make(map[time.Weekday]bool, len(spec.Weekdays))
	for _, wd := range spec.Weekdays {
		wanted[wd] = true
	}

	now := s.now()
	dur := spec.Kind.Duration()
	var generated []AvailabilitySlot

	for day := truncateToDay(spec.From); !day.After(spec.To); day = day.AddDate(0, 0, 1) {
		if len(wanted) > 0 && !wanted[day.Weekday()] {
			continue
		}

		start := timeOfDayOn(day, dayStart)
		windowEnd := timeOfDayOn(day, dayEnd)

		for !start.Add(dur).After(windowEnd) {
			if start.After(now) {
				generated = append(generated, AvailabilitySlot{
					ID:        uuid.New(),
					DoctorID:  doctorID,
					StartTime: start,
					EndTime:   start.Add(dur),
					Kind:      spec.Kind,
				})
			}
			start = start.Add(dur)
		}
	}

	if len(generated) == 0 {
		return nil, nil
	}
	return s.repo.CreateSlots(ctx, generated)
}

// CreateCustomSlots publishes an explicit list of start times on one date,
// each of the kind's fixed duration. Unlike bulk generation, any overlap
// with persisted slots or within the batch itself rejects the whole request.
func (s *Service) CreateCustomSlots(ctx context.Context, actor Actor, doctorID uuid.UUID, date time.Time, times []string, kind SlotKind) ([]AvailabilitySlot, error) {
	if err := s.slotWriteAllowed(actor, doctorID); err != nil {
		return nil, err
	}
	if !kind.Valid() || len(times) == 0 {
		return nil, ErrInvalidRange
	}

	day := truncateToDay(date)
	dur := kind.Duration()
	now := s.now()

	batch := make([]AvailabilitySlot, 0, len(times))
	for _, t := range times {
		clock, err := time.Parse("15:04", t)
		if err != nil {
			return nil, ErrInvalidRange
		}
		start := timeOfDayOn(day, clock)
		if !start.After(now) {
			return nil, ErrInvalidRange
		}
		batch = append(batch, AvailabilitySlot{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			StartTime: start,
			EndTime:   start.Add(dur),
			Kind:      kind,
		})
	}

	sort.Slice(batch, func(i, j int) bool { return batch[i].StartTime.Before(batch[j].StartTime) })
	for i := 1; i < len(batch); i++ {
		if batch[i].StartTime.Before(batch[i-1].EndTime) {
			return nil, ErrOverlap
		}
	}

	for i := range batch {
		overlapping, err := s.repo.FindOverlappingSlots(ctx, doctorID, batch[i].StartTime, batch[i].EndTime, uuid.Nil)
		if err != nil {
			return nil, fmt.Errorf("check slot overlap: %w", err)
		}
		if len(overlapping) > 0 {
			return nil, ErrOverlap
		}
	}

	return s.repo.CreateSlots(ctx, batch)
}

// EditSlot updates an unclaimed slot under create-time validation. A claimed
// slot is rejected with ErrSlotClaimed.
func (s *Service) EditSlot(ctx context.Context, actor Actor, id uuid.UUID, start, end time.Time, kind SlotKind) (*AvailabilitySlot, error) {
	slot, err := s.repo.GetSlotByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.slotWriteAllowed(actor, slot.DoctorID); err != nil {
		return nil, err
	}
	if slot.Claimed {
		return nil, ErrSlotClaimed
	}
	if err := s.validateSlotRange(start, end, kind); err != nil {
		return nil, err
	}

	overlapping, err := s.repo.FindOverlappingSlots(ctx, slot.DoctorID, start, end, slot.ID)
	if err != nil {
		return nil, fmt.Errorf("check slot overlap: %w", err)
	}
	if len(overlapping) > 0 {
		return nil, ErrOverlap
	}

	slot.StartTime = start
	slot.EndTime = end
	slot.Kind = kind
	if err := s.repo.UpdateSlot(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// DeleteSlot removes an unclaimed slot.
func (s *Service) DeleteSlot(ctx context.Context, actor Actor, id uuid.UUID) error {
	slot, err := s.repo.GetSlotByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.slotWriteAllowed(actor, slot.DoctorID); err != nil {
		return err
	}
	if slot.Claimed {
		return ErrSlotClaimed
	}
	return s.repo.DeleteSlot(ctx, id)
}

// ListSlots is open to any authenticated actor; patients use it to browse.
func (s *Service) ListSlots(ctx context.Context, f SlotFilter) ([]AvailabilitySlot, error) {
	return s.repo.ListSlots(ctx, f)
}

func (s *Service) slotWriteAllowed(actor Actor, doctorID uuid.UUID) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		if actor.ID != doctorID {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

func (s *Service) validateSlotRange(start, end time.Time, kind SlotKind) error {
	if !kind.Valid() {
		return ErrInvalidRange
	}
	if !start.Before(end) {
		return ErrInvalidRange
	}
	if !start.After(s.now()) {
		return ErrInvalidRange
	}
	return nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func timeOfDayOn(day time.Time, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), 0, 0, day.Location())
}
