package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository with the same conditional-claim
// semantics as the Postgres implementation: every composite method is one
// critical section, so partial effects are never visible.
type memRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*AvailabilitySlot
	appts map[uuid.UUID]*Appointment
	audit []AuditLogEntry
}

func newMemRepo() *memRepo {
	return &memRepo{
		slots: make(map[uuid.UUID]*AvailabilitySlot),
		appts: make(map[uuid.UUID]*Appointment),
	}
}

func (r *memRepo) CreateSlot(_ context.Context, slot *AvailabilitySlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *slot
	r.slots[slot.ID] = &cp
	return nil
}

func (r *memRepo) CreateSlots(_ context.Context, slots []AvailabilitySlot) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var created []AvailabilitySlot
	for _, s := range slots {
		if r.hasSlotAtLocked(s.DoctorID, s.StartTime) {
			continue
		}
		cp := s
		r.slots[s.ID] = &cp
		created = append(created, s)
	}
	return created, nil
}

func (r *memRepo) hasSlotAtLocked(doctorID uuid.UUID, start time.Time) bool {
	for _, existing := range r.slots {
		if existing.DoctorID == doctorID && existing.StartTime.Equal(start) {
			return true
		}
	}
	return false
}

func (r *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) UpdateSlot(_ context.Context, slot *AvailabilitySlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.slots[slot.ID]
	if !ok {
		return ErrSlotNotFound
	}
	if existing.Claimed {
		return ErrSlotClaimed
	}
	existing.StartTime = slot.StartTime
	existing.EndTime = slot.EndTime
	existing.Kind = slot.Kind
	return nil
}

func (r *memRepo) DeleteSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if existing.Claimed {
		return ErrSlotClaimed
	}
	delete(r.slots, id)
	return nil
}

func (r *memRepo) ListSlots(_ context.Context, f SlotFilter) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []AvailabilitySlot
	for _, s := range r.slots {
		if f.DoctorID != nil && s.DoctorID != *f.DoctorID {
			continue
		}
		if f.From != nil && s.StartTime.Before(*f.From) {
			continue
		}
		if f.To != nil && !s.StartTime.Before(*f.To) {
			continue
		}
		if f.OnlyFree && s.Claimed {
			continue
		}
		result = append(result, *s)
	}
	return result, nil
}

func (r *memRepo) FindOverlappingSlots(_ context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []AvailabilitySlot
	for _, s := range r.slots {
		if s.DoctorID != doctorID || s.ID == exclude {
			continue
		}
		if s.StartTime.Before(end) && s.EndTime.After(start) {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (r *memRepo) BookSlot(_ context.Context, appt *Appointment, entry AuditLogEntry) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[appt.SlotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if slot.Claimed {
		return nil, ErrSlotTaken
	}
	slot.Claimed = true

	cp := *appt
	cp.CreatedAt = entry.PerformedAt
	cp.UpdatedAt = entry.PerformedAt
	r.appts[cp.ID] = &cp
	r.audit = append(r.audit, entry)

	out := cp
	return &out, nil
}

func (r *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, by *uuid.UUID, releaseSlot bool, entry *AuditLogEntry) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	allowed := false
	for _, s := range from {
		if appt.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}

	appt.Status = to
	appt.UpdatedBy = by
	if releaseSlot {
		if slot, ok := r.slots[appt.SlotID]; ok {
			slot.Claimed = false
		}
	}
	if entry != nil {
		r.audit = append(r.audit, *entry)
	}

	cp := *appt
	return &cp, nil
}

func (r *memRepo) RescheduleAppointment(_ context.Context, oldID uuid.UUID, newAppt *Appointment, entry AuditLogEntry) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.slots[newAppt.SlotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if target.Claimed {
		return nil, ErrSlotTaken
	}

	old, ok := r.appts[oldID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if old.Status != StatusBooked {
		return nil, ErrInvalidTransition
	}

	target.Claimed = true
	old.Status = StatusRescheduled
	old.UpdatedBy = newAppt.CreatedBy
	if slot, ok := r.slots[old.SlotID]; ok {
		slot.Claimed = false
	}

	cp := *newAppt
	cp.CreatedAt = entry.PerformedAt
	r.appts[cp.ID] = &cp
	r.audit = append(r.audit, entry)

	out := cp
	return &out, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil {
			slot, ok := r.slots[a.SlotID]
			if !ok || slot.DoctorID != *f.DoctorID {
				continue
			}
		}
		if !f.IncludeDeleted && a.IsDeleted {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *memRepo) SoftDeleteAppointment(_ context.Context, id uuid.UUID, by uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.IsDeleted = true
	a.UpdatedBy = &by
	return nil
}

// The fake only looks at status history; the Postgres version additionally
// bounds it by created_at <= asOf.
func (r *memRepo) HasVisitHistory(_ context.Context, patientID uuid.UUID, _ time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appts {
		if a.PatientID != patientID || a.IsDeleted {
			continue
		}
		for _, s := range historyStatuses {
			if a.Status == s {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memRepo) FindExpiredPending(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.Status == StatusPending && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *memRepo) ListAuditEntries(_ context.Context, appointmentID uuid.UUID) ([]AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []AuditLogEntry
	for _, e := range r.audit {
		if e.AppointmentID == appointmentID {
			result = append(result, e)
		}
	}
	return result, nil
}

// test helpers

func (r *memRepo) setStatus(id uuid.UUID, status AppointmentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appts[id].Status = status
}
