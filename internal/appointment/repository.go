package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot is no longer available")
	ErrSlotClaimed         = errors.New("slot has a live appointment")
	ErrInvalidRange        = errors.New("invalid slot time range")
	ErrOverlap             = errors.New("slot overlaps an existing slot")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrForbidden           = errors.New("actor is not allowed to perform this action")
	ErrTooLateToCancel     = errors.New("appointments can only be cancelled at least 60 minutes before start")
)

type SlotFilter struct {
	DoctorID *uuid.UUID
	From     *time.Time
	To       *time.Time
	OnlyFree bool
}

type AppointmentFilter struct {
	PatientID      *uuid.UUID
	DoctorID       *uuid.UUID
	IncludeDeleted bool
}

// Repository contains all DB interactions needed by the service. Methods
// that span several rows (BookSlot, UpdateAppointmentStatus,
// RescheduleAppointment) are single transactions; their partial effects are
// never visible.
type Repository interface {
	// Slots
	CreateSlot(ctx context.Context, slot *AvailabilitySlot) error
	// CreateSlots inserts a batch, silently skipping slots whose
	// (doctor, start_time) already exists, and returns the ones created.
	CreateSlots(ctx context.Context, slots []AvailabilitySlot) ([]AvailabilitySlot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	// UpdateSlot and DeleteSlot only apply while claimed=false and fail
	// with ErrSlotClaimed otherwise.
	UpdateSlot(ctx context.Context, slot *AvailabilitySlot) error
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	ListSlots(ctx context.Context, f SlotFilter) ([]AvailabilitySlot, error)
	FindOverlappingSlots(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]AvailabilitySlot, error)

	// BookSlot atomically claims appt.SlotID (conditional claimed=false ->
	// true), inserts the appointment, and appends the audit entry. A lost
	// claim race fails with ErrSlotTaken and leaves nothing behind.
	BookSlot(ctx context.Context, appt *Appointment, entry AuditLogEntry) (*Appointment, error)

	// UpdateAppointmentStatus moves the appointment to `to` only if its
	// current status is in `from`, optionally releasing its slot, and
	// appends the audit entry, all in one transaction. A status outside
	// `from` fails with ErrInvalidTransition.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, by *uuid.UUID, releaseSlot bool, entry *AuditLogEntry) (*Appointment, error)

	// RescheduleAppointment atomically claims newAppt.SlotID, marks the old
	// appointment rescheduled, releases its slot, inserts newAppt and the
	// audit entry. A claimed target fails with ErrSlotTaken and the old
	// appointment is left untouched.
	RescheduleAppointment(ctx context.Context, oldID uuid.UUID, newAppt *Appointment, entry AuditLogEntry) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	SoftDeleteAppointment(ctx context.Context, id uuid.UUID, by uuid.UUID) error

	// Pricing input: does the patient have any appointment in
	// {booked, completed} created before asOf.
	HasVisitHistory(ctx context.Context, patientID uuid.UUID, asOf time.Time) (bool, error)

	// Expiry worker
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)

	ListAuditEntries(ctx context.Context, appointmentID uuid.UUID) ([]AuditLogEntry, error)
}
