package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusPending            AppointmentStatus = "pending"
	StatusBooked             AppointmentStatus = "booked"
	StatusCompleted          AppointmentStatus = "completed"
	StatusCancelledByPatient AppointmentStatus = "cancelled_by_patient"
	StatusCancelledByDoctor  AppointmentStatus = "cancelled_by_doctor"
	StatusCancelledByAdmin   AppointmentStatus = "cancelled_by_admin"
	StatusRescheduled        AppointmentStatus = "rescheduled"
	StatusNoShow             AppointmentStatus = "no_show"
	StatusPaymentExpired     AppointmentStatus = "payment_expired"
)

// Terminal reports whether no further transition is permitted from s.
// Only pending and booked appointments can still move.
func (s AppointmentStatus) Terminal() bool {
	return s != StatusPending && s != StatusBooked
}

type SlotKind string

const (
	SlotShort SlotKind = "short" // 15 minutes
	SlotLong  SlotKind = "long"  // 30 minutes
)

func (k SlotKind) Valid() bool {
	return k == SlotShort || k == SlotLong
}

func (k SlotKind) Duration() time.Duration {
	if k == SlotLong {
		return 30 * time.Minute
	}
	return 15 * time.Minute
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// Actor is a pre-authenticated caller. Identity resolution happens outside
// this package; the service only checks role and ownership.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type AuditAction string

const (
	ActionCreated     AuditAction = "created"
	ActionCancelled   AuditAction = "cancelled"
	ActionRescheduled AuditAction = "rescheduled"
	ActionCompleted   AuditAction = "completed"
	ActionNoShow      AuditAction = "no_show"
	ActionUpdated     AuditAction = "updated"
)

// AvailabilitySlot is a doctor-published bookable interval. Claimed flips
// true while a live appointment references the slot; (doctor_id, start_time)
// is unique.
type AvailabilitySlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Kind      SlotKind
	Claimed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment references exactly one slot. Price and IsInitial are fixed at
// creation by the pricing policy and never writable by callers. ExpiresAt is
// the payment deadline while the appointment is pending.
type Appointment struct {
	ID              uuid.UUID
	SlotID          uuid.UUID
	PatientID       uuid.UUID
	Status          AppointmentStatus
	Price           decimal.Decimal
	IsInitial       bool
	RescheduledFrom *uuid.UUID
	Note            string
	CreatedBy       *uuid.UUID
	UpdatedBy       *uuid.UUID
	IsDeleted       bool
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuditLogEntry is append-only. PerformedBy is nil for system transitions
// (the expiry sweep).
type AuditLogEntry struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Action        AuditAction
	PerformedBy   *uuid.UUID
	PerformedAt   time.Time
	Note          string
}
