package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/muhzee733/madical-erp-backend/internal/appointment"
)

type CreateSlotRequest struct {
	DoctorID string    `json:"doctor_id,omitempty"` // defaults to the acting doctor
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Kind     string    `json:"kind"`
}

type BulkSlotsRequest struct {
	DoctorID string   `json:"doctor_id,omitempty"`
	From     string   `json:"from"` // 2006-01-02
	To       string   `json:"to"`
	Weekdays []string `json:"weekdays"` // monday..sunday; empty = every day
	DayStart string   `json:"day_start"` // 15:04
	DayEnd   string   `json:"day_end"`
	Kind     string   `json:"kind"`
}

type CustomSlotsRequest struct {
	DoctorID string   `json:"doctor_id,omitempty"`
	Date     string   `json:"date"` // 2006-01-02
	Times    []string `json:"times"` // 15:04
	Kind     string   `json:"kind"`
}

type EditSlotRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Kind  string    `json:"kind"`
}

type BookRequest struct {
	SlotID string `json:"slot_id"`
}

type RescheduleRequest struct {
	NewSlotID string `json:"new_slot_id"`
}

type NoteRequest struct {
	Note string `json:"note"`
}

type SlotResponse struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Kind     string    `json:"kind"`
	Claimed  bool      `json:"claimed"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	SlotID          uuid.UUID  `json:"slot_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Status          string     `json:"status"`
	Price           string     `json:"price"`
	IsInitial       bool       `json:"is_initial"`
	RescheduledFrom *uuid.UUID `json:"rescheduled_from,omitempty"`
	Note            string     `json:"note,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type AuditEntryResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Action        string     `json:"action_type"`
	PerformedBy   *uuid.UUID `json:"performed_by,omitempty"`
	PerformedAt   time.Time  `json:"performed_at"`
	Note          string     `json:"note,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s appointment.AvailabilitySlot) SlotResponse {
	return SlotResponse{
		ID:       s.ID,
		DoctorID: s.DoctorID,
		Start:    s.StartTime,
		End:      s.EndTime,
		Kind:     string(s.Kind),
		Claimed:  s.Claimed,
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		SlotID:          a.SlotID,
		PatientID:       a.PatientID,
		Status:          string(a.Status),
		Price:           a.Price.StringFixed(2),
		IsInitial:       a.IsInitial,
		RescheduledFrom: a.RescheduledFrom,
		Note:            a.Note,
		ExpiresAt:       a.ExpiresAt,
		CreatedAt:       a.CreatedAt,
	}
}

func toAuditEntryResponse(e appointment.AuditLogEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:            e.ID,
		AppointmentID: e.AppointmentID,
		Action:        string(e.Action),
		PerformedBy:   e.PerformedBy,
		PerformedAt:   e.PerformedAt,
		Note:          e.Note,
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}
