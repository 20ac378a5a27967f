package appointment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/muhzee733/madical-erp-backend/internal/config"
	redisclient "github.com/muhzee733/madical-erp-backend/internal/redis"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Book reserves a slot for a patient. The per-slot lock serializes
// concurrent bookers; the conditional claim inside BookSlot is what actually
// guarantees a slot is booked at most once, so losing either race surfaces
// as the same ErrSlotTaken.
func (s *Service) Book(ctx context.Context, patient Actor, slotID uuid.UUID) (*Appointment, error) {
	if patient.Role != RolePatient {
		return nil, ErrForbidden
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Claimed {
		return nil, ErrSlotTaken
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		now := s.now()

		hasHistory, err := s.repo.HasVisitHistory(lockCtx, patient.ID, now)
		if err != nil {
			return fmt.Errorf("check visit history: %w", err)
		}
		fee, isInitial := PriceFor(hasHistory)

		expiresAt := now.Add(s.cfg.PendingTTL)
		actorID := patient.ID

		appt := &Appointment{
			ID:        uuid.New(),
			SlotID:    slotID,
			PatientID: patient.ID,
			Status:    StatusPending,
			Price:     fee,
			IsInitial: isInitial,
			CreatedBy: &actorID,
			ExpiresAt: &expiresAt,
		}

		created, err = s.repo.BookSlot(lockCtx, appt, AuditLogEntry{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			Action:        ActionCreated,
			PerformedBy:   &actorID,
			PerformedAt:   now,
			Note:          "appointment created, awaiting payment",
		})
		return err
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return created, nil
}

// Confirm moves a pending appointment to booked once payment is reported by
// the external payment collaborator. A pending appointment past its payment
// deadline is expired on the spot instead.
func (s *Service) Confirm(ctx context.Context, actor Actor, apptID uuid.UUID) (*Appointment, error) {
	appt, err := s.authorizedAppointment(ctx, actor, apptID)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleDoctor {
		return nil, ErrForbidden
	}

	now := s.now()
	if appt.Status == StatusPending && appt.ExpiresAt != nil && appt.ExpiresAt.Before(now) {
		if err := s.expireOne(ctx, appt.ID); err != nil {
			log.Printf("failed to expire appointment %s during confirm: %v", appt.ID, err)
		}
		return nil, ErrInvalidTransition
	}

	actorID := actor.ID
	return s.repo.UpdateAppointmentStatus(ctx, appt.ID,
		[]AppointmentStatus{StatusPending}, StatusBooked, &actorID, false,
		&AuditLogEntry{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			Action:        ActionUpdated,
			PerformedBy:   &actorID,
			PerformedAt:   now,
			Note:          "payment confirmed",
		})
}

// Cancel moves a pending or booked appointment to the cancelled status
// matching the actor's role and releases the slot. Patients may only cancel
// their own appointments and only up to the cancellation cutoff before the
// slot starts; doctors and admins are not time-bound.
func (s *Service) Cancel(ctx context.Context, actor Actor, apptID uuid.UUID, note string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("load slot for appointment %s: %w", appt.ID, err)
	}

	var to AppointmentStatus
	switch actor.Role {
	case RolePatient:
		if appt.PatientID != actor.ID {
			return nil, ErrForbidden
		}
		if slot.StartTime.Sub(s.now()) < s.cfg.CancelCutoff {
			return nil, ErrTooLateToCancel
		}
		to = StatusCancelledByPatient
	case RoleDoctor:
		if slot.DoctorID != actor.ID {
			return nil, ErrForbidden
		}
		to = StatusCancelledByDoctor
	case RoleAdmin:
		to = StatusCancelledByAdmin
	default:
		return nil, ErrForbidden
	}

	actorID := actor.ID
	return s.repo.UpdateAppointmentStatus(ctx, appt.ID,
		[]AppointmentStatus{StatusPending, StatusBooked}, to, &actorID, true,
		&AuditLogEntry{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			Action:        ActionCancelled,
			PerformedBy:   &actorID,
			PerformedAt:   s.now(),
			Note:          note,
		})
}

// Complete marks a booked appointment completed. The slot stays claimed as a
// historical record.
func (s *Service) Complete(ctx context.Context, actor Actor, apptID uuid.UUID, note string) (*Appointment, error) {
	return s.closeOut(ctx, actor, apptID, StatusCompleted, ActionCompleted, note)
}

// MarkNoShow marks a booked appointment as a no-show. The slot stays claimed.
func (s *Service) MarkNoShow(ctx context.Context, actor Actor, apptID uuid.UUID, note string) (*Appointment, error) {
	return s.closeOut(ctx, actor, apptID, StatusNoShow, ActionNoShow, note)
}

func (s *Service) closeOut(ctx context.Context, actor Actor, apptID uuid.UUID, to AppointmentStatus, action AuditAction, note string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case RoleAdmin:
	case RoleDoctor:
		slot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
		if err != nil {
			return nil, fmt.Errorf("load slot for appointment %s: %w", appt.ID, err)
		}
		if slot.DoctorID != actor.ID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	actorID := actor.ID
	return s.repo.UpdateAppointmentStatus(ctx, appt.ID,
		[]AppointmentStatus{StatusBooked}, to, &actorID, false,
		&AuditLogEntry{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			Action:        action,
			PerformedBy:   &actorID,
			PerformedAt:   s.now(),
			Note:          note,
		})
}

// Reschedule moves a booked appointment onto a different free slot. The old
// appointment becomes rescheduled and its slot is released; a new booked
// appointment referencing the target slot is created with the same patient,
// price, and initial-visit flag. Everything happens in one transaction, so a
// claimed target leaves the old appointment untouched.
func (s *Service) Reschedule(ctx context.Context, actor Actor, apptID, newSlotID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	oldSlot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("load slot for appointment %s: %w", appt.ID, err)
	}

	switch actor.Role {
	case RolePatient:
		if appt.PatientID != actor.ID {
			return nil, ErrForbidden
		}
	case RoleDoctor:
		if oldSlot.DoctorID != actor.ID {
			return nil, ErrForbidden
		}
	case RoleAdmin:
	default:
		return nil, ErrForbidden
	}

	if appt.Status != StatusBooked {
		return nil, ErrInvalidTransition
	}

	// Surface a missing target as not-found before racing for the claim.
	newSlot, err := s.repo.GetSlotByID(ctx, newSlotID)
	if err != nil {
		return nil, err
	}
	if newSlot.Claimed {
		return nil, ErrSlotTaken
	}

	oldID := appt.ID
	actorID := actor.ID

	newAppt := &Appointment{
		ID:              uuid.New(),
		SlotID:          newSlotID,
		PatientID:       appt.PatientID,
		Status:          StatusBooked,
		Price:           appt.Price,
		IsInitial:       appt.IsInitial,
		RescheduledFrom: &oldID,
		CreatedBy:       &actorID,
	}

	return s.repo.RescheduleAppointment(ctx, appt.ID, newAppt, AuditLogEntry{
		ID:            uuid.New(),
		AppointmentID: newAppt.ID,
		Action:        ActionRescheduled,
		PerformedBy:   &actorID,
		PerformedAt:   s.now(),
		Note:          fmt.Sprintf("rescheduled from appointment %s", oldID),
	})
}

// ExpirePendingAppointments is called by the worker periodically. Each
// candidate is expired in its own guarded transaction, so an appointment that
// left pending between the scan and the update is skipped.
func (s *Service) ExpirePendingAppointments(ctx context.Context) error {
	candidates, err := s.repo.FindExpiredPending(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find expired pending appointments: %w", err)
	}

	for _, appt := range candidates {
		err := s.expireOne(ctx, appt.ID)
		if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrAppointmentNotFound) {
			log.Printf("failed to expire appointment %s: %v", appt.ID, err)
		}
	}

	return nil
}

func (s *Service) expireOne(ctx context.Context, apptID uuid.UUID) error {
	_, err := s.repo.UpdateAppointmentStatus(ctx, apptID,
		[]AppointmentStatus{StatusPending}, StatusPaymentExpired, nil, true,
		&AuditLogEntry{
			ID:            uuid.New(),
			AppointmentID: apptID,
			Action:        ActionUpdated,
			PerformedAt:   s.now(),
			Note:          "payment window elapsed",
		})
	return err
}

// GetAppointment returns an appointment visible to the actor: the owning
// patient, the slot-owning doctor, or an admin. Wrong-owner lookups fail
// with ErrForbidden, absent ids with ErrAppointmentNotFound.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, apptID uuid.UUID) (*Appointment, error) {
	appt, err := s.authorizedAppointment(ctx, actor, apptID)
	if err != nil {
		return nil, err
	}
	if appt.IsDeleted && actor.Role != RoleAdmin {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// ListAppointments returns the appointments in the actor's scope: a
// patient's own, the ones on a doctor's slots, or all of them for an admin.
func (s *Service) ListAppointments(ctx context.Context, actor Actor) ([]Appointment, error) {
	f := AppointmentFilter{}
	switch actor.Role {
	case RolePatient:
		id := actor.ID
		f.PatientID = &id
	case RoleDoctor:
		id := actor.ID
		f.DoctorID = &id
	case RoleAdmin:
		f.IncludeDeleted = true
	default:
		return nil, ErrForbidden
	}
	return s.repo.ListAppointments(ctx, f)
}

// GetAuditLog returns the append-only transition history of an appointment,
// under the same visibility rules as GetAppointment.
func (s *Service) GetAuditLog(ctx context.Context, actor Actor, apptID uuid.UUID) ([]AuditLogEntry, error) {
	if _, err := s.GetAppointment(ctx, actor, apptID); err != nil {
		return nil, err
	}
	return s.repo.ListAuditEntries(ctx, apptID)
}

// SoftDeleteAppointment hides an appointment administratively. The record
// and its audit trail remain; status is untouched.
func (s *Service) SoftDeleteAppointment(ctx context.Context, actor Actor, apptID uuid.UUID) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}
	if _, err := s.repo.GetAppointmentByID(ctx, apptID); err != nil {
		return err
	}
	return s.repo.SoftDeleteAppointment(ctx, apptID, actor.ID)
}

func (s *Service) authorizedAppointment(ctx context.Context, actor Actor, apptID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case RoleAdmin:
		return appt, nil
	case RolePatient:
		if appt.PatientID != actor.ID {
			return nil, ErrForbidden
		}
		return appt, nil
	case RoleDoctor:
		slot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
		if err != nil {
			return nil, fmt.Errorf("load slot for appointment %s: %w", appt.ID, err)
		}
		if slot.DoctorID != actor.ID {
			return nil, ErrForbidden
		}
		return appt, nil
	default:
		return nil, ErrForbidden
	}
}
