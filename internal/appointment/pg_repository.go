package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const slotColumns = `id, doctor_id, start_time, end_time, kind, claimed, created_at, updated_at`

const appointmentColumns = `id, slot_id, patient_id, status, price, is_initial,
	rescheduled_from, note, created_by, updated_by, is_deleted, expires_at,
	created_at, updated_at`

// Helpers

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.Kind,
		&s.Claimed,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.Status,
		&a.Price,
		&a.IsInitial,
		&a.RescheduledFrom,
		&a.Note,
		&a.CreatedBy,
		&a.UpdatedBy,
		&a.IsDeleted,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanAuditEntry(row pgx.Row) (*AuditLogEntry, error) {
	var e AuditLogEntry

	err := row.Scan(
		&e.ID,
		&e.AppointmentID,
		&e.Action,
		&e.PerformedBy,
		&e.PerformedAt,
		&e.Note,
	)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

func (r *PgRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// claimSlotTx is the single synchronization point that prevents double
// booking: a conditional update whose affected-row count decides the race.
func claimSlotTx(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error {
	ct, err := tx.Exec(ctx, `
		UPDATE availability_slots
		SET claimed = TRUE, updated_at = now()
		WHERE id = $1 AND claimed = FALSE
	`, slotID)
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM availability_slots WHERE id = $1)
	`, slotID).Scan(&exists); err != nil {
		return fmt.Errorf("probe slot: %w", err)
	}
	if !exists {
		return ErrSlotNotFound
	}
	return ErrSlotTaken
}

// releaseSlotTx is idempotent.
func releaseSlotTx(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE availability_slots
		SET claimed = FALSE, updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func insertAppointmentTx(ctx context.Context, tx pgx.Tx, a *Appointment) (*Appointment, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, slot_id, patient_id, status, price, is_initial,
			 rescheduled_from, note, created_by, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.SlotID, a.PatientID, a.Status, a.Price, a.IsInitial,
		a.RescheduledFrom, a.Note, a.CreatedBy, a.ExpiresAt)
	return scanAppointment(row)
}

func insertAuditEntryTx(ctx context.Context, tx pgx.Tx, e AuditLogEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_audit_log
			(id, appointment_id, action_type, performed_by, performed_at, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.AppointmentID, e.Action, e.PerformedBy, e.PerformedAt, e.Note)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Slots

func (r *PgRepository) CreateSlot(ctx context.Context, slot *AvailabilitySlot) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_slots
			(id, doctor_id, start_time, end_time, kind, claimed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, now(), now())
		RETURNING `+slotColumns,
		slot.ID, slot.DoctorID, slot.StartTime, slot.EndTime, slot.Kind)

	created, err := scanSlot(row)
	if err != nil {
		return err
	}
	*slot = *created
	return nil
}

func (r *PgRepository) CreateSlots(ctx context.Context, slots []AvailabilitySlot) ([]AvailabilitySlot, error) {
	var created []AvailabilitySlot

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		for i := range slots {
			s := slots[i]
			row := tx.QueryRow(ctx, `
				INSERT INTO availability_slots
					(id, doctor_id, start_time, end_time, kind, claimed, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, FALSE, now(), now())
				ON CONFLICT (doctor_id, start_time) DO NOTHING
				RETURNING `+slotColumns,
				s.ID, s.DoctorID, s.StartTime, s.EndTime, s.Kind)

			got, err := scanSlot(row)
			if errors.Is(err, ErrSlotNotFound) {
				// (doctor, start_time) already published; skip.
				continue
			}
			if err != nil {
				return err
			}
			created = append(created, *got)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) UpdateSlot(ctx context.Context, slot *AvailabilitySlot) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET start_time = $2, end_time = $3, kind = $4, updated_at = now()
		WHERE id = $1 AND claimed = FALSE
	`, slot.ID, slot.StartTime, slot.EndTime, slot.Kind)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return r.probeSlotWriteFailure(ctx, slot.ID)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE id = $1 AND claimed = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return r.probeSlotWriteFailure(ctx, id)
}

func (r *PgRepository) probeSlotWriteFailure(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM availability_slots WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return fmt.Errorf("probe slot: %w", err)
	}
	if !exists {
		return ErrSlotNotFound
	}
	return ErrSlotClaimed
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND ($2::timestamptz IS NULL OR start_time >= $2)
		  AND ($3::timestamptz IS NULL OR start_time < $3)
		  AND (NOT $4 OR claimed = FALSE)
		ORDER BY start_time
	`, f.DoctorID, f.From, f.To, f.OnlyFree)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) FindOverlappingSlots(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE doctor_id = $1
		  AND start_time < $3
		  AND end_time > $2
		  AND id <> $4
	`, doctorID, start, end, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// Booking and lifecycle

func (r *PgRepository) BookSlot(ctx context.Context, appt *Appointment, entry AuditLogEntry) (*Appointment, error) {
	var created *Appointment

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := claimSlotTx(ctx, tx, appt.SlotID); err != nil {
			return err
		}

		got, err := insertAppointmentTx(ctx, tx, appt)
		if err != nil {
			// Rolling back also undoes the claim; no orphaned claims.
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = got

		return insertAuditEntryTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, by *uuid.UUID, releaseSlot bool, entry *AuditLogEntry) (*Appointment, error) {
	var updated *Appointment

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2, updated_by = $3, updated_at = now()
			WHERE id = $1 AND status = ANY($4)
			RETURNING `+appointmentColumns,
			id, to, by, statusStrings(from))

		got, err := scanAppointment(row)
		if errors.Is(err, ErrAppointmentNotFound) {
			var exists bool
			if perr := tx.QueryRow(ctx, `
				SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)
			`, id).Scan(&exists); perr != nil {
				return fmt.Errorf("probe appointment: %w", perr)
			}
			if exists {
				return ErrInvalidTransition
			}
			return ErrAppointmentNotFound
		}
		if err != nil {
			return err
		}
		updated = got

		if releaseSlot {
			if err := releaseSlotTx(ctx, tx, got.SlotID); err != nil {
				return err
			}
		}
		if entry != nil {
			return insertAuditEntryTx(ctx, tx, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, oldID uuid.UUID, newAppt *Appointment, entry AuditLogEntry) (*Appointment, error) {
	var created *Appointment

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		// Claim the target first: if this loses, the old appointment and its
		// slot are untouched when the transaction rolls back.
		if err := claimSlotTx(ctx, tx, newAppt.SlotID); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $2, updated_by = $3, updated_at = now()
			WHERE id = $1 AND status = $4
			RETURNING slot_id
		`, oldID, StatusRescheduled, newAppt.CreatedBy, StatusBooked)

		var oldSlotID uuid.UUID
		if err := row.Scan(&oldSlotID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("mark appointment rescheduled: %w", err)
		}

		if err := releaseSlotTx(ctx, tx, oldSlotID); err != nil {
			return err
		}

		got, err := insertAppointmentTx(ctx, tx, newAppt)
		if err != nil {
			return fmt.Errorf("insert rescheduled appointment: %w", err)
		}
		created = got

		return insertAuditEntryTx(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.slot_id, a.patient_id, a.status, a.price, a.is_initial,
		       a.rescheduled_from, a.note, a.created_by, a.updated_by,
		       a.is_deleted, a.expires_at, a.created_at, a.updated_at
		FROM appointments a
		JOIN availability_slots s ON s.id = a.slot_id
		WHERE ($1::uuid IS NULL OR a.patient_id = $1)
		  AND ($2::uuid IS NULL OR s.doctor_id = $2)
		  AND ($3 OR a.is_deleted = FALSE)
		ORDER BY s.start_time
	`, f.PatientID, f.DoctorID, f.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) SoftDeleteAppointment(ctx context.Context, id uuid.UUID, by uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET is_deleted = TRUE, updated_by = $2, updated_at = now()
		WHERE id = $1
	`, id, by)
	if err != nil {
		return fmt.Errorf("soft delete appointment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) HasVisitHistory(ctx context.Context, patientID uuid.UUID, asOf time.Time) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE patient_id = $1
			  AND status = ANY($2)
			  AND created_at <= $3
			  AND is_deleted = FALSE
		)
	`, patientID, statusStrings(historyStatuses), asOf).Scan(&has)
	if err != nil {
		return false, err
	}
	return has, nil
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = $1
		  AND expires_at IS NOT NULL
		  AND expires_at < $2
	`, StatusPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// Audit

func (r *PgRepository) ListAuditEntries(ctx context.Context, appointmentID uuid.UUID) ([]AuditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, action_type, performed_by, performed_at, note
		FROM appointment_audit_log
		WHERE appointment_id = $1
		ORDER BY performed_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AuditLogEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}
