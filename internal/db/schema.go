package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS availability_slots (
	id         UUID PRIMARY KEY,
	doctor_id  UUID NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time   TIMESTAMPTZ NOT NULL,
	kind       TEXT NOT NULL,
	claimed    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (doctor_id, start_time)
);

CREATE INDEX IF NOT EXISTS idx_slots_doctor_start
	ON availability_slots (doctor_id, start_time);

CREATE TABLE IF NOT EXISTS appointments (
	id               UUID PRIMARY KEY,
	slot_id          UUID NOT NULL REFERENCES availability_slots (id),
	patient_id       UUID NOT NULL,
	status           TEXT NOT NULL,
	price            NUMERIC(10,2) NOT NULL,
	is_initial       BOOLEAN NOT NULL,
	rescheduled_from UUID REFERENCES appointments (id),
	note             TEXT NOT NULL DEFAULT '',
	created_by       UUID,
	updated_by       UUID,
	is_deleted       BOOLEAN NOT NULL DEFAULT FALSE,
	expires_at       TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_appointments_patient
	ON appointments (patient_id, status);
CREATE INDEX IF NOT EXISTS idx_appointments_pending_expiry
	ON appointments (expires_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS appointment_audit_log (
	id             UUID PRIMARY KEY,
	appointment_id UUID NOT NULL REFERENCES appointments (id),
	action_type    TEXT NOT NULL,
	performed_by   UUID,
	performed_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	note           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_appointment
	ON appointment_audit_log (appointment_id, performed_at);
`

// ApplySchema creates the scheduling tables if they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
