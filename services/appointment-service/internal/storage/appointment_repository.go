package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/lifecycle"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `
	a.id, a.customer_id, a.pet_id, a.start_at, a.category, a.status,
	COALESCE(a.logistics_status, ''), COALESCE(a.performer_id, ''),
	COALESCE(a.pickup_driver_id, ''), COALESCE(a.dropoff_driver_id, ''),
	COALESCE(a.quote_id, ''), a.created_by_staff, a.created_at, a.updated_at, a.deleted_at,
	ARRAY(SELECT s.service_id FROM appointment_services s WHERE s.appointment_id = a.id ORDER BY s.position),
	t.appointment_id IS NOT NULL, COALESCE(t.origin, ''), COALESCE(t.destination, ''), COALESCE(t.period, '')
`

const appointmentFrom = `
	FROM appointments a
	LEFT JOIN transport_details t ON t.appointment_id = a.id
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt         model.Appointment
		hasTransport bool
		transport    model.TransportDetails
	)
	err := row.Scan(
		&appt.ID,
		&appt.CustomerID,
		&appt.PetID,
		&appt.StartAt,
		&appt.Category,
		&appt.Status,
		&appt.LogisticsStatus,
		&appt.PerformerID,
		&appt.PickupDriverID,
		&appt.DropoffDriverID,
		&appt.QuoteID,
		&appt.CreatedByStaff,
		&appt.CreatedAt,
		&appt.UpdatedAt,
		&appt.DeletedAt,
		&appt.ServiceIDs,
		&hasTransport,
		&transport.Origin,
		&transport.Destination,
		&transport.Period,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if hasTransport {
		appt.Transport = &transport
	}
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (t *pgTx) LockSlot(ctx context.Context, category model.Category, startAt time.Time) error {
	key := string(category) + "|" + startAt.UTC().Format(time.RFC3339)
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

func (t *pgTx) ExistsActiveAt(ctx context.Context, category model.Category, startAt time.Time, excludeID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE category = $1
				AND start_at = $2
				AND deleted_at IS NULL
				AND status <> 'CANCELADO'
				AND id <> $3
		)
	`, category, startAt, excludeID).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	var logistics *string
	if a.LogisticsStatus != "" {
		logistics = nullable(string(a.LogisticsStatus))
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, customer_id, pet_id, start_at, category, status, logistics_status,
			 performer_id, pickup_driver_id, dropoff_driver_id, quote_id, created_by_staff, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`, a.ID, a.CustomerID, a.PetID, a.StartAt, a.Category, a.Status, logistics,
		nullable(a.PerformerID), nullable(a.PickupDriverID), nullable(a.DropoffDriverID), nullable(a.QuoteID),
		a.CreatedByStaff, a.CreatedAt)
	if err != nil {
		return err
	}

	for i, serviceID := range a.ServiceIDs {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO appointment_services (appointment_id, service_id, position)
			VALUES ($1, $2, $3)
		`, a.ID, serviceID, i)
		if err != nil {
			return fmt.Errorf("link service %s: %w", serviceID, err)
		}
	}

	if a.Transport != nil {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO transport_details (appointment_id, origin, destination, period)
			VALUES ($1, $2, $3, $4)
		`, a.ID, a.Transport.Origin, a.Transport.Destination, a.Transport.Period)
		if err != nil {
			return fmt.Errorf("insert transport details: %w", err)
		}
	}
	return nil
}

func (t *pgTx) GetAppointment(ctx context.Context, id string, includeDeleted bool) (model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + appointmentFrom + ` WHERE a.id = $1`
	if !includeDeleted {
		query += ` AND a.deleted_at IS NULL`
	}
	query += ` FOR UPDATE OF a`
	appt, err := scanAppointment(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return model.Appointment{}, notFound(err)
	}
	return appt, nil
}

func (t *pgTx) ListAppointments(ctx context.Context, f lifecycle.ListFilter) ([]model.Appointment, error) {
	var (
		where = []string{"a.deleted_at IS NULL"}
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("a.customer_id = $%d", f.CustomerID)
	}
	if f.Category != "" {
		add("a.category = $%d", f.Category)
	}
	if f.Status != "" {
		add("a.status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("a.start_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.start_at < $%d", f.To)
	}
	args = append(args, f.Limit)

	query := `SELECT ` + appointmentColumns + appointmentFrom +
		` WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY a.start_at ASC, a.id ASC LIMIT $%d`, len(args))

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgTx) ListDeletedSince(ctx context.Context, since time.Time) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+appointmentColumns+appointmentFrom+`
		WHERE a.deleted_at IS NOT NULL AND a.deleted_at >= $1
		ORDER BY a.deleted_at DESC
	`, since)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgTx) ListDeletedBefore(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id FROM appointments
		WHERE deleted_at IS NOT NULL AND deleted_at < $1
		ORDER BY deleted_at
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *pgTx) ListOverdue(ctx context.Context, statuses []model.Status, startedBefore time.Time, limit int) ([]model.Appointment, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := t.tx.Query(ctx, `SELECT `+appointmentColumns+appointmentFrom+`
		WHERE a.deleted_at IS NULL
			AND a.status = ANY($1)
			AND a.start_at < $2
		ORDER BY a.start_at ASC
		LIMIT $3
	`, names, startedBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) error {
	return t.execOne(ctx, `UPDATE appointments SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
}

func (t *pgTx) UpdateLogisticsStatus(ctx context.Context, id string, status model.LogisticsStatus, at time.Time) error {
	return t.execOne(ctx, `UPDATE appointments SET logistics_status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
}

func (t *pgTx) UpdateAssignment(ctx context.Context, id, performerID, pickupDriverID, dropoffDriverID string, at time.Time) error {
	return t.execOne(ctx, `
		UPDATE appointments
		SET performer_id = $2,
			pickup_driver_id = $3,
			dropoff_driver_id = $4,
			updated_at = $5
		WHERE id = $1
	`, id, nullable(performerID), nullable(pickupDriverID), nullable(dropoffDriverID), at)
}

func (t *pgTx) UpdateSchedule(ctx context.Context, id string, startAt time.Time, at time.Time) error {
	return t.execOne(ctx, `UPDATE appointments SET start_at = $2, updated_at = $3 WHERE id = $1`, id, startAt, at)
}

func (t *pgTx) SetDeletedAt(ctx context.Context, ids []string, at *time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE appointments SET deleted_at = $2 WHERE id = ANY($1)`, ids, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeleteAppointments removes dependents before the appointments themselves; the
// foreign keys have no ON DELETE CASCADE.
func (t *pgTx) DeleteAppointments(ctx context.Context, ids []string) (int, error) {
	dependents := []string{
		`DELETE FROM appointment_services WHERE appointment_id = ANY($1)`,
		`DELETE FROM transport_details WHERE appointment_id = ANY($1)`,
		`DELETE FROM appointment_status_history WHERE appointment_id = ANY($1)`,
		`DELETE FROM invoices WHERE appointment_id = ANY($1)`,
	}
	for _, stmt := range dependents {
		if _, err := t.tx.Exec(ctx, stmt, ids); err != nil {
			return 0, err
		}
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) InsertStatusHistory(ctx context.Context, h model.StatusHistory) error {
	var old *string
	if h.OldStatus != "" {
		old = nullable(string(h.OldStatus))
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_status_history (id, appointment_id, old_status, new_status, reason, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.AppointmentID, old, h.NewStatus, nullable(h.Reason), h.ChangedBy, h.CreatedAt)
	return err
}

func (t *pgTx) ListStatusHistory(ctx context.Context, appointmentID string) ([]model.StatusHistory, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, appointment_id, COALESCE(old_status, ''), new_status, COALESCE(reason, ''), changed_by, created_at
		FROM appointment_status_history
		WHERE appointment_id = $1
		ORDER BY created_at ASC, id ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatusHistory
	for rows.Next() {
		var h model.StatusHistory
		if err := rows.Scan(&h.ID, &h.AppointmentID, &h.OldStatus, &h.NewStatus, &h.Reason, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) HasProduction(ctx context.Context, appointmentID string, kind model.ProductionKind, serviceID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM production_records
			WHERE appointment_id = $1 AND kind = $2 AND service_id = $3
		)
	`, appointmentID, kind, serviceID).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertProduction(ctx context.Context, p model.ProductionRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO production_records (id, staff_id, appointment_id, kind, service_id, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id, kind, service_id) DO NOTHING
	`, p.ID, p.StaffID, p.AppointmentID, p.Kind, p.ServiceID, p.Reference, p.CreatedAt)
	return err
}

func (t *pgTx) InsertAudit(ctx context.Context, e model.AuditEntry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO audit_events (action, actor_id, appointment_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.Action, e.ActorID, nullable(e.AppointmentID), raw, e.CreatedAt)
	return err
}

func (t *pgTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *pgTx) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrNotFound
	}
	return nil
}
