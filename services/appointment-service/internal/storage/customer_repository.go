package storage

import (
	"context"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
)

func (t *pgTx) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	var c model.Customer
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, is_blocked, no_show_count, requires_prepayment
		FROM customers
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&c.ID, &c.Name, &c.Blocked, &c.NoShowCount, &c.RequiresPrepayment)
	if err != nil {
		return model.Customer{}, notFound(err)
	}
	return c, nil
}

func (t *pgTx) UpdateCustomerNoShow(ctx context.Context, c model.Customer) error {
	return t.execOne(ctx, `
		UPDATE customers
		SET no_show_count = $2,
			is_blocked = $3,
			requires_prepayment = $4,
			updated_at = now()
		WHERE id = $1
	`, c.ID, c.NoShowCount, c.Blocked, c.RequiresPrepayment)
}

func (t *pgTx) GetStaff(ctx context.Context, id string) (model.StaffMember, error) {
	var s model.StaffMember
	err := t.tx.QueryRow(ctx, `SELECT id, name, is_active FROM staff WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Active)
	if err != nil {
		return model.StaffMember{}, notFound(err)
	}
	return s, nil
}

// AdvanceQuote moves a quote to status and records the change. Quotes already in
// status are left alone.
func (t *pgTx) AdvanceQuote(ctx context.Context, quoteID, status, changedBy string) error {
	var current string
	err := t.tx.QueryRow(ctx, `SELECT status FROM quotes WHERE id = $1 FOR UPDATE`, quoteID).Scan(&current)
	if err != nil {
		return notFound(err)
	}
	if current == status {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `UPDATE quotes SET status = $2, updated_at = now() WHERE id = $1`, quoteID, status); err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO quote_status_history (quote_id, old_status, new_status, changed_by)
		VALUES ($1, $2, $3, $4)
	`, quoteID, current, status, changedBy)
	return err
}
