package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/model"
	"github.com/DemianF-dev/7pet-mvp-sub007/services/appointment-service/internal/outbox"
)

// SoftDelete moves the appointments to the trash. Every id must exist and not already
// be deleted, otherwise nothing changes.
func (s *Service) SoftDelete(ctx context.Context, caller Caller, ids []string) (int, error) {
	ids, err := s.requireStaffIDs(caller, ids)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()

	var n int
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appts := make([]model.Appointment, 0, len(ids))
		for _, id := range ids {
			appt, err := tx.GetAppointment(ctx, id, false)
			if err != nil {
				return fmt.Errorf("%w: %s", err, id)
			}
			appts = append(appts, appt)
		}
		n, err = tx.SetDeletedAt(ctx, ids, &now)
		if err != nil {
			return fmt.Errorf("soft delete: %w", err)
		}
		for _, appt := range appts {
			if err := s.audit(ctx, tx, "appointment.deleted", caller, appt.ID, nil); err != nil {
				return err
			}
			if err := s.emit(ctx, tx, outbox.AppointmentDeleted, appt, map[string]any{"deleted_by": caller.actor()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("appointments moved to trash", "count", n, "actor", caller.actor())
	return n, nil
}

// Restore takes appointments out of the trash. Appointments deleted longer than
// TrashRetention ago can no longer be restored.
func (s *Service) Restore(ctx context.Context, caller Caller, ids []string) (int, error) {
	ids, err := s.requireStaffIDs(caller, ids)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()

	var n int
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appts := make([]model.Appointment, 0, len(ids))
		for _, id := range ids {
			appt, err := tx.GetAppointment(ctx, id, true)
			if err != nil {
				return fmt.Errorf("%w: %s", err, id)
			}
			if appt.DeletedAt == nil {
				return invalid(fmt.Sprintf("agendamento %s não está na lixeira", id))
			}
			if now.Sub(*appt.DeletedAt) > TrashRetention {
				return ErrRetentionExpired
			}
			appts = append(appts, appt)
		}
		n, err = tx.SetDeletedAt(ctx, ids, nil)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		for _, appt := range appts {
			appt.DeletedAt = nil
			if err := s.audit(ctx, tx, "appointment.restored", caller, appt.ID, nil); err != nil {
				return err
			}
			if err := s.emit(ctx, tx, outbox.AppointmentRestored, appt, map[string]any{"restored_by": caller.actor()}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("appointments restored", "count", n, "actor", caller.actor())
	return n, nil
}

// PermanentDelete removes appointments and their dependent rows in one transaction.
// Deleted and live appointments are both accepted.
func (s *Service) PermanentDelete(ctx context.Context, caller Caller, ids []string) (int, error) {
	ids, err := s.requireStaffIDs(caller, ids)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appts := make([]model.Appointment, 0, len(ids))
		for _, id := range ids {
			appt, err := tx.GetAppointment(ctx, id, true)
			if err != nil {
				return fmt.Errorf("%w: %s", err, id)
			}
			appts = append(appts, appt)
		}
		n, err = s.purge(ctx, tx, caller, appts)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("appointments permanently deleted", "count", n, "actor", caller.actor())
	return n, nil
}

// ListTrash returns appointments deleted within the retention window, newest first.
func (s *Service) ListTrash(ctx context.Context, caller Caller) ([]model.Appointment, error) {
	if !caller.Staff {
		return nil, ErrForbidden
	}
	since := s.now().UTC().Add(-TrashRetention)
	var out []model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListDeletedSince(ctx, since)
		return err
	})
	return out, err
}

// PurgeExpiredTrash hard-deletes appointments that stayed in the trash longer than
// TrashRetention.
func (s *Service) PurgeExpiredTrash(ctx context.Context) (int, error) {
	before := s.now().UTC().Add(-TrashRetention)
	var n int
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ids, err := tx.ListDeletedBefore(ctx, before)
		if err != nil {
			return fmt.Errorf("list expired trash: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		appts := make([]model.Appointment, 0, len(ids))
		for _, id := range ids {
			appt, err := tx.GetAppointment(ctx, id, true)
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			appts = append(appts, appt)
		}
		n, err = s.purge(ctx, tx, Caller{}, appts)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired trash purged", "count", n, "before", before)
	}
	return n, nil
}

func (s *Service) purge(ctx context.Context, tx Tx, caller Caller, appts []model.Appointment) (int, error) {
	ids := make([]string, 0, len(appts))
	for _, appt := range appts {
		ids = append(ids, appt.ID)
	}
	n, err := tx.DeleteAppointments(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete appointments: %w", err)
	}
	for _, appt := range appts {
		if err := s.audit(ctx, tx, "appointment.purged", caller, appt.ID, map[string]any{
			"customer_id": appt.CustomerID,
			"start_at":    appt.StartAt.Format(time.RFC3339),
		}); err != nil {
			return 0, err
		}
		if err := s.emit(ctx, tx, outbox.AppointmentPurged, appt, map[string]any{"purged_by": caller.actor()}); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (s *Service) requireStaffIDs(caller Caller, ids []string) ([]string, error) {
	if !caller.Staff {
		return nil, ErrForbidden
	}
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return nil, invalid("nenhum agendamento informado")
	}
	return ids, nil
}
