package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"
)

// CopyService is the ledger of physical copies
type CopyService struct {
	*core
}

// CopyFailure records one copy that could not be created
type CopyFailure struct {
	CopyNumber int    `json:"copy_number"`
	Error      string `json:"error"`
}

// CreateCopiesResult reports how many copies were actually created
type CreateCopiesResult struct {
	Requested int           `json:"requested"`
	Created   int           `json:"created"`
	Copies    []models.Copy `json:"copies"`
	Failures  []CopyFailure `json:"failures,omitempty"`
}

// ReconcileResult reports the outcome of bringing a work to a copy count
type ReconcileResult struct {
	Work      *models.Work  `json:"work"`
	Created   int           `json:"created"`
	Removed   int           `json:"removed"`
	Shortfall int           `json:"shortfall"`
	Failures  []CopyFailure `json:"failures,omitempty"`
}

// BarcodeFor formats the barcode of a copy number within a work
func BarcodeFor(workCode string, copyNumber int) string {
	return fmt.Sprintf("%s-%03d", workCode, copyNumber)
}

// ============================================================
// Creation and reconciliation
// ============================================================

// CreateCopies adds count copies to a work
func (s *CopyService) CreateCopies(ctx context.Context, workID uint, count int, location string) (*CreateCopiesResult, error) {
	if count <= 0 {
		return nil, domain.Errorf(domain.KindValidation, "count must be greater than zero")
	}
	var result *CreateCopiesResult
	err := s.run(ctx, []string{workKey(workID)}, func(tx *scope) error {
		work, err := loadWork(ctx, tx, workID, false)
		if err != nil {
			return err
		}
		result, err = s.createCopies(ctx, tx, work, count, location)
		if err != nil {
			return err
		}
		s.recomputeRollups(ctx, tx, workID)
		return s.advanceQueue(ctx, tx, workID)
	})
	return result, err
}

// createCopies numbers new copies from max(copy_number)+1. Each insert runs
// in its own savepoint so one failure skips only that copy.
func (s *CopyService) createCopies(ctx context.Context, tx *scope, work *models.Work, count int, location string) (*CreateCopiesResult, error) {
	result := &CreateCopiesResult{Requested: count}
	if count == 0 {
		return result, nil
	}

	last, err := tx.Copies().MaxCopyNumber(ctx, work.ID)
	if err != nil {
		return nil, err
	}
	acquired := domain.DateOnly(s.now())

	for i := 1; i <= count; i++ {
		number := last + i
		barcode := BarcodeFor(work.Code, number)
		cp := models.Copy{
			WorkID:          work.ID,
			CopyNumber:      number,
			Barcode:         &barcode,
			Status:          domain.CopyAvailable,
			Condition:       domain.ConditionGood,
			Location:        location,
			AcquisitionDate: &acquired,
		}

		err := tx.WithinTx(ctx, func(inner repositories.Store) error {
			if err := validateUniqueness(ctx, inner, &cp); err != nil {
				return err
			}
			return inner.Copies().Create(ctx, &cp)
		})
		if err != nil {
			s.logger.Warn("copy creation skipped",
				slog.String("work", work.Code),
				slog.Int("copy_number", number),
				slog.Any("error", err))
			result.Failures = append(result.Failures, CopyFailure{CopyNumber: number, Error: err.Error()})
			continue
		}
		result.Copies = append(result.Copies, cp)
		result.Created++
	}
	return result, nil
}

// ReconcileCount grows or shrinks a work to desired copies. Only Available
// copies without history are removed; the rest is reported as shortfall.
func (s *CopyService) ReconcileCount(ctx context.Context, workID uint, desired int, location string) (*ReconcileResult, error) {
	if desired < 0 {
		return nil, domain.Errorf(domain.KindValidation, "desired copy count cannot be negative")
	}
	result := &ReconcileResult{}
	err := s.run(ctx, []string{workKey(workID)}, func(tx *scope) error {
		work, err := loadWork(ctx, tx, workID, false)
		if err != nil {
			return err
		}
		current, err := tx.Copies().Count(ctx, repositories.Where(repositories.Eq("work_id", workID)))
		if err != nil {
			return err
		}

		switch {
		case int64(desired) > current:
			created, err := s.createCopies(ctx, tx, work, desired-int(current), location)
			if err != nil {
				return err
			}
			result.Created = created.Created
			result.Failures = created.Failures
		case int64(desired) < current:
			need := int(current) - desired
			removed, err := s.removeCopies(ctx, tx, workID, need)
			if err != nil {
				return err
			}
			result.Removed = removed
			result.Shortfall = need - removed
		}

		s.recomputeRollups(ctx, tx, workID)
		if result.Created > 0 {
			if err := s.advanceQueue(ctx, tx, workID); err != nil {
				return err
			}
		}
		result.Work, err = tx.Works().GetByID(ctx, workID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Shortfall > 0 {
		s.logger.Warn("copy reconcile fell short",
			slog.Uint64("work_id", uint64(workID)),
			slog.Int("shortfall", result.Shortfall))
	}
	return result, nil
}

// removeCopies deletes up to need of the highest-numbered removable copies
func (s *CopyService) removeCopies(ctx context.Context, tx *scope, workID uint, need int) (int, error) {
	candidates, err := tx.Copies().Find(ctx, repositories.Where(
		repositories.Eq("work_id", workID),
		repositories.Eq("status", domain.CopyAvailable),
	).OrderBy("copy_number DESC"))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, cp := range candidates {
		if removed == need {
			break
		}
		used, err := hasHistory(ctx, tx, cp.ID)
		if err != nil {
			return removed, err
		}
		if used {
			continue
		}
		if err := tx.Copies().Delete(ctx, cp.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func hasHistory(ctx context.Context, tx repositories.Store, copyID uint) (bool, error) {
	byCopy := repositories.Where(repositories.Eq("copy_id", copyID))
	used, err := tx.Transactions().Exists(ctx, byCopy)
	if err != nil || used {
		return used, err
	}
	return tx.Reservations().Exists(ctx, byCopy)
}

// ============================================================
// Uniqueness and status
// ============================================================

// ValidateUniqueness fails with Conflict on a duplicate copy number within
// the work or a duplicate barcode anywhere
func (s *CopyService) ValidateUniqueness(ctx context.Context, cp *models.Copy) error {
	return validateUniqueness(ctx, s.store, cp)
}

func validateUniqueness(ctx context.Context, tx repositories.Store, cp *models.Copy) error {
	sameNumber, err := tx.Copies().Exists(ctx, repositories.Where(
		repositories.Eq("work_id", cp.WorkID),
		repositories.Eq("copy_number", cp.CopyNumber),
		repositories.Ne("id", cp.ID),
	))
	if err != nil {
		return err
	}
	if sameNumber {
		return domain.Errorf(domain.KindConflict, "copy number %d already exists for this work", cp.CopyNumber)
	}
	if cp.Barcode == nil || *cp.Barcode == "" {
		return nil
	}
	sameBarcode, err := tx.Copies().Exists(ctx, repositories.Where(
		repositories.Eq("barcode", *cp.Barcode),
		repositories.Ne("id", cp.ID),
	))
	if err != nil {
		return err
	}
	if sameBarcode {
		return domain.Errorf(domain.KindConflict, "barcode %s is already in use", *cp.Barcode)
	}
	return nil
}

// transitionCopy enforces the copy state machine and writes the new status
// only if nobody changed it in between
func (c *core) transitionCopy(ctx context.Context, tx repositories.Store, cp *models.Copy, to domain.CopyStatus) error {
	if !domain.CanTransition(cp.Status, to) {
		return domain.Errorf(domain.KindInvalidState, "copy %d cannot move from %s to %s", cp.ID, cp.Status, to)
	}
	ok, err := tx.Copies().UpdateStatusIf(ctx, cp.ID, cp.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Errorf(domain.KindConflict, "copy %d changed status concurrently", cp.ID)
	}
	cp.Status = to
	return nil
}

// SetStatus moves a copy along the state machine and refreshes rollups
func (s *CopyService) SetStatus(ctx context.Context, copyID uint, to domain.CopyStatus) (*models.Copy, error) {
	cp, err := s.store.Copies().GetByID(ctx, copyID)
	if err != nil {
		return nil, err
	}
	err = s.run(ctx, []string{workKey(cp.WorkID), copyKey(copyID)}, func(tx *scope) error {
		cp, err = tx.Copies().GetByID(ctx, copyID)
		if err != nil {
			return err
		}
		if err := s.transitionCopy(ctx, tx, cp, to); err != nil {
			return err
		}
		s.recomputeRollups(ctx, tx, cp.WorkID)
		if to == domain.CopyAvailable {
			return s.advanceQueue(ctx, tx, cp.WorkID)
		}
		return nil
	})
	return cp, err
}

// MarkForMaintenance takes an Available copy out of service
func (s *CopyService) MarkForMaintenance(ctx context.Context, copyID uint, reason string) (*models.Copy, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Errorf(domain.KindValidation, "maintenance reason is required")
	}
	return s.toggleMaintenance(ctx, copyID, domain.CopyMaintenance, "maintenance: "+reason)
}

// MarkAvailable returns a copy from maintenance and advances the queue
func (s *CopyService) MarkAvailable(ctx context.Context, copyID uint, note string) (*models.Copy, error) {
	line := "returned to service"
	if note = strings.TrimSpace(note); note != "" {
		line += ": " + note
	}
	return s.toggleMaintenance(ctx, copyID, domain.CopyAvailable, line)
}

func (s *CopyService) toggleMaintenance(ctx context.Context, copyID uint, to domain.CopyStatus, line string) (*models.Copy, error) {
	cp, err := s.store.Copies().GetByID(ctx, copyID)
	if err != nil {
		return nil, err
	}
	err = s.run(ctx, []string{workKey(cp.WorkID), copyKey(copyID)}, func(tx *scope) error {
		cp, err = tx.Copies().GetByID(ctx, copyID)
		if err != nil {
			return err
		}
		from := domain.CopyAvailable
		if to == domain.CopyAvailable {
			from = domain.CopyMaintenance
		}
		if cp.Status != from {
			return domain.Errorf(domain.KindInvalidState, "copy %d is %s, expected %s", cp.ID, cp.Status, from)
		}
		if err := s.transitionCopy(ctx, tx, cp, to); err != nil {
			return err
		}

		entry := fmt.Sprintf("%s %s", s.now().Format(time.RFC3339), line)
		if cp.MaintenanceLog != "" {
			cp.MaintenanceLog += "\n"
		}
		cp.MaintenanceLog += entry
		if err := tx.Copies().SetMaintenanceLog(ctx, cp.ID, cp.MaintenanceLog); err != nil {
			return err
		}

		s.recomputeRollups(ctx, tx, cp.WorkID)
		if to == domain.CopyAvailable {
			return s.advanceQueue(ctx, tx, cp.WorkID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("copy maintenance toggled",
		slog.Uint64("copy_id", uint64(cp.ID)),
		slog.String("status", string(cp.Status)))
	return cp, nil
}

// ============================================================
// Queries
// ============================================================

// GetCopy returns one copy
func (s *CopyService) GetCopy(ctx context.Context, id uint) (*models.Copy, error) {
	return s.store.Copies().GetByID(ctx, id)
}

// ListCopies returns a work's copies by copy number
func (s *CopyService) ListCopies(ctx context.Context, workID uint) ([]models.Copy, error) {
	if _, err := s.store.Works().GetByID(ctx, workID); err != nil {
		return nil, err
	}
	return s.store.Copies().Find(ctx, repositories.Where(
		repositories.Eq("work_id", workID),
	).OrderBy("copy_number ASC"))
}
