package services

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"
)

// CatalogService manages works and their copy-count rollups
type CatalogService struct {
	*core
	copies *CopyService
}

// CreateWorkResult is a new work plus the outcome of its first copies
type CreateWorkResult struct {
	Work   *models.Work        `json:"work"`
	Copies *CreateCopiesResult `json:"copies"`
}

var workCodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,29}$`)

// ============================================================
// Rollups
// ============================================================

// RecomputeRollups recalculates a work's copy counts in its own unit of work
func (s *CatalogService) RecomputeRollups(ctx context.Context, workID uint) (*models.Work, error) {
	var work *models.Work
	err := s.run(ctx, []string{workKey(workID)}, func(tx *scope) error {
		if _, err := tx.Works().GetByID(ctx, workID); err != nil {
			return err
		}
		s.recomputeRollups(ctx, tx, workID)
		w, err := tx.Works().GetByID(ctx, workID)
		work = w
		return err
	})
	return work, err
}

// recomputeRollups derives total, available and issued from the copy set.
// A failure to read copies zeroes the counts and is logged, never returned.
func (c *core) recomputeRollups(ctx context.Context, tx repositories.Store, workID uint) {
	counts, err := tx.Copies().CountByStatus(ctx, workID)
	if err != nil {
		c.logger.Error("rollup recompute failed, zeroing counts",
			slog.Uint64("work_id", uint64(workID)),
			slog.Any("error", err))
		counts = map[domain.CopyStatus]int{}
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	available := counts[domain.CopyAvailable]
	issued := total - available

	if err := tx.Works().UpdateRollups(ctx, workID, total, available, issued); err != nil {
		c.logger.Error("rollup write failed",
			slog.Uint64("work_id", uint64(workID)),
			slog.Any("error", err))
	}
}

// ============================================================
// Works
// ============================================================

// CreateWork validates and stores a work with its initial copies
func (s *CatalogService) CreateWork(ctx context.Context, input CreateWorkInput) (*CreateWorkResult, error) {
	work, err := s.buildWork(input)
	if err != nil {
		return nil, err
	}
	if input.CopiesToCreate < 0 {
		return nil, domain.Errorf(domain.KindValidation, "copies to create cannot be negative")
	}

	result := &CreateWorkResult{}
	err = s.run(ctx, []string{"work-code:" + work.Code}, func(tx *scope) error {
		exists, err := tx.Works().Exists(ctx, repositories.Where(repositories.Eq("code", work.Code)))
		if err != nil {
			return err
		}
		if exists {
			return domain.Errorf(domain.KindConflict, "work code %s already exists", work.Code)
		}
		if err := tx.Works().Create(ctx, work); err != nil {
			return err
		}

		copies, err := s.copies.createCopies(ctx, tx, work, input.CopiesToCreate, input.Location)
		if err != nil {
			return err
		}
		s.recomputeRollups(ctx, tx, work.ID)

		stored, err := tx.Works().GetByID(ctx, work.ID)
		if err != nil {
			return err
		}
		result.Work = stored
		result.Copies = copies
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("work created",
		slog.String("code", result.Work.Code),
		slog.Int("copies", result.Copies.Created))
	return result, nil
}

func (s *CatalogService) buildWork(input CreateWorkInput) (*models.Work, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.Errorf(domain.KindValidation, "title is required")
	}
	code := strings.TrimSpace(input.Code)
	if !workCodePattern.MatchString(code) {
		return nil, domain.Errorf(domain.KindValidation, "work code %q must be 1-30 letters, digits, '-' or '_'", input.Code)
	}

	work := &models.Work{
		Code:     code,
		Title:    title,
		Author:   strings.TrimSpace(input.Author),
		Category: strings.TrimSpace(input.Category),
		Status:   domain.WorkActive,
	}
	if input.ISBN10 != "" {
		isbn, err := NormalizeISBN10(input.ISBN10)
		if err != nil {
			return nil, err
		}
		work.ISBN10 = &isbn
	}
	if input.ISBN13 != "" {
		isbn, err := NormalizeISBN13(input.ISBN13)
		if err != nil {
			return nil, err
		}
		work.ISBN13 = &isbn
	}
	return work, nil
}

// GetWork returns one work
func (s *CatalogService) GetWork(ctx context.Context, id uint) (*models.Work, error) {
	return s.store.Works().GetByID(ctx, id)
}

// GetWorkByCode looks a work up by its catalog code
func (s *CatalogService) GetWorkByCode(ctx context.Context, code string) (*models.Work, error) {
	return s.store.Works().GetByCode(ctx, strings.TrimSpace(code))
}

// ListWorks pages works, optionally filtered by category and status
func (s *CatalogService) ListWorks(ctx context.Context, category string, status domain.WorkStatus, offset, limit int) ([]models.Work, int64, error) {
	q := repositories.Query{}
	if category != "" {
		q.Conds = append(q.Conds, repositories.Eq("category", category))
	}
	if status != "" {
		q.Conds = append(q.Conds, repositories.Eq("status", status))
	}

	total, err := s.store.Works().Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	works, err := s.store.Works().Find(ctx, q.OrderBy("id ASC").Page(offset, limit))
	if err != nil {
		return nil, 0, err
	}
	return works, total, nil
}

// DeleteWork removes a work that has no copies and nothing open against it
func (s *CatalogService) DeleteWork(ctx context.Context, id uint) error {
	return s.run(ctx, []string{workKey(id)}, func(tx *scope) error {
		work, err := tx.Works().GetByID(ctx, id)
		if err != nil {
			return err
		}

		byWork := repositories.Eq("work_id", id)
		copies, err := tx.Copies().Count(ctx, repositories.Where(byWork))
		if err != nil {
			return err
		}
		if copies > 0 {
			return domain.Errorf(domain.KindInvalidState, "work %s still has %d copies", work.Code, copies)
		}
		openLoans, err := tx.Transactions().Count(ctx, repositories.Where(
			byWork,
			repositories.Eq("transaction_type", domain.TxIssue),
			repositories.IsNull("resolved_by_id"),
		))
		if err != nil {
			return err
		}
		activeHolds, err := tx.Reservations().Count(ctx, repositories.Where(
			byWork,
			repositories.Eq("status", domain.ReservationActive),
		))
		if err != nil {
			return err
		}
		if openLoans > 0 || activeHolds > 0 {
			return domain.Errorf(domain.KindInvalidState, "work %s has open transactions or reservations", work.Code)
		}
		return tx.Works().Delete(ctx, id)
	})
}

// SetWorkStatus takes a work in or out of circulation
func (s *CatalogService) SetWorkStatus(ctx context.Context, id uint, status domain.WorkStatus) (*models.Work, error) {
	if status != domain.WorkActive && status != domain.WorkInactive {
		return nil, domain.Errorf(domain.KindValidation, "unknown work status %q", status)
	}
	var work *models.Work
	err := s.run(ctx, []string{workKey(id)}, func(tx *scope) error {
		if err := tx.Works().UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		w, err := tx.Works().GetByID(ctx, id)
		work = w
		return err
	})
	return work, err
}

// ============================================================
// ISBN
// ============================================================

func cleanISBN(raw string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(raw))
}

// NormalizeISBN10 strips separators and checks the ISBN-10 shape
func NormalizeISBN10(raw string) (string, error) {
	isbn := strings.ToUpper(cleanISBN(raw))
	if len(isbn) != 10 {
		return "", domain.Errorf(domain.KindValidation, "invalid ISBN-10 format")
	}
	for i, r := range isbn {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == 'X' && i == 9 {
			continue
		}
		return "", domain.Errorf(domain.KindValidation, "invalid ISBN-10 format")
	}
	return isbn, nil
}

// NormalizeISBN13 strips separators and checks the ISBN-13 shape
func NormalizeISBN13(raw string) (string, error) {
	isbn := cleanISBN(raw)
	if len(isbn) != 13 {
		return "", domain.Errorf(domain.KindValidation, "invalid ISBN-13 format")
	}
	for _, r := range isbn {
		if r < '0' || r > '9' {
			return "", domain.Errorf(domain.KindValidation, "invalid ISBN-13 format")
		}
	}
	return isbn, nil
}
