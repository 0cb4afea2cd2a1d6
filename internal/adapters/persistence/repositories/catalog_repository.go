package repositories

import (
	"context"
	"errors"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"

	"gorm.io/gorm"
)

// ============================================================
// Work Repository
// ============================================================

// workRepository implements WorkRepository interface
type workRepository struct {
	gormRepository[models.Work]
}

// NewWorkRepository creates a new work repository
func NewWorkRepository(db *gorm.DB) WorkRepository {
	return &workRepository{newGormRepository[models.Work](db, domain.ErrWorkNotFound)}
}

// GetByCode gets a work by its unique code
func (r *workRepository) GetByCode(ctx context.Context, code string) (*models.Work, error) {
	var work models.Work
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&work).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWorkNotFound
		}
		return nil, wrapErr(err, "get work by code")
	}
	return &work, nil
}

// UpdateRollups writes the three copy counters of a work
func (r *workRepository) UpdateRollups(ctx context.Context, id uint, total, available, issued int) error {
	err := r.db.WithContext(ctx).Model(&models.Work{}).Where("id = ?", id).Updates(map[string]interface{}{
		"total_copies":     total,
		"available_copies": available,
		"issued_copies":    issued,
	}).Error
	return wrapErr(err, "update rollups")
}

// UpdateStatus sets the circulation status of a work
func (r *workRepository) UpdateStatus(ctx context.Context, id uint, status domain.WorkStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Work{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return wrapErr(res.Error, "update work status")
	}
	if res.RowsAffected == 0 {
		return domain.ErrWorkNotFound
	}
	return nil
}

// ============================================================
// Copy Repository
// ============================================================

// copyRepository implements CopyRepository interface
type copyRepository struct {
	gormRepository[models.Copy]
}

// NewCopyRepository creates a new copy repository
func NewCopyRepository(db *gorm.DB) CopyRepository {
	return &copyRepository{newGormRepository[models.Copy](db, domain.ErrCopyNotFound)}
}

// UpdateStatusIf is a compare-and-set on the copy status
func (r *copyRepository) UpdateStatusIf(ctx context.Context, id uint, from, to domain.CopyStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Copy{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, wrapErr(res.Error, "update copy status")
	}
	return res.RowsAffected == 1, nil
}

// MaxCopyNumber returns the highest copy number of a work, 0 when it has none
func (r *copyRepository) MaxCopyNumber(ctx context.Context, workID uint) (int, error) {
	var maxNumber int
	err := r.db.WithContext(ctx).Model(&models.Copy{}).
		Where("work_id = ?", workID).
		Select("COALESCE(MAX(copy_number), 0)").
		Scan(&maxNumber).Error
	return maxNumber, wrapErr(err, "max copy number")
}

// CountByStatus groups a work's copies by status
func (r *copyRepository) CountByStatus(ctx context.Context, workID uint) (map[domain.CopyStatus]int, error) {
	var rows []struct {
		Status domain.CopyStatus
		N      int
	}
	err := r.db.WithContext(ctx).Model(&models.Copy{}).
		Select("status, COUNT(*) AS n").
		Where("work_id = ?", workID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapErr(err, "count copies by status")
	}
	counts := make(map[domain.CopyStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

// SetMaintenanceLog replaces the maintenance log of a copy
func (r *copyRepository) SetMaintenanceLog(ctx context.Context, id uint, log string) error {
	err := r.db.WithContext(ctx).Model(&models.Copy{}).Where("id = ?", id).Update("maintenance_log", log).Error
	return wrapErr(err, "update maintenance log")
}
