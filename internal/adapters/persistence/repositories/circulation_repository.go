package repositories

import (
	"context"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Transaction Repository
// ============================================================

// transactionRepository implements TransactionRepository interface
type transactionRepository struct {
	gormRepository[models.Transaction]
}

// NewTransactionRepository creates a new circulation transaction repository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{newGormRepository[models.Transaction](db, domain.ErrTransactionNotFound)}
}

// Resolve sets resolved_by_id on an Issue that has none yet
func (r *transactionRepository) Resolve(ctx context.Context, issueID, returnID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND transaction_type = ? AND resolved_by_id IS NULL", issueID, domain.TxIssue).
		Update("resolved_by_id", returnID)
	if res.Error != nil {
		return false, wrapErr(res.Error, "resolve issue")
	}
	return res.RowsAffected == 1, nil
}

// UpdateFine corrects the fine of a Return transaction
func (r *transactionRepository) UpdateFine(ctx context.Context, id uint, amount decimal.Decimal, note string) error {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND transaction_type = ?", id, domain.TxReturn).
		Updates(map[string]interface{}{
			"fine_amount": amount,
			"fine_note":   note,
		})
	if res.Error != nil {
		return wrapErr(res.Error, "update fine")
	}
	if res.RowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// ============================================================
// Reservation Repository
// ============================================================

// reservationRepository implements ReservationRepository interface
type reservationRepository struct {
	gormRepository[models.Reservation]
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{newGormRepository[models.Reservation](db, domain.ErrReservationNotFound)}
}

// TransitionIf moves an Active reservation to `to`, writing extra columns
func (r *reservationRepository) TransitionIf(ctx context.Context, id uint, to domain.ReservationStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationActive).
		Updates(updates)
	if res.Error != nil {
		return false, wrapErr(res.Error, "transition reservation")
	}
	return res.RowsAffected == 1, nil
}

// MarkNotified records the pickup notification exactly once
func (r *reservationRepository) MarkNotified(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ? AND notification_sent = ?", id, domain.ReservationActive, false).
		Updates(map[string]interface{}{
			"notification_sent": true,
			"notified_date":     at,
		})
	if res.Error != nil {
		return false, wrapErr(res.Error, "mark reservation notified")
	}
	return res.RowsAffected == 1, nil
}

// ActiveQueue orders a work's Active reservations by priority then age
func (r *reservationRepository) ActiveQueue(ctx context.Context, workID uint) ([]models.Reservation, error) {
	var queue []models.Reservation
	err := r.db.WithContext(ctx).
		Where("work_id = ? AND status = ?", workID, domain.ReservationActive).
		Order("priority_level DESC, reservation_date ASC, id ASC").
		Find(&queue).Error
	return queue, wrapErr(err, "active queue")
}
