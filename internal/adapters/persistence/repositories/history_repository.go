package repositories

import (
	"context"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"

	"gorm.io/gorm"
)

// historyRepository implements HistoryRepository interface
type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new member history repository
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// Ledger finds or creates the member's ledger header
func (r *historyRepository) Ledger(ctx context.Context, memberID uint) (*models.MemberHistory, error) {
	var ledger models.MemberHistory
	err := r.db.WithContext(ctx).
		Where(models.MemberHistory{MemberID: memberID}).
		FirstOrCreate(&ledger).Error
	if err != nil {
		return nil, wrapErr(err, "member ledger")
	}
	return &ledger, nil
}

// NextSeq increments and returns the ledger's sequence counter
func (r *historyRepository) NextSeq(ctx context.Context, historyID uint) (int, error) {
	db := r.db.WithContext(ctx)
	err := db.Model(&models.MemberHistory{}).
		Where("id = ?", historyID).
		UpdateColumn("last_seq", gorm.Expr("last_seq + 1")).Error
	if err != nil {
		return 0, wrapErr(err, "advance ledger seq")
	}
	var seq int
	err = db.Model(&models.MemberHistory{}).
		Where("id = ?", historyID).
		Select("last_seq").
		Scan(&seq).Error
	return seq, wrapErr(err, "read ledger seq")
}

// AppendEntry inserts a ledger row
func (r *historyRepository) AppendEntry(ctx context.Context, entry *models.HistoryEntry) error {
	return wrapErr(r.db.WithContext(ctx).Create(entry).Error, "append history entry")
}

// UpdateStatusByTransaction updates the row keyed by a transaction
func (r *historyRepository) UpdateStatusByTransaction(ctx context.Context, transactionID uint, status domain.HistoryStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.HistoryEntry{}).
		Where("transaction_id = ?", transactionID).
		Update("status", status)
	return res.RowsAffected, wrapErr(res.Error, "update history by transaction")
}

// UpdateStatusByReservation updates the row keyed by a reservation
func (r *historyRepository) UpdateStatusByReservation(ctx context.Context, reservationID uint, status domain.HistoryStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.HistoryEntry{}).
		Where("reservation_id = ?", reservationID).
		Update("status", status)
	return res.RowsAffected, wrapErr(res.Error, "update history by reservation")
}

// ListEntries pages a member's ledger in seq order
func (r *historyRepository) ListEntries(ctx context.Context, memberID uint, offset, limit int) ([]models.HistoryEntry, int64, error) {
	var entries []models.HistoryEntry
	var total int64

	db := r.db.WithContext(ctx).Model(&models.HistoryEntry{}).Where("member_id = ?", memberID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, wrapErr(err, "count history")
	}

	q := r.db.WithContext(ctx).Where("member_id = ?", memberID).Order("seq ASC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, 0, wrapErr(err, "list history")
	}
	return entries, total, nil
}
