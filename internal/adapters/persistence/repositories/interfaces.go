package repositories

import (
	"context"
	"time"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Repository is the CRUD and query surface shared by every entity
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	GetByID(ctx context.Context, id uint) (*T, error)
	Save(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id uint) error
	Find(ctx context.Context, q Query) ([]T, error)
	// First returns nil without error when nothing matches
	First(ctx context.Context, q Query) (*T, error)
	Count(ctx context.Context, q Query) (int64, error)
	Exists(ctx context.Context, q Query) (bool, error)
}

// WorkRepository defines work repository interface
type WorkRepository interface {
	Repository[models.Work]
	GetByCode(ctx context.Context, code string) (*models.Work, error)
	UpdateRollups(ctx context.Context, id uint, total, available, issued int) error
	UpdateStatus(ctx context.Context, id uint, status domain.WorkStatus) error
}

// CopyRepository defines copy repository interface
type CopyRepository interface {
	Repository[models.Copy]
	// UpdateStatusIf moves a copy to `to` only while it is still in `from`
	UpdateStatusIf(ctx context.Context, id uint, from, to domain.CopyStatus) (bool, error)
	MaxCopyNumber(ctx context.Context, workID uint) (int, error)
	CountByStatus(ctx context.Context, workID uint) (map[domain.CopyStatus]int, error)
	SetMaintenanceLog(ctx context.Context, id uint, log string) error
}

// TransactionRepository defines circulation transaction repository interface
type TransactionRepository interface {
	Repository[models.Transaction]
	// Resolve links an open Issue to its Return, once
	Resolve(ctx context.Context, issueID, returnID uint) (bool, error)
	UpdateFine(ctx context.Context, id uint, amount decimal.Decimal, note string) error
}

// ReservationRepository defines reservation repository interface
type ReservationRepository interface {
	Repository[models.Reservation]
	// TransitionIf moves an Active reservation to a terminal status
	TransitionIf(ctx context.Context, id uint, to domain.ReservationStatus, fields map[string]interface{}) (bool, error)
	// MarkNotified flips notification_sent on an Active, un-notified reservation
	MarkNotified(ctx context.Context, id uint, at time.Time) (bool, error)
	// ActiveQueue returns Active reservations of a work in queue order
	ActiveQueue(ctx context.Context, workID uint) ([]models.Reservation, error)
}

// MemberRepository defines member repository interface
type MemberRepository interface {
	Repository[models.Member]
	GetWithTier(ctx context.Context, id uint) (*models.Member, error)
}

// TierRepository defines member tier repository interface
type TierRepository interface {
	Repository[models.MemberTier]
	GetByName(ctx context.Context, name string) (*models.MemberTier, error)
}

// HistoryRepository defines member history ledger interface
type HistoryRepository interface {
	// Ledger returns the member's ledger, creating it on first use
	Ledger(ctx context.Context, memberID uint) (*models.MemberHistory, error)
	NextSeq(ctx context.Context, historyID uint) (int, error)
	AppendEntry(ctx context.Context, entry *models.HistoryEntry) error
	UpdateStatusByTransaction(ctx context.Context, transactionID uint, status domain.HistoryStatus) (int64, error)
	UpdateStatusByReservation(ctx context.Context, reservationID uint, status domain.HistoryStatus) (int64, error)
	ListEntries(ctx context.Context, memberID uint, offset, limit int) ([]models.HistoryEntry, int64, error)
}

// Store groups the repositories that share one database session
type Store interface {
	Works() WorkRepository
	Copies() CopyRepository
	Transactions() TransactionRepository
	Reservations() ReservationRepository
	Members() MemberRepository
	Tiers() TierRepository
	History() HistoryRepository
	// WithinTx runs fn in one database transaction; nested calls use savepoints
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
