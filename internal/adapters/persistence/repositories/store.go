package repositories

import (
	"context"

	"gorm.io/gorm"
)

// gormStore implements Store over one gorm session
type gormStore struct {
	db           *gorm.DB
	works        WorkRepository
	copies       CopyRepository
	transactions TransactionRepository
	reservations ReservationRepository
	members      MemberRepository
	tiers        TierRepository
	history      HistoryRepository
}

// NewStore creates a store whose repositories share db
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:           db,
		works:        NewWorkRepository(db),
		copies:       NewCopyRepository(db),
		transactions: NewTransactionRepository(db),
		reservations: NewReservationRepository(db),
		members:      NewMemberRepository(db),
		tiers:        NewTierRepository(db),
		history:      NewHistoryRepository(db),
	}
}

func (s *gormStore) Works() WorkRepository               { return s.works }
func (s *gormStore) Copies() CopyRepository              { return s.copies }
func (s *gormStore) Transactions() TransactionRepository { return s.transactions }
func (s *gormStore) Reservations() ReservationRepository { return s.reservations }
func (s *gormStore) Members() MemberRepository           { return s.members }
func (s *gormStore) Tiers() TierRepository               { return s.tiers }
func (s *gormStore) History() HistoryRepository          { return s.history }

// WithinTx runs fn inside a database transaction. gorm turns a nested call
// into a savepoint, so a failed inner unit rolls back alone.
func (s *gormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
