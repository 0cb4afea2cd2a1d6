package services

import (
	"log/slog"

	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/pkg/keylock"
)

// Deps are the collaborators of the circulation services
type Deps struct {
	Store    repositories.Store
	Notifier Notifier
	Policy   domain.Policy
	Clock    Clock
	Logger   *slog.Logger
}

// Services bundles every circulation service over one store and lock set
type Services struct {
	Catalog      *CatalogService
	Copies       *CopyService
	Eligibility  *EligibilityService
	Transactions *TransactionService
	Reservations *ReservationService
	History      *HistoryService
	Members      *MemberService
}

// New wires the circulation services
func New(deps Deps) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}

	c := &core{
		store:    deps.Store,
		locks:    keylock.New(deps.Policy.LockTimeout),
		notifier: notifier,
		policy:   deps.Policy,
		clock:    clock,
		logger:   logger,
	}

	copies := &CopyService{core: c}
	engine := &TransactionService{core: c}
	return &Services{
		Catalog:      &CatalogService{core: c, copies: copies},
		Copies:       copies,
		Eligibility:  &EligibilityService{core: c},
		Transactions: engine,
		Reservations: &ReservationService{core: c, engine: engine},
		History:      &HistoryService{core: c},
		Members:      &MemberService{core: c},
	}
}
