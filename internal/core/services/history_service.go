package services

import (
	"context"
	"log/slog"

	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/adapters/persistence/repositories"
	"libraryhub/internal/core/domain"
)

// HistoryService is the append-only per-member ledger
type HistoryService struct {
	*core
}

// Append adds an entry to the member's ledger in its own unit of work
func (s *HistoryService) Append(ctx context.Context, memberID uint, entry *models.HistoryEntry) error {
	return s.run(ctx, []string{memberKey(memberID)}, func(tx *scope) error {
		if _, err := tx.Members().GetByID(ctx, memberID); err != nil {
			return err
		}
		return s.appendHistory(ctx, tx, memberID, entry)
	})
}

// List returns a member's entries in seq order
func (s *HistoryService) List(ctx context.Context, memberID uint, offset, limit int) ([]models.HistoryEntry, int64, error) {
	if _, err := s.store.Members().GetByID(ctx, memberID); err != nil {
		return nil, 0, err
	}
	return s.store.History().ListEntries(ctx, memberID, offset, limit)
}

// appendHistory creates the ledger on first use and stamps the next seq.
// Callers hold the member lock.
func (c *core) appendHistory(ctx context.Context, tx repositories.Store, memberID uint, entry *models.HistoryEntry) error {
	ledger, err := tx.History().Ledger(ctx, memberID)
	if err != nil {
		return err
	}
	seq, err := tx.History().NextSeq(ctx, ledger.ID)
	if err != nil {
		return err
	}
	entry.HistoryID = ledger.ID
	entry.MemberID = memberID
	entry.Seq = seq
	if entry.TransactionDate.IsZero() {
		entry.TransactionDate = c.now()
	}
	return tx.History().AppendEntry(ctx, entry)
}

// historyForTransaction records a circulation transaction on the ledger
func (c *core) historyForTransaction(ctx context.Context, tx repositories.Store, t *models.Transaction, entryType domain.HistoryEntryType, status domain.HistoryStatus) error {
	copyID := t.CopyID
	txID := t.ID
	return c.appendHistory(ctx, tx, t.MemberID, &models.HistoryEntry{
		EntryType:       entryType,
		WorkID:          t.WorkID,
		CopyID:          &copyID,
		TransactionID:   &txID,
		TransactionDate: t.Date,
		DueDate:         t.DueDate,
		ReturnDate:      t.ReturnDate,
		Status:          status,
		FineAmount:      t.FineAmount,
	})
}

// transitionTransactionHistory updates the ledger row of a transaction
func (c *core) transitionTransactionHistory(ctx context.Context, tx repositories.Store, transactionID uint, status domain.HistoryStatus) error {
	n, err := tx.History().UpdateStatusByTransaction(ctx, transactionID, status)
	if err != nil {
		return err
	}
	if n == 0 {
		c.logger.Warn("no history row for transaction",
			slog.Uint64("transaction_id", uint64(transactionID)))
	}
	return nil
}

// transitionReservationHistory updates the ledger row of a reservation
func (c *core) transitionReservationHistory(ctx context.Context, tx repositories.Store, reservationID uint, status domain.HistoryStatus) error {
	n, err := tx.History().UpdateStatusByReservation(ctx, reservationID, status)
	if err != nil {
		return err
	}
	if n == 0 {
		c.logger.Warn("no history row for reservation",
			slog.Uint64("reservation_id", uint64(reservationID)))
	}
	return nil
}
