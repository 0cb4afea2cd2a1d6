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

// ReservationService is the priority waitlist of every work
type ReservationService struct {
	*core
	engine *TransactionService
}

// QueueEntry is one Active reservation with its place in the queue
type QueueEntry struct {
	Position    int                `json:"position"`
	Reservation models.Reservation `json:"reservation"`
}

// SweepResult reports one expiry sweep
type SweepResult struct {
	Checked int `json:"checked"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// ============================================================
// Reserve
// ============================================================

// Reserve places a hold on a work, optionally on one Available copy
func (s *ReservationService) Reserve(ctx context.Context, input ReserveInput) (*models.Reservation, error) {
	keys := []string{workKey(input.WorkID), memberKey(input.MemberID)}
	if input.CopyID != nil {
		keys = append(keys, copyKey(*input.CopyID))
	}

	var reservation *models.Reservation
	err := s.run(ctx, keys, func(tx *scope) error {
		work, err := loadWork(ctx, tx, input.WorkID, true)
		if err != nil {
			return err
		}
		member, err := s.loadMember(ctx, tx, input.MemberID)
		if err != nil {
			return err
		}
		decision, err := s.canReserve(ctx, tx, member, work.ID)
		if err != nil {
			return err
		}
		if err := decision.Err(); err != nil {
			return err
		}

		var held *uint
		if input.CopyID != nil {
			cp, err := loadCopyOf(ctx, tx, *input.CopyID, work.ID)
			if err != nil {
				return err
			}
			if cp.Status != domain.CopyAvailable {
				return domain.Errorf(domain.KindUnavailable, "copy %d is %s", cp.ID, cp.Status)
			}
			spare, err := s.spareCopies(ctx, tx, work.ID, 0)
			if err != nil {
				return err
			}
			if spare < 1 {
				return domain.Errorf(domain.KindUnavailable, "every available copy of work %d is promised to the queue", work.ID)
			}
			if err := s.transitionCopy(ctx, tx, cp, domain.CopyReserved); err != nil {
				return err
			}
			held = &cp.ID
		}

		now := s.now()
		reservation = &models.Reservation{
			WorkID:          work.ID,
			CopyID:          held,
			MemberID:        member.ID,
			Status:          domain.ReservationActive,
			PriorityLevel:   s.termsFor(member).Priority,
			ReservationDate: now,
			ExpiryDate:      domain.AddDays(now, s.policy.ReservationHoldDays),
		}
		if err := tx.Reservations().Create(ctx, reservation); err != nil {
			return err
		}

		resID := reservation.ID
		err = s.appendHistory(ctx, tx, member.ID, &models.HistoryEntry{
			EntryType:       domain.HistoryReservation,
			WorkID:          work.ID,
			CopyID:          held,
			ReservationID:   &resID,
			TransactionDate: now,
			DueDate:         &reservation.ExpiryDate,
			Status:          domain.HistoryActive,
		})
		if err != nil {
			return err
		}

		if held != nil {
			s.recomputeRollups(ctx, tx, work.ID)
		}
		if err := s.advanceQueue(ctx, tx, work.ID); err != nil {
			return err
		}
		reservation, err = tx.Reservations().GetByID(ctx, reservation.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation placed",
		slog.Uint64("reservation_id", uint64(reservation.ID)),
		slog.Uint64("work_id", uint64(reservation.WorkID)),
		slog.Int("priority", reservation.PriorityLevel))
	return reservation, nil
}

// ============================================================
// Queue advancement
// ============================================================

// NotifyHeadOfQueue notifies the first un-notified reservation of a work if
// a copy is ready for it. It returns the notified reservation or nil.
func (s *ReservationService) NotifyHeadOfQueue(ctx context.Context, workID uint) (*models.Reservation, error) {
	var notified *models.Reservation
	err := s.run(ctx, []string{workKey(workID)}, func(tx *scope) error {
		if _, err := tx.Works().GetByID(ctx, workID); err != nil {
			return err
		}
		r, err := s.notifyHead(ctx, tx, workID)
		notified = r
		return err
	})
	return notified, err
}

// advanceQueue keeps notifying heads while copies are ready for them
func (c *core) advanceQueue(ctx context.Context, tx *scope, workID uint) error {
	for {
		r, err := c.notifyHead(ctx, tx, workID)
		if err != nil || r == nil {
			return err
		}
	}
}

// notifyHead implements one step of queue hand-off. A head that holds a copy
// is ready; a copy-less head is ready only while free copies outnumber the
// copy-less reservations already notified and waiting for pickup.
func (c *core) notifyHead(ctx context.Context, tx *scope, workID uint) (*models.Reservation, error) {
	queue, err := tx.Reservations().ActiveQueue(ctx, workID)
	if err != nil {
		return nil, err
	}

	var head *models.Reservation
	waiting := 0
	for i := range queue {
		r := &queue[i]
		if r.NotificationSent {
			if r.CopyID == nil {
				waiting++
			}
			continue
		}
		if head == nil {
			head = r
		}
	}
	if head == nil {
		return nil, nil
	}

	if head.CopyID == nil {
		free, err := tx.Copies().Count(ctx, repositories.Where(
			repositories.Eq("work_id", workID),
			repositories.Eq("status", domain.CopyAvailable),
		))
		if err != nil {
			return nil, err
		}
		if free <= int64(waiting) {
			return nil, nil
		}
	}

	now := c.now()
	marked, err := tx.Reservations().MarkNotified(ctx, head.ID, now)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, nil
	}
	head.NotificationSent = true
	head.NotifiedDate = &now

	member, err := tx.Members().GetByID(ctx, head.MemberID)
	if err != nil {
		return nil, err
	}
	work, err := tx.Works().GetByID(ctx, workID)
	if err != nil {
		return nil, err
	}
	tx.notify(c.newNotification(
		member.Email,
		fmt.Sprintf("%s is ready for pickup", work.Title),
		fmt.Sprintf("Hello %s, a copy of %q (%s) is waiting for you. Please collect it before %s.",
			member.Name, work.Title, work.Code, head.ExpiryDate.Format("2006-01-02")),
		"reservation",
		head.ID,
	))
	c.logger.Info("reservation notified",
		slog.Uint64("reservation_id", uint64(head.ID)),
		slog.Uint64("work_id", uint64(workID)))
	return head, nil
}

// spareCopies counts Available copies of a work not promised to notified
// copy-less reservations. The reservation except is left out of the count.
func (c *core) spareCopies(ctx context.Context, tx repositories.Store, workID, except uint) (int64, error) {
	free, err := tx.Copies().Count(ctx, repositories.Where(
		repositories.Eq("work_id", workID),
		repositories.Eq("status", domain.CopyAvailable),
	))
	if err != nil {
		return 0, err
	}
	promised, err := tx.Reservations().Count(ctx, repositories.Where(
		repositories.Eq("work_id", workID),
		repositories.Eq("status", domain.ReservationActive),
		repositories.Eq("notification_sent", true),
		repositories.IsNull("copy_id"),
		repositories.Ne("id", except),
	))
	if err != nil {
		return 0, err
	}
	return free - promised, nil
}

// releaseHeldCopy puts a Reserved copy back on the shelf
func (c *core) releaseHeldCopy(ctx context.Context, tx repositories.Store, copyID uint) error {
	cp, err := tx.Copies().GetByID(ctx, copyID)
	if err != nil {
		return err
	}
	if cp.Status != domain.CopyReserved {
		c.logger.Warn("held copy was not reserved",
			slog.Uint64("copy_id", uint64(copyID)),
			slog.String("status", string(cp.Status)))
		return nil
	}
	return c.transitionCopy(ctx, tx, cp, domain.CopyAvailable)
}

// fulfilReservation marks a reservation Fulfilled by an issue
func (c *core) fulfilReservation(ctx context.Context, tx repositories.Store, r *models.Reservation, issueID uint) error {
	ok, err := tx.Reservations().TransitionIf(ctx, r.ID, domain.ReservationFulfilled, map[string]interface{}{
		"fulfilled_transaction_id": issueID,
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.Errorf(domain.KindConflict, "reservation %d is no longer active", r.ID)
	}
	r.Status = domain.ReservationFulfilled
	r.FulfilledTransactionID = &issueID
	return c.transitionReservationHistory(ctx, tx, r.ID, domain.HistoryFulfilled)
}

// ============================================================
// Fulfil and cancel
// ============================================================

// Fulfill issues a copy against an Active reservation. copyID is used only
// when the reservation holds no copy; otherwise the lowest-numbered
// Available copy is picked. A copy-less reservation must have been notified.
func (s *ReservationService) Fulfill(ctx context.Context, reservationID uint, copyID *uint) (*models.Transaction, error) {
	r, err := s.store.Reservations().GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	keys := []string{workKey(r.WorkID), memberKey(r.MemberID), reservationKey(r.ID)}
	if r.CopyID != nil {
		keys = append(keys, copyKey(*r.CopyID))
	} else if copyID != nil {
		keys = append(keys, copyKey(*copyID))
	}

	var issue *models.Transaction
	err = s.run(ctx, keys, func(tx *scope) error {
		r, err := tx.Reservations().GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != domain.ReservationActive {
			return domain.Errorf(domain.KindInvalidState, "reservation %d is %s", r.ID, r.Status)
		}
		if r.CopyID == nil && !r.NotificationSent {
			return domain.Errorf(domain.KindUnavailable, "reservation %d has not been offered a copy yet", r.ID)
		}

		chosen, err := s.pickCopy(ctx, tx, r, copyID)
		if err != nil {
			return err
		}
		issue, err = s.engine.issueInTx(ctx, tx, CirculationInput{
			WorkID:   r.WorkID,
			CopyID:   chosen,
			MemberID: r.MemberID,
		})
		if err != nil {
			return err
		}

		after, err := tx.Reservations().GetByID(ctx, r.ID)
		if err != nil {
			return err
		}
		if after.Status != domain.ReservationFulfilled {
			return domain.Errorf(domain.KindConflict, "reservation %d was not fulfilled", r.ID)
		}
		return s.advanceQueue(ctx, tx, r.WorkID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation fulfilled",
		slog.Uint64("reservation_id", uint64(reservationID)),
		slog.Uint64("transaction_id", uint64(issue.ID)))
	return issue, nil
}

func (s *ReservationService) pickCopy(ctx context.Context, tx *scope, r *models.Reservation, requested *uint) (uint, error) {
	if r.CopyID != nil {
		return *r.CopyID, nil
	}
	if requested != nil {
		return *requested, nil
	}
	free, err := tx.Copies().Find(ctx, repositories.Where(
		repositories.Eq("work_id", r.WorkID),
		repositories.Eq("status", domain.CopyAvailable),
	).OrderBy("copy_number ASC"))
	if err != nil {
		return 0, err
	}
	for _, cp := range free {
		if domain.IssuableCondition(cp.Condition) {
			return cp.ID, nil
		}
	}
	return 0, domain.Errorf(domain.KindUnavailable, "no copy is available for reservation %d", r.ID)
}

// Cancel withdraws an Active reservation and releases its held copy
func (s *ReservationService) Cancel(ctx context.Context, reservationID uint, reason, actor string) (*models.Reservation, error) {
	r, err := s.store.Reservations().GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > 255 {
		return nil, domain.Errorf(domain.KindValidation, "cancellation reason is too long")
	}

	err = s.run(ctx, []string{workKey(r.WorkID), memberKey(r.MemberID), reservationKey(r.ID)}, func(tx *scope) error {
		ok, err := tx.Reservations().TransitionIf(ctx, r.ID, domain.ReservationCancelled, map[string]interface{}{
			"cancellation_reason": reason,
			"cancelled_by":        actor,
		})
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.Reservations().GetByID(ctx, r.ID)
			if err != nil {
				return err
			}
			return domain.Errorf(domain.KindInvalidState, "reservation %d is %s", r.ID, current.Status)
		}
		if err := s.closeReservation(ctx, tx, r, domain.HistoryCancelled); err != nil {
			return err
		}
		r, err = tx.Reservations().GetByID(ctx, r.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reservation cancelled",
		slog.Uint64("reservation_id", uint64(r.ID)),
		slog.String("actor", actor))
	return r, nil
}

// closeReservation runs the side effects of a reservation that just left
// Active without an issue: copy release, ledger, rollups and hand-off
func (c *core) closeReservation(ctx context.Context, tx *scope, r *models.Reservation, status domain.HistoryStatus) error {
	if r.CopyID != nil {
		if err := c.releaseHeldCopy(ctx, tx, *r.CopyID); err != nil {
			return err
		}
	}
	if err := c.transitionReservationHistory(ctx, tx, r.ID, status); err != nil {
		return err
	}
	c.recomputeRollups(ctx, tx, r.WorkID)
	return c.advanceQueue(ctx, tx, r.WorkID)
}

// ============================================================
// Expiry sweep
// ============================================================

// SweepExpired expires every Active reservation whose expiry is before now.
// Each reservation is its own unit of work, so a failure skips only that one.
func (s *ReservationService) SweepExpired(ctx context.Context, now time.Time) (*SweepResult, error) {
	candidates, err := s.store.Reservations().Find(ctx, repositories.Where(
		repositories.Eq("status", domain.ReservationActive),
		repositories.Lt("expiry_date", now.UTC()),
	).OrderBy("id ASC"))
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Checked: len(candidates)}
	for i := range candidates {
		r := candidates[i]
		expired, err := s.expireOne(ctx, &r)
		if err != nil {
			result.Failed++
			s.logger.Error("reservation expiry failed",
				slog.Uint64("reservation_id", uint64(r.ID)),
				slog.Any("error", err))
			continue
		}
		if expired {
			result.Expired++
		}
	}

	if result.Expired > 0 || result.Failed > 0 {
		s.logger.Info("expiry sweep finished",
			slog.Int("checked", result.Checked),
			slog.Int("expired", result.Expired),
			slog.Int("failed", result.Failed))
	}
	return result, nil
}

func (s *ReservationService) expireOne(ctx context.Context, r *models.Reservation) (bool, error) {
	expired := false
	err := s.run(ctx, []string{workKey(r.WorkID), memberKey(r.MemberID), reservationKey(r.ID)}, func(tx *scope) error {
		ok, err := tx.Reservations().TransitionIf(ctx, r.ID, domain.ReservationExpired, nil)
		if err != nil || !ok {
			return err
		}
		expired = true
		return s.closeReservation(ctx, tx, r, domain.HistoryExpired)
	})
	return expired, err
}

// ============================================================
// Queries
// ============================================================

// GetReservation returns one reservation
func (s *ReservationService) GetReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	return s.store.Reservations().GetByID(ctx, id)
}

// QueuePosition is 1 plus the Active reservations ahead in queue order
func (s *ReservationService) QueuePosition(ctx context.Context, reservationID uint) (int, error) {
	r, err := s.store.Reservations().GetByID(ctx, reservationID)
	if err != nil {
		return 0, err
	}
	if r.Status != domain.ReservationActive {
		return 0, domain.Errorf(domain.KindInvalidState, "reservation %d is %s", r.ID, r.Status)
	}
	queue, err := s.store.Reservations().ActiveQueue(ctx, r.WorkID)
	if err != nil {
		return 0, err
	}
	for i, q := range queue {
		if q.ID == r.ID {
			return i + 1, nil
		}
	}
	return 0, domain.Errorf(domain.KindInvalidState, "reservation %d left the queue", r.ID)
}

// Queue lists a work's Active reservations in queue order
func (s *ReservationService) Queue(ctx context.Context, workID uint) ([]QueueEntry, error) {
	if _, err := s.store.Works().GetByID(ctx, workID); err != nil {
		return nil, err
	}
	queue, err := s.store.Reservations().ActiveQueue(ctx, workID)
	if err != nil {
		return nil, err
	}
	entries := make([]QueueEntry, len(queue))
	for i, r := range queue {
		entries[i] = QueueEntry{Position: i + 1, Reservation: r}
	}
	return entries, nil
}

// MemberReservations lists a member's reservations, newest first
func (s *ReservationService) MemberReservations(ctx context.Context, memberID uint, status domain.ReservationStatus) ([]models.Reservation, error) {
	q := repositories.Where(repositories.Eq("member_id", memberID))
	if status != "" {
		q.Conds = append(q.Conds, repositories.Eq("status", status))
	}
	return s.store.Reservations().Find(ctx, q.OrderBy("id DESC"))
}
