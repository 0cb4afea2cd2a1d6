package services

import (
	"context"
	"time"

	"libraryhub/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Notifier delivers notifications decided by the circulation core
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Clock returns the current time
type Clock func() time.Time

// SystemClock is the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}

// ============================================================
// Input DTOs
// ============================================================

// CreateWorkInput for creating a work with its first copies
type CreateWorkInput struct {
	Code           string
	Title          string
	Author         string
	Category       string
	ISBN10         string
	ISBN13         string
	CopiesToCreate int
	Location       string
}

// CirculationInput identifies the copy and member of an issue or return
type CirculationInput struct {
	WorkID   uint
	CopyID   uint
	MemberID uint
}

// ReserveInput for placing a hold
type ReserveInput struct {
	MemberID uint
	WorkID   uint
	CopyID   *uint
}

// CorrectFineInput for waiving or correcting a fine
type CorrectFineInput struct {
	TransactionID uint
	Amount        decimal.Decimal
	Note          string
}

// CreateMemberInput for registering a borrower
type CreateMemberInput struct {
	Name     string
	Email    string
	TierName string
}
