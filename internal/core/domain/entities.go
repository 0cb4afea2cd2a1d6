package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role represents the caller's role in the system
type Role string

const (
	RoleMember Role = "MEMBER"
	RoleStaff  Role = "STAFF"
	RoleAdmin  Role = "ADMIN"
)

// WorkStatus represents whether a work circulates
type WorkStatus string

const (
	WorkActive   WorkStatus = "Active"
	WorkInactive WorkStatus = "Inactive"
)

// CopyStatus represents the state of one physical copy
type CopyStatus string

const (
	CopyAvailable   CopyStatus = "Available"
	CopyReserved    CopyStatus = "Reserved"
	CopyIssued      CopyStatus = "Issued"
	CopyMaintenance CopyStatus = "Maintenance"
	CopyLost        CopyStatus = "Lost"
)

// copyTransitions lists every legal copy status edge. Lost has none.
var copyTransitions = map[CopyStatus][]CopyStatus{
	CopyAvailable:   {CopyReserved, CopyIssued, CopyMaintenance},
	CopyReserved:    {CopyAvailable, CopyIssued},
	CopyIssued:      {CopyAvailable},
	CopyMaintenance: {CopyAvailable},
}

// CanTransition reports whether a copy may move from one status to another
func CanTransition(from, to CopyStatus) bool {
	for _, next := range copyTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IssuableCondition reports whether a copy in this condition may go out on loan
func IssuableCondition(condition string) bool {
	return condition != ConditionDamaged && condition != ConditionPoor
}

// Copy conditions. Damaged and Poor copies are never issued.
const (
	ConditionGood    = "Good"
	ConditionFair    = "Fair"
	ConditionPoor    = "Poor"
	ConditionDamaged = "Damaged"
)

// TransactionType represents the kind of circulation record
type TransactionType string

const (
	TxIssue   TransactionType = "Issue"
	TxReturn  TransactionType = "Return"
	TxRenewal TransactionType = "Renewal"
)

// TransactionStatus represents the lifecycle of a circulation record
type TransactionStatus string

const (
	TxDraft    TransactionStatus = "Draft"
	TxIssued   TransactionStatus = "Issued"
	TxReturned TransactionStatus = "Returned"
)

// ReservationStatus represents the lifecycle of a hold request
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "Active"
	ReservationFulfilled ReservationStatus = "Fulfilled"
	ReservationCancelled ReservationStatus = "Cancelled"
	ReservationExpired   ReservationStatus = "Expired"
)

// IsTerminal reports whether no further transition is allowed
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationActive
}

// HistoryStatus is the status carried by a member history row
type HistoryStatus string

const (
	HistoryActive    HistoryStatus = "Active"
	HistoryCompleted HistoryStatus = "Completed"
	HistoryFulfilled HistoryStatus = "Fulfilled"
	HistoryCancelled HistoryStatus = "Cancelled"
	HistoryExpired   HistoryStatus = "Expired"
)

// HistoryEntryType is the kind of event a history row records
type HistoryEntryType string

const (
	HistoryIssue       HistoryEntryType = "Issue"
	HistoryReturn      HistoryEntryType = "Return"
	HistoryRenewal     HistoryEntryType = "Renewal"
	HistoryReservation HistoryEntryType = "Reservation"
)

// Policy holds the system-wide circulation defaults. Tier values win when a
// member has a tier that defines them.
type Policy struct {
	DefaultLoanDays      int
	DefaultRenewalDays   int
	ReservationHoldDays  int
	DefaultLateFeePerDay decimal.Decimal
	DefaultPriority      int
	DefaultMaxBooks      int
	DefaultMaxRenewals   int
	LockTimeout          time.Duration
}

// DefaultPolicy returns the built-in circulation defaults
func DefaultPolicy() Policy {
	return Policy{
		DefaultLoanDays:      14,
		DefaultRenewalDays:   7,
		ReservationHoldDays:  7,
		DefaultLateFeePerDay: decimal.RequireFromString("0.50"),
		DefaultPriority:      1,
		DefaultMaxBooks:      3,
		DefaultMaxRenewals:   2,
		LockTimeout:          2 * time.Second,
	}
}

// Decision is the outcome of an eligibility check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	// Kind is the error kind a denial maps to
	Kind ErrorKind `json:"-"`
}

// Allow is the positive decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a forbidden decision
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason, Kind: KindForbidden}
}

// Err converts a denial into a typed error
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	kind := d.Kind
	if kind == "" {
		kind = KindForbidden
	}
	return &Error{Kind: kind, Message: d.Reason}
}

// Notification is a request for the external notifier. The core decides that it
// is due and to whom it is due; delivery belongs to the notifier.
type Notification struct {
	ID            string    `json:"id"`
	Recipient     string    `json:"recipient"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   uint      `json:"reference_id"`
	CreatedAt     time.Time `json:"created_at"`
}
