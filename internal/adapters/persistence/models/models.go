package models

import (
	"time"

	"libraryhub/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Catalog Tables
// ============================================================

// Work is one catalog title with its copy-count rollups
type Work struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	Code            string            `gorm:"size:30;uniqueIndex;not null" json:"code"`
	Title           string            `gorm:"size:255;not null" json:"title"`
	Author          string            `gorm:"size:255" json:"author"`
	Category        string            `gorm:"size:100;index" json:"category"`
	ISBN10          *string           `gorm:"column:isbn10;size:10" json:"isbn_10,omitempty"`
	ISBN13          *string           `gorm:"column:isbn13;size:13" json:"isbn_13,omitempty"`
	TotalCopies     int               `gorm:"not null;default:0" json:"total_copies"`
	AvailableCopies int               `gorm:"not null;default:0" json:"available_copies"`
	IssuedCopies    int               `gorm:"not null;default:0" json:"issued_copies"`
	Status          domain.WorkStatus `gorm:"size:10;not null" json:"status"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Work) TableName() string {
	return "works"
}

// Copy is one physical item of a work
type Copy struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	WorkID          uint              `gorm:"not null;uniqueIndex:idx_copies_work_number" json:"work_id"`
	CopyNumber      int               `gorm:"not null;uniqueIndex:idx_copies_work_number" json:"copy_number"`
	Barcode         *string           `gorm:"size:50;uniqueIndex" json:"barcode"`
	Status          domain.CopyStatus `gorm:"size:15;not null;index" json:"status"`
	Condition       string            `gorm:"size:15" json:"condition"`
	Location        string            `gorm:"size:100" json:"location"`
	AcquisitionDate *time.Time        `gorm:"type:date" json:"acquisition_date"`
	MaintenanceLog  string            `gorm:"type:text" json:"maintenance_log,omitempty"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Copy) TableName() string {
	return "copies"
}

// ============================================================
// Circulation Tables
// ============================================================

// Transaction is an Issue, Return or Renewal record
type Transaction struct {
	ID           uint                     `gorm:"primaryKey" json:"id"`
	WorkID       uint                     `gorm:"not null;index" json:"work_id"`
	CopyID       uint                     `gorm:"not null;index" json:"copy_id"`
	MemberID     uint                     `gorm:"not null;index" json:"member_id"`
	Type         domain.TransactionType   `gorm:"column:transaction_type;size:10;not null;index" json:"transaction_type"`
	Status       domain.TransactionStatus `gorm:"size:10;not null" json:"status"`
	Date         time.Time                `gorm:"column:transaction_date;not null" json:"date"`
	DueDate      *time.Time               `json:"due_date"`
	ReturnDate   *time.Time               `json:"return_date"`
	FineAmount   decimal.Decimal          `gorm:"type:decimal(12,2);not null;default:0" json:"fine_amount"`
	OverdueDays  int                      `gorm:"not null;default:0" json:"overdue_days"`
	FineNote     string                   `gorm:"size:255" json:"fine_note,omitempty"`
	ParentID     *uint                    `gorm:"index" json:"parent_id,omitempty"`
	ResolvedByID *uint                    `gorm:"index" json:"resolved_by_id,omitempty"`
	CreatedAt    time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "circulation_transactions"
}

// IsOpenIssue reports whether t is an Issue that has not been returned
func (t *Transaction) IsOpenIssue() bool {
	return t.Type == domain.TxIssue && t.ResolvedByID == nil
}

// Reservation is a member's hold request on a work
type Reservation struct {
	ID                     uint                     `gorm:"primaryKey" json:"id"`
	WorkID                 uint                     `gorm:"not null;index" json:"work_id"`
	CopyID                 *uint                    `gorm:"index" json:"copy_id"`
	MemberID               uint                     `gorm:"not null;index" json:"member_id"`
	Status                 domain.ReservationStatus `gorm:"size:10;not null;index" json:"status"`
	PriorityLevel          int                      `gorm:"not null;default:1" json:"priority_level"`
	ReservationDate        time.Time                `gorm:"not null" json:"reservation_date"`
	ExpiryDate             time.Time                `gorm:"not null;index" json:"expiry_date"`
	NotificationSent       bool                     `gorm:"not null;default:false" json:"notification_sent"`
	NotifiedDate           *time.Time               `json:"notified_date"`
	CancellationReason     string                   `gorm:"size:255" json:"cancellation_reason,omitempty"`
	CancelledBy            string                   `gorm:"size:100" json:"cancelled_by,omitempty"`
	FulfilledTransactionID *uint                    `json:"fulfilled_transaction_id,omitempty"`
	CreatedAt              time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Reservation) TableName() string {
	return "reservations"
}

// ============================================================
// Member Tables
// ============================================================

// MemberTier carries per-tier borrowing limits and priority
type MemberTier struct {
	ID                   uint                `gorm:"primaryKey" json:"id"`
	Name                 string              `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description          string              `gorm:"type:text" json:"description,omitempty"`
	PriorityLevel        int                 `gorm:"not null" json:"priority_level"`
	PriorityReservations bool                `json:"priority_reservations"`
	MaxBooksAllowed      int                 `gorm:"not null" json:"max_books_allowed"`
	LoanPeriodDays       int                 `gorm:"not null" json:"loan_period_days"`
	LateFeePerDay        decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"late_fee_per_day"`
	MaxRenewalsAllowed   int                 `gorm:"not null" json:"max_renewals_allowed"`
	RenewalPeriodDays    int                 `gorm:"not null" json:"renewal_period_days"`
	CanReserveBooks      bool                `json:"can_reserve_books"`
	CanRenewOnline       bool                `json:"can_renew_online"`
	Disabled             bool                `json:"disabled"`
	CreatedAt            time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MemberTier) TableName() string {
	return "member_tiers"
}

// Validate checks tier limits before a tier is stored
func (t *MemberTier) Validate() error {
	switch {
	case t.Name == "":
		return domain.Errorf(domain.KindValidation, "tier name is required")
	case t.PriorityLevel < 1 || t.PriorityLevel > 10:
		return domain.Errorf(domain.KindValidation, "priority level must be between 1 and 10")
	case t.LateFeePerDay.Valid && t.LateFeePerDay.Decimal.IsNegative():
		return domain.Errorf(domain.KindValidation, "late fee per day cannot be negative")
	case t.MaxBooksAllowed <= 0:
		return domain.Errorf(domain.KindValidation, "max books allowed must be greater than zero")
	case t.LoanPeriodDays <= 0:
		return domain.Errorf(domain.KindValidation, "loan period must be greater than zero")
	case t.RenewalPeriodDays <= 0:
		return domain.Errorf(domain.KindValidation, "renewal period must be greater than zero")
	case t.MaxRenewalsAllowed < 0:
		return domain.Errorf(domain.KindValidation, "max renewals cannot be negative")
	}
	return nil
}

// Member is a borrower
type Member struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Name         string      `gorm:"size:150;not null" json:"name"`
	Email        string      `gorm:"size:150;index" json:"email"`
	MemberTierID *uint       `gorm:"index" json:"member_tier_id"`
	Disabled     bool        `json:"disabled"`
	Tier         *MemberTier `gorm:"foreignKey:MemberTierID" json:"tier,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}

// MemberHistory is the per-member ledger header
type MemberHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MemberID  uint      `gorm:"not null;uniqueIndex" json:"member_id"`
	LastSeq   int       `gorm:"not null;default:0" json:"last_seq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MemberHistory) TableName() string {
	return "member_histories"
}

// HistoryEntry is one ordered row of a member's ledger
type HistoryEntry struct {
	ID              uint                    `gorm:"primaryKey" json:"id"`
	HistoryID       uint                    `gorm:"not null;uniqueIndex:idx_history_entries_seq" json:"-"`
	MemberID        uint                    `gorm:"not null;index" json:"member_id"`
	Seq             int                     `gorm:"not null;uniqueIndex:idx_history_entries_seq" json:"seq"`
	EntryType       domain.HistoryEntryType `gorm:"size:15;not null" json:"entry_type"`
	WorkID          uint                    `gorm:"not null" json:"work_id"`
	CopyID          *uint                   `json:"copy_id,omitempty"`
	TransactionID   *uint                   `gorm:"index" json:"transaction_id,omitempty"`
	ReservationID   *uint                   `gorm:"index" json:"reservation_id,omitempty"`
	TransactionDate time.Time               `gorm:"not null" json:"transaction_date"`
	DueDate         *time.Time              `json:"due_date,omitempty"`
	ReturnDate      *time.Time              `json:"return_date,omitempty"`
	Status          domain.HistoryStatus    `gorm:"size:10;not null" json:"status"`
	FineAmount      decimal.Decimal         `gorm:"type:decimal(12,2);not null;default:0" json:"fine_amount"`
	CreatedAt       time.Time               `gorm:"autoCreateTime" json:"created_at"`
}

func (HistoryEntry) TableName() string {
	return "member_history_entries"
}

// ============================================================
// Migration
// ============================================================

// AutoMigrate creates or updates every circulation table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&MemberTier{},
		&Member{},
		&Work{},
		&Copy{},
		&Transaction{},
		&Reservation{},
		&MemberHistory{},
		&HistoryEntry{},
	)
}
