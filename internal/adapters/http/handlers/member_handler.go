package handlers

import (
	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/pagination"
	"libraryhub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// MemberHandler handles member accounts, their history and tiers
type MemberHandler struct {
	members      *services.MemberService
	history      *services.HistoryService
	eligibility  *services.EligibilityService
	transactions *services.TransactionService
	reservations *services.ReservationService
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(svc *services.Services) *MemberHandler {
	return &MemberHandler{
		members:      svc.Members,
		history:      svc.History,
		eligibility:  svc.Eligibility,
		transactions: svc.Transactions,
		reservations: svc.Reservations,
	}
}

// CreateMemberRequest represents create member request
type CreateMemberRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"omitempty,email,max=255"`
	Tier  string `json:"tier" validate:"max=50"`
}

// DisabledRequest blocks or unblocks a member
type DisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// TierRequest creates or updates a tier by name
type TierRequest struct {
	Name                 string           `json:"name" validate:"required,max=50"`
	Description          string           `json:"description"`
	PriorityLevel        int              `json:"priority_level" validate:"min=1,max=10"`
	PriorityReservations bool             `json:"priority_reservations"`
	MaxBooksAllowed      int              `json:"max_books_allowed" validate:"min=1,max=50"`
	LoanPeriodDays       int              `json:"loan_period_days" validate:"min=1,max=365"`
	LateFeePerDay        *decimal.Decimal `json:"late_fee_per_day,omitempty"`
	MaxRenewalsAllowed   int              `json:"max_renewals_allowed" validate:"min=0,max=10"`
	RenewalPeriodDays    int              `json:"renewal_period_days" validate:"min=1,max=365"`
	CanReserveBooks      bool             `json:"can_reserve_books"`
	CanRenewOnline       bool             `json:"can_renew_online"`
	Disabled             bool             `json:"disabled"`
}

// Create registers a member
func (h *MemberHandler) Create(c *fiber.Ctx) error {
	var req CreateMemberRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	member, err := h.members.CreateMember(c.UserContext(), services.CreateMemberInput{
		Name:     req.Name,
		Email:    req.Email,
		TierName: req.Tier,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Member created successfully", member)
}

// Get returns a member with their tier
func (h *MemberHandler) Get(c *fiber.Ctx) error {
	id, err := h.memberParam(c)
	if err != nil {
		return response.FromError(c, err)
	}
	member, err := h.members.GetMember(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", member)
}

// SetDisabled blocks or unblocks a member
func (h *MemberHandler) SetDisabled(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req DisabledRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	member, err := h.members.SetDisabled(c.UserContext(), id, req.Disabled)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Member updated", member)
}

// History pages the member's borrowing history ledger
func (h *MemberHandler) History(c *fiber.Ctx) error {
	id, err := h.memberParam(c)
	if err != nil {
		return response.FromError(c, err)
	}
	params := pagination.GetParams(c)
	entries, total, err := h.history.List(c.UserContext(), id, params.Offset, params.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", pagination.NewResponse(entries, params, total))
}

// Eligibility reports whether the member may borrow and reserve a work
func (h *MemberHandler) Eligibility(c *fiber.Ctx) error {
	id, err := h.memberParam(c)
	if err != nil {
		return response.FromError(c, err)
	}
	workID, ok, err := queryID(c, "work_id")
	if err != nil {
		return response.FromError(c, err)
	}
	if !ok {
		return response.FromError(c, domain.Errorf(domain.KindValidation, "work_id is required"))
	}

	borrow, err := h.eligibility.CanBorrow(c.UserContext(), id, workID)
	if err != nil {
		return response.FromError(c, err)
	}
	reserve, err := h.eligibility.CanReserve(c.UserContext(), id, workID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", fiber.Map{
		"member_id": id,
		"work_id":   workID,
		"borrow":    borrow,
		"reserve":   reserve,
	})
}

// Fines reports the member's outstanding fines
func (h *MemberHandler) Fines(c *fiber.Ctx) error {
	id, err := h.memberParam(c)
	if err != nil {
		return response.FromError(c, err)
	}
	outstanding, err := h.transactions.OutstandingFine(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", fiber.Map{
		"member_id":   id,
		"outstanding": outstanding.StringFixed(2),
	})
}

// Loans lists the member's open loans
func (h *MemberHandler) Loans(c *fiber.Ctx) error {
	id, err := h.memberParam(c)
	if err != nil {
		return response.FromError(c, err)
	}
	loans, err := h.transactions.OpenLoans(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", loans)
}

// Reservations lists the member's reservations, optionally by status
func (h *MemberHandler) Reservations(c *fiber.Ctx) error {
	id, err := h.memberParam(c)
	if err != nil {
		return response.FromError(c, err)
	}
	status, err := reservationStatus(c.Query("status"))
	if err != nil {
		return response.FromError(c, err)
	}
	list, err := h.reservations.MemberReservations(c.UserContext(), id, status)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", list)
}

// ListTiers returns every membership tier
func (h *MemberHandler) ListTiers(c *fiber.Ctx) error {
	tiers, err := h.members.ListTiers(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", tiers)
}

// SaveTier creates or updates a tier
func (h *MemberHandler) SaveTier(c *fiber.Ctx) error {
	var req TierRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	tier := &models.MemberTier{
		Name:                 req.Name,
		Description:          req.Description,
		PriorityLevel:        req.PriorityLevel,
		PriorityReservations: req.PriorityReservations,
		MaxBooksAllowed:      req.MaxBooksAllowed,
		LoanPeriodDays:       req.LoanPeriodDays,
		MaxRenewalsAllowed:   req.MaxRenewalsAllowed,
		RenewalPeriodDays:    req.RenewalPeriodDays,
		CanReserveBooks:      req.CanReserveBooks,
		CanRenewOnline:       req.CanRenewOnline,
		Disabled:             req.Disabled,
	}
	if req.LateFeePerDay != nil {
		tier.LateFeePerDay = decimal.NewNullDecimal(*req.LateFeePerDay)
	}

	saved, created, err := h.members.SaveTier(c.UserContext(), tier)
	if err != nil {
		return response.FromError(c, err)
	}
	if created {
		return response.Created(c, "Tier created", saved)
	}
	return response.Success(c, "Tier updated", saved)
}

// memberParam reads :id and checks the caller may see that member
func (h *MemberHandler) memberParam(c *fiber.Ctx) (uint, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return 0, err
	}
	if err := selfOrStaff(c, id); err != nil {
		return 0, err
	}
	return id, nil
}
