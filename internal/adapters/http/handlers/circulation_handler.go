package handlers

import (
	"libraryhub/internal/adapters/http/middleware"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// CirculationHandler handles issue, return, renewal and fine endpoints
type CirculationHandler struct {
	transactions *services.TransactionService
}

// NewCirculationHandler creates a new circulation handler
func NewCirculationHandler(transactions *services.TransactionService) *CirculationHandler {
	return &CirculationHandler{transactions: transactions}
}

// CirculationRequest identifies the copy and member at the desk
type CirculationRequest struct {
	WorkID   uint `json:"work_id" validate:"required"`
	CopyID   uint `json:"copy_id" validate:"required"`
	MemberID uint `json:"member_id" validate:"required"`
}

// RenewRequest optionally overrides the tier's renewal period (staff only)
type RenewRequest struct {
	PeriodDays *int `json:"period_days,omitempty" validate:"omitempty,min=1,max=365"`
}

// FineRequest sets the fine of a return transaction
type FineRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
	Note   string           `json:"note" validate:"max=255"`
}

func (r CirculationRequest) input() services.CirculationInput {
	return services.CirculationInput{WorkID: r.WorkID, CopyID: r.CopyID, MemberID: r.MemberID}
}

// Issue lends a copy to a member
func (h *CirculationHandler) Issue(c *fiber.Ctx) error {
	var req CirculationRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	txn, err := h.transactions.Issue(c.UserContext(), req.input())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Copy issued", txn)
}

// Return takes a copy back and assesses any overdue fine
func (h *CirculationHandler) Return(c *fiber.Ctx) error {
	var req CirculationRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	txn, err := h.transactions.ReturnCopy(c.UserContext(), req.input())
	if err != nil {
		return response.FromError(c, err)
	}
	message := "Copy returned"
	if txn.OverdueDays > 0 {
		message = "Copy returned late"
	}
	return response.Created(c, message, txn)
}

// Renew extends an open loan
func (h *CirculationHandler) Renew(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req RenewRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	if req.PeriodDays != nil && !middleware.IsStaff(c) {
		return response.FromError(c, domain.Errorf(domain.KindForbidden, "only staff may override the renewal period"))
	}

	issue, err := h.transactions.GetTransaction(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := selfOrStaff(c, issue.MemberID); err != nil {
		return response.FromError(c, err)
	}

	renewal, err := h.transactions.Renew(c.UserContext(), id, req.PeriodDays)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Loan renewed", renewal)
}

// CorrectFine waives or corrects the fine of a return
func (h *CirculationHandler) CorrectFine(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req FineRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	txn, err := h.transactions.CorrectFine(c.UserContext(), services.CorrectFineInput{
		TransactionID: id,
		Amount:        *req.Amount,
		Note:          req.Note,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Fine updated", txn)
}

// Get returns one transaction
func (h *CirculationHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	txn, err := h.transactions.GetTransaction(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := selfOrStaff(c, txn.MemberID); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", txn)
}
