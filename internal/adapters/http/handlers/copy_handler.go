package handlers

import (
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CopyHandler handles endpoints on single copies
type CopyHandler struct {
	copies       *services.CopyService
	transactions *services.TransactionService
}

// NewCopyHandler creates a new copy handler
func NewCopyHandler(copies *services.CopyService, transactions *services.TransactionService) *CopyHandler {
	return &CopyHandler{copies: copies, transactions: transactions}
}

// MaintenanceRequest carries the maintenance reason or note
type MaintenanceRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// Get returns one copy
func (h *CopyHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	cp, err := h.copies.GetCopy(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", cp)
}

// MarkForMaintenance takes an Available copy out of service
func (h *CopyHandler) MarkForMaintenance(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req MaintenanceRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	cp, err := h.copies.MarkForMaintenance(c.UserContext(), id, req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Copy sent to maintenance", cp)
}

// MarkAvailable returns a copy from maintenance
func (h *CopyHandler) MarkAvailable(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req MaintenanceRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	cp, err := h.copies.MarkAvailable(c.UserContext(), id, req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Copy returned to service", cp)
}

// History lists every transaction of a copy
func (h *CopyHandler) History(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	history, err := h.transactions.CopyHistory(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", history)
}
