package handlers

import (
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/pagination"
	"libraryhub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// WorkHandler handles catalog endpoints: works, their copies and queues
type WorkHandler struct {
	catalog      *services.CatalogService
	copies       *services.CopyService
	reservations *services.ReservationService
}

// NewWorkHandler creates a new work handler
func NewWorkHandler(catalog *services.CatalogService, copies *services.CopyService, reservations *services.ReservationService) *WorkHandler {
	return &WorkHandler{
		catalog:      catalog,
		copies:       copies,
		reservations: reservations,
	}
}

// CreateWorkRequest represents create work request
type CreateWorkRequest struct {
	Code     string `json:"code" validate:"required,max=30"`
	Title    string `json:"title" validate:"required,max=255"`
	Author   string `json:"author" validate:"max=255"`
	Category string `json:"category" validate:"max=100"`
	ISBN10   string `json:"isbn_10,omitempty"`
	ISBN13   string `json:"isbn_13,omitempty"`
	Copies   int    `json:"copies" validate:"min=0,max=500"`
	Location string `json:"location" validate:"max=100"`
}

// CopyCountRequest asks for a number of copies
type CopyCountRequest struct {
	Count    int    `json:"count" validate:"min=0,max=500"`
	Location string `json:"location" validate:"max=100"`
}

// WorkStatusRequest toggles circulation of a work
type WorkStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Active Inactive"`
}

// Create creates a work with its first copies
func (h *WorkHandler) Create(c *fiber.Ctx) error {
	var req CreateWorkRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}

	result, err := h.catalog.CreateWork(c.UserContext(), services.CreateWorkInput{
		Code:           req.Code,
		Title:          req.Title,
		Author:         req.Author,
		Category:       req.Category,
		ISBN10:         req.ISBN10,
		ISBN13:         req.ISBN13,
		CopiesToCreate: req.Copies,
		Location:       req.Location,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Work created successfully", result)
}

// List pages works with optional category and status filters
func (h *WorkHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	works, total, err := h.catalog.ListWorks(c.UserContext(),
		c.Query("category"), domain.WorkStatus(c.Query("status")), params.Offset, params.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", pagination.NewResponse(works, params, total))
}

// Get returns one work
func (h *WorkHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	work, err := h.catalog.GetWork(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", work)
}

// GetByCode returns one work by catalog code
func (h *WorkHandler) GetByCode(c *fiber.Ctx) error {
	work, err := h.catalog.GetWorkByCode(c.UserContext(), c.Params("code"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", work)
}

// Delete removes a work without copies
func (h *WorkHandler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.catalog.DeleteWork(c.UserContext(), id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Work deleted successfully", nil)
}

// SetStatus takes a work in or out of circulation
func (h *WorkHandler) SetStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req WorkStatusRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	work, err := h.catalog.SetWorkStatus(c.UserContext(), id, domain.WorkStatus(req.Status))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Work status updated", work)
}

// RecomputeRollups rebuilds the copy counters of a work
func (h *WorkHandler) RecomputeRollups(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	work, err := h.catalog.RecomputeRollups(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Rollups recomputed", work)
}

// AddCopies appends copies to a work
func (h *WorkHandler) AddCopies(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req CopyCountRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	result, err := h.copies.CreateCopies(c.UserContext(), id, req.Count, req.Location)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Copies created", result)
}

// ReconcileCopies brings a work to the requested number of copies
func (h *WorkHandler) ReconcileCopies(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req CopyCountRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	result, err := h.copies.ReconcileCount(c.UserContext(), id, req.Count, req.Location)
	if err != nil {
		return response.FromError(c, err)
	}
	message := "Copy count reconciled"
	if result.Shortfall > 0 {
		message = "Copy count partially reconciled"
	}
	return response.Success(c, message, result)
}

// ListCopies returns the copies of a work
func (h *WorkHandler) ListCopies(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	copies, err := h.copies.ListCopies(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", copies)
}

// Queue lists the Active reservations of a work in queue order
func (h *WorkHandler) Queue(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	queue, err := h.reservations.Queue(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", queue)
}

// NotifyHead hands a free copy to the head of the queue if one is ready
func (h *WorkHandler) NotifyHead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	notified, err := h.reservations.NotifyHeadOfQueue(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	if notified == nil {
		return response.Success(c, "No reservation is ready", nil)
	}
	return response.Success(c, "Reservation notified", notified)
}
