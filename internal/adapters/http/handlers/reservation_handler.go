package handlers

import (
	"libraryhub/internal/adapters/http/middleware"
	"libraryhub/internal/adapters/persistence/models"
	"libraryhub/internal/core/domain"
	"libraryhub/internal/core/services"
	"libraryhub/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ReservationHandler handles hold placement, cancellation and fulfilment
type ReservationHandler struct {
	reservations *services.ReservationService
	clock        services.Clock
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservations *services.ReservationService, clock services.Clock) *ReservationHandler {
	if clock == nil {
		clock = services.SystemClock
	}
	return &ReservationHandler{reservations: reservations, clock: clock}
}

// ReserveRequest places a hold; member_id defaults to the caller
type ReserveRequest struct {
	WorkID   uint  `json:"work_id" validate:"required"`
	MemberID uint  `json:"member_id"`
	CopyID   *uint `json:"copy_id,omitempty" validate:"omitempty,min=1"`
}

// CancelRequest carries an optional cancellation reason
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// FulfillRequest optionally names the copy to issue
type FulfillRequest struct {
	CopyID *uint `json:"copy_id,omitempty" validate:"omitempty,min=1"`
}

// Reserve places a hold on a work
func (h *ReservationHandler) Reserve(c *fiber.Ctx) error {
	var req ReserveRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	if req.MemberID == 0 {
		req.MemberID = middleware.CallerID(c)
	}
	if err := selfOrStaff(c, req.MemberID); err != nil {
		return response.FromError(c, err)
	}

	r, err := h.reservations.Reserve(c.UserContext(), services.ReserveInput{
		MemberID: req.MemberID,
		WorkID:   req.WorkID,
		CopyID:   req.CopyID,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Reservation placed", r)
}

// Get returns one reservation
func (h *ReservationHandler) Get(c *fiber.Ctx) error {
	r, err := h.owned(c)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", r)
}

// Cancel withdraws a reservation
func (h *ReservationHandler) Cancel(c *fiber.Ctx) error {
	r, err := h.owned(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req CancelRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	cancelled, err := h.reservations.Cancel(c.UserContext(), r.ID, req.Reason, actor(c))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Reservation cancelled", cancelled)
}

// Fulfill issues a copy to the reservation's member
func (h *ReservationHandler) Fulfill(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	var req FulfillRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	txn, err := h.reservations.Fulfill(c.UserContext(), id, req.CopyID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Reservation fulfilled", txn)
}

// Position reports where an Active reservation stands in its queue
func (h *ReservationHandler) Position(c *fiber.Ctx) error {
	r, err := h.owned(c)
	if err != nil {
		return response.FromError(c, err)
	}
	position, err := h.reservations.QueuePosition(c.UserContext(), r.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "", fiber.Map{
		"reservation_id": r.ID,
		"work_id":        r.WorkID,
		"position":       position,
	})
}

// Sweep expires overdue reservations now
func (h *ReservationHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.reservations.SweepExpired(c.UserContext(), h.clock())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Sweep completed", result)
}

// owned loads the reservation named by :id if the caller may see it
func (h *ReservationHandler) owned(c *fiber.Ctx) (*models.Reservation, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	r, err := h.reservations.GetReservation(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if err := selfOrStaff(c, r.MemberID); err != nil {
		return nil, err
	}
	return r, nil
}

// reservationStatus parses the optional status filter
func reservationStatus(raw string) (domain.ReservationStatus, error) {
	status := domain.ReservationStatus(raw)
	switch status {
	case "", domain.ReservationActive, domain.ReservationFulfilled,
		domain.ReservationCancelled, domain.ReservationExpired:
		return status, nil
	}
	return "", domain.Errorf(domain.KindValidation, "unknown reservation status %q", raw)
}
