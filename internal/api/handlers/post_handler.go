package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow-dispatch/internal/service"
	"github.com/maheshrc27/postflow-dispatch/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) PublishNow(c *fiber.Ctx) error {
	postID, err := postIDParam(c)
	if err != nil {
		return errorResponse(c, err)
	}

	post, dispatched, err := h.s.PublishNow(c.Context(), GetBrandID(c), postID)
	if err != nil {
		return errorResponse(c, err)
	}

	status := fiber.StatusAccepted
	if !dispatched {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(transfer.PublishResponse{
		PostID:     post.ID,
		Status:     post.Status,
		Dispatched: dispatched,
	})
}

func (h *PostHandler) GetStatus(c *fiber.Ctx) error {
	postID, err := postIDParam(c)
	if err != nil {
		return errorResponse(c, err)
	}

	post, err := h.s.GetStatus(c.Context(), GetBrandID(c), postID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transfer.NewPostStatusResponse(post))
}

func (h *PostHandler) GetEvents(c *fiber.Ctx) error {
	postID, err := postIDParam(c)
	if err != nil {
		return errorResponse(c, err)
	}

	events, err := h.s.GetEvents(c.Context(), GetBrandID(c), postID)
	if err != nil {
		return errorResponse(c, err)
	}

	resp := make([]transfer.PostEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, transfer.PostEventResponse{
			EventType: e.EventType,
			Message:   e.Message,
			Metadata:  e.Metadata,
			Timestamp: e.Timestamp,
		})
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *PostHandler) Cancel(c *fiber.Ctx) error {
	postID, err := postIDParam(c)
	if err != nil {
		return errorResponse(c, err)
	}

	var req transfer.CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to parse request body",
			})
		}
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	post, err := h.s.Cancel(c.Context(), GetBrandID(c), postID, req.Reason)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transfer.NewPostStatusResponse(post))
}
