package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	dl repository.DeadLetterRepository
}

func NewAdminHandler(dl repository.DeadLetterRepository) *AdminHandler {
	return &AdminHandler{dl: dl}
}

func (h *AdminHandler) ListDeadLetters(c *fiber.Ctx) error {
	items, err := h.dl.List(c.Context(), c.QueryInt("limit", 100))
	if err != nil {
		logrus.Error(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list dead letters",
		})
	}
	return c.JSON(items)
}
