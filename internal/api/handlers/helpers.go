package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	raw, _ := c.Locals("user_id").(string)
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}

// statusFor maps service errors to the HTTP status the client sees.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrNoCompatibleTarget),
		errors.Is(err, service.ErrUnsupportedMedia),
		errors.Is(err, service.ErrConnectUnsupported),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, platform.ErrUnknownPlatform):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrPostNotCancellable),
		errors.Is(err, service.ErrPostPublishing):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrExternalDeleteFailed):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}
