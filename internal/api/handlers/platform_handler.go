package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/sirupsen/logrus"
)

type PlatformHandler struct {
	ps  service.PlatformService
	cfg config.Config
}

func NewPlatformHandler(ps service.PlatformService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		cfg: cfg,
	}
}

// AddSocialAccount sends the signed-in user to the platform's consent page.
func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	authURL, err := h.ps.GetAuthURL(c.Context(), GetUserID(c), c.Params("platform"))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Redirect(authURL)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	platformName := c.Params("platform")

	if reason := c.Query("error"); reason != "" {
		logrus.WithField("platform", platformName).Warnf("consent denied: %s", reason)
		return c.Redirect(fmt.Sprintf("%s/dashboard/accounts?error=denied", h.cfg.FrontendURL), fiber.StatusTemporaryRedirect)
	}

	if _, err := h.ps.Callback(c.Context(), platformName, c.Query("code"), c.Query("state")); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": "Unable to connect account",
		})
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.ps.List(c.Context(), userID)
	if err != nil {
		logrus.Error(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	err := h.ps.Delete(c.Context(), userID, int64(accountId))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": "Unable to delete social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

// RefreshSocialAccount queues an immediate credential refresh.
func (h *PlatformHandler) RefreshSocialAccount(c *fiber.Ctx) error {
	accountId := c.QueryInt("id", 0)

	item, err := h.ps.Refresh(c.Context(), GetUserID(c), int64(accountId))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": "Unable to refresh social account",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(item)
}
