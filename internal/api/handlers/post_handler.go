package handlers

import (
	"encoding/json"
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/sirupsen/logrus"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

type formError struct {
	msg string
	err error
}

func (e *formError) Error() string { return e.msg }

// parsePostForm reads a multipart post request. selected_accounts and
// caption_overrides are JSON encoded form values.
func parsePostForm(c *fiber.Ctx) (*transfer.PostCreation, []*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, &formError{msg: "Unable to parse form"}
	}

	pc := &transfer.PostCreation{
		Caption:          c.FormValue("caption"),
		Title:            c.FormValue("title"),
		ScheduledTime:    c.FormValue("scheduling_time"),
		IncompatibleMode: c.FormValue("incompatible_mode", transfer.IncompatibleInclude),
	}
	pc.Immediate, _ = strconv.ParseBool(c.FormValue("immediate", "false"))

	if raw := c.FormValue("selected_accounts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pc.SelectedAccounts); err != nil {
			return nil, nil, &formError{msg: "selected_accounts must be a list of account ids"}
		}
	}
	if raw := c.FormValue("caption_overrides"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pc.CaptionOverrides); err != nil {
			return nil, nil, &formError{msg: "caption_overrides must map platforms to captions"}
		}
	}

	if err := pc.Validate(); err != nil {
		return nil, nil, &formError{msg: "invalid post", err: err}
	}
	return pc, form.File["files"], nil
}

func badForm(c *fiber.Ctx, err error) error {
	fe, ok := err.(*formError)
	if !ok {
		return err
	}
	body := fiber.Map{"error": fe.msg}
	if fe.err != nil {
		body["fields"] = fe.err
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	pc, files, err := parsePostForm(c)
	if err != nil {
		return badForm(c, err)
	}

	created, err := h.s.CreatePost(c.Context(), userID, pc, files)
	if err != nil {
		if statusFor(err) == fiber.StatusInternalServerError {
			logrus.WithField("user_id", userID).Error(err)
		}
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// CheckCompatibility previews the compatibility report for a post without
// storing or uploading anything.
func (h *PostHandler) CheckCompatibility(c *fiber.Ctx) error {
	pc, files, err := parsePostForm(c)
	if err != nil {
		return badForm(c, err)
	}

	report, err := h.s.CheckCompatibility(c.Context(), GetUserID(c), pc, files)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(report)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId := c.QueryInt("id", 0)

	if postId != 0 {
		post, err := h.s.PostInfo(c.Context(), int64(postId), userId)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{
				"error": "Unable to find post",
			})
		}

		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), userId)
	if err != nil {
		logrus.Error(err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	postId := c.QueryInt("id", 0)

	status, err := h.s.Cancel(c.Context(), GetUserID(c), int64(postId))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error":  err.Error(),
			"status": status,
		})
	}
	return c.JSON(fiber.Map{"status": status})
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	results, err := h.s.Remove(c.Context(), userID, int64(postId))
	if err != nil {
		body := fiber.Map{"error": err.Error()}
		if len(results) > 0 {
			body["deletions"] = deletions(results)
		}
		return c.Status(statusFor(err)).JSON(body)
	}

	return c.JSON(fiber.Map{"deletions": deletions(results)})
}

func deletions(results []publisher.DeleteResult) []transfer.ExternalDelete {
	out := make([]transfer.ExternalDelete, len(results))
	for i, r := range results {
		out[i] = transfer.ExternalDelete{
			AccountID: r.AccountID,
			Platform:  r.Platform,
			Ref:       r.Ref,
		}
		if r.Err != nil {
			out[i].Error = platform.ReasonOf(r.Err)
			out[i].ErrorKind = string(platform.KindOf(r.Err))
			if out[i].Error == "" {
				out[i].Error = "delete failed"
			}
		}
	}
	return out
}
