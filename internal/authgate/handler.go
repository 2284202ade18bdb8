package authgate

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/givetag/givetag/internal/tag"
)

// Handler exposes the authentication endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an auth HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type pinRequest struct {
	TagCode string `json:"tag_code"`
	PIN     string `json:"pin"`
}

// VerifyPIN validates a PIN and returns a session. The response never reveals
// whether the tag exists.
func (h *Handler) VerifyPIN(c *fiber.Ctx) error {
	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.service.VerifyPIN(c.UserContext(), req.TagCode, req.PIN)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	}
	return c.Status(http.StatusOK).JSON(session)
}

type beginRequest struct {
	TagCode string `json:"tag_code"`
}

// BeginBiometric opens a verification challenge for an enrolled tag.
func (h *Handler) BeginBiometric(c *fiber.Ctx) error {
	var req beginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ch, err := h.service.BeginChallenge(c.UserContext(), req.TagCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotEnrolled):
			return fiber.NewError(http.StatusConflict, "tag not enrolled for biometric verification")
		case errors.Is(err, tag.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "tag not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"challenge_id":     ch.ID,
		"verification_url": ch.VerificationURL,
		"expires_at":       ch.ExpiresAt,
	})
}

type completeRequest struct {
	ChallengeID string `json:"challenge_id"`
}

// CompleteBiometric finalizes a challenge. Polling while the provider is
// undecided returns 202; a settled challenge replays its original outcome.
func (h *Handler) CompleteBiometric(c *fiber.Ctx) error {
	var req completeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.service.CompleteChallenge(c.UserContext(), req.ChallengeID)
	if err != nil {
		switch {
		case errors.Is(err, ErrChallengePending):
			return c.Status(http.StatusAccepted).JSON(fiber.Map{"state": ChallengePending})
		case errors.Is(err, ErrRejected):
			return fiber.NewError(http.StatusForbidden, "verification rejected")
		case errors.Is(err, ErrChallengeExpired):
			return fiber.NewError(http.StatusGone, "challenge expired")
		case errors.Is(err, ErrChallengeNotFound):
			return fiber.NewError(http.StatusNotFound, "challenge not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(session)
}
