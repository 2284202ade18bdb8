package tag

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes tag registry HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a tag HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Code            string `json:"code"`
	DisplayName     string `json:"display_name"`
	BeneficiaryType string `json:"beneficiary_type"`
	OrgID           string `json:"org_id"`
	PIN             string `json:"pin"`
	BiometricRef    string `json:"biometric_ref"`
}

type tagResponse struct {
	Code            string `json:"code"`
	WalletID        string `json:"wallet_id"`
	DisplayName     string `json:"display_name"`
	BeneficiaryType string `json:"beneficiary_type"`
	OrgID           string `json:"org_id,omitempty"`
}

// Create issues a tag on behalf of an issuing organization.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	t, err := h.service.Create(c.UserContext(), CreateInput{
		Code:            req.Code,
		DisplayName:     req.DisplayName,
		BeneficiaryType: req.BeneficiaryType,
		OrgID:           req.OrgID,
		PIN:             req.PIN,
		BiometricRef:    req.BiometricRef,
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return fiber.NewError(http.StatusConflict, "tag code already issued")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(tagResponse{
		Code:            t.Code,
		WalletID:        t.WalletID,
		DisplayName:     t.DisplayName,
		BeneficiaryType: t.BeneficiaryType,
		OrgID:           t.OrgID,
	})
}

// Summary returns the tag's metadata and balance. The session middleware has
// already verified the caller may read this tag.
func (h *Handler) Summary(c *fiber.Ctx) error {
	code := c.Params("code")
	summary, err := h.service.Summary(c.UserContext(), code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "tag not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"code":             summary.Code,
		"display_name":     summary.DisplayName,
		"beneficiary_type": summary.BeneficiaryType,
		"balance_cents":    summary.Balance,
		"as_of":            summary.AsOf,
	})
}
