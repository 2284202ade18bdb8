package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/givetag/givetag/internal/ledger"
)

// Handler exposes donation, transfer and confirmation endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type donateRequest struct {
	TagCode string `json:"tag_code"`
	Amount  int64  `json:"amount_cents"`
	Source  string `json:"source"`
}

// Donate credits a tag for a synchronously confirmed payment source.
func (h *Handler) Donate(c *fiber.Ctx) error {
	var req donateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Donate(c.UserContext(), DonateInput{
		TagCode: req.TagCode,
		Amount:  req.Amount,
		Source:  req.Source,
	})
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"status":         res.Transaction.Status,
		"balance_cents":  res.Balance,
	})
}

type transferRequest struct {
	FromCode string `json:"from_code"`
	ToCode   string `json:"to_code"`
	Amount   int64  `json:"amount_cents"`
}

// Transfer moves value between two tags. The session middleware has placed the
// verified subject tag in locals.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sessionTag, _ := c.Locals("session_tag").(string)

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromCode:       req.FromCode,
		ToCode:         req.ToCode,
		Amount:         req.Amount,
		SessionTagCode: sessionTag,
	})
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			return fiber.NewError(http.StatusForbidden, "session does not cover source tag")
		}
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id":     res.Transaction.ID,
		"from_balance_cents": res.FromBalance,
		"to_balance_cents":   res.ToBalance,
		"completed_at":       res.Transaction.CompletedAt,
	})
}

type initiateRequest struct {
	TagCode  string `json:"tag_code"`
	Amount   int64  `json:"amount_cents"`
	Provider string `json:"provider"`
}

// Initiate opens an asynchronous donation with a payment provider.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.InitiateDonation(c.UserContext(), InitiateInput{
		TagCode:  req.TagCode,
		Amount:   req.Amount,
		Provider: req.Provider,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			return fiber.NewError(http.StatusBadRequest, "unknown payment provider")
		}
		return mapLedgerError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"external_ref":   res.Transaction.ExternalRef,
		"status":         res.Transaction.Status,
		"redirect_url":   res.RedirectURL,
		"expires_at":     res.Transaction.ExpiresAt,
	})
}

type confirmRequest struct {
	ExternalRef string `json:"external_ref"`
	TagCode     string `json:"tag_code"`
	Amount      int64  `json:"amount_cents"`
}

// Confirm is the webhook-style callback payment providers deliver, possibly
// more than once.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.HandleProviderConfirmation(c.UserContext(), req.ExternalRef, req.TagCode, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrUnknownPayment):
			return fiber.NewError(http.StatusNotFound, "unknown payment reference")
		case errors.Is(err, ledger.ErrExpired):
			return fiber.NewError(http.StatusGone, "pending payment expired")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"status":         res.Transaction.Status,
		"replayed":       res.Replayed,
		"balance_cents":  res.Balance,
	})
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive number of cents")
	case errors.Is(err, ledger.ErrSameTag):
		return fiber.NewError(http.StatusBadRequest, "source and destination tag must differ")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "tag not found")
	case errors.Is(err, ledger.ErrDuplicateReference):
		return fiber.NewError(http.StatusConflict, "external reference already registered")
	case errors.Is(err, ledger.ErrConflict):
		return fiber.NewError(http.StatusConflict, "concurrent update, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
