package handler

import (
	"errors"
	"net/http"

	"pixwallet/internal/adapter/http/dto"
	"pixwallet/internal/adapter/http/middleware"
	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"
	"pixwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgRefunded   = "Withdrawal failed at the payment provider; balance restored"
	msgProcessing = "Withdrawal is being processed"
)

// WithdrawalHandler sends PIX payouts.
type WithdrawalHandler struct {
	withdrawals ports.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawals ports.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

// Create handles POST /api/v1/withdrawals. A completed payout answers 201,
// a refunded one 502 with the outcome in details, and one left PROCESSING 202.
func (h *WithdrawalHandler) Create(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req dto.WithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}
	pixKeyID, err := uuid.Parse(req.PixKeyID)
	if err != nil {
		response.Error(c, apperror.Validation("pix_key_id must be a UUID"))
		return
	}
	amount, err := dto.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.withdrawals.CreateWithdrawal(c.Request.Context(), ports.WithdrawalRequest{
		OwnerID:  ownerID,
		PixKeyID: pixKeyID,
		Amount:   amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	w := result.Withdrawal
	c.Set(middleware.CtxAuditResource, w.ID.String())
	resp := dto.WithdrawalResponse{
		WithdrawalID: w.ID.String(),
		Amount:       w.Amount.StringFixed(2),
		Status:       string(w.Status),
	}
	if w.ExternalID != nil {
		resp.ExternalID = *w.ExternalID
	}

	switch {
	case result.Refunded:
		resp.Refunded = true
		resp.Message = msgRefunded
		reason := "provider rejected the payout"
		if w.FailureReason != nil {
			reason = *w.FailureReason
		}
		response.ErrorWithDetails(c, apperror.ErrWithdrawalFailed(errors.New(reason)), resp)
	case w.Status == domain.WithdrawalStatusCompleted:
		response.Created(c, resp)
	default:
		resp.Message = msgProcessing
		response.JSON(c, http.StatusAccepted, resp)
	}
}
