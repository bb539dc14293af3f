package handler

import (
	"pixwallet/internal/adapter/http/dto"
	"pixwallet/internal/adapter/http/middleware"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/response"

	"github.com/gin-gonic/gin"
)

// DepositHandler issues and verifies PIX charges.
type DepositHandler struct {
	deposits ports.DepositService
}

// NewDepositHandler creates a new DepositHandler.
func NewDepositHandler(deposits ports.DepositService) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

// Create handles POST /api/v1/deposits.
func (h *DepositHandler) Create(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := dto.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.deposits.CreateDeposit(c.Request.Context(), ownerID, amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	d := result.Deposit
	c.Set(middleware.CtxAuditResource, d.ChargeID)
	response.Created(c, dto.DepositResponse{
		ChargeID:           d.ChargeID,
		Amount:             d.Amount.StringFixed(2),
		PaymentInstruction: d.PaymentInstruction,
		ExpiresAt:          dto.FormatTime(d.ExpiresAt),
		Fallback:           d.Fallback,
		Warning:            result.Warning,
	})
}

// Verify handles POST /api/v1/deposits/verify.
func (h *DepositHandler) Verify(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	n, err := h.deposits.VerifyDeposit(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.VerifyDepositResponse{Reconciled: n})
}
