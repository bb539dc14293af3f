package handler

import (
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

// WalletHandler handles wallet balance endpoints.
type WalletHandler struct {
	ledger ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// Provision handles POST /api/v1/wallets/provision.
func (h *WalletHandler) Provision(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	wallets, err := h.ledger.ProvisionWallets(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxAuditResource, ownerID.String())
	response.OK(c, toWalletResponses(wallets))
}

// GetBalances handles GET /api/v1/wallets.
func (h *WalletHandler) GetBalances(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	wallets, err := h.ledger.GetBalances(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toWalletResponses(wallets))
}

func toWalletResponses(wallets []domain.Wallet) []dto.WalletResponse {
	out := make([]dto.WalletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, dto.NewWalletResponse(w))
	}
	return out
}

// requireOwner fetches the authenticated owner or answers 401.
func requireOwner(c *gin.Context) (uuid.UUID, bool) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, false
	}
	return ownerID, true
}

// bindJSON binds and sanitizes a request body, answering 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

// HealthCheck handles GET /health, a deep check of every dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
