package middleware

import (
	"encoding/json"
	"net/http"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// CtxAuditResource lets a handler name the resource it created or touched.
const CtxAuditResource = "audit_resource_id"

// AuditLog records successful money-moving and session writes after the
// handler has answered.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath())
		if action == "" {
			return
		}

		entry := &domain.AuditLog{
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResource),
			IPAddress:    c.ClientIP(),
		}
		if id, ok := OwnerID(c); ok {
			entry.OwnerID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})
		entry.Details = string(details)

		auditSvc.Log(c.Request.Context(), entry)
	}
}

func mapPathToAction(route string) (domain.AuditAction, string) {
	switch route {
	case "/api/v1/wallets/provision":
		return domain.AuditActionProvision, "wallet"
	case "/api/v1/exchange":
		return domain.AuditActionExchange, "transaction"
	case "/api/v1/deposits":
		return domain.AuditActionDeposit, "deposit"
	case "/api/v1/deposits/verify":
		return domain.AuditActionVerify, "deposit"
	case "/api/v1/withdrawals":
		return domain.AuditActionWithdrawal, "withdrawal"
	case "/api/v1/session/end":
		return domain.AuditActionSessionEnd, "session"
	}
	return "", ""
}
