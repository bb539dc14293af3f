package handler

import (
	"net/http"

	"pixwallet/internal/adapter/http/dto"
	"pixwallet/internal/adapter/http/middleware"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"
	"pixwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChannelServer runs an upgraded connection for an owner until it closes.
type ChannelServer interface {
	Serve(ws *websocket.Conn, owner uuid.UUID)
}

// NotificationHandler issues channel tokens and accepts channel connections.
type NotificationHandler struct {
	notifications ports.NotificationService
	hub           ChannelServer
	upgrader      websocket.Upgrader
	log           zerolog.Logger
}

// NewNotificationHandler creates a new NotificationHandler. allowedOrigins
// empty means same-origin only.
func NewNotificationHandler(notifications ports.NotificationService, hub ChannelServer, allowedOrigins []string, log zerolog.Logger) *NotificationHandler {
	h := &NotificationHandler{
		notifications: notifications,
		hub:           hub,
		log:           log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
	return h
}

// IssueToken handles POST /api/v1/notifications/token.
func (h *NotificationHandler) IssueToken(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	token, expiresAt, err := h.notifications.IssueToken(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NotificationTokenResponse{
		Token:     token,
		ExpiresAt: dto.FormatTime(expiresAt),
	})
}

// EndSession handles POST /api/v1/session/end: outstanding tokens are
// revoked and live connections closed.
func (h *NotificationHandler) EndSession(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	if err := h.notifications.EndSession(c.Request.Context(), ownerID); err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxAuditResource, ownerID.String())
	response.OK(c, gin.H{"ended": true})
}

// Connect handles GET /ws?token=. The token is consumed before the upgrade,
// so a replayed token gets a plain 401.
func (h *NotificationHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	ownerID, err := h.notifications.Authenticate(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("websocket upgrade failed")
		return
	}

	h.log.Info().Str("owner_id", ownerID.String()).Msg("notification channel opened")
	h.hub.Serve(ws, ownerID)
	h.log.Info().Str("owner_id", ownerID.String()).Msg("notification channel closed")
}
