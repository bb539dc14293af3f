package handler

import (
	"math"
	"strings"

	"pixwallet/internal/adapter/http/dto"
	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"
	"pixwallet/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TransactionHandler serves the owner's history.
type TransactionHandler struct {
	reporting ports.ReportingService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(reporting ports.ReportingService) *TransactionHandler {
	return &TransactionHandler{reporting: reporting}
}

// List handles GET /api/v1/transactions.
func (h *TransactionHandler) List(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var q dto.TransactionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	params := ports.TransactionListParams{
		OwnerID:  ownerID,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Kind != "" {
		kind := domain.TransactionKind(strings.ToUpper(q.Kind))
		params.Kind = &kind
	}
	if q.Status != "" {
		status := domain.TransactionStatus(strings.ToUpper(q.Status))
		params.Status = &status
	}

	txns, total, err := h.reporting.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.NewTransactionResponse(&txns[i]))
	}

	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	})
}
