package handler

import (
	"pixwallet/internal/adapter/http/dto"
	"pixwallet/internal/adapter/http/middleware"
	"pixwallet/internal/core/ports"
	"pixwallet/pkg/apperror"
	"pixwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExchangeHandler serves rates, quotes and exchanges.
type ExchangeHandler struct {
	rates    ports.RateService
	exchange ports.ExchangeService
}

// NewExchangeHandler creates a new ExchangeHandler.
func NewExchangeHandler(rates ports.RateService, exchange ports.ExchangeService) *ExchangeHandler {
	return &ExchangeHandler{rates: rates, exchange: exchange}
}

// GetRates handles GET /api/v1/rates.
func (h *ExchangeHandler) GetRates(c *gin.Context) {
	rates, err := h.rates.GetRates(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewRatesResponse(rates))
}

// Quote handles POST /api/v1/exchange/quote.
func (h *ExchangeHandler) Quote(c *gin.Context) {
	req, ok := h.bindExchange(c)
	if !ok {
		return
	}

	quote, err := h.exchange.Quote(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewQuoteResponse(quote))
}

// Execute handles POST /api/v1/exchange.
func (h *ExchangeHandler) Execute(c *gin.Context) {
	req, ok := h.bindExchange(c)
	if !ok {
		return
	}

	result, err := h.exchange.Execute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResource, result.Transaction.ID.String())
	response.Created(c, dto.ExchangeResponse{
		TransactionID: result.Transaction.ID.String(),
		Status:        string(result.Transaction.Status),
		Quote:         dto.NewQuoteResponse(result.Quote),
	})
}

func (h *ExchangeHandler) bindExchange(c *gin.Context) (ports.ExchangeRequest, bool) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return ports.ExchangeRequest{}, false
	}

	var body dto.ExchangeRequest
	if !bindJSON(c, &body) {
		return ports.ExchangeRequest{}, false
	}

	req, err := toExchangeRequest(ownerID, body)
	if err != nil {
		response.Error(c, err)
		return ports.ExchangeRequest{}, false
	}
	return req, true
}

func toExchangeRequest(ownerID uuid.UUID, body dto.ExchangeRequest) (ports.ExchangeRequest, error) {
	from, err := dto.ParseCurrency(body.FromCurrency)
	if err != nil {
		return ports.ExchangeRequest{}, err
	}
	to, err := dto.ParseCurrency(body.ToCurrency)
	if err != nil {
		return ports.ExchangeRequest{}, err
	}
	if from == to {
		return ports.ExchangeRequest{}, apperror.Validation("from_currency and to_currency must differ")
	}
	amount, err := dto.ParseAmount(body.Amount)
	if err != nil {
		return ports.ExchangeRequest{}, err
	}
	return ports.ExchangeRequest{OwnerID: ownerID, From: from, To: to, Amount: amount}, nil
}
