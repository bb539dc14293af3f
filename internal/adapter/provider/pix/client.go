package pix

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"pixwallet/config"
	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"

	"github.com/rs/zerolog"
)

// tokenLeeway renews the OAuth token slightly before the provider expires it.
const tokenLeeway = 30 * time.Second

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a PIX provider exposing the BACEN "cob" API plus a payout
// endpoint. It implements ports.PaymentProvider.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   HTTPClient
	log          zerolog.Logger
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a provider client. When cert and key files are configured
// the transport presents them for mutual TLS.
func NewClient(cfg config.ProviderConfig, log zerolog.Logger) (*Client, error) {
	tlsCfg, err := loadTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}
	return newClient(cfg, httpClient, log), nil
}

func newClient(cfg config.ProviderConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		log:          log.With().Str("component", "pix_client").Logger(),
		now:          time.Now,
	}
}

func loadTLSConfig(cfg config.ProviderConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading provider client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading provider CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("provider CA %s contains no certificates", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

type chargeBody struct {
	Calendar struct {
		Expiry int `json:"expiracao"`
	} `json:"calendario"`
	Value struct {
		Original string `json:"original"`
	} `json:"valor"`
	Key         string `json:"chave"`
	Description string `json:"solicitacaoPagador,omitempty"`
}

type chargeReply struct {
	TxID     string `json:"txid"`
	Location struct {
		Location string `json:"location"`
	} `json:"loc"`
	CopyPaste string `json:"pixCopiaECola"`
}

// CreateCharge registers an immediate charge under req.ChargeID.
func (c *Client) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	var body chargeBody
	body.Calendar.Expiry = int(req.Expiry.Seconds())
	body.Value.Original = req.Amount.StringFixed(2)
	body.Key = req.PayeeKey
	body.Description = req.Description

	var reply chargeReply
	if err := c.do(ctx, http.MethodPut, "/v2/cob/"+url.PathEscape(req.ChargeID), body, &reply); err != nil {
		return nil, err
	}
	if reply.CopyPaste == "" {
		return nil, fmt.Errorf("%w: charge %s returned no payment instruction", ports.ErrProviderUnavailable, req.ChargeID)
	}

	return &ports.Charge{
		ChargeID:           reply.TxID,
		PaymentInstruction: reply.CopyPaste,
		Location:           reply.Location.Location,
	}, nil
}

type payoutBody struct {
	Value string `json:"valor"`
	Payer struct {
		Key string `json:"chave"`
	} `json:"pagador"`
	Payee struct {
		Key string `json:"chave"`
	} `json:"favorecido"`
}

type payoutReply struct {
	EndToEndID string `json:"e2eId"`
	Status     string `json:"status"`
}

// payoutRejected is the status a payout reports when the provider refused it.
const payoutRejected = "NAO_REALIZADO"

// Disburse sends req.Amount to req.DestinationKey. The provider treats
// req.Reference as an idempotency key.
func (c *Client) Disburse(ctx context.Context, req ports.DisbursementRequest) (*ports.Disbursement, error) {
	var body payoutBody
	body.Value = req.Amount.StringFixed(2)
	body.Payer.Key = req.PayerKey
	body.Payee.Key = req.DestinationKey

	var reply payoutReply
	if err := c.do(ctx, http.MethodPut, "/v2/gn/pix/"+url.PathEscape(req.Reference), body, &reply); err != nil {
		return nil, err
	}
	if reply.Status == payoutRejected {
		return nil, fmt.Errorf("%w: payout %s rejected", ports.ErrProviderUnavailable, req.Reference)
	}

	return &ports.Disbursement{EndToEndID: reply.EndToEndID, Status: reply.Status}, nil
}

type paymentsReply struct {
	Params struct {
		Pagination struct {
			Page  int `json:"paginaAtual"`
			Pages int `json:"quantidadeDePaginas"`
		} `json:"paginacao"`
	} `json:"parametros"`
	Payments []domain.PixPayment `json:"pix"`
}

// ListPayments returns every inbound payment settled in [from, to].
func (c *Client) ListPayments(ctx context.Context, from, to time.Time) ([]domain.PixPayment, error) {
	var payments []domain.PixPayment
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("inicio", from.UTC().Format(time.RFC3339))
		q.Set("fim", to.UTC().Format(time.RFC3339))
		q.Set("paginacao.paginaAtual", strconv.Itoa(page))

		var reply paymentsReply
		if err := c.do(ctx, http.MethodGet, "/v2/pix?"+q.Encode(), nil, &reply); err != nil {
			return nil, err
		}
		payments = append(payments, reply.Payments...)

		if page+1 >= reply.Params.Pagination.Pages {
			return payments, nil
		}
	}
}

type tokenReply struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached client-credentials token, fetching a new one once
// the cached one is about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	body := []byte(`{"grant_type":"client_credentials"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	var reply tokenReply
	if err := c.send(req, &reply); err != nil {
		return "", err
	}
	if reply.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access_token", ports.ErrProviderUnavailable)
	}

	c.accessToken = reply.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(reply.ExpiresIn)*time.Second - tokenLeeway)
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	err = c.send(req, out)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusUnauthorized {
		c.invalidateToken()
	}
	return err
}

type statusError struct {
	method string
	path   string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.method, e.path, e.status, e.body)
}

func (e *statusError) Unwrap() error {
	return ports.ErrProviderUnavailable
}

func (c *Client) send(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ports.ErrProviderUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", ports.ErrProviderUnavailable, req.URL.Path, err)
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("provider call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{method: req.Method, path: req.URL.Path, status: resp.StatusCode, body: truncate(string(raw), 256)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ports.ErrProviderUnavailable, req.URL.Path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
