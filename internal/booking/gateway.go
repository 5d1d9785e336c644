package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

type SessionStatus string

const (
	SessionSucceeded SessionStatus = "succeeded"
	SessionFailed    SessionStatus = "failed"
	SessionPending   SessionStatus = "pending"
)

type CheckoutRequest struct {
	AmountCents  int64
	Description  string
	CustomerName string
	CustomerMail string
}

type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
}

// Gateway is the payment collaborator. It is eventually consistent: a
// client-reported success is never trusted, the session is re-verified
// server side.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	VerifySession(ctx context.Context, sessionID string) (SessionStatus, error)
}

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// HTTPGateway speaks the PayMongo checkout API.
type HTTPGateway struct {
	BaseURL string
	Secret  string
	HTTP    *http.Client
}

func NewHTTPGateway(baseURL, secret string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: baseURL,
		Secret:  secret,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

type checkoutSessionPayload struct {
	Data struct {
		Attributes struct {
			Description string `json:"description"`
			LineItems   []struct {
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Name     string `json:"name"`
				Quantity int    `json:"quantity"`
			} `json:"line_items"`
			PaymentMethodTypes []string `json:"payment_method_types"`
			Billing            struct {
				Name  string `json:"name"`
				Email string `json:"email"`
			} `json:"billing"`
		} `json:"attributes"`
	} `json:"data"`
}

type checkoutSessionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			CheckoutURL   string `json:"checkout_url"`
			PaymentStatus string `json:"payment_intent_status"`
			Payments      []struct {
				Attributes struct {
					Status string `json:"status"`
				} `json:"attributes"`
			} `json:"payments"`
		} `json:"attributes"`
	} `json:"data"`
}

func (g *HTTPGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	var payload checkoutSessionPayload
	payload.Data.Attributes.Description = req.Description
	payload.Data.Attributes.PaymentMethodTypes = []string{"gcash", "card"}
	payload.Data.Attributes.Billing.Name = req.CustomerName
	payload.Data.Attributes.Billing.Email = req.CustomerMail
	payload.Data.Attributes.LineItems = append(payload.Data.Attributes.LineItems, struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
	}{
		Amount:   req.AmountCents,
		Currency: "PHP",
		Name:     req.Description,
		Quantity: 1,
	})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout payload: %w", err)
	}

	var resp checkoutSessionResponse
	if err := g.do(ctx, http.MethodPost, "/checkout_sessions", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	if resp.Data.ID == "" || resp.Data.Attributes.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: checkout session response missing id or url", ErrGatewayUnavailable)
	}

	return &CheckoutSession{
		SessionID:   resp.Data.ID,
		CheckoutURL: resp.Data.Attributes.CheckoutURL,
	}, nil
}

func (g *HTTPGateway) VerifySession(ctx context.Context, sessionID string) (SessionStatus, error) {
	var resp checkoutSessionResponse
	if err := g.do(ctx, http.MethodGet, "/checkout_sessions/"+sessionID, nil, &resp); err != nil {
		return "", err
	}

	// PayMongo keeps every attempt on the session, so a failed try can sit
	// in front of the payment that went through. Only a paid entry is
	// conclusive on its own; otherwise the intent status decides.
	for _, p := range resp.Data.Attributes.Payments {
		if p.Attributes.Status == "paid" {
			return SessionSucceeded, nil
		}
	}

	switch resp.Data.Attributes.PaymentStatus {
	case "succeeded":
		return SessionSucceeded, nil
	case "awaiting_payment_method", "processing", "":
		return SessionPending, nil
	default:
		return SessionFailed, nil
	}
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(g.Secret, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrGatewayUnavailable, method, path, resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}

	return nil
}
