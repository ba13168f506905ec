package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/shopspring/decimal"
)

type chargeRequest struct {
	CreditCard    cardPayload `json:"credit_card"`
	AmountCharged json.Number `json:"amount_charged"`
}

type cardPayload struct {
	Name            string `json:"name"`
	Number          string `json:"number"`
	ExpirationYear  int    `json:"expiration_year"`
	CVV             string `json:"cvv"`
	ExpirationMonth int    `json:"expiration_month"`
}

type chargeResponse struct {
	Transaction struct {
		ID            string          `json:"id"`
		Success       bool            `json:"success"`
		AmountCharged decimal.Decimal `json:"amount_charged"`
	} `json:"transaction"`
}

type errorResponse struct {
	Errors map[string]struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"errors"`
}

// HTTPGateway talks to a JSON charging API. The request deadline comes from
// the caller's context.
type HTTPGateway struct {
	client *http.Client
	url    string
}

func NewHTTPGateway(url string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPGateway{client: client, url: url}
}

func (g *HTTPGateway) Charge(ctx context.Context, card Card, amount decimal.Decimal) (*Result, error) {
	body, err := json.Marshal(chargeRequest{
		CreditCard: cardPayload{
			Name:            card.Name,
			Number:          card.Number,
			ExpirationYear:  card.ExpirationYear,
			CVV:             card.CVV,
			ExpirationMonth: card.ExpirationMonth,
		},
		AmountCharged: json.Number(amount.StringFixed(2)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrNotSent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNotSent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusPaymentRequired:
		return nil, decodeDecline(raw)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out chargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if out.Transaction.ID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", ErrInvalidResponse)
	}
	return &Result{
		TransactionID: out.Transaction.ID,
		Success:       out.Transaction.Success,
		AmountCharged: out.Transaction.AmountCharged,
	}, nil
}

func decodeDecline(raw []byte) error {
	var out errorResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return &DeclineError{}
	}
	if e, ok := out.Errors["credit_card"]; ok {
		return &DeclineError{Code: e.Code, Name: e.Name}
	}
	for _, e := range out.Errors {
		return &DeclineError{Code: e.Code, Name: e.Name}
	}
	return &DeclineError{}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
}
