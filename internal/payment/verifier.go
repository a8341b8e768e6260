// Package payment talks to the external on-chain payment verification service.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// DefaultTimeout bounds one verification call.
const DefaultTimeout = 15 * time.Second

type verifyRequest struct {
	TxRef     string       `json:"tx_ref"`
	Amount    domain.Money `json:"expected_amount"`
	Recipient string       `json:"expected_recipient"`
}

// HTTPVerifier calls a verifier service over JSON/HTTP.
type HTTPVerifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTTPVerifier creates a verifier posting to url.
func NewHTTPVerifier(url string, timeout time.Duration, logger *slog.Logger) *HTTPVerifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPVerifier{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Verify asks the service whether txRef paid expected to recipient. A service
// answer of valid=false is returned without error; transport and protocol
// failures are errors.
func (v *HTTPVerifier) Verify(ctx context.Context, txRef string, expected domain.Money, recipient string) (domain.PaymentVerification, error) {
	body, err := json.Marshal(verifyRequest{TxRef: txRef, Amount: expected, Recipient: recipient})
	if err != nil {
		return domain.PaymentVerification{}, fmt.Errorf("failed to marshal verification request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return domain.PaymentVerification{}, fmt.Errorf("failed to create verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return domain.PaymentVerification{}, fmt.Errorf("payment verifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.PaymentVerification{}, fmt.Errorf("payment verifier responded %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var result domain.PaymentVerification
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&result); err != nil {
		return domain.PaymentVerification{}, fmt.Errorf("failed to decode verification response: %w", err)
	}

	v.logger.Debug("Payment verification answered",
		slog.String("tx_ref", txRef),
		slog.Bool("valid", result.Valid),
		slog.Uint64("block_number", result.BlockNumber),
	)
	return result, nil
}
