package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSignatureVerifier delegates signature checks to an external service.
type HTTPSignatureVerifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPSignatureVerifier creates a verifier posting to url.
func NewHTTPSignatureVerifier(url string, timeout time.Duration) *HTTPSignatureVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSignatureVerifier{url: url, client: &http.Client{}, timeout: timeout}
}

func (v *HTTPSignatureVerifier) Verify(ctx context.Context, wallet, message, signature string) (bool, error) {
	body, err := json.Marshal(map[string]string{
		"wallet":    wallet,
		"message":   message,
		"signature": signature,
	})
	if err != nil {
		return false, fmt.Errorf("marshal signature request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create signature request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("signature verifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("signature verifier responded %d", resp.StatusCode)
	}

	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&result); err != nil {
		return false, fmt.Errorf("decode signature response: %w", err)
	}
	return result.Valid, nil
}
