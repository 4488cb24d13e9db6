// Package oracle is the client side of the external image-similarity service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	id "credregistry/pkg/domain"
	"credregistry/pkg/platform/circuit"
)

// Oracle scores how closely image matches the credential fingerprinted by
// reference, on a 0-100 scale.
type Oracle interface {
	Compare(ctx context.Context, reference id.Hash32, image []byte) (float64, error)
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxResponseBytes = 64 << 10

// Config configures an HTTPOracle. An empty URL disables the oracle.
type Config struct {
	URL        string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Breaker    *circuit.Breaker
	Logger     *slog.Logger
}

// HTTPOracle posts {reference, image} to the configured URL and reads
// {confidence}.
type HTTPOracle struct {
	url     string
	client  HTTPDoer
	breaker *circuit.Breaker
}

func NewHTTP(cfg Config) *HTTPOracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuit.New("similarity-oracle", circuit.OnStateChange(func(name string, from, to circuit.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}))
	}
	return &HTTPOracle{url: cfg.URL, client: client, breaker: breaker}
}

// Enabled reports whether an oracle URL is configured.
func (o *HTTPOracle) Enabled() bool {
	return o.url != ""
}

type compareRequest struct {
	Reference id.Hash32 `json:"reference"`
	Image     []byte    `json:"image"`
}

type compareResponse struct {
	Confidence *float64 `json:"confidence"`
}

func (o *HTTPOracle) Compare(ctx context.Context, reference id.Hash32, image []byte) (float64, error) {
	if !o.Enabled() {
		return 0, NewError(ErrorDisabled, "no oracle configured", nil)
	}

	var confidence float64
	err := o.breaker.Execute(func() error {
		var err error
		confidence, err = o.compare(ctx, reference, image)
		return err
	}, isTransient)
	if errors.Is(err, circuit.ErrOpen) {
		return 0, NewError(ErrorCircuitOpen, "oracle calls suspended", err)
	}
	return confidence, err
}

// isTransient limits breaker failures to outages and timeouts; a bad payload
// says nothing about the oracle's health.
func isTransient(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Transient()
}

func (o *HTTPOracle) compare(ctx context.Context, reference id.Hash32, image []byte) (float64, error) {
	body, err := json.Marshal(compareRequest{Reference: reference, Image: image})
	if err != nil {
		return 0, NewError(ErrorBadData, "failed to encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return 0, NewError(ErrorBadData, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return 0, NewError(ErrorTimeout, "request timeout", err)
		}
		return 0, NewError(ErrorOutage, "failed to execute request", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return 0, NewError(ErrorTimeout, "response timeout", err)
		}
		return 0, NewError(ErrorOutage, "failed to read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, NewError(ErrorOutage, fmt.Sprintf("oracle unavailable: %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return 0, NewError(ErrorBadData, fmt.Sprintf("oracle rejected request: %d", resp.StatusCode), nil)
	}

	var out compareResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return 0, NewError(ErrorBadData, "failed to parse response", err)
	}
	if out.Confidence == nil {
		return 0, NewError(ErrorBadData, "response has no confidence", nil)
	}
	if c := *out.Confidence; math.IsNaN(c) || c < 0 || c > 100 {
		return 0, NewError(ErrorBadData, fmt.Sprintf("confidence %v out of range", c), nil)
	}
	return *out.Confidence, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Oracle = (*HTTPOracle)(nil)
