package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	id "credregistry/pkg/domain"
	"credregistry/pkg/requestcontext"
)

// TestContext holds state between test steps
type TestContext struct {
	server           *testServer
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	credentials      map[string]uint64
}

// NewTestContext starts a fresh registry for one scenario.
func NewTestContext() *TestContext {
	server := newTestServer()
	return &TestContext{
		server:      server,
		BaseURL:     server.api.URL,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		credentials: make(map[string]uint64),
	}
}

func (tc *TestContext) Close() {
	tc.server.Close()
}

// logFailure prints the last exchange of a failed scenario.
func (tc *TestContext) logFailure(scenario string) {
	status := 0
	if tc.LastResponse != nil {
		status = tc.LastResponse.StatusCode
	}
	fmt.Printf("scenario %q failed; last response %d: %s\n", scenario, status, tc.LastResponseBody)
}

// POST makes a POST request and stores the response
func (tc *TestContext) POST(path string, body any) error {
	return tc.POSTWithHeaders(path, body, nil)
}

// POSTWithHeaders makes a POST request with optional headers
func (tc *TestContext) POSTWithHeaders(path string, body any, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	headers = withJSON(headers)
	return tc.do(http.MethodPost, path, bytes.NewReader(data), headers)
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

func withJSON(headers map[string]string) map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		out[k] = v
	}
	return out
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}

	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}

	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err == nil {
		if _, ok := data[text]; ok {
			return true
		}
	}

	return false
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

// AddressOf maps a scenario actor name to its address.
func (tc *TestContext) AddressOf(actor string) string {
	return id.AddressFromIdentity(actor).String()
}

// AuthHeaders returns a bearer token header for actor.
func (tc *TestContext) AuthHeaders(actor string) (map[string]string, error) {
	ctx := requestcontext.WithTime(context.Background(), time.Now())
	token, _, err := tc.server.jwt.GenerateCallerToken(ctx, id.AddressFromIdentity(actor))
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// Bootstrap makes actor the registry owner.
func (tc *TestContext) Bootstrap(actor string) error {
	ctx := requestcontext.WithTime(context.Background(), time.Now())
	return tc.server.registry.Bootstrap(ctx, id.AddressFromIdentity(actor))
}

func (tc *TestContext) SaveCredential(code string, credentialID uint64) {
	tc.credentials[code] = credentialID
}

func (tc *TestContext) CredentialID(code string) (uint64, error) {
	credentialID, ok := tc.credentials[code]
	if !ok {
		return 0, fmt.Errorf("no credential issued with code %q in this scenario", code)
	}
	return credentialID, nil
}

// SetOracleConfidence makes the similarity oracle answer with confidence.
func (tc *TestContext) SetOracleConfidence(confidence float64) {
	tc.server.fake.set(confidence, false)
}

// StallOracle makes the similarity oracle hang past the verification timeout.
func (tc *TestContext) StallOracle() {
	tc.server.fake.set(0, true)
}
