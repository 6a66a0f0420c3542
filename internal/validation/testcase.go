package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

const maxCaptureBytes = 64 * 1024

// runCase exercises one endpoint: an unauthenticated request first, then on
// a 402 challenge the paid retry with a fresh signed authorization.
func (e *Engine) runCase(ctx context.Context, req Request, tc Endpoint, testnetChain *string) CaseResult {
	result := CaseResult{
		Endpoint:       tc.Path,
		SchemaValid:    true,
		input:          tc.Input,
		expectedSchema: tc.ExpectedSchema,
	}

	status, body, elapsed, err := e.issue(ctx, req.Descriptor.BaseURL, tc, "")
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.StatusCode = status
	result.ResponseTimeMs = elapsed
	result.actualOutput = body

	if status != http.StatusPaymentRequired {
		// Not a gated endpoint; score from the status code alone.
		result.Passed = status >= 200 && status < 300
		return result
	}
	result.PaymentGated = true

	var challenge x402.PaymentRequiredResponse
	if err := json.Unmarshal([]byte(body), &challenge); err != nil {
		result.Error = "unparseable 402 challenge body"
		result.Passed = false
		return result
	}
	if len(challenge.Accepts) == 0 {
		result.Error = "402 challenge offers no payment options"
		result.Passed = false
		return result
	}

	accept := selectAccept(challenge.Accepts, req.Mode, testnetChain)
	if accept == nil {
		result.Error = "no testnet payment option in 402 challenge"
		result.Passed = false
		return result
	}

	header, err := e.paymentHeader(ctx, req, *accept)
	if err != nil {
		result.Error = err.Error()
		result.Passed = false
		return result
	}
	if req.Mode == model.ValidationModeFree {
		result.tokensSpent = accept.MaxAmountRequired
	}

	status, body, elapsed, err = e.issue(ctx, req.Descriptor.BaseURL, tc, header)
	if err != nil {
		result.Error = err.Error()
		result.Passed = false
		return result
	}
	result.StatusCode = status
	result.ResponseTimeMs = elapsed
	result.actualOutput = body
	result.Passed = status >= 200 && status < 300

	if len(tc.ExpectedSchema) > 0 {
		result.SchemaValid = matchesSchema(tc.ExpectedSchema, []byte(body))
		if result.Passed && !result.SchemaValid {
			result.Passed = false
		}
	}

	return result
}

// paymentHeader produces the X-Payment value for the paid retry: a fresh
// platform-signed authorization for free runs, the caller's pre-signed proof
// otherwise.
func (e *Engine) paymentHeader(ctx context.Context, req Request, accept x402.PaymentRequirements) (string, error) {
	if req.Mode == model.ValidationModeUserPaid {
		return req.PreSignedHeader, nil
	}
	payment, err := e.signer.SignAuthorization(ctx, accept, accept.Network, nil)
	if err != nil {
		return "", err
	}
	return payment.PaymentHeader()
}

// selectAccept picks the payment option: a testnet match for free runs, the
// first option otherwise.
func selectAccept(accepts []x402.PaymentRequirements, mode string, testnetChain *string) *x402.PaymentRequirements {
	if mode != model.ValidationModeFree {
		return &accepts[0]
	}
	for i := range accepts {
		if testnetChain != nil && strings.EqualFold(accepts[i].Network, *testnetChain) {
			return &accepts[i]
		}
	}
	for i := range accepts {
		if isTestnet(accepts[i].Network) {
			return &accepts[i]
		}
	}
	return nil
}

// issue sends one request through the rate limiter and captures status,
// body prefix and elapsed time.
func (e *Engine) issue(ctx context.Context, baseURL string, tc Endpoint, paymentHeader string) (int, string, int64, error) {
	if err := e.limiter.Acquire(ctx); err != nil {
		return 0, "", 0, err
	}

	url := strings.TrimSuffix(baseURL, "/")
	if tc.Path != "/" && tc.Path != "" {
		url += "/" + strings.TrimPrefix(tc.Path, "/")
	}

	var body io.Reader
	if len(tc.Input) > 0 {
		body = bytes.NewReader(tc.Input)
	}

	httpReq, err := http.NewRequestWithContext(ctx, tc.Method, url, body)
	if err != nil {
		return 0, "", 0, err
	}
	if len(tc.Input) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if paymentHeader != "" {
		httpReq.Header.Set(constant.PaymentHeader, paymentHeader)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return 0, "", elapsed, err
	}
	defer resp.Body.Close()

	captured, err := io.ReadAll(io.LimitReader(resp.Body, maxCaptureBytes))
	if err != nil {
		return resp.StatusCode, "", elapsed, err
	}
	return resp.StatusCode, string(captured), elapsed, nil
}
