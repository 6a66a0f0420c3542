// Package validation exercises a candidate service end to end against the
// x402 protocol: discover, request, receive 402, sign, pay, verify the
// response, and score the result.
package validation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/common/util"
	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/internal/abuse"
	"github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/internal/ratelimit"
	"github.com/PatrickKish1/x402-manager-backend/internal/signer"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/monitor"
)

// Endpoint is one declared sub-endpoint of a candidate service.
type Endpoint struct {
	Path           string          `json:"path"`
	Method         string          `json:"method"`
	Input          json.RawMessage `json:"input,omitempty"`
	ExpectedSchema json.RawMessage `json:"expectedSchema,omitempty"`
}

// Descriptor is the candidate service's published description: its primary
// resource, declared sub-endpoints and accepted payment networks.
type Descriptor struct {
	BaseURL        string     `json:"baseUrl"`
	PaymentOptions []string   `json:"paymentOptions,omitempty"`
	Endpoints      []Endpoint `json:"endpoints,omitempty"`
}

// Request describes one validation run.
type Request struct {
	ServiceID   string
	Descriptor  Descriptor
	Mode        string
	Requester   string
	RequesterIP string
	// PreSignedHeader is the caller-supplied X-Payment value; required for
	// user-paid runs since browser-side signing is outside this engine.
	PreSignedHeader string
}

// CaseResult is the outcome of one exercised endpoint.
type CaseResult struct {
	Endpoint       string  `json:"endpoint"`
	StatusCode     int     `json:"statusCode"`
	Passed         bool    `json:"passed"`
	SchemaValid    bool    `json:"schemaValid"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
	Error          string  `json:"error,omitempty"`
	Score          float64 `json:"score"`
	PaymentGated   bool    `json:"paymentGated"`
	actualOutput   string
	input          json.RawMessage
	expectedSchema json.RawMessage
	tokensSpent    string
}

// Result is the aggregate outcome of a run.
type Result struct {
	RequestID    string       `json:"requestId"`
	ServiceID    string       `json:"serviceId"`
	Status       string       `json:"status"`
	Score        float64      `json:"score"`
	TestnetChain *string      `json:"testnetChain,omitempty"`
	TokensSpent  string       `json:"tokensSpent"`
	TestCases    []CaseResult `json:"testCases"`
}

type Engine struct {
	db      *db.DB
	signer  *signer.Signer
	guard   *abuse.Guard
	limiter *ratelimit.Limiter
	client  *http.Client
	workers int
	logger  log.Logger
}

func New(database *db.DB, s *signer.Signer, guard *abuse.Guard, limiter *ratelimit.Limiter, workers int, logger log.Logger) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		db:      database,
		signer:  s,
		guard:   guard,
		limiter: limiter,
		client:  &http.Client{Timeout: 30 * time.Second},
		workers: workers,
		logger:  logger,
	}
}

// Validate runs the scripted protocol conversation against the candidate
// service and persists the scored outcome. A run that fails mid-way is
// durably marked failed; it is never left pending.
func (e *Engine) Validate(ctx context.Context, req Request) (*Result, error) {
	decision := e.guard.CheckAdmission(ctx, req.Requester, req.RequesterIP, req.ServiceID, req.Mode)
	if !decision.Allowed {
		return nil, errors.AdmissionDenied(errors.New(decision.Reason), decision.RetryAfterSeconds)
	}

	testnetChain, err := e.detectTestnet(req)
	if err != nil {
		return nil, err
	}

	run := &model.ValidationRequest{
		RequestID:    uuid.New().String(),
		ServiceID:    req.ServiceID,
		Requester:    req.Requester,
		RequesterIP:  req.RequesterIP,
		Mode:         req.Mode,
		Status:       model.ValidationStatusPending,
		TestnetChain: testnetChain,
		TokensSpent:  "0",
	}
	if err := e.db.CreateValidationRequest(run); err != nil {
		return nil, errors.ValidationFailed(errors.Wrap(err, "create validation request"))
	}
	monitor.ValidationRunCount.Inc()

	result, err := e.run(ctx, req, run.RequestID, testnetChain)
	if err != nil {
		monitor.ValidationRunErrorCount.Inc()
		e.logger.WithFields(logrus.Fields{
			"error":      err,
			"request_id": run.RequestID,
			"service_id": req.ServiceID,
		}).Error("Validation run failed")
		if dbErr := e.db.FailValidationRequest(run.RequestID, err.Error()); dbErr != nil {
			e.logger.WithFields(logrus.Fields{
				"error":      dbErr,
				"request_id": run.RequestID,
			}).Error("Failed to mark validation request failed")
		}
		return nil, errors.ValidationFailed(err)
	}

	return result, nil
}

// detectTestnet picks a usable test network from the published payment
// options. Free runs require one and are rejected before any network call.
func (e *Engine) detectTestnet(req Request) (*string, error) {
	for _, network := range req.Descriptor.PaymentOptions {
		if isTestnet(network) {
			return model.PtrOf(network), nil
		}
	}
	if req.Mode == model.ValidationModeFree {
		return nil, errors.ValidationFailed(errors.New("service offers no testnet payment option for a free validation"))
	}
	return nil, nil
}

func isTestnet(network string) bool {
	lower := strings.ToLower(network)
	for _, marker := range constant.TestnetMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (e *Engine) run(ctx context.Context, req Request, requestID string, testnetChain *string) (*Result, error) {
	if req.Mode == model.ValidationModeUserPaid && req.PreSignedHeader == "" {
		return nil, errors.New("user-paid validation requires a pre-signed payment proof")
	}

	cases := e.deriveTestCases(req.Descriptor)
	results := make([]CaseResult, len(cases))

	wp := workerpool.New(e.workers)
	var wg sync.WaitGroup
	for i := range cases {
		i := i
		tc := cases[i]
		wg.Add(1)
		wp.Submit(func() {
			defer wg.Done()
			results[i] = e.runCase(ctx, req, tc, testnetChain)
		})
	}
	wg.Wait()
	wp.StopWait()

	totalSpent := "0"
	var total float64
	for i := range results {
		results[i].Score = scoreCase(&results[i])
		total += results[i].Score

		if results[i].tokensSpent != "" {
			sum, err := util.Add(totalSpent, results[i].tokensSpent)
			if err != nil {
				return nil, errors.Wrap(err, "sum tokens spent")
			}
			totalSpent = sum.String()
		}

		if err := e.db.CreateTestCaseResult(&model.TestCaseResult{
			ValidationRequestID: requestID,
			Endpoint:            results[i].Endpoint,
			Input:               string(results[i].input),
			ExpectedSchema:      string(results[i].expectedSchema),
			ActualOutput:        results[i].actualOutput,
			Passed:              results[i].Passed,
			SchemaValid:         results[i].SchemaValid,
			StatusCode:          results[i].StatusCode,
			ResponseTimeMs:      results[i].ResponseTimeMs,
			Error:               results[i].Error,
		}); err != nil {
			return nil, errors.Wrap(err, "persist test case result")
		}
	}

	score := 0.0
	if len(results) > 0 {
		score = total / float64(len(results))
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	status := model.ValidatedStatusFailed
	if score >= constant.VerifiedThreshold {
		status = model.ValidatedStatusVerified
	}

	result := &Result{
		RequestID:    requestID,
		ServiceID:    req.ServiceID,
		Status:       status,
		Score:        score,
		TestnetChain: testnetChain,
		TokensSpent:  totalSpent,
		TestCases:    results,
	}

	resultsJSON, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "marshal results")
	}

	if err := e.upsertAggregate(req, result, string(resultsJSON)); err != nil {
		return nil, err
	}

	if err := e.db.CompleteValidationRequest(requestID, totalSpent, string(resultsJSON)); err != nil {
		return nil, errors.Wrap(err, "complete validation request")
	}

	e.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"service_id": req.ServiceID,
		"score":      score,
		"status":     status,
	}).Info("Validation run completed")

	return result, nil
}

// upsertAggregate folds the run into the service's current verdict.
func (e *Engine) upsertAggregate(req Request, result *Result, resultsJSON string) error {
	valid, invalid := 0, 0
	if existing, err := e.db.GetValidatedService(req.ServiceID); err == nil {
		valid = existing.ValidVotes
		invalid = existing.InvalidVotes
	} else if errors.KindOf(err) != errors.KindNotFound {
		return errors.Wrap(err, "load validated service")
	}

	if result.Status == model.ValidatedStatusVerified {
		valid++
	} else {
		invalid++
	}

	now := time.Now()
	return e.db.UpsertValidatedService(&model.ValidatedService{
		ServiceID:       req.ServiceID,
		Status:          result.Status,
		Score:           result.Score,
		ValidVotes:      valid,
		InvalidVotes:    invalid,
		LastValidator:   req.Requester,
		LastValidatedAt: &now,
		Results:         &resultsJSON,
	})
}

// deriveTestCases builds the case list: the primary resource plus up to
// three declared sub-endpoints.
func (e *Engine) deriveTestCases(desc Descriptor) []Endpoint {
	cases := []Endpoint{{Path: "/", Method: http.MethodGet}}
	for i, ep := range desc.Endpoints {
		if i >= constant.MaxSubEndpoints {
			break
		}
		if ep.Method == "" {
			ep.Method = http.MethodGet
		}
		cases = append(cases, ep)
	}
	return cases
}

// scoreCase computes the weighted 0-100 score for one case.
func scoreCase(c *CaseResult) float64 {
	score := 0.0
	if c.StatusCode == http.StatusOK {
		score += constant.ScoreStatusOK
	}
	if c.SchemaValid {
		score += constant.ScoreSchemaValid
	}
	if c.ResponseTimeMs < constant.FastResponseMs {
		score += constant.ScoreFastResponse
	}
	if c.Error == "" {
		score += constant.ScoreNoError
	}
	return score
}
