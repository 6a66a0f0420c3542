package constant

import "time"

var (
	GatewayPrefix = "/api/gateway"

	// Headers consumed by the gateway; stripped before forwarding upstream.
	PaymentHeader = "X-Payment"

	// Provenance headers added to forwarded requests.
	PaymentVerifiedHeader = "X-Payment-Verified"
	PayerHeader           = "X-Payer"
	ProviderHeader        = "X-Provider"

	// X402Version is the protocol version advertised in 402 bodies.
	X402Version = 2

	SchemeExact = "exact"

	// ProofFreshnessWindow bounds |now - proof.timestamp|.
	ProofFreshnessWindow = 300 * time.Second

	// NonceTTL is how long a consumed nonce row is retained. The freshness
	// window already rejects older proofs, so expired rows are prunable.
	NonceTTL = 24 * time.Hour

	// ClockSkewTolerance backdates validAfter on signed authorizations.
	ClockSkewTolerance = 60 * time.Second

	// TestnetMarkers identify networks usable for platform-funded runs.
	TestnetMarkers = []string{"sepolia", "testnet", "fuji", "amoy", "goerli", "devnet"}

	// Free-tier admission caps.
	FreeDailyLimit        = 5
	FreeWeeklyLimit       = 20
	UserCooldown          = 300 * time.Second
	IPHourlyLimit         = 10
	ServiceDailyLimit     = 100
	ServiceMinSpacing     = 3600 * time.Second
	DailySpendBudget      = "100000000"
	SpendBudgetWarnFactor = 0.5

	// MaxSubEndpoints caps the declared sub-endpoints exercised per run.
	MaxSubEndpoints = 3

	// Scoring weights and threshold for validation runs.
	ScoreStatusOK     = 30.0
	ScoreSchemaValid  = 40.0
	ScoreFastResponse = 20.0
	ScoreNoError      = 10.0
	FastResponseMs    = int64(2000)
	VerifiedThreshold = 70.0
)
