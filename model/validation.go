package model

import "time"

const (
	ValidationModeFree     = "free"
	ValidationModeUserPaid = "user-paid"

	ValidationStatusPending   = "pending"
	ValidationStatusCompleted = "completed"
	ValidationStatusFailed    = "failed"

	ValidatedStatusPending  = "pending"
	ValidatedStatusVerified = "verified"
	ValidatedStatusFailed   = "failed"
	ValidatedStatusDisputed = "disputed"
)

// ValidationRequest is one row per validation run. Created pending,
// transitions to completed or failed exactly once.
type ValidationRequest struct {
	Model
	RequestID    string  `gorm:"type:varchar(36);not null;uniqueIndex" json:"requestId" immutable:"true"`
	ServiceID    string  `gorm:"type:varchar(64);not null;index" json:"serviceId" immutable:"true"`
	Requester    string  `gorm:"type:varchar(64);not null;index" json:"requester" immutable:"true"`
	RequesterIP  string  `gorm:"type:varchar(64);not null;default:'';index" json:"requesterIp" immutable:"true"`
	Mode         string  `gorm:"type:varchar(16);not null;index" json:"mode" immutable:"true"`
	Status       string  `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	TestnetChain *string `gorm:"type:varchar(64)" json:"testnetChain"`
	TokensSpent  string  `gorm:"type:varchar(78);not null;default:'0'" json:"tokensSpent"`
	Results      *string `gorm:"type:json" json:"results"`
	Error        *string `gorm:"type:varchar(1024)" json:"error"`
}

// TestCaseResult is one row per endpoint exercised within a run.
type TestCaseResult struct {
	Model
	ValidationRequestID string `gorm:"type:varchar(36);not null;index" json:"validationRequestId" immutable:"true"`
	Endpoint            string `gorm:"type:varchar(1024);not null" json:"endpoint" immutable:"true"`
	Input               string `gorm:"type:json" json:"input" immutable:"true"`
	ExpectedSchema      string `gorm:"type:json" json:"expectedSchema" immutable:"true"`
	ActualOutput        string `gorm:"type:text" json:"actualOutput" immutable:"true"`
	Passed              bool   `gorm:"not null" json:"passed" immutable:"true"`
	SchemaValid         bool   `gorm:"not null" json:"schemaValid" immutable:"true"`
	StatusCode          int    `gorm:"not null" json:"statusCode" immutable:"true"`
	ResponseTimeMs      int64  `gorm:"not null" json:"responseTimeMs" immutable:"true"`
	Error               string `gorm:"type:varchar(1024);not null;default:''" json:"error" immutable:"true"`
}

// ValidatedService holds the current aggregate verdict per service.
// Upserted after every run or vote; never deleted.
type ValidatedService struct {
	Model
	ServiceID       string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"serviceId" immutable:"true"`
	Status          string     `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Score           float64    `gorm:"not null;default:0" json:"score"`
	ValidVotes      int        `gorm:"not null;default:0" json:"validVotes"`
	InvalidVotes    int        `gorm:"not null;default:0" json:"invalidVotes"`
	LastValidator   string     `gorm:"type:varchar(64);not null;default:''" json:"lastValidator"`
	LastValidatedAt *time.Time `json:"lastValidatedAt"`
	Results         *string    `gorm:"type:json" json:"results"`
}

type ValidationRequestListOptions struct {
	ServiceID *string `form:"serviceId"`
	Requester *string `form:"requester"`
	Status    *string `form:"status"`
}
