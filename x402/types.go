// Package x402 defines the wire types of the x402 pay-per-request protocol:
// the payment-required (HTTP 402) response body, the payment requirements it
// enumerates, and the two payment proof variants carried in the X-Payment
// request header.
package x402

// PaymentRequiredResponse is the body of an HTTP 402 challenge. Field names
// are part of the protocol's discovery contract and must stay byte-stable.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error"`
}

// PaymentRequirements describes one way the challenged resource accepts
// payment.
type PaymentRequirements struct {
	Scheme            string           `json:"scheme"`
	Network           string           `json:"network"`
	MaxAmountRequired string           `json:"maxAmountRequired"`
	Resource          string           `json:"resource"`
	Description       string           `json:"description"`
	MimeType          string           `json:"mimeType"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds"`
	Asset             string           `json:"asset"`
	Extra             RequirementExtra `json:"extra"`
}

// RequirementExtra carries the typed-data domain parameters plus service
// routing metadata.
type RequirementExtra struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ServiceName     string `json:"serviceName"`
	ServiceID       string `json:"serviceId"`
	Endpoint        string `json:"endpoint"`
	ProviderAddress string `json:"providerAddress"`
}

// PaymentProof is the legacy proof variant accepted by the gateway: a plain
// signed JSON message. It is not interchangeable with ExactPayment.
type PaymentProof struct {
	Signature string `json:"signature"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
	Network   string `json:"network"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
	From      string `json:"from"`
}

// Authorization is the EIP-3009 TransferWithAuthorization message signed
// under the asset's typed-data domain.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayment is the "exact" scheme proof variant: a typed-data
// authorization plus its signature, wrapped in the standard x402 payload
// envelope when carried on the wire.
type ExactPayment struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
	Network       string        `json:"network"`
}

// PaymentPayload is the wire envelope for an ExactPayment header.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// ExactPayload is the scheme-specific payload inside a PaymentPayload.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// SignedAuthorization is the capability shared by the two proof variants.
// The variants are distinct protocols sharing only nonce generation; callers
// must never coerce one into the other.
type SignedAuthorization interface {
	// Scheme names the proof variant.
	Scheme() string
	// PaymentHeader encodes the proof for the X-Payment request header.
	PaymentHeader() (string, error)
}

func (p *PaymentProof) Scheme() string { return "legacy" }

func (p *ExactPayment) Scheme() string { return "exact" }
