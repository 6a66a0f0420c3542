package x402

import (
	"encoding/base64"
	"encoding/json"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	constant "github.com/PatrickKish1/x402-manager-backend/const"
)

// signedMessage is the canonical subset of a PaymentProof covered by its
// signature. Field order is fixed by the struct declaration, which keeps the
// serialized form stable between signer and verifier.
type signedMessage struct {
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
	Network   string `json:"network"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// CanonicalMessage returns the exact bytes the proof's signature covers.
func (p *PaymentProof) CanonicalMessage() ([]byte, error) {
	msg := signedMessage{
		Amount:    p.Amount,
		Token:     p.Token,
		Recipient: p.Recipient,
		Network:   p.Network,
		Timestamp: p.Timestamp,
		Nonce:     p.Nonce,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal signed message")
	}
	return data, nil
}

// PaymentHeader encodes the legacy proof for the X-Payment header.
func (p *PaymentProof) PaymentHeader() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "marshal payment proof")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader decodes an inbound X-Payment header into a legacy
// proof. Any decode failure is reported as a malformed proof without parse
// detail.
func DecodePaymentHeader(header string) (*PaymentProof, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, errors.MalformedProof(errors.Wrap(err, "decode payment header"))
	}
	var proof PaymentProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, errors.MalformedProof(errors.Wrap(err, "unmarshal payment proof"))
	}
	if proof.Signature == "" || proof.From == "" || proof.Nonce == "" {
		return nil, errors.MalformedProof(errors.New("payment proof missing required fields"))
	}
	return &proof, nil
}

// PaymentHeader encodes the exact-scheme proof in the standard x402 payload
// envelope.
func (p *ExactPayment) PaymentHeader() (string, error) {
	payload := PaymentPayload{
		X402Version: constant.X402Version,
		Scheme:      constant.SchemeExact,
		Network:     p.Network,
		Payload: ExactPayload{
			Signature:     p.Signature,
			Authorization: p.Authorization,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal payment payload")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentPayload decodes an exact-scheme payment envelope.
func DecodePaymentPayload(header string) (*PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, errors.MalformedProof(errors.Wrap(err, "decode payment payload"))
	}
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.MalformedProof(errors.Wrap(err, "unmarshal payment payload"))
	}
	return &payload, nil
}
