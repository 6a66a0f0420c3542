// Package verifier validates inbound payment proofs for the gateway. The
// checks run cheapest first and fail fast; the nonce is consumed only after
// the signature recovers, so a failed verification never burns a nonce.
package verifier

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/log"
	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

// Expected carries the service's published terms a proof must match exactly.
type Expected struct {
	Amount    string
	Recipient string
	Network   string
}

type Verifier struct {
	db     *db.DB
	logger log.Logger
	now    func() time.Time
}

func New(database *db.DB, logger log.Logger) *Verifier {
	return &Verifier{db: database, logger: logger, now: time.Now}
}

// Verify runs the six proof checks in order and consumes the nonce on
// success. Datastore failures reject the request: this path gates money
// movement, so it fails closed. The returned error carries internal detail
// for logging only; callers map it to a generic client message.
func (v *Verifier) Verify(ctx context.Context, proof *x402.PaymentProof, expected Expected, serviceID string) error {
	if proof.Amount != expected.Amount {
		return errors.VerificationFailed(errors.Errorf("amount mismatch: got %s, want %s", proof.Amount, expected.Amount))
	}

	if !strings.EqualFold(proof.Recipient, expected.Recipient) {
		return errors.VerificationFailed(errors.Errorf("recipient mismatch: got %s", proof.Recipient))
	}

	if proof.Network != expected.Network {
		return errors.VerificationFailed(errors.Errorf("network mismatch: got %s, want %s", proof.Network, expected.Network))
	}

	now := v.now()
	age := now.Unix() - proof.Timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > constant.ProofFreshnessWindow {
		return errors.VerificationFailed(errors.Errorf("proof timestamp outside freshness window: %ds", age))
	}

	used, err := v.db.NonceUsed(proof.Nonce, proof.From)
	if err != nil {
		return errors.VerificationFailed(errors.Wrap(err, "check nonce"))
	}
	if used {
		return errors.VerificationFailed(errors.Errorf("nonce already consumed for %s", proof.From))
	}

	if err := v.verifySignature(proof); err != nil {
		return err
	}

	// All checks passed; record the nonce. A unique-constraint race with a
	// concurrent request has exactly one winner.
	usedAt := now
	if err := v.db.ConsumeNonce(&model.ConsumedNonce{
		Nonce:       proof.Nonce,
		UserAddress: proof.From,
		ServiceID:   serviceID,
		Amount:      proof.Amount,
		Network:     proof.Network,
		UsedAt:      usedAt,
		ExpiresAt:   usedAt.Add(constant.NonceTTL),
	}); err != nil {
		if errors.Is(err, db.ErrNonceUsed) {
			return errors.VerificationFailed(errors.Errorf("nonce consumed concurrently for %s", proof.From))
		}
		return errors.VerificationFailed(errors.Wrap(err, "consume nonce"))
	}

	v.logger.WithFields(logrus.Fields{
		"user":       proof.From,
		"service_id": serviceID,
		"amount":     proof.Amount,
	}).Info("Payment proof verified")
	return nil
}

// verifySignature recovers the signer over the canonical JSON message and
// compares it against the claimed payer address.
func (v *Verifier) verifySignature(proof *x402.PaymentProof) error {
	message, err := proof.CanonicalMessage()
	if err != nil {
		return errors.VerificationFailed(err)
	}

	sig, err := hexutil.Decode(proof.Signature)
	if err != nil {
		return errors.VerificationFailed(errors.Wrap(err, "decode signature"))
	}
	if len(sig) != crypto.SignatureLength {
		return errors.VerificationFailed(errors.Errorf("invalid signature length %d", len(sig)))
	}

	// Accept both 0/1 and 27/28 recovery ids.
	recSig := make([]byte, crypto.SignatureLength)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), recSig)
	if err != nil {
		return errors.VerificationFailed(errors.Wrap(err, "recover signer"))
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(proof.From) {
		return errors.VerificationFailed(errors.Errorf("signature recovers to %s, claimed %s", recovered.Hex(), proof.From))
	}
	return nil
}
