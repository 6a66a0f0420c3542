package signer

import (
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/config"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

// LegacySigner signs the plain-JSON payment proof accepted by the gateway's
// verifier. Retained for the internal testnet payment channel; not
// interchangeable with the typed-data authorization.
type LegacySigner struct {
	networks config.Networks
	logger   log.Logger
}

func NewLegacy(networks config.Networks, logger log.Logger) *LegacySigner {
	return &LegacySigner{networks: networks, logger: logger}
}

// SignPayment produces a proof over the canonical JSON message
// {amount, token, recipient, network, timestamp, nonce} using the platform
// key for the given network.
func (s *LegacySigner) SignPayment(network, amount, token, recipient string) (*x402.PaymentProof, error) {
	conf, ok := s.networks[network]
	if !ok {
		return nil, errors.ConfigurationMissing(errors.Wrapf(config.ErrNoValidatorKey, "network %s", network))
	}
	key, err := conf.PrivateKey()
	if err != nil {
		return nil, err
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	proof := &x402.PaymentProof{
		Amount:    amount,
		Token:     token,
		Recipient: recipient,
		Network:   network,
		Timestamp: time.Now().Unix(),
		Nonce:     nonce,
		From:      crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}

	message, err := proof.CanonicalMessage()
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, errors.Wrap(err, "sign payment message")
	}
	sig[64] += 27
	proof.Signature = hexutil.Encode(sig)

	return proof, nil
}
