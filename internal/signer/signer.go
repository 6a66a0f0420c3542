// Package signer builds and signs payment authorizations with the
// platform's per-network key material. Two variants exist: the typed-data
// "exact" scheme authorization used to pay third-party services, and a
// legacy plain-JSON payment proof used by the internal payment channel. They
// share nonce generation and nothing else.
package signer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/common/util"
	"github.com/PatrickKish1/x402-manager-backend/config"
	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/x402"
)

type Signer struct {
	networks config.Networks
	logger   log.Logger
}

func New(networks config.Networks, logger log.Logger) *Signer {
	return &Signer{networks: networks, logger: logger}
}

// Address returns the platform signing address for a network.
func (s *Signer) Address(network string) (common.Address, error) {
	key, err := s.networks[network].PrivateKey()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// SignAuthorization builds a time-boxed TransferWithAuthorization message
// for the accepted payment terms and signs it under the asset's typed-data
// domain with the platform key for the given network. A missing key is a
// hard failure; no other network's key is ever substituted.
func (s *Signer) SignAuthorization(ctx context.Context, accept x402.PaymentRequirements, network string, from *common.Address) (*x402.ExactPayment, error) {
	conf, ok := s.networks[network]
	if !ok {
		return nil, errors.ConfigurationMissing(errors.Wrapf(config.ErrNoValidatorKey, "network %s", network))
	}
	key, err := conf.PrivateKey()
	if err != nil {
		return nil, err
	}

	sender := crypto.PubkeyToAddress(key.PublicKey)
	if from != nil {
		sender = *from
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	validAfter := now.Add(-constant.ClockSkewTolerance).Unix()
	timeout := accept.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	validBefore := now.Add(time.Duration(timeout) * time.Second).Unix()

	auth := x402.Authorization{
		From:        sender.Hex(),
		To:          accept.PayTo,
		Value:       accept.MaxAmountRequired,
		ValidAfter:  fmt.Sprintf("%d", validAfter),
		ValidBefore: fmt.Sprintf("%d", validBefore),
		Nonce:       nonce,
	}

	typedData := authorizationTypedData(accept, conf.ChainID, auth)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, errors.Wrap(err, "hash typed data")
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, errors.Wrap(err, "sign authorization")
	}
	sig[64] += 27

	s.logger.WithFields(logrus.Fields{
		"network": network,
		"to":      accept.PayTo,
		"value":   accept.MaxAmountRequired,
	}).Debug("Signed payment authorization")

	return &x402.ExactPayment{
		Signature:     hexutil.Encode(sig),
		Authorization: auth,
		Network:       network,
	}, nil
}

func authorizationTypedData(accept x402.PaymentRequirements, chainID int64, auth x402.Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              accept.Extra.Name,
			Version:           accept.Extra.Version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: accept.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

// newNonce returns a fresh random 32-byte nonce. Nonces are generated
// locally per signing call; no cross-call coordination is required.
func newNonce() (string, error) {
	nonce, err := util.RandomHex(32)
	if err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}
	return nonce, nil
}
