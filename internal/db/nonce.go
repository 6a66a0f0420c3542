package db

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/model"
)

// ErrNonceUsed signals that the (nonce, userAddress) pair was already
// consumed. The unique index makes concurrent consumers race to exactly one
// winner.
var ErrNonceUsed = errors.New("nonce already consumed")

// ConsumeNonce inserts the consumed-nonce row, translating a unique-index
// violation into ErrNonceUsed.
func (d *DB) ConsumeNonce(n *model.ConsumedNonce) error {
	ret := d.db.Create(n)
	if ret.Error == nil {
		return nil
	}
	if isDuplicateKey(ret.Error) {
		return ErrNonceUsed
	}
	d.logger.WithFields(logrus.Fields{
		"error": ret.Error,
		"user":  n.UserAddress,
	}).Error("Failed to consume nonce")
	return ret.Error
}

// NonceUsed reports whether the pair was already consumed.
func (d *DB) NonceUsed(nonce, userAddress string) (bool, error) {
	var count int64
	ret := d.db.Model(&model.ConsumedNonce{}).
		Where("nonce = ? AND user_address = ?", nonce, userAddress).
		Count(&count)
	if ret.Error != nil {
		return false, ret.Error
	}
	return count > 0, nil
}

// PruneExpiredNonces deletes rows past their expiry. Returns the number of
// rows removed.
func (d *DB) PruneExpiredNonces(now time.Time) (int64, error) {
	ret := d.db.Where("expires_at < ?", now).Delete(&model.ConsumedNonce{})
	if ret.Error != nil {
		d.logger.WithFields(logrus.Fields{"error": ret.Error}).Error("Failed to prune expired nonces")
		return 0, ret.Error
	}
	return ret.RowsAffected, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Fallback for drivers without error translation.
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
