// Package abuse bounds how often the platform-funded validation flow may
// run. All checks count durable rows, so decisions stay consistent across
// restarts and multiple instances.
package abuse

import (
	"context"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/common/util"
	constant "github.com/PatrickKish1/x402-manager-backend/const"
	"github.com/PatrickKish1/x402-manager-backend/internal/db"
	"github.com/PatrickKish1/x402-manager-backend/model"
	"github.com/PatrickKish1/x402-manager-backend/monitor"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

type Guard struct {
	db     *db.DB
	logger log.Logger
	// failOpen keeps the free tier available on datastore errors. The caps
	// here are defense in depth on top of the verifier's checks, which fail
	// closed.
	failOpen bool
	now      func() time.Time
}

func New(database *db.DB, failOpen bool, logger log.Logger) *Guard {
	return &Guard{db: database, logger: logger, failOpen: failOpen, now: time.Now}
}

// CheckAdmission gates a validation run. Only free (platform-funded) runs
// are capped; user-paid runs always pass. Checks run in fixed order and
// short-circuit on the first rejection.
func (g *Guard) CheckAdmission(ctx context.Context, userAddress, ip, serviceID, mode string) Decision {
	if mode != model.ValidationModeFree {
		return Decision{Allowed: true}
	}

	now := g.now()
	free := model.ValidationModeFree

	checks := []func() (*Decision, error){
		func() (*Decision, error) {
			return g.windowCap(db.ValidationWindowQuery{
				Requester: &userAddress, Mode: &free, Since: now.Add(-24 * time.Hour),
			}, constant.FreeDailyLimit, 24*time.Hour, now, true,
				"daily free validation limit reached")
		},
		func() (*Decision, error) {
			return g.windowCap(db.ValidationWindowQuery{
				Requester: &userAddress, Mode: &free, Since: now.Add(-7 * 24 * time.Hour),
			}, constant.FreeWeeklyLimit, 7*24*time.Hour, now, false,
				"weekly free validation limit reached")
		},
		func() (*Decision, error) { return g.userCooldown(userAddress, now) },
		func() (*Decision, error) {
			if ip == "" {
				return nil, nil
			}
			return g.windowCap(db.ValidationWindowQuery{
				RequesterIP: &ip, Mode: &free, Since: now.Add(-time.Hour),
			}, constant.IPHourlyLimit, time.Hour, now, false,
				"hourly validation limit reached for this address")
		},
		func() (*Decision, error) {
			return g.windowCap(db.ValidationWindowQuery{
				ServiceID: &serviceID, Since: now.Add(-24 * time.Hour),
			}, constant.ServiceDailyLimit, 24*time.Hour, now, false,
				"daily validation limit reached for this service")
		},
		func() (*Decision, error) { return g.serviceSpacing(serviceID, now) },
		func() (*Decision, error) { return g.spendBudget(now) },
	}

	for _, check := range checks {
		denied, err := check()
		if err != nil {
			return g.datastoreFailure(err)
		}
		if denied != nil {
			monitor.AdmissionDeniedCount.Inc()
			g.logger.WithFields(logrus.Fields{
				"user":       userAddress,
				"service_id": serviceID,
				"reason":     denied.Reason,
			}).Info("Free validation denied")
			return *denied
		}
	}

	return Decision{Allowed: true}
}

func (g *Guard) windowCap(q db.ValidationWindowQuery, limit int, window time.Duration, now time.Time, dailyReset bool, reason string) (*Decision, error) {
	count, err := g.db.CountValidationRequests(q)
	if err != nil {
		return nil, err
	}
	if count < int64(limit) {
		return nil, nil
	}

	retryAfter := 0
	oldest, err := g.db.OldestValidationRequestTime(q)
	if err != nil {
		return nil, err
	}
	if oldest != nil {
		retryAfter = int(oldest.Add(window).Sub(now).Seconds())
	}
	if dailyReset {
		// The daily cap resets at UTC midnight; never report a longer wait.
		if untilMidnight := secondsUntilUTCMidnight(now); retryAfter == 0 || untilMidnight < retryAfter {
			retryAfter = untilMidnight
		}
	}
	if retryAfter < 1 {
		retryAfter = 1
	}

	return &Decision{Allowed: false, Reason: reason, RetryAfterSeconds: retryAfter}, nil
}

// userCooldown enforces the minimum spacing since the user's last run of any
// mode.
func (g *Guard) userCooldown(userAddress string, now time.Time) (*Decision, error) {
	last, err := g.db.LatestValidationRequestTime(db.ValidationWindowQuery{
		Requester: &userAddress, Since: now.Add(-constant.UserCooldown),
	})
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	retryAfter := int(last.Add(constant.UserCooldown).Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Decision{
		Allowed:           false,
		Reason:            "please wait before requesting another validation",
		RetryAfterSeconds: retryAfter,
	}, nil
}

func (g *Guard) serviceSpacing(serviceID string, now time.Time) (*Decision, error) {
	last, err := g.db.LatestValidationRequestTime(db.ValidationWindowQuery{
		ServiceID: &serviceID, Since: now.Add(-constant.ServiceMinSpacing),
	})
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	retryAfter := int(last.Add(constant.ServiceMinSpacing).Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Decision{
		Allowed:           false,
		Reason:            "service was validated recently",
		RetryAfterSeconds: retryAfter,
	}, nil
}

// spendBudget enforces the global rolling-24h token budget for platform-
// funded runs, warning once past half of it.
func (g *Guard) spendBudget(now time.Time) (*Decision, error) {
	spent, err := g.db.SumTokensSpentSince(now.Add(-24 * time.Hour))
	if err != nil {
		return nil, err
	}
	budget, err := util.ParseBigInt(constant.DailySpendBudget)
	if err != nil {
		return nil, err
	}

	warnAt := new(big.Float).Mul(new(big.Float).SetInt(budget), big.NewFloat(constant.SpendBudgetWarnFactor))
	if new(big.Float).SetInt(spent).Cmp(warnAt) >= 0 {
		g.logger.WithFields(logrus.Fields{
			"spent":  spent.String(),
			"budget": budget.String(),
		}).Warn("Free validation spend passed half of the daily budget")
	}

	if spent.Cmp(budget) >= 0 {
		return &Decision{
			Allowed:           false,
			Reason:            "daily validation budget exhausted",
			RetryAfterSeconds: secondsUntilUTCMidnight(now),
		}, nil
	}
	return nil, nil
}

// datastoreFailure applies the configured availability policy. Failing open
// here is deliberate: the verifier's checks downstream still gate money
// movement.
func (g *Guard) datastoreFailure(err error) Decision {
	g.logger.WithFields(logrus.Fields{"error": err}).Error("Admission check datastore failure")
	if g.failOpen {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Reason: "admission temporarily unavailable", RetryAfterSeconds: 60}
}

func secondsUntilUTCMidnight(now time.Time) int {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	secs := int(midnight.Sub(utc).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
