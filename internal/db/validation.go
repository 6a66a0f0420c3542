package db

import (
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/common/util"
	"github.com/PatrickKish1/x402-manager-backend/model"
)

func (d *DB) CreateValidationRequest(req *model.ValidationRequest) error {
	if err := d.db.Create(req).Error; err != nil {
		d.logger.WithFields(logrus.Fields{
			"error":      err,
			"request_id": req.RequestID,
		}).Error("Failed to create validation request")
		return err
	}
	return nil
}

func (d *DB) GetValidationRequest(requestID string) (*model.ValidationRequest, error) {
	var req model.ValidationRequest
	ret := d.db.Where(&model.ValidationRequest{RequestID: requestID}).First(&req)
	if errors.Is(ret.Error, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound(errors.Wrapf(ret.Error, "validation request %s", requestID))
	}
	if ret.Error != nil {
		return nil, ret.Error
	}
	return &req, nil
}

// CompleteValidationRequest transitions a pending run to completed.
func (d *DB) CompleteValidationRequest(requestID, tokensSpent, results string) error {
	return d.finishValidationRequest(requestID, model.ValidationRequest{
		Status:      model.ValidationStatusCompleted,
		TokensSpent: tokensSpent,
		Results:     &results,
	})
}

// FailValidationRequest transitions a pending run to failed with the causing
// message. A run is never left pending on exception.
func (d *DB) FailValidationRequest(requestID, errMsg string) error {
	return d.finishValidationRequest(requestID, model.ValidationRequest{
		Status: model.ValidationStatusFailed,
		Error:  &errMsg,
	})
}

func (d *DB) finishValidationRequest(requestID string, update model.ValidationRequest) error {
	ret := d.db.Model(&model.ValidationRequest{}).
		Where("request_id = ? AND status = ?", requestID, model.ValidationStatusPending).
		Updates(update)
	if ret.Error != nil {
		d.logger.WithFields(logrus.Fields{
			"error":      ret.Error,
			"request_id": requestID,
		}).Error("Failed to finish validation request")
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return errors.Errorf("validation request %s is not pending", requestID)
	}
	return nil
}

func (d *DB) CreateTestCaseResult(res *model.TestCaseResult) error {
	if err := d.db.Create(res).Error; err != nil {
		d.logger.WithFields(logrus.Fields{
			"error":      err,
			"request_id": res.ValidationRequestID,
		}).Error("Failed to create test case result")
		return err
	}
	return nil
}

func (d *DB) ListTestCaseResults(requestID string) ([]model.TestCaseResult, error) {
	list := []model.TestCaseResult{}
	err := d.db.Where("validation_request_id = ?", requestID).
		Order("id ASC").Find(&list).Error
	return list, err
}

// UpsertValidatedService writes the current aggregate verdict for a service.
func (d *DB) UpsertValidatedService(vs *model.ValidatedService) error {
	err := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "score", "valid_votes", "invalid_votes",
			"last_validator", "last_validated_at", "results", "updated_at",
		}),
	}).Create(vs).Error
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"error":      err,
			"service_id": vs.ServiceID,
		}).Error("Failed to upsert validated service")
	}
	return err
}

func (d *DB) GetValidatedService(serviceID string) (*model.ValidatedService, error) {
	var vs model.ValidatedService
	ret := d.db.Where(&model.ValidatedService{ServiceID: serviceID}).First(&vs)
	if errors.Is(ret.Error, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound(errors.Wrapf(ret.Error, "validated service %s", serviceID))
	}
	if ret.Error != nil {
		return nil, ret.Error
	}
	return &vs, nil
}

// ValidationWindowQuery selects validation requests within a time window for
// admission accounting. All counts come from durable rows so decisions are
// consistent across restarts and instances.
type ValidationWindowQuery struct {
	Requester   *string
	RequesterIP *string
	ServiceID   *string
	Mode        *string
	Since       time.Time
}

func (d *DB) windowQuery(q ValidationWindowQuery) *gorm.DB {
	query := d.db.Model(&model.ValidationRequest{}).Where("created_at >= ?", q.Since)
	if q.Requester != nil {
		query = query.Where("requester = ?", *q.Requester)
	}
	if q.RequesterIP != nil {
		query = query.Where("requester_ip = ?", *q.RequesterIP)
	}
	if q.ServiceID != nil {
		query = query.Where("service_id = ?", *q.ServiceID)
	}
	if q.Mode != nil {
		query = query.Where("mode = ?", *q.Mode)
	}
	return query
}

func (d *DB) CountValidationRequests(q ValidationWindowQuery) (int64, error) {
	var count int64
	if err := d.windowQuery(q).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// OldestValidationRequestTime returns the creation time of the oldest row in
// the window, or nil when the window is empty.
func (d *DB) OldestValidationRequestTime(q ValidationWindowQuery) (*time.Time, error) {
	var req model.ValidationRequest
	ret := d.windowQuery(q).Order("created_at ASC").First(&req)
	if errors.Is(ret.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if ret.Error != nil {
		return nil, ret.Error
	}
	return req.CreatedAt, nil
}

// LatestValidationRequestTime returns the creation time of the newest row in
// the window, or nil when the window is empty.
func (d *DB) LatestValidationRequestTime(q ValidationWindowQuery) (*time.Time, error) {
	var req model.ValidationRequest
	ret := d.windowQuery(q).Order("created_at DESC").First(&req)
	if errors.Is(ret.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if ret.Error != nil {
		return nil, ret.Error
	}
	return req.CreatedAt, nil
}

// SumTokensSpentSince totals the platform spend over the window. Amounts are
// decimal strings, so summation happens in Go rather than in SQL.
func (d *DB) SumTokensSpentSince(since time.Time) (*big.Int, error) {
	var values []string
	err := d.db.Model(&model.ValidationRequest{}).
		Where("created_at >= ? AND mode = ?", since, model.ValidationModeFree).
		Pluck("tokens_spent", &values).Error
	if err != nil {
		return nil, err
	}
	return util.SumStrings(values)
}
