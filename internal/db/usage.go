package db

import (
	"github.com/sirupsen/logrus"

	"github.com/PatrickKish1/x402-manager-backend/model"
)

func (d *DB) CreateUsageRecord(rec *model.UsageRecord) error {
	if err := d.db.Create(rec).Error; err != nil {
		d.logger.WithFields(logrus.Fields{
			"error":      err,
			"service_id": rec.ServiceID,
			"user":       rec.UserAddress,
		}).Error("Failed to create usage record")
		return err
	}
	return nil
}

func (d *DB) ListUsageRecord(opts *model.UsageRecordListOptions) ([]model.UsageRecord, error) {
	list := []model.UsageRecord{}
	query := d.db.Model(&model.UsageRecord{})
	if opts != nil {
		if opts.ServiceID != nil {
			query = query.Where("service_id = ?", *opts.ServiceID)
		}
		if opts.UserAddress != nil {
			query = query.Where("user_address = ?", *opts.UserAddress)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}
	if err := query.Order("created_at DESC").Find(&list).Error; err != nil {
		d.logger.WithFields(logrus.Fields{"error": err}).Error("Failed to list usage records")
		return nil, err
	}
	return list, nil
}
