package db

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PatrickKish1/x402-manager-backend/common/errors"
	"github.com/PatrickKish1/x402-manager-backend/model"
)

// GetService resolves a registered upstream by owner and service id.
func (d *DB) GetService(owner, serviceID string) (*model.Service, error) {
	var svc model.Service
	ret := d.db.Where(&model.Service{Owner: owner, ServiceID: serviceID}).First(&svc)
	if errors.Is(ret.Error, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound(errors.Wrapf(ret.Error, "service %s/%s", owner, serviceID))
	}
	if ret.Error != nil {
		d.logger.WithFields(logrus.Fields{
			"error":      ret.Error,
			"owner":      owner,
			"service_id": serviceID,
		}).Error("Failed to get service")
		return nil, ret.Error
	}
	return &svc, nil
}

// GetServiceByID resolves a registered upstream by service id alone, for
// callers that do not know the owner (validation engine, votes).
func (d *DB) GetServiceByID(serviceID string) (*model.Service, error) {
	var svc model.Service
	ret := d.db.Where(&model.Service{ServiceID: serviceID}).First(&svc)
	if errors.Is(ret.Error, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound(errors.Wrapf(ret.Error, "service %s", serviceID))
	}
	if ret.Error != nil {
		return nil, ret.Error
	}
	return &svc, nil
}

func (d *DB) CreateService(svc *model.Service) error {
	ret := d.db.Create(svc)
	return ret.Error
}

func (d *DB) ListService(opts *model.ServiceListOptions) ([]model.Service, error) {
	list := []model.Service{}
	query := d.db.Model(&model.Service{})
	if opts != nil {
		if opts.Owner != nil {
			query = query.Where("owner = ?", *opts.Owner)
		}
		if opts.Status != nil {
			query = query.Where("status = ?", *opts.Status)
		}
	}
	if err := query.Order("created_at DESC").Find(&list).Error; err != nil {
		d.logger.WithFields(logrus.Fields{
			"error": err,
			"opts":  opts,
		}).Error("Failed to list services")
		return nil, err
	}
	return list, nil
}
