package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/PatrickKish1/x402-manager-backend/model"
)

func (d *DB) migrate() error {
	m := gormigrate.New(d.db, &gormigrate.Options{UseTransaction: false}, []*gormigrate.Migration{
		{
			ID: "create-service",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.Service{})
			},
		},
		{
			ID: "create-consumed-nonce",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.ConsumedNonce{})
			},
		},
		{
			ID: "create-usage-record",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.UsageRecord{})
			},
		},
		{
			ID: "create-validation-request",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.ValidationRequest{})
			},
		},
		{
			ID: "create-test-case-result",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.TestCaseResult{})
			},
		},
		{
			ID: "create-validated-service",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&model.ValidatedService{})
			},
		},
	})

	return m.Migrate()
}
