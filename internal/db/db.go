package db

import (
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/PatrickKish1/x402-manager-backend/common/log"
	"github.com/PatrickKish1/x402-manager-backend/config"
)

type DB struct {
	db     *gorm.DB
	logger log.Logger
}

// NewDB opens the configured MySQL database.
func NewDB(conf *config.Config, logger log.Logger) (*DB, error) {
	db, err := gorm.Open(mysql.Open(conf.Database.Provider), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return New(db, logger), nil
}

// New wraps an already opened gorm handle. Tests use this with a sqlite
// dialector.
func New(db *gorm.DB, logger log.Logger) *DB {
	return &DB{db: db, logger: logger}
}

func (d *DB) Migrate() error {
	d.logger.Info("Starting database migration")
	if err := d.migrate(); err != nil {
		d.logger.WithFields(logrus.Fields{"error": err}).Error("Failed to migrate database")
		return err
	}
	d.logger.Info("Database migration completed")
	return nil
}
