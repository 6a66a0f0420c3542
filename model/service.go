package model

import (
	"gorm.io/plugin/soft_delete"
)

const (
	ServiceStatusActive      = "active"
	ServiceStatusInactive    = "inactive"
	ServiceStatusMaintenance = "maintenance"
)

// Service is a registered upstream API. Created by service registration;
// read-only to the gateway and validation engine.
type Service struct {
	Model
	ServiceID       string                `gorm:"type:varchar(64);not null;uniqueIndex:deleted_owner_service" json:"serviceId" binding:"required" immutable:"true"`
	Owner           string                `gorm:"type:varchar(64);not null;uniqueIndex:deleted_owner_service" json:"owner" binding:"required" immutable:"true"`
	Name            string                `gorm:"type:varchar(255);not null" json:"name" binding:"required"`
	Description     string                `gorm:"type:varchar(1024);not null;default:''" json:"description"`
	UpstreamURL     string                `gorm:"type:varchar(1024);not null" json:"upstreamUrl" binding:"required"`
	PayTo           string                `gorm:"type:varchar(64);not null" json:"payTo" binding:"required"`
	PricePerRequest string                `gorm:"type:varchar(78);not null" json:"pricePerRequest" binding:"required"`
	Network         string                `gorm:"type:varchar(64);not null" json:"network" binding:"required"`
	TokenAddress    string                `gorm:"type:varchar(64);not null" json:"tokenAddress" binding:"required"`
	TokenDecimals   uint8                 `gorm:"type:tinyint unsigned;not null;default:6" json:"tokenDecimals"`
	TokenName       string                `gorm:"type:varchar(64);not null" json:"tokenName"`
	TokenVersion    string                `gorm:"type:varchar(16);not null;default:'2'" json:"tokenVersion"`
	Status          string                `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	Endpoints       StringSlice           `gorm:"type:json" json:"endpoints"`
	DeletedAt       soft_delete.DeletedAt `gorm:"softDelete:nano;not null;default:0;uniqueIndex:deleted_owner_service" json:"-" readonly:"true"`
}

type ServiceList struct {
	Metadata ListMeta  `json:"metadata"`
	Items    []Service `json:"items"`
}

type ServiceListOptions struct {
	Owner  *string `form:"owner"`
	Status *string `form:"status"`
}
