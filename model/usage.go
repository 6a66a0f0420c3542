package model

// UsageRecord is one row per forwarded gateway call. Append-only; written
// after every forwarded call whether or not forwarding succeeded.
type UsageRecord struct {
	Model
	ServiceID      string `gorm:"type:varchar(64);not null;index" json:"serviceId" immutable:"true"`
	Owner          string `gorm:"type:varchar(64);not null;index" json:"owner" immutable:"true"`
	Endpoint       string `gorm:"type:varchar(1024);not null" json:"endpoint" immutable:"true"`
	Method         string `gorm:"type:varchar(16);not null" json:"method" immutable:"true"`
	UserAddress    string `gorm:"type:varchar(64);not null;index" json:"userAddress" immutable:"true"`
	Amount         string `gorm:"type:varchar(78);not null" json:"amount" immutable:"true"`
	Network        string `gorm:"type:varchar(64);not null" json:"network" immutable:"true"`
	ResponseTimeMs int64  `gorm:"not null" json:"responseTimeMs" immutable:"true"`
	StatusCode     int    `gorm:"not null" json:"statusCode" immutable:"true"`
	Error          string `gorm:"type:varchar(1024);not null;default:''" json:"error" immutable:"true"`
}

type UsageRecordList struct {
	Metadata ListMeta      `json:"metadata"`
	Items    []UsageRecord `json:"items"`
}

type UsageRecordListOptions struct {
	ServiceID   *string `form:"serviceId"`
	UserAddress *string `form:"userAddress"`
	Limit       int     `form:"limit"`
}
