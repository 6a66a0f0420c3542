package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Model struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt *time.Time `json:"createdAt" readonly:"true"`
	UpdatedAt *time.Time `json:"updatedAt" readonly:"true"`
}

type ListMeta struct {
	Total uint64 `json:"total"`
}

type StringSlice []string

func (a StringSlice) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *StringSlice) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringSlice: not []byte")
		}
		bytes = []byte(s)
	}
	return json.Unmarshal(bytes, a)
}

func PtrOf[T any](v T) *T { return &v }
