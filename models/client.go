package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a tenant. Every other row carries its id in client_id.
type Client struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ScheduleConfig drives the automatic daily closure of one tenant.
type ScheduleConfig struct {
	ID               int       `gorm:"primary_key" json:"id"`
	ClientId         string    `gorm:"size:64;not null;uniqueIndex" json:"client_id"`
	AutoCloseEnabled bool      `gorm:"not null;default:false" json:"auto_close_enabled"`
	CloseHour        int       `gorm:"not null" json:"close_hour"`
	CloseMinute      int       `gorm:"not null" json:"close_minute"`
	Timezone         string    `gorm:"size:64" json:"timezone"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
