package model

import (
	"time"

	"gorm.io/datatypes"
)

// ArchivedOrderModel is the audit row for an order that reached a
// terminal state. Quantities are stored as decimal strings.
type ArchivedOrderModel struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	OrderID       int64  `gorm:"uniqueIndex;not null"`
	Level         string `gorm:"size:16;index;not null"`
	Instrument    string `gorm:"size:32;index;not null"`
	Contract      string `gorm:"size:16"`
	Account       string `gorm:"size:32"`
	OrderType     string `gorm:"size:16"`
	Subtype       string `gorm:"size:16"`
	Trade         string `gorm:"size:40"`
	Fill          string `gorm:"size:40"`
	State         string `gorm:"size:24;index"`
	ParentID      int64
	Children      datatypes.JSON
	BrokerOrderID string `gorm:"size:64"`
	PlacedAt      time.Time
	FinishedAt    time.Time
	ArchivedAt    time.Time `gorm:"autoCreateTime"`
}

func (ArchivedOrderModel) TableName() string { return "archived_orders" }

// PositionBreakModel is one reported external position break.
type PositionBreakModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Instrument string `gorm:"size:32;index;not null"`
	Contract   string `gorm:"size:16"`
	Account    string `gorm:"size:32"`
	Stacked    string `gorm:"size:40"`
	Reported   string `gorm:"size:40"`
	DetectedAt time.Time `gorm:"index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (PositionBreakModel) TableName() string { return "position_breaks" }
