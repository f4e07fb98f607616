package audit

import "gorm.io/datatypes"

// Record maps to the 'audit_log' table, one row per engine decision.
type Record struct {
	ID        int64          `gorm:"column:id;primaryKey"`
	Event     string         `gorm:"column:event;index"`
	Symbol    string         `gorm:"column:symbol;index"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	Timestamp int64          `gorm:"column:timestamp;index"`
}

func (Record) TableName() string { return "audit_log" }
