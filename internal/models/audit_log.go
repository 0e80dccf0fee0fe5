package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Действия, фиксируемые в журнале аудита
const (
	AuditActionRideCreate = "RIDE_CREATE"
	AuditActionRideAssign = "RIDE_ASSIGN"
	AuditActionRideStatus = "RIDE_STATUS"
	AuditActionRideCancel = "RIDE_CANCEL"
	AuditActionRideRate   = "RIDE_RATE"
	AuditActionLogin      = "LOGIN"
)

// AuditLog - запись журнала аудита; пишется в той же транзакции,
// что и само изменение
type AuditLog struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Timestamp time.Time `json:"timestamp" gorm:"column:timestamp;autoCreateTime;type:timestamp with time zone;index"`
	UserEmail string    `json:"user_email" gorm:"column:user_email;not null;type:varchar(255)"`
	UserRole  string    `json:"user_role" gorm:"column:user_role;not null;type:varchar(50)"`
	Action    string    `json:"action" gorm:"column:action;not null;type:varchar(100);index"`
	TargetID  string    `json:"target_id,omitempty" gorm:"column:target_id;type:varchar(36)"`
	Details   string    `json:"details,omitempty" gorm:"column:details;type:text"`
}

// BeforeCreate генерирует UUID для новой записи журнала
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
