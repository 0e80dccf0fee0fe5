package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Статусы транспортного средства
const (
	VehicleStatusAvailable   = "AVAILABLE"
	VehicleStatusMaintenance = "MAINTENANCE"
	VehicleStatusRetired     = "RETIRED"
)

type Vehicle struct {
	ID                  string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	LicensePlate        string     `json:"license_plate" gorm:"column:license_plate;unique;not null;type:varchar(50)"`
	Model               string     `json:"model" gorm:"column:model;not null;type:varchar(100)"`
	Brand               string     `json:"brand" gorm:"column:brand;not null;type:varchar(100)"`
	Type                string     `json:"type" gorm:"column:type;not null;type:varchar(50)"`
	Status              string     `json:"status" gorm:"column:status;not null;default:'AVAILABLE';type:varchar(50)"`
	NextMaintenanceDate *time.Time `json:"next_maintenance_date,omitempty" gorm:"column:next_maintenance_date;type:date;default:null"`
}

// BeforeCreate генерирует UUID для нового транспортного средства
func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
