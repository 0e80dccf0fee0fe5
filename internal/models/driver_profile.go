package models

import (
	"time"
)

// DriverProfile хранит данные водителя: номерной знак, адрес и средний рейтинг
type DriverProfile struct {
	UserID         string    `json:"user_id" gorm:"primaryKey;type:varchar(36)"`
	LicensePlate   string    `json:"license_plate" gorm:"column:license_plate;not null;type:varchar(50)"`
	Address        string    `json:"address,omitempty" gorm:"column:address;type:text"`
	VehicleID      *string   `json:"vehicle_id,omitempty" gorm:"column:vehicle_id;type:varchar(36);default:null"`
	AvgReviewScore float64   `json:"avg_review_score" gorm:"column:avg_review_score;not null;default:5.0;type:numeric(3,2)"`
	DateCreated    time.Time `json:"date_created" gorm:"column:date_created;autoCreateTime;type:timestamp with time zone"`
}

type DriverProfileResponse struct {
	UserID         string    `json:"user_id"`
	LicensePlate   string    `json:"license_plate"`
	Address        string    `json:"address,omitempty"`
	VehicleID      *string   `json:"vehicle_id,omitempty"`
	AvgReviewScore float64   `json:"avg_review_score"`
	DateCreated    time.Time `json:"date_created"`
}
