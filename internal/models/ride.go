package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type RideStatus string

const (
	RideStatusPending         RideStatus = "PENDING"            // Новая заявка, ждет назначения водителя
	RideStatusAssigned        RideStatus = "ASSIGNED"           // Водитель назначен офисом
	RideStatusEnRouteToPickup RideStatus = "EN_ROUTE_TO_PICKUP" // Водитель выехал к пациенту
	RideStatusArrivedAtPickup RideStatus = "ARRIVED_AT_PICKUP"  // Водитель прибыл к пациенту
	RideStatusInProgress      RideStatus = "IN_PROGRESS"        // Пациент в пути
	RideStatusCompleted       RideStatus = "COMPLETED"          // Поездка завершена
	RideStatusCancelled       RideStatus = "CANCELLED"          // Заявка отменена
)

// rideTransitions - таблица допустимых переходов статуса.
// Линейная цепочка с единственной ранней развилкой в CANCELLED.
var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusPending:         {RideStatusAssigned, RideStatusCancelled},
	RideStatusAssigned:        {RideStatusEnRouteToPickup, RideStatusCancelled},
	RideStatusEnRouteToPickup: {RideStatusArrivedAtPickup},
	RideStatusArrivedAtPickup: {RideStatusInProgress},
	RideStatusInProgress:      {RideStatusCompleted},
	RideStatusCompleted:       {},
	RideStatusCancelled:       {},
}

// CanTransition проверяет, допустим ли переход из статуса from в статус to
func CanTransition(from, to RideStatus) bool {
	for _, next := range rideTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, является ли статус конечным
func (s RideStatus) IsTerminal() bool {
	return len(rideTransitions[s]) == 0
}

// IsValid сообщает, известен ли статус таблице переходов
func (s RideStatus) IsValid() bool {
	_, ok := rideTransitions[s]
	return ok
}

// NonTerminalStatuses - все статусы, при которых заявка еще жива;
// пациент с такой заявкой не может быть удален
var NonTerminalStatuses = []RideStatus{
	RideStatusPending,
	RideStatusAssigned,
	RideStatusEnRouteToPickup,
	RideStatusArrivedAtPickup,
	RideStatusInProgress,
}

// DriverActiveStatuses - статусы, при которых поездка занимает водителя;
// используются при проверке конфликта расписания
var DriverActiveStatuses = []RideStatus{
	RideStatusAssigned,
	RideStatusEnRouteToPickup,
	RideStatusArrivedAtPickup,
	RideStatusInProgress,
}

// DriverAdvanceStatuses - статусы, которые водитель может запросить сам
var DriverAdvanceStatuses = []RideStatus{
	RideStatusEnRouteToPickup,
	RideStatusArrivedAtPickup,
	RideStatusInProgress,
	RideStatusCompleted,
}

type Ride struct {
	ID              string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PatientID       string         `json:"patient_id" gorm:"column:patient_id;not null;type:varchar(36);index"`
	RequesterID     string         `json:"requester_id" gorm:"column:requester_id;not null;type:varchar(36);index"`
	DriverID        *string        `json:"driver_id,omitempty" gorm:"column:driver_id;type:varchar(36);default:null;index"`
	VehicleID       *string        `json:"vehicle_id,omitempty" gorm:"column:vehicle_id;type:varchar(36);default:null"`
	PickupLocation  string         `json:"pickup_location" gorm:"column:pickup_location;not null;type:text"`
	Destination     string         `json:"destination" gorm:"column:destination;not null;type:varchar(255)"`
	AppointmentTime time.Time      `json:"appointment_time" gorm:"column:appointment_time;not null;type:timestamp with time zone;index"`
	Status          RideStatus     `json:"status" gorm:"column:status;not null;default:'PENDING';type:varchar(50);index"`
	SpecialNeeds    pq.StringArray `json:"special_needs,omitempty" gorm:"column:special_needs;type:text[]"`
	CaregiverCount  int            `json:"caregiver_count" gorm:"column:caregiver_count;not null;default:0"`
	Rating          *int           `json:"rating,omitempty" gorm:"column:rating;default:null"`
	ReviewTags      pq.StringArray `json:"review_tags,omitempty" gorm:"column:review_tags;type:text[]"`
	ReviewComment   string         `json:"review_comment,omitempty" gorm:"column:review_comment;type:text"`
	CreatedAt       time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime;type:timestamp with time zone"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime;type:timestamp with time zone"`
	Patient         *Patient       `json:"-" gorm:"foreignKey:PatientID"`
	Requester       *User          `json:"-" gorm:"foreignKey:RequesterID"`
	Driver          *User          `json:"-" gorm:"foreignKey:DriverID"`
}

// RideDriverInfo - данные водителя в карточке поездки
type RideDriverInfo struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Phone        string `json:"phone,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
}

type RideResponse struct {
	ID              string          `json:"id"`
	PatientID       string          `json:"patientId"`
	PatientName     string          `json:"patientName,omitempty"`
	PatientPhone    string          `json:"patientPhone,omitempty"`
	PickupLocation  string          `json:"pickupLocation"`
	Destination     string          `json:"destination"`
	AppointmentTime time.Time       `json:"appointmentTime"`
	Status          RideStatus      `json:"status"`
	DriverName      string          `json:"driverName,omitempty"`
	RequestedBy     string          `json:"requestedBy,omitempty"`
	SpecialNeeds    []string        `json:"specialNeeds"`
	CaregiverCount  int             `json:"caregiverCount"`
	Rating          *int            `json:"rating,omitempty"`
	ReviewTags      []string        `json:"reviewTags,omitempty"`
	ReviewComment   string          `json:"reviewComment,omitempty"`
	DriverInfo      *RideDriverInfo `json:"driverInfo,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// BeforeCreate генерирует UUID для новой заявки
func (r *Ride) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ToResponse формирует карточку поездки со связанными данными,
// если они были загружены через Preload
func (r *Ride) ToResponse() RideResponse {
	resp := RideResponse{
		ID:              r.ID,
		PatientID:       r.PatientID,
		PickupLocation:  r.PickupLocation,
		Destination:     r.Destination,
		AppointmentTime: r.AppointmentTime,
		Status:          r.Status,
		SpecialNeeds:    r.SpecialNeeds,
		CaregiverCount:  r.CaregiverCount,
		Rating:          r.Rating,
		ReviewTags:      r.ReviewTags,
		ReviewComment:   r.ReviewComment,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if resp.SpecialNeeds == nil {
		resp.SpecialNeeds = []string{}
	}
	if r.Patient != nil {
		resp.PatientName = r.Patient.FullName
		resp.PatientPhone = r.Patient.ContactPhone
	}
	if r.Requester != nil {
		resp.RequestedBy = r.Requester.Name
	}
	if r.Driver != nil {
		resp.DriverName = r.Driver.Name
		info := &RideDriverInfo{
			ID:       r.Driver.ID,
			FullName: r.Driver.Name,
			Phone:    r.Driver.Phone,
		}
		if r.Driver.DriverProfile != nil {
			info.LicensePlate = r.Driver.DriverProfile.LicensePlate
		}
		resp.DriverInfo = info
	}
	return resp
}
