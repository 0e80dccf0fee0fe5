package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Patient - пациент, зарегистрированный соцработником (community).
// Доступ к карточке пациента имеет только зарегистрировавший его пользователь
// и офисная группа.
type Patient struct {
	ID              string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FullName        string         `json:"full_name" gorm:"column:full_name;not null;type:varchar(255);index"`
	ProfileImageURL string         `json:"profile_image_url,omitempty" gorm:"column:profile_image_url;type:varchar(255)"`
	Title           string         `json:"title" gorm:"column:title;type:varchar(50)"`
	Gender          string         `json:"gender,omitempty" gorm:"column:gender;type:varchar(50)"`
	NationalID      string         `json:"national_id,omitempty" gorm:"column:national_id;unique;type:varchar(20);default:null"`
	DOB             *time.Time     `json:"dob,omitempty" gorm:"column:dob;type:date;default:null"`
	Age             *int           `json:"age,omitempty" gorm:"column:age;default:null"`
	PatientTypes    pq.StringArray `json:"patient_types,omitempty" gorm:"column:patient_types;type:text[]"`
	BloodType       string         `json:"blood_type,omitempty" gorm:"column:blood_type;type:varchar(10)"`
	RhFactor        string         `json:"rh_factor,omitempty" gorm:"column:rh_factor;type:varchar(10)"`
	HealthCoverage  string         `json:"health_coverage,omitempty" gorm:"column:health_coverage;type:varchar(100)"`
	ChronicDiseases pq.StringArray `json:"chronic_diseases,omitempty" gorm:"column:chronic_diseases;type:text[]"`
	Allergies       pq.StringArray `json:"allergies,omitempty" gorm:"column:allergies;type:text[]"`
	ContactPhone    string         `json:"contact_phone" gorm:"column:contact_phone;not null;type:varchar(50)"`
	CurrentAddress  string         `json:"current_address" gorm:"column:current_address;not null;type:text"`
	Village         string         `json:"village,omitempty" gorm:"column:village;type:varchar(255)"`
	Landmark        string         `json:"landmark,omitempty" gorm:"column:landmark;type:text"`
	Latitude        *float64       `json:"latitude,omitempty" gorm:"column:latitude;type:numeric(9,6);default:null"`
	Longitude       *float64       `json:"longitude,omitempty" gorm:"column:longitude;type:numeric(9,6);default:null"`
	RegisteredDate  time.Time      `json:"registered_date" gorm:"column:registered_date;autoCreateTime;type:timestamp with time zone"`
	RegisteredByID  string         `json:"registered_by_id" gorm:"column:registered_by_id;not null;type:varchar(36);index"`
	KeyInfo         string         `json:"key_info,omitempty" gorm:"column:key_info;type:text"`
	CaregiverName   string         `json:"caregiver_name,omitempty" gorm:"column:caregiver_name;type:varchar(255)"`
	CaregiverPhone  string         `json:"caregiver_phone,omitempty" gorm:"column:caregiver_phone;type:varchar(50)"`
	// Мягкое удаление: завершенные поездки продолжают ссылаться на карточку
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"column:deleted_at;index"`
	RegisteredBy *User          `json:"-" gorm:"foreignKey:RegisteredByID"`
}

type PatientResponse struct {
	ID              string     `json:"id"`
	FullName        string     `json:"fullName"`
	ProfileImageURL string     `json:"profileImageUrl,omitempty"`
	Title           string     `json:"title"`
	Gender          string     `json:"gender,omitempty"`
	NationalID      string     `json:"nationalId,omitempty"`
	DOB             *time.Time `json:"dob,omitempty"`
	Age             *int       `json:"age,omitempty"`
	PatientTypes    []string   `json:"patientTypes"`
	BloodType       string     `json:"bloodType,omitempty"`
	RhFactor        string     `json:"rhFactor,omitempty"`
	HealthCoverage  string     `json:"healthCoverage,omitempty"`
	ChronicDiseases []string   `json:"chronicDiseases"`
	Allergies       []string   `json:"allergies"`
	ContactPhone    string     `json:"contactPhone"`
	CurrentAddress  string     `json:"currentAddress"`
	Village         string     `json:"village,omitempty"`
	Landmark        string     `json:"landmark,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	RegisteredDate  time.Time  `json:"registeredDate"`
	RegisteredBy    string     `json:"registeredBy,omitempty"`
	KeyInfo         string     `json:"keyInfo,omitempty"`
	CaregiverName   string     `json:"caregiverName,omitempty"`
	CaregiverPhone  string     `json:"caregiverPhone,omitempty"`
}

// BeforeCreate генерирует UUID для нового пациента
func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Patient) ToResponse() PatientResponse {
	resp := PatientResponse{
		ID:              p.ID,
		FullName:        p.FullName,
		ProfileImageURL: p.ProfileImageURL,
		Title:           p.Title,
		Gender:          p.Gender,
		NationalID:      p.NationalID,
		DOB:             p.DOB,
		Age:             p.Age,
		PatientTypes:    p.PatientTypes,
		BloodType:       p.BloodType,
		RhFactor:        p.RhFactor,
		HealthCoverage:  p.HealthCoverage,
		ChronicDiseases: p.ChronicDiseases,
		Allergies:       p.Allergies,
		ContactPhone:    p.ContactPhone,
		CurrentAddress:  p.CurrentAddress,
		Village:         p.Village,
		Landmark:        p.Landmark,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		RegisteredDate:  p.RegisteredDate,
		KeyInfo:         p.KeyInfo,
		CaregiverName:   p.CaregiverName,
		CaregiverPhone:  p.CaregiverPhone,
	}
	if resp.PatientTypes == nil {
		resp.PatientTypes = []string{}
	}
	if resp.ChronicDiseases == nil {
		resp.ChronicDiseases = []string{}
	}
	if resp.Allergies == nil {
		resp.Allergies = []string{}
	}
	if p.RegisteredBy != nil {
		resp.RegisteredBy = p.RegisteredBy.Name
	}
	return resp
}
