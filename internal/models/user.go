package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Роли пользователей системы
const (
	RoleCommunity = "community"
	RoleDriver    = "driver"
	RoleOffice    = "office"
	RoleOfficer   = "OFFICER"
	RoleAdmin     = "admin"
	RoleDeveloper = "DEVELOPER"
)

// Статусы учетной записи
const (
	UserStatusActive   = "Active"
	UserStatusInactive = "Inactive"
)

// OfficeRoles - роли офисной группы: видят все поездки и назначают водителей
var OfficeRoles = []string{RoleOffice, RoleOfficer, RoleAdmin, RoleDeveloper}

// IsOfficeRole проверяет, относится ли роль к офисной группе
func IsOfficeRole(role string) bool {
	for _, r := range OfficeRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID              string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name            string         `json:"name" gorm:"column:name;not null;type:varchar(255)"`
	Email           string         `json:"email" gorm:"column:email;unique;not null;type:varchar(255)"`
	PasswordHash    string         `json:"-" gorm:"column:password_hash;not null;type:varchar(255)"`
	Role            string         `json:"role" gorm:"column:role;not null;type:varchar(50)"`
	Phone           string         `json:"phone,omitempty" gorm:"column:phone;type:varchar(50)"`
	ProfileImageURL string         `json:"profile_image_url,omitempty" gorm:"column:profile_image_url;type:varchar(255)"`
	Status          string         `json:"status" gorm:"column:status;not null;default:'Active';type:varchar(20)"`
	CreatedAt       time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime;type:timestamp with time zone"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime;type:timestamp with time zone"`
	DriverProfile   *DriverProfile `json:"driver_profile,omitempty" gorm:"foreignKey:UserID"`
}

type UserResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	Phone           string    `json:"phone,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeCreate генерирует UUID для нового пользователя
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// ToResponse формирует ответ API без чувствительных полей
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		Phone:           u.Phone,
		ProfileImageURL: u.ProfileImageURL,
		Status:          u.Status,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
