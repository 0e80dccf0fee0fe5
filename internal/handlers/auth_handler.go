package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"wecare-backend/internal/models"
	"wecare-backend/internal/services"
	"wecare-backend/internal/utils"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Token   string              `json:"token,omitempty"`
	User    models.UserResponse `json:"user,omitempty"`
}

// AuthRegister регистрирует нового пользователя.
// Самостоятельно зарегистрироваться можно только соцработником или
// водителем; офисные учетные записи создает администратор.
func AuthRegister(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("Ошибка валидации данных регистрации: %v", err)
			c.JSON(http.StatusBadRequest, AuthResponse{Success: false, Message: "Неверный формат данных"})
			return
		}

		role := req.Role
		if role == "" {
			role = models.RoleCommunity
		}
		if role != models.RoleCommunity && role != models.RoleDriver {
			c.JSON(http.StatusBadRequest, AuthResponse{Success: false, Message: "Недопустимая роль при регистрации"})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		var existing models.User
		if result := db.Where("email = ?", email).First(&existing); result.Error == nil {
			c.JSON(http.StatusBadRequest, AuthResponse{Success: false, Message: "Пользователь с таким email уже существует"})
			return
		}

		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: "Ошибка при создании пользователя"})
			return
		}

		user := models.User{
			Name:         req.Name,
			Email:        email,
			PasswordHash: hash,
			Role:         role,
			Phone:        req.Phone,
			Status:       models.UserStatusActive,
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			// Водителю сразу заводится профиль с рейтингом по умолчанию
			if role == models.RoleDriver {
				return tx.Create(&models.DriverProfile{UserID: user.ID, AvgReviewScore: 5.0}).Error
			}
			return nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: "Ошибка при создании пользователя"})
			return
		}

		token, err := utils.GenerateJWT(user.ID, user.Email, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: "Ошибка при создании токена"})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{Success: true, Token: token, User: user.ToResponse()})
	}
}

// AuthLogin выполняет вход по email и паролю.
// После пяти неудачных попыток вход блокируется на 15 минут.
func AuthLogin(db *gorm.DB, lockout *services.LockoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{Success: false, Message: "Неверный формат данных"})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		ctx := c.Request.Context()

		if lockout.IsLocked(ctx, email) {
			c.JSON(http.StatusTooManyRequests, AuthResponse{
				Success: false,
				Message: "Слишком много неудачных попыток входа, попробуйте позже",
			})
			return
		}

		var user models.User
		if err := db.Where("email = ?", email).First(&user).Error; err != nil {
			lockout.RecordFailure(ctx, email)
			c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "Неверный email или пароль"})
			return
		}

		if !utils.CheckPassword(user.PasswordHash, req.Password) {
			lockout.RecordFailure(ctx, email)
			c.JSON(http.StatusUnauthorized, AuthResponse{Success: false, Message: "Неверный email или пароль"})
			return
		}

		if user.Status != models.UserStatusActive {
			c.JSON(http.StatusForbidden, AuthResponse{Success: false, Message: "Учетная запись деактивирована"})
			return
		}

		lockout.Reset(ctx, email)

		if err := db.Create(&models.AuditLog{
			UserEmail: user.Email,
			UserRole:  user.Role,
			Action:    models.AuditActionLogin,
			TargetID:  user.ID,
		}).Error; err != nil {
			log.Printf("Ошибка записи входа в журнал аудита: %v", err)
		}

		token, err := utils.GenerateJWT(user.ID, user.Email, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{Success: false, Message: "Ошибка при создании токена"})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{Success: true, Token: token, User: user.ToResponse()})
	}
}

// AuthMe возвращает профиль текущего пользователя
func AuthMe(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		var user models.User
		if err := db.Preload("DriverProfile").Where("id = ?", userID).First(&user).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "Пользователь не найден"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
	}
}

// AuthRefresh выдает новый токен по действующему
func AuthRefresh(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		var user models.User
		if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Пользователь не найден"})
			return
		}
		if user.Status != models.UserStatusActive {
			c.JSON(http.StatusForbidden, gin.H{"message": "Учетная запись деактивирована"})
			return
		}

		token, err := utils.GenerateJWT(user.ID, user.Email, user.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при создании токена"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}
