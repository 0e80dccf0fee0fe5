package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"wecare-backend/internal/middleware"
	"wecare-backend/internal/models"
	"wecare-backend/internal/services"
	"wecare-backend/internal/utils"
)

// PatientRequest - данные карточки пациента при создании и обновлении
type PatientRequest struct {
	FullName        string     `json:"fullName" binding:"required"`
	ProfileImageURL string     `json:"profileImageUrl"`
	Title           string     `json:"title"`
	Gender          string     `json:"gender"`
	NationalID      string     `json:"nationalId"`
	DOB             *time.Time `json:"dob"`
	Age             *int       `json:"age"`
	PatientTypes    []string   `json:"patientTypes"`
	BloodType       string     `json:"bloodType"`
	RhFactor        string     `json:"rhFactor"`
	HealthCoverage  string     `json:"healthCoverage"`
	ChronicDiseases []string   `json:"chronicDiseases"`
	Allergies       []string   `json:"allergies"`
	ContactPhone    string     `json:"contactPhone" binding:"required"`
	CurrentAddress  string     `json:"currentAddress" binding:"required"`
	Village         string     `json:"village"`
	Landmark        string     `json:"landmark"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	KeyInfo         string     `json:"keyInfo"`
	CaregiverName   string     `json:"caregiverName"`
	CaregiverPhone  string     `json:"caregiverPhone"`
}

func (req *PatientRequest) apply(p *models.Patient) {
	p.FullName = req.FullName
	p.ProfileImageURL = req.ProfileImageURL
	p.Title = req.Title
	p.Gender = req.Gender
	p.NationalID = req.NationalID
	p.DOB = req.DOB
	p.Age = req.Age
	p.PatientTypes = pq.StringArray(req.PatientTypes)
	p.BloodType = req.BloodType
	p.RhFactor = req.RhFactor
	p.HealthCoverage = req.HealthCoverage
	p.ChronicDiseases = pq.StringArray(req.ChronicDiseases)
	p.Allergies = pq.StringArray(req.Allergies)
	p.ContactPhone = req.ContactPhone
	p.CurrentAddress = req.CurrentAddress
	p.Village = req.Village
	p.Landmark = req.Landmark
	p.Latitude = req.Latitude
	p.Longitude = req.Longitude
	p.KeyInfo = req.KeyInfo
	p.CaregiverName = req.CaregiverName
	p.CaregiverPhone = req.CaregiverPhone
}

// CommunityStats возвращает сводку соцработника
func CommunityStats(stats *services.StatsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := stats.GetCommunityStats(c.GetString("user_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении статистики"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// PatientCreate регистрирует пациента за текущим соцработником
func PatientCreate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PatientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Неверный формат данных пациента"})
			return
		}

		var patient models.Patient
		req.apply(&patient)
		patient.RegisteredByID = c.GetString("user_id")

		if err := db.Create(&patient).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при создании пациента"})
			return
		}
		c.JSON(http.StatusCreated, patient.ToResponse())
	}
}

// PatientList возвращает пациентов текущего соцработника с пагинацией
// и поиском по имени
func PatientList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		page, limit := utils.ParsePageParams(c)
		search := c.Query("search")

		query := db.Model(&models.Patient{}).Where("registered_by_id = ?", userID)
		if search != "" {
			query = query.Where("full_name ILIKE ?", "%"+search+"%")
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении пациентов"})
			return
		}

		var patients []models.Patient
		if err := query.Order("registered_date DESC").
			Offset((page - 1) * limit).Limit(limit).
			Find(&patients).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении пациентов"})
			return
		}

		items := make([]models.PatientResponse, 0, len(patients))
		for i := range patients {
			items = append(items, patients[i].ToResponse())
		}

		c.JSON(http.StatusOK, gin.H{
			"patients":   items,
			"total":      total,
			"page":       page,
			"totalPages": utils.TotalPages(total, limit),
		})
	}
}

// PatientGet возвращает карточку пациента; чужие пациенты невидимы
func PatientGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		var patient models.Patient
		if err := db.Where("id = ? AND registered_by_id = ?", c.Param("id"), userID).
			First(&patient).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "Пациент не найден"})
			return
		}
		c.JSON(http.StatusOK, patient.ToResponse())
	}
}

// PatientUpdate обновляет карточку пациента
func PatientUpdate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		var patient models.Patient
		if err := db.Where("id = ? AND registered_by_id = ?", c.Param("id"), userID).
			First(&patient).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "Пациент не найден"})
			return
		}

		var req PatientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Неверный формат данных пациента"})
			return
		}

		req.apply(&patient)
		if err := db.Save(&patient).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при обновлении пациента"})
			return
		}
		c.JSON(http.StatusOK, patient.ToResponse())
	}
}

// PatientDelete удаляет пациента. Пациент с незавершенной заявкой
// не удаляется, чтобы не оставлять поездки без карточки.
func PatientDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		patientID := c.Param("id")

		err := db.Transaction(func(tx *gorm.DB) error {
			var patient models.Patient
			if err := tx.Where("id = ? AND registered_by_id = ?", patientID, userID).
				First(&patient).Error; err != nil {
				return services.ErrNotFound
			}

			var activeRides int64
			if err := tx.Model(&models.Ride{}).
				Where("patient_id = ? AND status IN (?)", patientID, models.NonTerminalStatuses).
				Count(&activeRides).Error; err != nil {
				return err
			}
			if activeRides > 0 {
				return services.ErrInvalidTransition
			}

			return tx.Delete(&patient).Error
		})
		if err != nil {
			if err == services.ErrInvalidTransition {
				c.JSON(http.StatusConflict, gin.H{"message": "У пациента есть незавершенные заявки на перевозку"})
				return
			}
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Пациент удален"})
	}
}

// CommunityRideCreate создает заявку на перевозку
func CommunityRideCreate(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.CreateRideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Неверный формат данных заявки"})
			return
		}

		ride, err := rides.Create(actorFromContext(c), input)
		middleware.TrackRideOperation("create", err)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ride.ToResponse())
	}
}

// CommunityRecentRides возвращает несколько последних заявок для главной
// страницы соцработника
func CommunityRecentRides(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		var rideList []models.Ride
		if err := db.Where("requester_id = ?", userID).
			Preload("Patient").Preload("Driver").Preload("Driver.DriverProfile").
			Order("created_at DESC").
			Limit(5).
			Find(&rideList).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении заявок"})
			return
		}

		items := make([]models.RideResponse, 0, len(rideList))
		for i := range rideList {
			items = append(items, rideList[i].ToResponse())
		}
		c.JSON(http.StatusOK, gin.H{"rides": items})
	}
}

// CommunityRideList возвращает заявки текущего соцработника
func CommunityRideList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		page, limit := utils.ParsePageParams(c)

		query := db.Model(&models.Ride{}).Where("rides.requester_id = ?", userID)
		if status := c.Query("status"); status != "" {
			if !models.RideStatus(status).IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"message": "Неизвестный статус заявки"})
				return
			}
			query = query.Where("rides.status = ?", status)
		}
		if search := c.Query("search"); search != "" {
			query = query.Joins("JOIN patients ON patients.id = rides.patient_id").
				Where("patients.full_name ILIKE ?", "%"+search+"%")
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении заявок"})
			return
		}

		var rideList []models.Ride
		if err := query.Preload("Patient").Preload("Driver").Preload("Driver.DriverProfile").
			Order("rides.appointment_time DESC").
			Offset((page - 1) * limit).Limit(limit).
			Find(&rideList).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении заявок"})
			return
		}

		items := make([]models.RideResponse, 0, len(rideList))
		for i := range rideList {
			items = append(items, rideList[i].ToResponse())
		}

		c.JSON(http.StatusOK, gin.H{
			"rides":      items,
			"total":      total,
			"page":       page,
			"totalPages": utils.TotalPages(total, limit),
		})
	}
}

// CommunityRideGet возвращает заявку соцработника; чужие заявки невидимы
func CommunityRideGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")

		var ride models.Ride
		if err := db.Where("id = ? AND requester_id = ?", c.Param("id"), userID).
			Preload("Patient").Preload("Driver").Preload("Driver.DriverProfile").
			First(&ride).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "Заявка не найдена"})
			return
		}
		c.JSON(http.StatusOK, ride.ToResponse())
	}
}

// CommunityRideCancel отменяет заявку соцработника
func CommunityRideCancel(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ride, err := rides.Cancel(actorFromContext(c), c.Param("id"))
		middleware.TrackRideOperation("cancel", err)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, ride.ToResponse())
	}
}

// CommunityRideRate сохраняет оценку завершенной поездки
func CommunityRideRate(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.RateRideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Неверный формат оценки"})
			return
		}

		ride, err := rides.Rate(actorFromContext(c), c.Param("id"), input)
		middleware.TrackRideOperation("rate", err)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, ride.ToResponse())
	}
}
