package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"wecare-backend/internal/middleware"
	"wecare-backend/internal/models"
	"wecare-backend/internal/services"
	"wecare-backend/internal/utils"
)

type AssignDriverRequest struct {
	DriverID string `json:"driverId" binding:"required"`
}

// OfficeStats возвращает сводку для панели диспетчера
func OfficeStats(stats *services.StatsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := stats.GetOfficeStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении статистики"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// OfficeRideList возвращает все заявки с фильтром по статусу
// и поиском по имени пациента
func OfficeRideList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := utils.ParsePageParams(c)

		query := db.Model(&models.Ride{})
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
		if err := query.Preload("Patient").Preload("Requester").
			Preload("Driver").Preload("Driver.DriverProfile").
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

// OfficeRideGet возвращает любую заявку по идентификатору
func OfficeRideGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ride models.Ride
		if err := db.Where("id = ?", c.Param("id")).
			Preload("Patient").Preload("Requester").
			Preload("Driver").Preload("Driver.DriverProfile").
			First(&ride).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "Заявка не найдена"})
			return
		}
		c.JSON(http.StatusOK, ride.ToResponse())
	}
}

// OfficeRideAssign назначает водителя на заявку
func OfficeRideAssign(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssignDriverRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Не указан водитель"})
			return
		}

		ride, err := rides.Assign(actorFromContext(c), c.Param("id"), req.DriverID)
		middleware.TrackRideOperation("assign", err)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, ride.ToResponse())
	}
}

// OfficeRideCancel отменяет любую заявку от имени офиса
func OfficeRideCancel(rides *services.RideService) gin.HandlerFunc {
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

// OfficeUrgentRides возвращает неназначенные заявки с приемом
// в ближайшие сутки, самые срочные первыми
func OfficeUrgentRides(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()

		var rideList []models.Ride
		if err := db.Where("status = ? AND appointment_time BETWEEN ? AND ?",
			models.RideStatusPending, now, now.Add(24*time.Hour)).
			Preload("Patient").Preload("Requester").
			Order("appointment_time ASC").
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

// OfficeTodaySchedule возвращает расписание перевозок на сегодня
func OfficeTodaySchedule(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dayStart := time.Now().Truncate(24 * time.Hour)
		dayEnd := dayStart.Add(24 * time.Hour)

		var rideList []models.Ride
		if err := db.Where("appointment_time >= ? AND appointment_time < ? AND status <> ?",
			dayStart, dayEnd, models.RideStatusCancelled).
			Preload("Patient").Preload("Driver").Preload("Driver.DriverProfile").
			Order("appointment_time ASC").
			Find(&rideList).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении расписания"})
			return
		}

		items := make([]models.RideResponse, 0, len(rideList))
		for i := range rideList {
			items = append(items, rideList[i].ToResponse())
		}
		c.JSON(http.StatusOK, gin.H{"rides": items})
	}
}

// LiveDriverStatus - строка карты live-мониторинга
type LiveDriverStatus struct {
	Driver   models.UserResponse      `json:"driver"`
	Ride     *models.RideResponse     `json:"ride,omitempty"`
	Location *services.DriverLocation `json:"location,omitempty"`
}

// OfficeLiveStatus возвращает водителей с активными поездками
// и их последними позициями
func OfficeLiveStatus(db *gorm.DB, locations *services.LocationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var activeRides []models.Ride
		if err := db.Where("status IN (?)", models.DriverActiveStatuses).
			Preload("Patient").Preload("Driver").Preload("Driver.DriverProfile").
			Order("appointment_time ASC").
			Find(&activeRides).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении активных поездок"})
			return
		}

		driverIDs := make([]string, 0, len(activeRides))
		for i := range activeRides {
			if activeRides[i].DriverID != nil {
				driverIDs = append(driverIDs, *activeRides[i].DriverID)
			}
		}

		locationMap, err := locations.GetMany(c.Request.Context(), driverIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении позиций водителей"})
			return
		}

		items := make([]LiveDriverStatus, 0, len(activeRides))
		for i := range activeRides {
			ride := &activeRides[i]
			if ride.Driver == nil {
				continue
			}
			resp := ride.ToResponse()
			items = append(items, LiveDriverStatus{
				Driver:   ride.Driver.ToResponse(),
				Ride:     &resp,
				Location: locationMap[ride.Driver.ID],
			})
		}
		c.JSON(http.StatusOK, gin.H{"drivers": items})
	}
}

// OfficePatientList возвращает всех пациентов с поиском по имени
func OfficePatientList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := utils.ParsePageParams(c)

		query := db.Model(&models.Patient{})
		if search := c.Query("search"); search != "" {
			query = query.Where("full_name ILIKE ?", "%"+search+"%")
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении пациентов"})
			return
		}

		var patients []models.Patient
		if err := query.Preload("RegisteredBy").
			Order("registered_date DESC").
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

// OfficeVehicleList возвращает парк транспортных средств
func OfficeVehicleList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := db.Model(&models.Vehicle{})
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		var vehicles []models.Vehicle
		if err := query.Order("license_plate ASC").Find(&vehicles).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении транспорта"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"vehicles": vehicles})
	}
}

// OfficeDriverInfo - водитель в списке диспетчера с числом активных поездок
type OfficeDriverInfo struct {
	models.UserResponse
	LicensePlate   string  `json:"licensePlate,omitempty"`
	AvgReviewScore float64 `json:"avgReviewScore"`
	ActiveRides    int64   `json:"activeRides"`
}

// OfficeDriverList возвращает водителей с загрузкой по активным поездкам
func OfficeDriverList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := utils.ParsePageParams(c)

		query := db.Model(&models.User{}).Where("role = ?", models.RoleDriver)
		if search := c.Query("search"); search != "" {
			query = query.Where("name ILIKE ?", "%"+search+"%")
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении водителей"})
			return
		}

		var drivers []models.User
		if err := query.Preload("DriverProfile").
			Order("name ASC").
			Offset((page - 1) * limit).Limit(limit).
			Find(&drivers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении водителей"})
			return
		}

		items := make([]OfficeDriverInfo, 0, len(drivers))
		for i := range drivers {
			driver := &drivers[i]
			info := OfficeDriverInfo{UserResponse: driver.ToResponse(), AvgReviewScore: 5.0}
			if driver.DriverProfile != nil {
				info.LicensePlate = driver.DriverProfile.LicensePlate
				info.AvgReviewScore = driver.DriverProfile.AvgReviewScore
			}
			db.Model(&models.Ride{}).
				Where("driver_id = ? AND status IN (?)", driver.ID, models.DriverActiveStatuses).
				Count(&info.ActiveRides)
			items = append(items, info)
		}

		c.JSON(http.StatusOK, gin.H{
			"drivers":    items,
			"total":      total,
			"page":       page,
			"totalPages": utils.TotalPages(total, limit),
		})
	}
}
