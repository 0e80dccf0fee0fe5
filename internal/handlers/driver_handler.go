package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"wecare-backend/internal/middleware"
	"wecare-backend/internal/models"
	"wecare-backend/internal/services"
	"wecare-backend/internal/utils"
	"wecare-backend/internal/websocket"
)

type UpdateRideStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OptimizeRouteRequest struct {
	RideIDs []string `json:"rideIds" binding:"required"`
}

type DriverProfileRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	LicensePlate string `json:"licensePlate"`
	Address      string `json:"address"`
}

type LocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DriverJobs возвращает активные поездки водителя, ближайшие первыми
func DriverJobs(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetString("user_id")

		var rideList []models.Ride
		if err := db.Where("driver_id = ? AND status IN (?)", driverID, models.DriverActiveStatuses).
			Preload("Patient").Preload("Requester").
			Order("appointment_time ASC").
			Find(&rideList).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении поездок"})
			return
		}

		items := make([]models.RideResponse, 0, len(rideList))
		for i := range rideList {
			items = append(items, rideList[i].ToResponse())
		}
		c.JSON(http.StatusOK, gin.H{"rides": items})
	}
}

// DriverRideStatus переводит поездку водителя в следующий статус
func DriverRideStatus(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateRideStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Не указан статус"})
			return
		}

		ride, err := rides.Advance(actorFromContext(c), c.Param("id"), models.RideStatus(req.Status))
		middleware.TrackRideOperation("advance", err)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, ride.ToResponse())
	}
}

// DriverOptimizeRoute упорядочивает выбранные поездки по времени приема
func DriverOptimizeRoute(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OptimizeRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Не указан список поездок"})
			return
		}

		ordered, err := rides.OptimizeRoute(actorFromContext(c), req.RideIDs)
		middleware.TrackRideOperation("optimize", err)
		if err != nil {
			respondServiceError(c, err)
			return
		}

		items := make([]models.RideResponse, 0, len(ordered))
		for i := range ordered {
			items = append(items, ordered[i].ToResponse())
		}
		c.JSON(http.StatusOK, gin.H{"rides": items})
	}
}

// DriverHistory возвращает завершенные и отмененные поездки водителя
// за период: week, month или all
func DriverHistory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetString("user_id")
		page, limit := utils.ParsePageParams(c)

		query := db.Model(&models.Ride{}).
			Where("driver_id = ? AND status IN (?)", driverID,
				[]models.RideStatus{models.RideStatusCompleted, models.RideStatusCancelled})

		switch c.DefaultQuery("period", "all") {
		case "week":
			query = query.Where("updated_at >= ?", time.Now().AddDate(0, 0, -7))
		case "month":
			query = query.Where("updated_at >= ?", time.Now().AddDate(0, -1, 0))
		case "all":
		default:
			c.JSON(http.StatusBadRequest, gin.H{"message": "Неизвестный период"})
			return
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении истории"})
			return
		}

		var completed int64
		if err := db.Model(&models.Ride{}).
			Where("driver_id = ? AND status = ?", driverID, models.RideStatusCompleted).
			Count(&completed).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении истории"})
			return
		}

		var rideList []models.Ride
		if err := query.Preload("Patient").
			Order("updated_at DESC").
			Offset((page - 1) * limit).Limit(limit).
			Find(&rideList).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при получении истории"})
			return
		}

		items := make([]models.RideResponse, 0, len(rideList))
		for i := range rideList {
			items = append(items, rideList[i].ToResponse())
		}

		var profile models.DriverProfile
		avgScore := 5.0
		if err := db.Where("user_id = ?", driverID).First(&profile).Error; err == nil {
			avgScore = profile.AvgReviewScore
		}

		c.JSON(http.StatusOK, gin.H{
			"rides":          items,
			"total":          total,
			"page":           page,
			"totalPages":     utils.TotalPages(total, limit),
			"totalCompleted": completed,
			"avgReviewScore": avgScore,
		})
	}
}

// DriverProfileGet возвращает профиль водителя
func DriverProfileGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetString("user_id")

		var user models.User
		if err := db.Preload("DriverProfile").Where("id = ?", driverID).First(&user).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "Профиль не найден"})
			return
		}

		resp := gin.H{"user": user.ToResponse()}
		if user.DriverProfile != nil {
			resp["profile"] = user.DriverProfile
		}
		c.JSON(http.StatusOK, resp)
	}
}

// DriverProfileUpdate обновляет контактные данные и профиль водителя
func DriverProfileUpdate(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetString("user_id")

		var req DriverProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Неверный формат данных профиля"})
			return
		}

		var user models.User
		if err := db.Where("id = ?", driverID).First(&user).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "Профиль не найден"})
			return
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			if req.Name != "" {
				user.Name = req.Name
			}
			if req.Phone != "" {
				user.Phone = req.Phone
			}
			if err := tx.Save(&user).Error; err != nil {
				return err
			}

			var profile models.DriverProfile
			err := tx.Where("user_id = ?", driverID).First(&profile).Error
			missing := errors.Is(err, gorm.ErrRecordNotFound)
			if err != nil && !missing {
				return err
			}
			if missing {
				profile = models.DriverProfile{UserID: driverID, AvgReviewScore: 5.0}
			}
			if req.LicensePlate != "" {
				profile.LicensePlate = req.LicensePlate
			}
			if req.Address != "" {
				profile.Address = req.Address
			}
			if missing {
				return tx.Create(&profile).Error
			}
			return tx.Save(&profile).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при обновлении профиля"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
	}
}

// DriverLocationUpdate принимает пинг позиции водителя.
// Позиция сохраняется в Redis и рассылается заказчикам его активных поездок.
func DriverLocationUpdate(db *gorm.DB, locations *services.LocationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetString("user_id")

		var req LocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Неверный формат координат"})
			return
		}
		if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Координаты вне допустимого диапазона"})
			return
		}

		if err := locations.Update(c.Request.Context(), driverID, req.Latitude, req.Longitude); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Ошибка при сохранении позиции"})
			return
		}

		var activeRides []models.Ride
		if err := db.Where("driver_id = ? AND status IN (?)", driverID, models.DriverActiveStatuses).
			Find(&activeRides).Error; err == nil {
			for i := range activeRides {
				websocket.SendDriverLocationUpdate(activeRides[i].RequesterID, activeRides[i].ID,
					req.Latitude, req.Longitude)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "Позиция обновлена"})
	}
}
