package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"wecare-backend/internal/handlers"
	"wecare-backend/internal/middleware"
	"wecare-backend/internal/services"
	"wecare-backend/internal/websocket"
)

func SetupRoutes(api *gin.RouterGroup, db *gorm.DB, rdb *redis.Client) {
	rideService := services.NewRideService(db)
	lockoutService := services.NewLockoutService(rdb)
	statsService := services.NewStatsService(db, rdb)
	locationService := services.NewLocationService(rdb)

	// Публичные маршруты для аутентификации
	auth := api.Group("/auth")
	{
		auth.POST("/register", handlers.AuthRegister(db))
		auth.POST("/login", handlers.AuthLogin(db, lockoutService))
	}

	// Защищенные маршруты (требуют аутентификации)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth())
	{
		protected.GET("/auth/me", handlers.AuthMe(db))
		protected.POST("/auth/refresh", handlers.AuthRefresh(db))

		// WebSocket подключение для получения обновлений в реальном времени
		protected.GET("/ws", websocket.Handler())

		// Маршруты соцработника: свои пациенты и свои заявки
		community := protected.Group("/community")
		{
			community.GET("/stats", middleware.Require(middleware.OpCommunityView), handlers.CommunityStats(statsService))
			community.GET("/rides/recent", middleware.Require(middleware.OpCommunityView), handlers.CommunityRecentRides(db))

			patients := community.Group("/patients", middleware.Require(middleware.OpPatientManage))
			{
				patients.POST("", handlers.PatientCreate(db))
				patients.GET("", handlers.PatientList(db))
				patients.GET("/:id", handlers.PatientGet(db))
				patients.PUT("/:id", handlers.PatientUpdate(db))
				patients.DELETE("/:id", handlers.PatientDelete(db))
			}

			rides := community.Group("/rides")
			{
				rides.POST("", middleware.Require(middleware.OpRideRequest), handlers.CommunityRideCreate(rideService))
				rides.GET("", middleware.Require(middleware.OpCommunityView), handlers.CommunityRideList(db))
				rides.GET("/:id", middleware.Require(middleware.OpCommunityView), handlers.CommunityRideGet(db))
				rides.PUT("/:id/cancel", middleware.Require(middleware.OpRideCancel), handlers.CommunityRideCancel(rideService))
				rides.POST("/:id/rate", middleware.Require(middleware.OpRideRate), handlers.CommunityRideRate(rideService))
			}
		}

		// Маршруты офиса: все заявки, назначение водителей, мониторинг
		office := protected.Group("/office")
		{
			office.GET("/stats", middleware.Require(middleware.OpOfficeView), handlers.OfficeStats(statsService))
			office.GET("/rides", middleware.Require(middleware.OpOfficeView), handlers.OfficeRideList(db))
			office.GET("/rides/urgent", middleware.Require(middleware.OpOfficeView), handlers.OfficeUrgentRides(db))
			office.GET("/rides/today", middleware.Require(middleware.OpOfficeView), handlers.OfficeTodaySchedule(db))
			office.GET("/rides/:id", middleware.Require(middleware.OpOfficeView), handlers.OfficeRideGet(db))
			office.PUT("/rides/:id/assign", middleware.Require(middleware.OpRideAssign), handlers.OfficeRideAssign(rideService))
			office.PUT("/rides/:id/cancel", middleware.Require(middleware.OpRideAssign), handlers.OfficeRideCancel(rideService))
			office.GET("/live-status", middleware.Require(middleware.OpOfficeView), handlers.OfficeLiveStatus(db, locationService))
			office.GET("/patients", middleware.Require(middleware.OpOfficeView), handlers.OfficePatientList(db))
			office.GET("/drivers", middleware.Require(middleware.OpOfficeView), handlers.OfficeDriverList(db))
			office.GET("/vehicles", middleware.Require(middleware.OpOfficeView), handlers.OfficeVehicleList(db))
		}

		// Маршруты водителя: свои поездки и профиль
		driver := protected.Group("/driver")
		{
			driver.GET("/jobs", middleware.Require(middleware.OpDriverView), handlers.DriverJobs(db))
			driver.PATCH("/rides/:id/status", middleware.Require(middleware.OpRideAdvance), handlers.DriverRideStatus(rideService))
			driver.POST("/optimize-route", middleware.Require(middleware.OpRouteOptimize), handlers.DriverOptimizeRoute(rideService))
			driver.GET("/history", middleware.Require(middleware.OpDriverView), handlers.DriverHistory(db))
			driver.GET("/profile", middleware.Require(middleware.OpDriverView), handlers.DriverProfileGet(db))
			driver.PUT("/profile", middleware.Require(middleware.OpDriverView), handlers.DriverProfileUpdate(db))
			driver.POST("/location", middleware.Require(middleware.OpDriverLocation), handlers.DriverLocationUpdate(db, locationService))
		}
	}
}
