package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"wecare-backend/internal/models"
)

const statsCacheTTL = 30 * time.Second

// OfficeStats - сводка для панели диспетчера
type OfficeStats struct {
	PendingRides    int64 `json:"pendingRides"`
	AssignedRides   int64 `json:"assignedRides"`
	InProgressRides int64 `json:"inProgressRides"`
	CompletedToday  int64 `json:"completedToday"`
	CancelledToday  int64 `json:"cancelledToday"`
	TotalPatients   int64 `json:"totalPatients"`
	ActiveDrivers   int64 `json:"activeDrivers"`
}

// CommunityStats - сводка для соцработника по его пациентам и заявкам
type CommunityStats struct {
	MyPatients     int64 `json:"myPatients"`
	PendingRides   int64 `json:"pendingRides"`
	ActiveRides    int64 `json:"activeRides"`
	CompletedRides int64 `json:"completedRides"`
}

// StatsService считает сводки по базе. Офисная сводка кэшируется в Redis,
// так как панель диспетчера опрашивает ее постоянно.
type StatsService struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewStatsService(db *gorm.DB, rdb *redis.Client) *StatsService {
	return &StatsService{db: db, redis: rdb}
}

// GetOfficeStats возвращает сводку диспетчера, не старше 30 секунд
func (s *StatsService) GetOfficeStats(ctx context.Context) (*OfficeStats, error) {
	const cacheKey = "stats:office"

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var stats OfficeStats
			if json.Unmarshal(cached, &stats) == nil {
				return &stats, nil
			}
		}
	}

	var stats OfficeStats
	todayStart := time.Now().Truncate(24 * time.Hour)

	counts := []struct {
		dst    *int64
		status models.RideStatus
	}{
		{&stats.PendingRides, models.RideStatusPending},
		{&stats.AssignedRides, models.RideStatusAssigned},
		{&stats.InProgressRides, models.RideStatusInProgress},
	}
	for _, c := range counts {
		if err := s.db.Model(&models.Ride{}).Where("status = ?", c.status).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	if err := s.db.Model(&models.Ride{}).
		Where("status = ? AND updated_at >= ?", models.RideStatusCompleted, todayStart).
		Count(&stats.CompletedToday).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Ride{}).
		Where("status = ? AND updated_at >= ?", models.RideStatusCancelled, todayStart).
		Count(&stats.CancelledToday).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Patient{}).Count(&stats.TotalPatients).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.User{}).
		Where("role = ? AND status = ?", models.RoleDriver, models.UserStatusActive).
		Count(&stats.ActiveDrivers).Error; err != nil {
		return nil, err
	}

	if s.redis != nil {
		if payload, err := json.Marshal(&stats); err == nil {
			if err := s.redis.Set(ctx, cacheKey, payload, statsCacheTTL).Err(); err != nil {
				log.Printf("Ошибка записи сводки в Redis: %v", err)
			}
		}
	}
	return &stats, nil
}

// GetCommunityStats возвращает сводку соцработника по его данным
func (s *StatsService) GetCommunityStats(userID string) (*CommunityStats, error) {
	var stats CommunityStats

	if err := s.db.Model(&models.Patient{}).
		Where("registered_by_id = ?", userID).
		Count(&stats.MyPatients).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Ride{}).
		Where("requester_id = ? AND status = ?", userID, models.RideStatusPending).
		Count(&stats.PendingRides).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Ride{}).
		Where("requester_id = ? AND status IN (?)", userID, models.DriverActiveStatuses).
		Count(&stats.ActiveRides).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Ride{}).
		Where("requester_id = ? AND status = ?", userID, models.RideStatusCompleted).
		Count(&stats.CompletedRides).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
