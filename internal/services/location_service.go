package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DriverLocation - последняя известная позиция водителя
type DriverLocation struct {
	DriverID  string    `json:"driverId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Позиция живет недолго: водитель без свежих пингов пропадает с карты
const locationTTL = 2 * time.Minute

// LocationService хранит живые позиции водителей в Redis.
// Позиции эфемерны, в базу они не пишутся.
type LocationService struct {
	redis *redis.Client
}

func NewLocationService(rdb *redis.Client) *LocationService {
	return &LocationService{redis: rdb}
}

func locationKey(driverID string) string {
	return fmt.Sprintf("driver_location:%s", driverID)
}

// Update сохраняет позицию водителя
func (s *LocationService) Update(ctx context.Context, driverID string, latitude, longitude float64) error {
	if s.redis == nil {
		return nil
	}
	loc := DriverLocation{
		DriverID:  driverID,
		Latitude:  latitude,
		Longitude: longitude,
		UpdatedAt: time.Now(),
	}
	payload, err := json.Marshal(&loc)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, locationKey(driverID), payload, locationTTL).Err()
}

// Get возвращает позицию водителя или nil, если она устарела
func (s *LocationService) Get(ctx context.Context, driverID string) (*DriverLocation, error) {
	if s.redis == nil {
		return nil, nil
	}
	payload, err := s.redis.Get(ctx, locationKey(driverID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var loc DriverLocation
	if err := json.Unmarshal(payload, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetMany возвращает позиции сразу для списка водителей одним запросом
func (s *LocationService) GetMany(ctx context.Context, driverIDs []string) (map[string]*DriverLocation, error) {
	result := make(map[string]*DriverLocation)
	if s.redis == nil || len(driverIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(driverIDs))
	for i, id := range driverIDs {
		keys[i] = locationKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var loc DriverLocation
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			continue
		}
		result[driverIDs[i]] = &loc
	}
	return result, nil
}
