package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wecare-backend/internal/middleware"
	"wecare-backend/internal/models"
	"wecare-backend/internal/websocket"
)

// ConflictWindow - минимальный разрыв между назначениями одного водителя.
// Две поездки конфликтуют, если их времена приема отстоят друг от друга
// строго меньше чем на час; ровно час уже допустим.
const ConflictWindow = time.Hour

// Actor - пользователь, от имени которого выполняется операция.
// Данные берутся из JWT и попадают в журнал аудита.
type Actor struct {
	ID    string
	Email string
	Role  string
}

// CreateRideInput - параметры новой заявки на перевозку
type CreateRideInput struct {
	PatientID       string    `json:"patientId" binding:"required"`
	PickupLocation  string    `json:"pickupLocation" binding:"required"`
	Destination     string    `json:"destination" binding:"required"`
	AppointmentTime time.Time `json:"appointmentTime" binding:"required"`
	SpecialNeeds    []string  `json:"specialNeeds"`
	CaregiverCount  int       `json:"caregiverCount"`
}

// RateRideInput - оценка завершенной поездки
type RateRideInput struct {
	Rating  int      `json:"rating" binding:"required"`
	Tags    []string `json:"tags"`
	Comment string   `json:"comment"`
}

// RideService реализует жизненный цикл заявки на перевозку.
// Все изменения статуса проходят через таблицу переходов и пишутся
// вместе с записью аудита в одной транзакции.
type RideService struct {
	db *gorm.DB
}

func NewRideService(db *gorm.DB) *RideService {
	return &RideService{db: db}
}

// writeAudit добавляет запись журнала в текущую транзакцию
func writeAudit(tx *gorm.DB, actor Actor, action, targetID, details string) error {
	return tx.Create(&models.AuditLog{
		UserEmail: actor.Email,
		UserRole:  actor.Role,
		Action:    action,
		TargetID:  targetID,
		Details:   details,
	}).Error
}

// Create регистрирует новую заявку со статусом PENDING.
// Соцработник может создавать заявки только для своих пациентов.
func (s *RideService) Create(actor Actor, input CreateRideInput) (*models.Ride, error) {
	if input.AppointmentTime.IsZero() {
		return nil, fmt.Errorf("%w: не указано время приема", ErrValidation)
	}
	if strings.TrimSpace(input.PickupLocation) == "" || strings.TrimSpace(input.Destination) == "" {
		return nil, fmt.Errorf("%w: не указан адрес подачи или назначения", ErrValidation)
	}
	if input.CaregiverCount < 0 {
		return nil, fmt.Errorf("%w: число сопровождающих не может быть отрицательным", ErrValidation)
	}

	var patient models.Patient
	if err := s.db.Where("id = ?", input.PatientID).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !models.IsOfficeRole(actor.Role) && patient.RegisteredByID != actor.ID {
		// Чужой пациент неотличим от несуществующего
		return nil, ErrNotFound
	}

	ride := models.Ride{
		PatientID:       patient.ID,
		RequesterID:     actor.ID,
		PickupLocation:  input.PickupLocation,
		Destination:     input.Destination,
		AppointmentTime: input.AppointmentTime,
		Status:          models.RideStatusPending,
		SpecialNeeds:    pq.StringArray(input.SpecialNeeds),
		CaregiverCount:  input.CaregiverCount,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ride).Error; err != nil {
			return err
		}
		return writeAudit(tx, actor, models.AuditActionRideCreate, ride.ID,
			fmt.Sprintf("пациент %s, прием %s", patient.FullName, input.AppointmentTime.Format(time.RFC3339)))
	})
	if err != nil {
		return nil, err
	}

	ride.Patient = &patient
	return &ride, nil
}

// HasConflict проверяет, занят ли водитель другой активной поездкой,
// время приема которой отстоит от appointmentTime меньше чем на час
func (s *RideService) HasConflict(tx *gorm.DB, driverID string, appointmentTime time.Time, excludeRideID string) (bool, error) {
	var count int64
	err := tx.Model(&models.Ride{}).
		Where("driver_id = ? AND status IN (?) AND id <> ?", driverID, models.DriverActiveStatuses, excludeRideID).
		Where("ABS(EXTRACT(EPOCH FROM appointment_time - ?::timestamptz)) < ?", appointmentTime, ConflictWindow.Seconds()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Assign назначает водителя на заявку в статусе PENDING.
// Заявка блокируется FOR UPDATE, чтобы два диспетчера не назначили
// водителей одновременно: второй увидит уже не PENDING и получит отказ.
func (s *RideService) Assign(actor Actor, rideID, driverID string) (*models.Ride, error) {
	var ride models.Ride

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", rideID).First(&ride).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !models.CanTransition(ride.Status, models.RideStatusAssigned) {
			return fmt.Errorf("%w: из статуса %s нельзя назначить водителя", ErrInvalidTransition, ride.Status)
		}

		var driver models.User
		if err := tx.Where("id = ? AND role = ?", driverID, models.RoleDriver).First(&driver).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: водитель не найден", ErrNotFound)
			}
			return err
		}
		if driver.Status != models.UserStatusActive {
			return fmt.Errorf("%w: водитель неактивен", ErrValidation)
		}

		conflict, err := s.HasConflict(tx, driverID, ride.AppointmentTime, ride.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSchedulingConflict
		}

		updates := map[string]interface{}{
			"status":    models.RideStatusAssigned,
			"driver_id": driverID,
		}
		if err := tx.Model(&ride).Updates(updates).Error; err != nil {
			return err
		}
		ride.Status = models.RideStatusAssigned
		ride.DriverID = &driverID

		return writeAudit(tx, actor, models.AuditActionRideAssign, ride.ID,
			fmt.Sprintf("водитель %s (%s)", driver.Name, driver.ID))
	})
	if err != nil {
		return nil, err
	}

	middleware.TrackRideTransition(string(models.RideStatusPending), string(models.RideStatusAssigned))
	s.notifyStatusChange(&ride)
	return &ride, nil
}

// Advance переводит поездку в следующий статус по запросу водителя.
// Водитель видит только свои поездки и может двигаться только на один
// шаг вперед по цепочке.
func (s *RideService) Advance(actor Actor, rideID string, target models.RideStatus) (*models.Ride, error) {
	allowed := false
	for _, st := range models.DriverAdvanceStatuses {
		if st == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: статус %s недоступен водителю", ErrValidation, target)
	}

	var ride models.Ride
	var prev models.RideStatus
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND driver_id = ?", rideID, actor.ID).First(&ride).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !models.CanTransition(ride.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ride.Status, target)
		}

		prev = ride.Status
		if err := tx.Model(&ride).Update("status", target).Error; err != nil {
			return err
		}
		ride.Status = target

		return writeAudit(tx, actor, models.AuditActionRideStatus, ride.ID,
			fmt.Sprintf("%s -> %s", prev, target))
	})
	if err != nil {
		return nil, err
	}

	middleware.TrackRideTransition(string(prev), string(target))
	s.notifyStatusChange(&ride)
	return &ride, nil
}

// Cancel отменяет заявку. Отмена возможна только из PENDING и ASSIGNED;
// при отмене назначенной заявки водитель освобождается.
func (s *RideService) Cancel(actor Actor, rideID string) (*models.Ride, error) {
	var ride models.Ride
	var prev models.RideStatus
	var prevDriverID *string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", rideID)
		if !models.IsOfficeRole(actor.Role) {
			query = query.Where("requester_id = ?", actor.ID)
		}
		if err := query.First(&ride).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !models.CanTransition(ride.Status, models.RideStatusCancelled) {
			return fmt.Errorf("%w: заявку в статусе %s уже нельзя отменить", ErrInvalidTransition, ride.Status)
		}

		prev = ride.Status
		prevDriverID = ride.DriverID
		updates := map[string]interface{}{
			"status":    models.RideStatusCancelled,
			"driver_id": nil,
		}
		if err := tx.Model(&ride).Updates(updates).Error; err != nil {
			return err
		}
		ride.Status = models.RideStatusCancelled
		ride.DriverID = nil

		return writeAudit(tx, actor, models.AuditActionRideCancel, ride.ID, fmt.Sprintf("из статуса %s", prev))
	})
	if err != nil {
		return nil, err
	}

	middleware.TrackRideTransition(string(prev), string(models.RideStatusCancelled))
	s.notifyStatusChange(&ride)
	if prevDriverID != nil {
		websocket.SendRideStatusUpdate(*prevDriverID, ride.ID, string(models.RideStatusCancelled))
	}
	return &ride, nil
}

// Rate сохраняет оценку завершенной поездки. Оценить можно только один раз
func (s *RideService) Rate(actor Actor, rideID string, input RateRideInput) (*models.Ride, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, fmt.Errorf("%w: оценка должна быть от 1 до 5", ErrValidation)
	}

	var ride models.Ride
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND requester_id = ?", rideID, actor.ID).First(&ride).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if ride.Status != models.RideStatusCompleted {
			return fmt.Errorf("%w: оценить можно только завершенную поездку", ErrInvalidTransition)
		}
		if ride.Rating != nil {
			return ErrAlreadyRated
		}

		updates := map[string]interface{}{
			"rating":         input.Rating,
			"review_tags":    pq.StringArray(input.Tags),
			"review_comment": input.Comment,
		}
		if err := tx.Model(&ride).Updates(updates).Error; err != nil {
			return err
		}
		ride.Rating = &input.Rating
		ride.ReviewTags = pq.StringArray(input.Tags)
		ride.ReviewComment = input.Comment

		if ride.DriverID != nil {
			if err := recalcDriverScore(tx, *ride.DriverID); err != nil {
				return err
			}
		}
		return writeAudit(tx, actor, models.AuditActionRideRate, ride.ID, fmt.Sprintf("оценка %d", input.Rating))
	})
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

// recalcDriverScore пересчитывает среднюю оценку водителя по всем его поездкам
func recalcDriverScore(tx *gorm.DB, driverID string) error {
	var avg float64
	err := tx.Model(&models.Ride{}).
		Where("driver_id = ? AND rating IS NOT NULL", driverID).
		Select("COALESCE(AVG(rating), 5.0)").Scan(&avg).Error
	if err != nil {
		return err
	}
	return tx.Model(&models.DriverProfile{}).
		Where("user_id = ?", driverID).
		Update("avg_review_score", avg).Error
}

// OptimizeRoute упорядочивает назначенные водителю поездки по времени приема.
// Пока это просто сортировка; подключение движка маршрутизации оставлено
// на будущее. При равном времени порядок стабилен по идентификатору.
func (s *RideService) OptimizeRoute(actor Actor, rideIDs []string) ([]models.Ride, error) {
	if len(rideIDs) == 0 {
		return nil, fmt.Errorf("%w: пустой список поездок", ErrValidation)
	}

	var rides []models.Ride
	err := s.db.Where("id IN (?) AND driver_id = ? AND status = ?",
		rideIDs, actor.ID, models.RideStatusAssigned).
		Preload("Patient").
		Find(&rides).Error
	if err != nil {
		return nil, err
	}
	if len(rides) != len(rideIDs) {
		return nil, fmt.Errorf("%w: часть поездок не найдена или не назначена вам", ErrValidation)
	}

	sort.SliceStable(rides, func(i, j int) bool {
		if rides[i].AppointmentTime.Equal(rides[j].AppointmentTime) {
			return rides[i].ID < rides[j].ID
		}
		return rides[i].AppointmentTime.Before(rides[j].AppointmentTime)
	})
	return rides, nil
}

// notifyStatusChange отправляет событие смены статуса заказчику и водителю
func (s *RideService) notifyStatusChange(ride *models.Ride) {
	websocket.SendRideStatusUpdate(ride.RequesterID, ride.ID, string(ride.Status))
	if ride.DriverID != nil {
		websocket.SendRideStatusUpdate(*ride.DriverID, ride.ID, string(ride.Status))
	}
}
