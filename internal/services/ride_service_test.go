package services

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"wecare-backend/internal/middleware"
	"wecare-backend/internal/models"
)

// setupTestDB подключается к тестовой базе из WECARE_TEST_DSN.
// Без заданной переменной тесты с базой пропускаются.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("WECARE_TEST_DSN")
	if dsn == "" {
		t.Skip("WECARE_TEST_DSN не задан, пропускаем тесты с базой данных")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "подключение к тестовой базе")

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.DriverProfile{},
		&models.Patient{},
		&models.Vehicle{},
		&models.Ride{},
		&models.AuditLog{},
	))

	require.NoError(t, db.Exec(
		"TRUNCATE TABLE audit_logs, rides, driver_profiles, patients, vehicles, users CASCADE").Error)
	return db
}

func createUser(t *testing.T, db *gorm.DB, role, status string) *models.User {
	t.Helper()
	user := &models.User{
		Name:         fmt.Sprintf("Тест %s", role),
		Email:        fmt.Sprintf("%s-%d@test.local", role, time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         role,
		Status:       status,
	}
	require.NoError(t, db.Create(user).Error)
	if role == models.RoleDriver {
		require.NoError(t, db.Create(&models.DriverProfile{UserID: user.ID, AvgReviewScore: 5.0}).Error)
	}
	return user
}

func createPatient(t *testing.T, db *gorm.DB, registeredBy string) *models.Patient {
	t.Helper()
	patient := &models.Patient{
		FullName:       "Тестовый Пациент",
		ContactPhone:   "+77000000000",
		CurrentAddress: "ул. Тестовая, 1",
		RegisteredByID: registeredBy,
	}
	require.NoError(t, db.Create(patient).Error)
	return patient
}

func createPendingRide(t *testing.T, svc *RideService, requester *models.User, patientID string, at time.Time) *models.Ride {
	t.Helper()
	ride, err := svc.Create(Actor{ID: requester.ID, Email: requester.Email, Role: requester.Role}, CreateRideInput{
		PatientID:       patientID,
		PickupLocation:  "ул. Подачи, 1",
		Destination:     "Районная больница",
		AppointmentTime: at,
	})
	require.NoError(t, err)
	return ride
}

func actorFor(u *models.User) Actor {
	return Actor{ID: u.ID, Email: u.Email, Role: u.Role}
}

func TestRideLifecycleHappyPath(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(2*time.Hour))
	assert.Equal(t, models.RideStatusPending, ride.Status)

	ride, err := svc.Assign(actorFor(office), ride.ID, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusAssigned, ride.Status)
	require.NotNil(t, ride.DriverID)
	assert.Equal(t, driver.ID, *ride.DriverID)

	for _, next := range []models.RideStatus{
		models.RideStatusEnRouteToPickup,
		models.RideStatusArrivedAtPickup,
		models.RideStatusInProgress,
		models.RideStatusCompleted,
	} {
		ride, err = svc.Advance(actorFor(driver), ride.ID, next)
		require.NoError(t, err, "переход в %s", next)
		assert.Equal(t, next, ride.Status)
	}

	// водитель остается привязан к завершенной поездке
	var stored models.Ride
	require.NoError(t, db.First(&stored, "id = ?", ride.ID).Error)
	require.NotNil(t, stored.DriverID)

	// каждое изменение оставило след в журнале аудита
	var auditCount int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("target_id = ?", ride.ID).Count(&auditCount).Error)
	assert.EqualValues(t, 6, auditCount)
}

func TestAssignConflictWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	base := time.Now().Add(6 * time.Hour).Truncate(time.Second)

	first := createPendingRide(t, svc, requester, patient.ID, base)
	_, err := svc.Assign(actorFor(office), first.ID, driver.ID)
	require.NoError(t, err)

	// 59 минут разницы: конфликт
	tooClose := createPendingRide(t, svc, requester, patient.ID, base.Add(59*time.Minute))
	_, err = svc.Assign(actorFor(office), tooClose.ID, driver.ID)
	assert.ErrorIs(t, err, ErrSchedulingConflict)

	// неудачное назначение не тронуло заявку
	var stored models.Ride
	require.NoError(t, db.First(&stored, "id = ?", tooClose.ID).Error)
	assert.Equal(t, models.RideStatusPending, stored.Status)
	assert.Nil(t, stored.DriverID)

	// ровно час разницы: допустимо
	exactlyHour := createPendingRide(t, svc, requester, patient.ID, base.Add(time.Hour))
	_, err = svc.Assign(actorFor(office), exactlyHour.ID, driver.ID)
	assert.NoError(t, err)
}

func TestAssignRequiresActiveDriver(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))

	inactive := createUser(t, db, models.RoleDriver, models.UserStatusInactive)
	_, err := svc.Assign(actorFor(office), ride.ID, inactive.ID)
	assert.ErrorIs(t, err, ErrValidation)

	// соцработник в роли водителя неотличим от несуществующего водителя
	_, err = svc.Assign(actorFor(office), ride.ID, requester.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Assign(actorFor(office), ride.ID, "no-such-driver")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentAssignSameRide(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)
	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(3*time.Hour))

	drivers := []*models.User{
		createUser(t, db, models.RoleDriver, models.UserStatusActive),
		createUser(t, db, models.RoleDriver, models.UserStatusActive),
		createUser(t, db, models.RoleDriver, models.UserStatusActive),
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(drivers))
	for _, d := range drivers {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			_, err := svc.Assign(actorFor(office), ride.ID, driverID)
			errs <- err
		}(d.ID)
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition, "проигравший должен увидеть недопустимый переход")
	}
	assert.Equal(t, 1, success, "назначиться должен ровно один водитель")

	var stored models.Ride
	require.NoError(t, db.First(&stored, "id = ?", ride.ID).Error)
	assert.Equal(t, models.RideStatusAssigned, stored.Status)
	require.NotNil(t, stored.DriverID)
}

func TestCancelClearsDriver(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))
	_, err := svc.Assign(actorFor(office), ride.ID, driver.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(actorFor(requester), ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.DriverID)

	var stored models.Ride
	require.NoError(t, db.First(&stored, "id = ?", ride.ID).Error)
	assert.Nil(t, stored.DriverID)
}

func TestCancelAfterDeparture(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))
	_, err := svc.Assign(actorFor(office), ride.ID, driver.ID)
	require.NoError(t, err)
	_, err = svc.Advance(actorFor(driver), ride.ID, models.RideStatusEnRouteToPickup)
	require.NoError(t, err)

	_, err = svc.Cancel(actorFor(requester), ride.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelForeignRideInvisible(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	other := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))

	// чужая заявка для другого соцработника выглядит как несуществующая
	_, err := svc.Cancel(actorFor(other), ride.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvanceSkipAheadForbidden(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))
	_, err := svc.Assign(actorFor(office), ride.ID, driver.ID)
	require.NoError(t, err)

	_, err = svc.Advance(actorFor(driver), ride.ID, models.RideStatusInProgress)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Advance(actorFor(driver), ride.ID, models.RideStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// запросить ASSIGNED или отмену водитель не может в принципе
	_, err = svc.Advance(actorFor(driver), ride.ID, models.RideStatusCancelled)
	assert.ErrorIs(t, err, ErrValidation)

	// чужую поездку водитель не видит
	stranger := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	_, err = svc.Advance(actorFor(stranger), ride.ID, models.RideStatusEnRouteToPickup)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRateRules(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))

	// незавершенную поездку оценить нельзя
	_, err := svc.Rate(actorFor(requester), ride.ID, RateRideInput{Rating: 5})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Assign(actorFor(office), ride.ID, driver.ID)
	require.NoError(t, err)
	for _, next := range []models.RideStatus{
		models.RideStatusEnRouteToPickup,
		models.RideStatusArrivedAtPickup,
		models.RideStatusInProgress,
		models.RideStatusCompleted,
	} {
		_, err = svc.Advance(actorFor(driver), ride.ID, next)
		require.NoError(t, err)
	}

	// завершенную поездку дальше двигать некуда
	_, err = svc.Advance(actorFor(driver), ride.ID, models.RideStatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// оценка вне диапазона
	_, err = svc.Rate(actorFor(requester), ride.ID, RateRideInput{Rating: 0})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Rate(actorFor(requester), ride.ID, RateRideInput{Rating: 6})
	assert.ErrorIs(t, err, ErrValidation)

	rated, err := svc.Rate(actorFor(requester), ride.ID, RateRideInput{
		Rating:  4,
		Tags:    []string{"вежливый"},
		Comment: "Все прошло хорошо",
	})
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)

	// повторная оценка запрещена
	_, err = svc.Rate(actorFor(requester), ride.ID, RateRideInput{Rating: 5})
	assert.ErrorIs(t, err, ErrAlreadyRated)

	// средний рейтинг водителя пересчитан
	var profile models.DriverProfile
	require.NoError(t, db.First(&profile, "user_id = ?", driver.ID).Error)
	assert.InDelta(t, 4.0, profile.AvgReviewScore, 0.01)
}

func TestCreateForeignPatientInvisible(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	owner := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	other := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	patient := createPatient(t, db, owner.ID)

	_, err := svc.Create(actorFor(other), CreateRideInput{
		PatientID:       patient.ID,
		PickupLocation:  "ул. Подачи, 1",
		Destination:     "Больница",
		AppointmentTime: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOptimizeRouteOrdering(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	base := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	times := []time.Time{base.Add(4 * time.Hour), base, base.Add(2 * time.Hour)}

	ids := make([]string, 0, len(times))
	for _, at := range times {
		ride := createPendingRide(t, svc, requester, patient.ID, at)
		_, err := svc.Assign(actorFor(office), ride.ID, driver.ID)
		require.NoError(t, err)
		ids = append(ids, ride.ID)
	}

	ordered, err := svc.OptimizeRoute(actorFor(driver), ids)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.True(t, ordered[0].AppointmentTime.Before(ordered[1].AppointmentTime))
	assert.True(t, ordered[1].AppointmentTime.Before(ordered[2].AppointmentTime))

	// чужая или лишняя поездка в списке ломает запрос целиком
	_, err = svc.OptimizeRoute(actorFor(driver), append(ids, "no-such-ride"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.OptimizeRoute(actorFor(driver), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOptimizeRouteEqualTimesTieBreak(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	// заявки с одинаковым временем создаются напрямую, минуя проверку
	// конфликта: сортировке важен только детерминированный порядок
	at := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	ids := []string{"tie-c", "tie-a", "tie-b"}
	for _, id := range ids {
		require.NoError(t, db.Create(&models.Ride{
			ID:              id,
			PatientID:       patient.ID,
			RequesterID:     requester.ID,
			DriverID:        &driver.ID,
			PickupLocation:  "ул. Подачи, 1",
			Destination:     "Больница",
			AppointmentTime: at,
			Status:          models.RideStatusAssigned,
		}).Error)
	}

	ordered, err := svc.OptimizeRoute(actorFor(driver), ids)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "tie-a", ordered[0].ID)
	assert.Equal(t, "tie-b", ordered[1].ID)
	assert.Equal(t, "tie-c", ordered[2].ID)
}

// Блокировка строки должна доходить до итогового SQL. Без FOR UPDATE два
// одновременных назначения читают одну и ту же PENDING-заявку и оба проходят
// проверку перехода. База для этого теста не нужна: достаточно построить запрос
func TestRowLockClauseReachesSQL(t *testing.T) {
	db, err := gorm.Open(postgres.Open("host=localhost user=wecare dbname=wecare sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	stmt := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", "ride-1").Find(&models.Ride{}).Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")
}

func TestConcurrentRateWriteOnce(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)

	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))
	_, err := svc.Assign(actorFor(office), ride.ID, driver.ID)
	require.NoError(t, err)
	for _, next := range []models.RideStatus{
		models.RideStatusEnRouteToPickup,
		models.RideStatusArrivedAtPickup,
		models.RideStatusInProgress,
		models.RideStatusCompleted,
	} {
		_, err = svc.Advance(actorFor(driver), ride.ID, next)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Rate(actorFor(requester), ride.ID, RateRideInput{Rating: 5})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyRated, "проигравший должен увидеть повторную оценку")
	}
	assert.Equal(t, 1, success, "записаться должна ровно одна оценка")

	var audits int64
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("action = ? AND target_id = ?", models.AuditActionRideRate, ride.ID).
		Count(&audits).Error)
	assert.EqualValues(t, 1, audits)
}

// Откат транзакции не должен оставлять след в метриках переходов
func TestRollbackDoesNotCountTransition(t *testing.T) {
	db := setupTestDB(t)
	svc := NewRideService(db)

	requester := createUser(t, db, models.RoleCommunity, models.UserStatusActive)
	driver := createUser(t, db, models.RoleDriver, models.UserStatusActive)
	office := createUser(t, db, models.RoleOffice, models.UserStatusActive)
	patient := createPatient(t, db, requester.ID)
	ride := createPendingRide(t, svc, requester, patient.ID, time.Now().Add(time.Hour))

	// прячем таблицу аудита, чтобы транзакция назначения упала на последнем шаге
	require.NoError(t, db.Exec("ALTER TABLE audit_logs RENAME TO audit_logs_hidden").Error)
	defer func() {
		require.NoError(t, db.Exec("ALTER TABLE audit_logs_hidden RENAME TO audit_logs").Error)
	}()

	counter := middleware.RideStatusTransitionsTotal.WithLabelValues(
		string(models.RideStatusPending), string(models.RideStatusAssigned))
	before := testutil.ToFloat64(counter)

	_, err := svc.Assign(actorFor(office), ride.ID, driver.ID)
	require.Error(t, err)

	assert.Equal(t, before, testutil.ToFloat64(counter), "неудавшийся переход не считается")

	var stored models.Ride
	require.NoError(t, db.First(&stored, "id = ?", ride.ID).Error)
	assert.Equal(t, models.RideStatusPending, stored.Status)
	assert.Nil(t, stored.DriverID)
}
