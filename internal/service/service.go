// Package service реализует бизнес-логику сервиса рабочего дня курьера.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/avolkhin/courierday-system/internal/manifest"
	"github.com/avolkhin/courierday-system/internal/model"
	"github.com/avolkhin/courierday-system/internal/repository"
	"github.com/avolkhin/courierday-system/internal/workflow"
)

// ErrManifestBusy возвращается, когда сервис манифестов ограничивает частоту запросов.
var (
	ErrManifestBusy = errors.New("manifest service is busy")
	// ErrManifestNotConfigured возвращается при импорте без настроенного сервиса манифестов.
	ErrManifestNotConfigured = errors.New("manifest service is not configured")
	// ErrInvalidCredentials возвращается при несовпадении пары логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCourier(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetCourierByLogin(ctx context.Context, login string) (*model.Courier, error)
	GetCourierByID(ctx context.Context, id int64) (*model.Courier, error)
	SaveDay(ctx context.Context, courierID int64, snap model.Snapshot) error
	LoadDay(ctx context.Context, courierID int64) (model.Snapshot, error)
	ClearDay(ctx context.Context, courierID int64) error
}

// session связывает рабочий день курьера с его зеркалом в хранилище.
// Мьютекс сессии обеспечивает однопоточность операций над Day:
// само ядро рабочего дня не синхронизировано.
type session struct {
	mu    sync.Mutex
	day   *workflow.Day
	dirty bool
}

// Service содержит бизнес-логику сервиса рабочего дня курьера.
type Service struct {
	repo           Repository
	manifestClient *manifest.Client
	clock          workflow.Clock

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом сервиса манифестов.
func NewService(repo Repository, manifestClient *manifest.Client) *Service {
	return &Service{
		repo:           repo,
		manifestClient: manifestClient,
		clock:          time.Now,
		sessions:       make(map[int64]*session),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterCourier регистрирует нового курьера.
func (s *Service) RegisterCourier(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateCourier(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrCourierExists) {
			return 0, repository.ErrCourierExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateCourier проверяет логин и пароль курьера и возвращает его идентификатор.
func (s *Service) AuthenticateCourier(ctx context.Context, login, password string) (int64, error) {
	c, err := s.repo.GetCourierByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(c.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return c.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// getSession возвращает сессию рабочего дня курьера, при первом обращении
// восстанавливая состояние из зеркала: день переживает перезапуск процесса.
func (s *Service) getSession(ctx context.Context, courierID int64) (*session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[courierID]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	var day *workflow.Day
	snap, err := s.repo.LoadDay(ctx, courierID)
	switch {
	case err == nil:
		day = workflow.Restore(snap, s.clock)
	case errors.Is(err, repository.ErrDayNotFound):
		day = workflow.NewDayWithClock(s.clock)
	default:
		return nil, err
	}

	day.SetResetHook(func() error {
		clearCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.repo.ClearDay(clearCtx, courierID)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[courierID]; ok {
		// Параллельный запрос успел создать сессию первым.
		return sess, nil
	}
	sess := &session{day: day}
	s.sessions[courierID] = sess
	return sess, nil
}

// mutate выполняет операцию над рабочим днём под мьютексом сессии
// и помечает сессию для фоновой записи в зеркало.
func (s *Service) mutate(ctx context.Context, courierID int64, fn func(*workflow.Day) error) error {
	sess, err := s.getSession(ctx, courierID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := fn(sess.day); err != nil {
		return err
	}
	sess.dirty = true
	return nil
}

// GetSnapshot возвращает копию состояния рабочего дня курьера.
func (s *Service) GetSnapshot(ctx context.Context, courierID int64) (model.Snapshot, error) {
	sess, err := s.getSession(ctx, courierID)
	if err != nil {
		return model.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.day.Snapshot(), nil
}

// GetSummary возвращает итоговые показатели рабочего дня курьера.
func (s *Service) GetSummary(ctx context.Context, courierID int64) (model.Summary, error) {
	sess, err := s.getSession(ctx, courierID)
	if err != nil {
		return model.Summary{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.day.Summary(), nil
}

// AddDailyPackage регистрирует посылку в дневном списке курьера.
func (s *Service) AddDailyPackage(ctx context.Context, courierID int64, trackingNumber string, isCOD bool) (model.Package, error) {
	var pkg model.Package
	err := s.mutate(ctx, courierID, func(d *workflow.Day) error {
		var err error
		pkg, err = d.AddDailyPackage(trackingNumber, isCOD)
		return err
	})
	return pkg, err
}

// RemoveDailyPackage удаляет посылку из дневного списка курьера.
func (s *Service) RemoveDailyPackage(ctx context.Context, courierID int64, id string) error {
	return s.mutate(ctx, courierID, func(d *workflow.Day) error {
		return d.RemoveDailyPackage(id)
	})
}

// ImportManifest добавляет в дневной список посылки, назначенные курьеру
// сервисом манифестов. Уже зарегистрированные трек-номера пропускаются,
// поэтому повторный импорт безопасен. Возвращает число добавленных посылок
// и задержку из Retry-After, если сервис манифестов ограничил запросы.
func (s *Service) ImportManifest(ctx context.Context, courierID int64) (int, time.Duration, error) {
	if s.manifestClient == nil {
		return 0, 0, ErrManifestNotConfigured
	}

	courier, err := s.repo.GetCourierByID(ctx, courierID)
	if err != nil {
		return 0, 0, err
	}

	assignments, statusCode, retryAfter, err := s.manifestClient.GetAssignments(ctx, courier.Login)
	if err != nil {
		return 0, 0, err
	}
	if statusCode == 429 {
		return 0, retryAfter, ErrManifestBusy
	}
	if len(assignments) == 0 {
		return 0, 0, nil
	}

	added := 0
	err = s.mutate(ctx, courierID, func(d *workflow.Day) error {
		for _, a := range assignments {
			_, err := d.AddDailyPackage(a.TrackingNumber, a.IsCOD)
			switch {
			case err == nil:
				added++
			case errors.Is(err, workflow.ErrDuplicateTracking):
				continue
			default:
				return err
			}
		}
		return nil
	})
	return added, 0, err
}

// StartScanning переводит рабочий день курьера на этап сканирования.
func (s *Service) StartScanning(ctx context.Context, courierID int64) error {
	return s.mutate(ctx, courierID, func(d *workflow.Day) error {
		return d.StartScanning()
	})
}

// ScanPackage регистрирует сканирование посылки и при полном покрытии
// партии автоматически начинает этап доставки.
func (s *Service) ScanPackage(ctx context.Context, courierID int64, trackingNumber string, isCOD bool) (model.ScannedPackage, error) {
	var scanned model.ScannedPackage
	err := s.mutate(ctx, courierID, func(d *workflow.Day) error {
		var err error
		scanned, err = d.ScanPackage(trackingNumber, isCOD)
		if err != nil {
			return err
		}
		d.AutoProgress()
		return nil
	})
	return scanned, err
}

// RemoveScanned отменяет сканирование посылки.
func (s *Service) RemoveScanned(ctx context.Context, courierID int64, id string) error {
	return s.mutate(ctx, courierID, func(d *workflow.Day) error {
		return d.RemoveScanned(id)
	})
}

// StartDelivery явно начинает этап доставки.
func (s *Service) StartDelivery(ctx context.Context, courierID int64) error {
	return s.mutate(ctx, courierID, func(d *workflow.Day) error {
		return d.StartDelivery()
	})
}

// MarkDelivered закрывает доставку посылки и при полном разборе партии
// продвигает день дальше по этапам.
func (s *Service) MarkDelivered(ctx context.Context, courierID int64, id, recipientName, proofPhoto string) (model.DeliveredPackage, error) {
	var delivered model.DeliveredPackage
	err := s.mutate(ctx, courierID, func(d *workflow.Day) error {
		var err error
		delivered, err = d.MarkDelivered(id, recipientName, proofPhoto)
		if err != nil {
			return err
		}
		d.AutoProgress()
		return nil
	})
	return delivered, err
}

// MarkPending переводит посылку в ожидание и при полном разборе партии
// продвигает день дальше по этапам.
func (s *Service) MarkPending(ctx context.Context, courierID int64, id, reason string) (model.PendingPackage, error) {
	var pending model.PendingPackage
	err := s.mutate(ctx, courierID, func(d *workflow.Day) error {
		var err error
		pending, err = d.MarkPending(id, reason)
		if err != nil {
			return err
		}
		d.AutoProgress()
		return nil
	})
	return pending, err
}

// ReturnAllPending фиксирует возврат всех недоставленных посылок на склад
// и переводит день к итогам.
func (s *Service) ReturnAllPending(ctx context.Context, courierID int64, leaderName, returnPhoto string) error {
	return s.mutate(ctx, courierID, func(d *workflow.Day) error {
		if err := d.ReturnAllPending(leaderName, returnPhoto); err != nil {
			return err
		}
		d.AutoProgress()
		return nil
	})
}

// StartNewDay сбрасывает рабочий день курьера. Зеркало очищается
// синхронно через хук сброса, минуя фоновую запись.
func (s *Service) StartNewDay(ctx context.Context, courierID int64) error {
	sess, err := s.getSession(ctx, courierID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.day.StartNewDay(); err != nil {
		return err
	}
	sess.dirty = false
	return nil
}

// StartMirrorSync запускает фоновую запись изменённых сессий в зеркало.
func (s *Service) StartMirrorSync(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.flushDirtySessions(ctx)
			}
		}
	}()
}

func (s *Service) flushDirtySessions(ctx context.Context) {
	s.mu.Lock()
	pending := make(map[int64]*session, len(s.sessions))
	for id, sess := range s.sessions {
		pending[id] = sess
	}
	s.mu.Unlock()

	for courierID, sess := range pending {
		sess.mu.Lock()
		if !sess.dirty {
			sess.mu.Unlock()
			continue
		}
		snap := sess.day.Snapshot()
		sess.dirty = false
		sess.mu.Unlock()

		if err := s.repo.SaveDay(ctx, courierID, snap); err != nil {
			// Неудачная запись будет повторена на следующем тике.
			sess.mu.Lock()
			sess.dirty = true
			sess.mu.Unlock()
		}
	}
}
