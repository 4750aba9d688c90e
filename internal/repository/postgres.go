// Package repository содержит реализацию зеркала состояния рабочего дня в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/avolkhin/courierday-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCourierExists возвращается при попытке создать курьера с уже существующим логином.
var (
	ErrCourierExists = errors.New("courier already exists")
	// ErrCourierNotFound возвращается, если курьер не найден.
	ErrCourierNotFound = errors.New("courier not found")
	// ErrDayNotFound возвращается, если у курьера нет сохранённого рабочего дня.
	ErrDayNotFound = errors.New("workday not found")
)

// Имена коллекций посылок в зеркале.
const (
	collectionDaily     = "daily"
	collectionScanned   = "scanned"
	collectionDelivery  = "delivery"
	collectionDelivered = "delivered"
	collectionPending   = "pending"
)

// PostgresRepository предоставляет доступ к зеркалу состояния в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках БД:
// сериализационные сбои, дедлоки и обрывы соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(1*time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCourier создаёт нового курьера.
func (r *PostgresRepository) CreateCourier(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO couriers (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrCourierExists, login)
		}
		return 0, fmt.Errorf("create courier: %w", err)
	}
	return id, nil
}

// GetCourierByLogin возвращает курьера по логину.
func (r *PostgresRepository) GetCourierByLogin(ctx context.Context, login string) (*model.Courier, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM couriers WHERE login = $1`,
		login,
	)

	var c model.Courier
	err := row.Scan(&c.ID, &c.Login, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourierNotFound
		}
		return nil, fmt.Errorf("get courier: %w", err)
	}

	return &c, nil
}

// GetCourierByID возвращает курьера по идентификатору.
func (r *PostgresRepository) GetCourierByID(ctx context.Context, id int64) (*model.Courier, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM couriers WHERE id = $1`,
		id,
	)

	var c model.Courier
	err := row.Scan(&c.ID, &c.Login, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourierNotFound
		}
		return nil, fmt.Errorf("get courier: %w", err)
	}

	return &c, nil
}

// SaveDay заменяет зеркало рабочего дня курьера целиком: семантика
// хранилища дня — перезапись коллекций, а не их дозапись.
func (r *PostgresRepository) SaveDay(ctx context.Context, courierID int64, snap model.Snapshot) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO workdays (courier_id, current_step, updated_at) VALUES ($1, $2, now())
			 ON CONFLICT (courier_id) DO UPDATE SET current_step = $2, updated_at = now()`,
			courierID, string(snap.Step),
		)
		if err != nil {
			return fmt.Errorf("upsert workday: %w", err)
		}

		_, err = tx.Exec(ctx, `DELETE FROM day_packages WHERE courier_id = $1`, courierID)
		if err != nil {
			return fmt.Errorf("clear packages: %w", err)
		}

		for i, p := range snap.Daily {
			if err := insertBase(ctx, tx, courierID, collectionDaily, i, p); err != nil {
				return err
			}
		}
		for i, p := range snap.Delivery {
			if err := insertBase(ctx, tx, courierID, collectionDelivery, i, p); err != nil {
				return err
			}
		}
		for i, p := range snap.Scanned {
			_, err := tx.Exec(ctx,
				`INSERT INTO day_packages (courier_id, collection, position, package_id, tracking_number, is_cod, scan_time)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				courierID, collectionScanned, i, p.ID, p.TrackingNumber, p.IsCOD, p.ScanTime,
			)
			if err != nil {
				return fmt.Errorf("insert scanned package: %w", err)
			}
		}
		for i, p := range snap.Delivered {
			_, err := tx.Exec(ctx,
				`INSERT INTO day_packages (courier_id, collection, position, package_id, tracking_number, is_cod, recipient_name, proof_photo, delivered_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				courierID, collectionDelivered, i, p.ID, p.TrackingNumber, p.IsCOD, p.RecipientName, p.ProofPhoto, p.DeliveredAt,
			)
			if err != nil {
				return fmt.Errorf("insert delivered package: %w", err)
			}
		}
		for i, p := range snap.Pending {
			_, err := tx.Exec(ctx,
				`INSERT INTO day_packages (courier_id, collection, position, package_id, tracking_number, is_cod, reason, leader_name, return_photo, returned_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				courierID, collectionPending, i, p.ID, p.TrackingNumber, p.IsCOD, p.Reason, nullIfEmpty(p.LeaderName), nullIfEmpty(p.ReturnPhoto), p.ReturnedAt,
			)
			if err != nil {
				return fmt.Errorf("insert pending package: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func insertBase(ctx context.Context, tx pgx.Tx, courierID int64, collection string, position int, p model.Package) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO day_packages (courier_id, collection, position, package_id, tracking_number, is_cod)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		courierID, collection, position, p.ID, p.TrackingNumber, p.IsCOD,
	)
	if err != nil {
		return fmt.Errorf("insert %s package: %w", collection, err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LoadDay восстанавливает зеркало рабочего дня курьера.
func (r *PostgresRepository) LoadDay(ctx context.Context, courierID int64) (model.Snapshot, error) {
	var snap model.Snapshot

	var step string
	err := r.pool.QueryRow(ctx,
		`SELECT current_step FROM workdays WHERE courier_id = $1`,
		courierID,
	).Scan(&step)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snap, ErrDayNotFound
		}
		return snap, fmt.Errorf("select workday: %w", err)
	}
	snap.Step = model.Step(step)

	rows, err := r.pool.Query(ctx,
		`SELECT collection, package_id, tracking_number, is_cod,
		        scan_time, recipient_name, proof_photo, delivered_at,
		        reason, leader_name, return_photo, returned_at
		 FROM day_packages
		 WHERE courier_id = $1
		 ORDER BY collection, position`,
		courierID,
	)
	if err != nil {
		return snap, fmt.Errorf("select packages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			collection    string
			pkg           model.Package
			scanTime      *time.Time
			recipientName *string
			proofPhoto    *string
			deliveredAt   *time.Time
			reason        *string
			leaderName    *string
			returnPhoto   *string
			returnedAt    *time.Time
		)
		err := rows.Scan(&collection, &pkg.ID, &pkg.TrackingNumber, &pkg.IsCOD,
			&scanTime, &recipientName, &proofPhoto, &deliveredAt,
			&reason, &leaderName, &returnPhoto, &returnedAt)
		if err != nil {
			return snap, fmt.Errorf("scan package row: %w", err)
		}

		switch collection {
		case collectionDaily:
			snap.Daily = append(snap.Daily, pkg)
		case collectionDelivery:
			snap.Delivery = append(snap.Delivery, pkg)
		case collectionScanned:
			sp := model.ScannedPackage{Package: pkg}
			if scanTime != nil {
				sp.ScanTime = *scanTime
			}
			snap.Scanned = append(snap.Scanned, sp)
		case collectionDelivered:
			dp := model.DeliveredPackage{Package: pkg}
			if recipientName != nil {
				dp.RecipientName = *recipientName
			}
			if proofPhoto != nil {
				dp.ProofPhoto = *proofPhoto
			}
			if deliveredAt != nil {
				dp.DeliveredAt = *deliveredAt
			}
			snap.Delivered = append(snap.Delivered, dp)
		case collectionPending:
			pp := model.PendingPackage{Package: pkg, ReturnedAt: returnedAt}
			if reason != nil {
				pp.Reason = *reason
			}
			if leaderName != nil {
				pp.LeaderName = *leaderName
			}
			if returnPhoto != nil {
				pp.ReturnPhoto = *returnPhoto
			}
			snap.Pending = append(snap.Pending, pp)
		}
	}

	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("rows error: %w", err)
	}

	return snap, nil
}

// ClearDay удаляет зеркало рабочего дня курьера. Используется хуком сброса StartNewDay.
func (r *PostgresRepository) ClearDay(ctx context.Context, courierID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx, `DELETE FROM day_packages WHERE courier_id = $1`, courierID)
		if err != nil {
			return fmt.Errorf("delete packages: %w", err)
		}

		_, err = tx.Exec(ctx, `DELETE FROM workdays WHERE courier_id = $1`, courierID)
		if err != nil {
			return fmt.Errorf("delete workday: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
