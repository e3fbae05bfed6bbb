// Package postgres implements the store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"voice-order-service/internal/models"
	"voice-order-service/internal/store"
)

// Config holds pool settings.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// ConnectTimeout bounds the total time spent retrying the first connection.
	ConnectTimeout time.Duration
}

// Store is a pgxpool-backed store.
type Store struct {
	db *pgxpool.Pool
}

// Connect opens the pool, retrying with exponential backoff until the
// database answers, and ensures the schema exists.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("DATABASE_URL not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, db.Ping(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retryIn", next).Msg("Postgres not ready, retrying")
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	log.Info().
		Int32("maxConns", poolCfg.MaxConns).
		Int32("minConns", poolCfg.MinConns).
		Msg("Connected to PostgreSQL")

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	restaurantsSQL := `
		CREATE TABLE IF NOT EXISTS restaurants (
			id UUID PRIMARY KEY,
			user_id VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			locations JSONB NOT NULL DEFAULT '[]',
			owner_name VARCHAR(255) NOT NULL DEFAULT '',
			restaurant_number VARCHAR(32) NOT NULL DEFAULT '',
			ai_number VARCHAR(32) NOT NULL DEFAULT '',
			pos_system VARCHAR(50) NOT NULL DEFAULT '',
			menu JSONB NOT NULL DEFAULT '[]',
			deals JSONB NOT NULL DEFAULT '[]',
			language VARCHAR(50) NOT NULL DEFAULT '',
			voice VARCHAR(50) NOT NULL DEFAULT '',
			accent VARCHAR(50) NOT NULL DEFAULT '',
			step INT NOT NULL DEFAULT 1,
			setup_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.Exec(ctx, restaurantsSQL); err != nil {
		return err
	}

	// One restaurant per inbound number; unassigned rows keep ''.
	if _, err := s.db.Exec(ctx, `DROP INDEX IF EXISTS restaurants_ai_number_idx`); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS `+aiNumberIndex+` ON restaurants (ai_number)
		WHERE ai_number <> ''
	`); err != nil {
		return err
	}

	ordersSQL := `
		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			restaurant_id UUID NOT NULL REFERENCES restaurants(id),
			customer_number VARCHAR(64) NOT NULL DEFAULT '',
			items JSONB NOT NULL,
			total NUMERIC(10, 2) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			transcript TEXT NOT NULL DEFAULT '',
			ai_response TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.Exec(ctx, ordersSQL); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS orders_restaurant_created_idx ON orders (restaurant_id, created_at DESC)`); err != nil {
		return err
	}

	log.Info().Msg("Schema initialized")
	return nil
}

const (
	aiNumberIndex = "restaurants_ai_number_key"
	// SQLSTATE unique_violation.
	uniqueViolation = "23505"
)

const restaurantColumns = `
	id, user_id, name, locations, owner_name, restaurant_number, ai_number,
	pos_system, menu, deals, language, voice, accent, step, setup_complete,
	created_at, updated_at
`

func scanRestaurant(row pgx.Row) (*models.Restaurant, error) {
	var (
		r                       models.Restaurant
		locations, menu, deals []byte
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.Name, &locations, &r.OwnerName, &r.RestaurantNumber, &r.AINumber,
		&r.POSSystem, &menu, &deals, &r.Language, &r.Voice, &r.Accent, &r.Step, &r.SetupComplete,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(locations, &r.Locations); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	if err := json.Unmarshal(menu, &r.Menu); err != nil {
		return nil, fmt.Errorf("decode menu: %w", err)
	}
	if err := json.Unmarshal(deals, &r.Deals); err != nil {
		return nil, fmt.Errorf("decode deals: %w", err)
	}
	return &r, nil
}

func (s *Store) GetByUser(ctx context.Context, userID string) (*models.Restaurant, error) {
	return scanRestaurant(s.db.QueryRow(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE user_id = $1`, userID))
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Restaurant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	return scanRestaurant(s.db.QueryRow(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = $1`, id))
}

func (s *Store) GetByAINumber(ctx context.Context, number string) (*models.Restaurant, error) {
	if number == "" {
		return nil, store.ErrNotFound
	}
	return scanRestaurant(s.db.QueryRow(ctx,
		`SELECT `+restaurantColumns+` FROM restaurants WHERE ai_number = $1`, number))
}

func (s *Store) UpsertByUser(ctx context.Context, r *models.Restaurant) (*models.Restaurant, error) {
	locations, err := json.Marshal(nonNil(r.Locations))
	if err != nil {
		return nil, err
	}
	menu, err := json.Marshal(nonNil(r.Menu))
	if err != nil {
		return nil, err
	}
	deals, err := json.Marshal(nonNil(r.Deals))
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO restaurants (
			id, user_id, name, locations, owner_name, restaurant_number, ai_number,
			pos_system, menu, deals, language, voice, accent, step, setup_complete
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			locations = EXCLUDED.locations,
			owner_name = EXCLUDED.owner_name,
			restaurant_number = EXCLUDED.restaurant_number,
			ai_number = EXCLUDED.ai_number,
			pos_system = EXCLUDED.pos_system,
			menu = EXCLUDED.menu,
			deals = EXCLUDED.deals,
			language = EXCLUDED.language,
			voice = EXCLUDED.voice,
			accent = EXCLUDED.accent,
			step = EXCLUDED.step,
			setup_complete = EXCLUDED.setup_complete,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + restaurantColumns

	saved, err := scanRestaurant(s.db.QueryRow(ctx, query,
		uuid.NewString(), r.UserID, r.Name, locations, r.OwnerName, r.RestaurantNumber, r.AINumber,
		r.POSSystem, menu, deals, r.Language, r.Voice, r.Accent, r.Step, r.SetupComplete,
	))
	if isUniqueViolation(err, aiNumberIndex) {
		return nil, store.ErrAINumberTaken
	}
	return saved, err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func (s *Store) CreateOrder(ctx context.Context, o models.OrderRecord) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (id, restaurant_id, customer_number, items, total, status, transcript, ai_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.ID, o.RestaurantID, o.CustomerID, items, o.Total, string(o.Status), o.Transcript, o.AIResponse, o.CreatedAt)
	return err
}

func (s *Store) ListByRestaurant(ctx context.Context, restaurantID string, limit int) ([]models.OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, restaurant_id, customer_number, items, total::float8, status, transcript, ai_response, created_at
		FROM orders
		WHERE restaurant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, restaurantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.OrderRecord
	for rows.Next() {
		var (
			o      models.OrderRecord
			items  []byte
			status string
		)
		if err := rows.Scan(&o.ID, &o.RestaurantID, &o.CustomerID, &items, &o.Total, &status,
			&o.Transcript, &o.AIResponse, &o.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		o.Status = models.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Ping checks connectivity, for readiness.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
