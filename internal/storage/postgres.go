package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/xaenox/relaybot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStorage keeps one row per thread with a monotonically increasing
// version used for optimistic concurrency.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := newPostgresStorageWithDB(db, logger)

	// Initialize database schema
	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	storage.logger.Info("History schema ready", zap.String("dbname", config.DBName))

	return storage, nil
}

func newPostgresStorageWithDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStorage{db: db, logger: logger}
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Load(ctx context.Context, threadID string) (*models.ThreadHistory, error) {
	query := `
		SELECT payload, version
		FROM chat_histories
		WHERE thread_id = $1`

	var (
		payload []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: query history %s: %w", threadID, err)
	}

	history, err := DecodeHistory(payload)
	if err != nil {
		return nil, err
	}
	history.Version = strconv.FormatInt(version, 10)
	return history, nil
}

func (s *PostgresStorage) Save(ctx context.Context, threadID string, history *models.ThreadHistory, expectedVersion string) (string, error) {
	payload, err := EncodeHistory(history)
	if err != nil {
		return "", err
	}

	if expectedVersion == "" {
		return s.insert(ctx, threadID, payload)
	}

	expected, err := strconv.ParseInt(expectedVersion, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed version %q", ErrConflict, expectedVersion)
	}

	query := `
		UPDATE chat_histories
		SET payload = $1, version = version + 1, updated_at = NOW()
		WHERE thread_id = $2 AND version = $3
		RETURNING version`

	var version int64
	err = s.db.QueryRowContext(ctx, query, string(payload), threadID, expected).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: thread %s at version %d", ErrConflict, threadID, expected)
	}
	if err != nil {
		return "", fmt.Errorf("storage: update history %s: %w", threadID, err)
	}
	return strconv.FormatInt(version, 10), nil
}

func (s *PostgresStorage) insert(ctx context.Context, threadID string, payload []byte) (string, error) {
	query := `
		INSERT INTO chat_histories (thread_id, payload, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (thread_id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query, threadID, string(payload))
	if err != nil {
		return "", fmt.Errorf("storage: insert history %s: %w", threadID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("storage: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return "", fmt.Errorf("%w: thread %s already exists", ErrConflict, threadID)
	}
	return "1", nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
