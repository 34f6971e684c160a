// Package repository реализует хранилище данных на основе PostgreSQL:
// личности и их security stamp, одноразовые токены входа, тарифы,
// журнал платежей и подписки, а также атомарное применение оплаты.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB  *sql.DB
	now func() time.Time
}

// New создаёт подключение к PostgreSQL и проверяет его.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithDB(db), nil
}

// NewWithDB оборачивает готовое соединение.
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{
		DB:  db,
		now: time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Storage) WithClock(now func() time.Time) *Storage {
	s.now = now
	return s
}

// Close закрывает соединение.
func (s *Storage) Close() error {
	return s.DB.Close()
}

// CheckDatabaseReady проверяет, что миграции применены.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'subscriptions'
    )`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("required table subscriptions query error: %w", err)
	}
	if !exists {
		return fmt.Errorf("required table subscriptions missing")
	}
	return nil
}

// WaitReady ждёт готовности базы заданное число попыток.
func WaitReady(ctx context.Context, storage *Storage, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = CheckDatabaseReady(storage); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}
