package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/botgate/internal/migrations"
	"github.com/magabrotheeeer/botgate/internal/models"
)

// TestDataFactory создаёт тестовые данные напрямую через SQL.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создаёт фабрику тестовых данных.
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateTenant создаёт арендатора.
func (f *TestDataFactory) CreateTenant(t *testing.T) string {
	var id string
	err := f.storage.DB.QueryRow(`INSERT INTO tenants (name) VALUES ('acme') RETURNING id`).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateIdentity создаёт активную личность.
func (f *TestDataFactory) CreateIdentity(t *testing.T, externalID int64) *models.Identity {
	identity, err := f.storage.UpsertIdentity(context.Background(), externalID, "tester", uuid.NewString())
	require.NoError(t, err)
	return identity
}

// CreateTier создаёт тариф.
func (f *TestDataFactory) CreateTier(t *testing.T, tenantID, serviceID string, interval *string) *models.Tier {
	var id string
	err := f.storage.DB.QueryRow(`INSERT INTO tiers (tenant_id, service_id, name, price, currency, billing_interval)
		VALUES ($1, $2, 'Pro', 1000, 'USD', $3) RETURNING id`, tenantID, serviceID, interval).Scan(&id)
	require.NoError(t, err)
	tier, err := f.storage.GetTier(context.Background(), id)
	require.NoError(t, err)
	return tier
}

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}
