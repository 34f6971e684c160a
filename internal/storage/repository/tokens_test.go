package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

func TestStorage_ConsumeMagicToken(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantID    string
		wantErr   error
	}{
		{
			name: "fresh token",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE magic_tokens SET used = true").
					WithArgs("digest", fixedNow).
					WillReturnRows(sqlmock.NewRows([]string{"identity_id"}).AddRow("id-1"))
			},
			wantID: "id-1",
		},
		{
			name: "already used",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE magic_tokens SET used = true").
					WillReturnRows(sqlmock.NewRows([]string{"identity_id"}))
				mock.ExpectQuery("SELECT used FROM magic_tokens").
					WithArgs("digest").
					WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(true))
			},
			wantErr: storage.ErrTokenAlreadyUsed,
		},
		{
			name: "expired and never used",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE magic_tokens SET used = true").
					WillReturnRows(sqlmock.NewRows([]string{"identity_id"}))
				mock.ExpectQuery("SELECT used FROM magic_tokens").
					WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(false))
			},
			wantErr: storage.ErrTokenExpired,
		},
		{
			name: "unknown token",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("UPDATE magic_tokens SET used = true").
					WillReturnRows(sqlmock.NewRows([]string{"identity_id"}))
				mock.ExpectQuery("SELECT used FROM magic_tokens").
					WillReturnRows(sqlmock.NewRows([]string{"used"}))
			},
			wantErr: storage.ErrTokenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			tt.setupMock(mock)

			id, err := s.ConsumeMagicToken(context.Background(), "digest", fixedNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, id)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_SaveMagicToken(t *testing.T) {
	s, mock := newMockStorage(t)
	token := models.MagicToken{
		Digest:     "digest",
		IdentityID: "id-1",
		IssuedAt:   fixedNow,
		ExpiresAt:  fixedNow.Add(tenMinutes),
	}
	mock.ExpectExec("INSERT INTO magic_tokens").
		WithArgs("digest", "id-1", fixedNow, fixedNow.Add(tenMinutes)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveMagicToken(context.Background(), token))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_SetSecurityStamp(t *testing.T) {
	t.Run("rotated", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec("UPDATE identities SET security_stamp").
			WithArgs("id-1", "new-stamp", fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.SetSecurityStamp(context.Background(), "id-1", "new-stamp"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown identity", func(t *testing.T) {
		s, mock := newMockStorage(t)
		mock.ExpectExec("UPDATE identities SET security_stamp").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.SetSecurityStamp(context.Background(), "missing", "new-stamp")
		assert.ErrorIs(t, err, storage.ErrIdentityNotFound)
	})
}

func TestStorage_SecurityStamp(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery("SELECT security_stamp, status FROM identities").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"security_stamp", "status"}).AddRow("stamp", "blocked"))

	stamp, status, err := s.SecurityStamp(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, "stamp", stamp)
	assert.Equal(t, models.IdentityBlocked, status)
}

func TestStorage_GetTier(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery("SELECT id, tenant_id, service_id, name, price, currency, billing_interval").
		WithArgs("tier-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "service_id", "name", "price", "currency",
			"billing_interval", "purchasable", "deleted_at"}).
			AddRow("tier-1", "tenant-1", "svc", "Pro", int64(1000), "USD", nil, true, nil))

	tier, err := s.GetTier(context.Background(), "tier-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingInterval(""), tier.Interval)
	assert.True(t, tier.Available())
	assert.Equal(t, int64(1000), tier.Price)
}
