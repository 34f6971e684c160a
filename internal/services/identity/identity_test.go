package identity_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/identity"
)

type RepositoryMock struct {
	mock.Mock
}

func (m *RepositoryMock) UpsertIdentity(ctx context.Context, externalID int64, displayName, stamp string) (*models.Identity, error) {
	args := m.Called(ctx, externalID, displayName, stamp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

func (m *RepositoryMock) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestService_EnsureIdentity(t *testing.T) {
	repo := new(RepositoryMock)
	svc := identity.New(repo, newNoopLogger())

	var stamp string
	repo.On("UpsertIdentity", mock.Anything, int64(42), "Ada Lovelace", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { stamp = args.String(3) }).
		Return(&models.Identity{ID: "id-1", ExternalID: 42, Status: models.IdentityActive}, nil)

	got, err := svc.EnsureIdentity(context.Background(), 42, "<b>Ada</b> Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
	assert.Len(t, stamp, 43)
	repo.AssertExpectations(t)
}

func TestService_EnsureIdentityError(t *testing.T) {
	repo := new(RepositoryMock)
	svc := identity.New(repo, newNoopLogger())
	repo.On("UpsertIdentity", mock.Anything, int64(42), mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	_, err := svc.EnsureIdentity(context.Background(), 42, "Ada")
	assert.Error(t, err)
}

func TestService_SanitizeDisplayName(t *testing.T) {
	svc := identity.New(new(RepositoryMock), newNoopLogger())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Ada", "Ada"},
		{"tags stripped", "<i>Bob</i>", "Bob"},
		{"script dropped", "<script>alert(1)</script>Eve", "Eve"},
		{"ampersand kept", "Tom & Jerry", "Tom & Jerry"},
		{"whitespace collapsed", "  Ada \n  Lovelace ", "Ada Lovelace"},
		{"empty", "", "user"},
		{"only markup", "<img src=x>", "user"},
		{"cyrillic", "Анна", "Анна"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.SanitizeDisplayName(tt.in))
		})
	}
}

func TestService_SanitizeDisplayNameTruncates(t *testing.T) {
	svc := identity.New(new(RepositoryMock), newNoopLogger())
	got := svc.SanitizeDisplayName(strings.Repeat("я", 100))
	assert.Equal(t, identity.MaxDisplayNameLength, len([]rune(got)))
}
