package read

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetTier(ctx context.Context, tierID string) (*models.Tier, error) {
	args := m.Called(ctx, tierID)
	if res := args.Get(0); res != nil {
		return res.(*models.Tier), args.Error(1)
	}
	return nil, args.Error(1)
}

const tierID = "6f1c1f6e-3b0a-4f7e-9a43-0c9b2b3c5d11"

func TestTierReadHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name           string
		url            string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "year tier",
			url:  "/api/v1/tiers/" + tierID,
			setupMock: func(m *MockService) {
				m.On("GetTier", mock.Anything, tierID).Return(&models.Tier{
					ID: tierID, Price: 12000, Currency: "XTR", Interval: models.IntervalYear, Purchasable: true,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"interval":"year"`,
		},
		{
			name:           "not a uuid",
			url:            "/api/v1/tiers/abc",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `can contain only uuid`,
		},
		{
			name: "unknown tier",
			url:  "/api/v1/tiers/" + tierID,
			setupMock: func(m *MockService) {
				m.On("GetTier", mock.Anything, tierID).Return(nil, storage.ErrTierNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "db failure",
			url:  "/api/v1/tiers/" + tierID,
			setupMock: func(m *MockService) {
				m.On("GetTier", mock.Anything, tierID).Return(nil, errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			r := chi.NewRouter()
			r.Get("/api/v1/tiers/{tierID}", New(logger, svc).ServeHTTP)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
