// Package server реализует gRPC-сервер сервиса сессий.
//
// SessionServer разрешает значение сессии в контекст аутентификации
// и меняет security stamp личности. Отказ в аутентификации передаётся
// кодом Unauthenticated с машинной причиной в сообщении.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/magabrotheeeer/botgate/internal/grpc/sessionpb"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/services/session"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// Resolver проверка значения сессии.
type Resolver interface {
	ResolveCredential(ctx context.Context, credential string) (*session.AuthContext, error)
}

// Rotator смена security stamp.
type Rotator interface {
	Rotate(ctx context.Context, identityID string) error
}

// SessionServer реализует sessionpb.SessionServiceServer.
type SessionServer struct {
	sessionpb.UnimplementedSessionServiceServer
	resolver Resolver
	rotator  Rotator
	log      *slog.Logger
}

// NewSessionServer создает новый экземпляр SessionServer.
func NewSessionServer(resolver Resolver, rotator Rotator, logger *slog.Logger) *SessionServer {
	return &SessionServer{
		resolver: resolver,
		rotator:  rotator,
		log:      logger,
	}
}

// ResolveSession проверяет сессию и возвращает контекст аутентификации.
func (s *SessionServer) ResolveSession(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	const op = "server.ResolveSession"
	log := s.log.With(slog.String("op", op))

	if req.GetValue() == "" {
		return nil, status.Error(codes.Unauthenticated, session.ReasonAuthRequired)
	}

	ac, err := s.resolver.ResolveCredential(ctx, req.GetValue())
	if err != nil {
		if reason, ok := session.ReasonOf(err); ok {
			return nil, status.Error(codes.Unauthenticated, reason)
		}
		log.Error("resolve failed", sl.Err(err))
		return nil, status.Error(codes.Unavailable, "session backend unavailable")
	}

	out, err := structpb.NewStruct(map[string]any{
		sessionpb.FieldIdentityID: ac.IdentityID,
		sessionpb.FieldRole:       string(ac.Role),
		sessionpb.FieldTenantID:   ac.TenantID,
	})
	if err != nil {
		log.Error("failed to build response", sl.Err(err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// RotateStamp отзывает все сессии личности.
func (s *SessionServer) RotateStamp(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	const op = "server.RotateStamp"
	log := s.log.With(slog.String("op", op))

	if _, err := uuid.Parse(req.GetValue()); err != nil {
		return nil, status.Error(codes.InvalidArgument, "identity id must be uuid")
	}

	err := s.rotator.Rotate(ctx, req.GetValue())
	if errors.Is(err, storage.ErrIdentityNotFound) {
		return nil, status.Error(codes.NotFound, "identity not found")
	}
	if err != nil {
		log.Error("rotate failed", slog.String("identity_id", req.GetValue()), sl.Err(err))
		return nil, status.Error(codes.Internal, "rotate failed")
	}
	log.Info("stamp rotated", slog.String("identity_id", req.GetValue()))
	return &emptypb.Empty{}, nil
}
