// Package auth собирает gRPC-сервис сессий.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/magabrotheeeer/botgate/internal/config"
	"github.com/magabrotheeeer/botgate/internal/grpc/server"
	"github.com/magabrotheeeer/botgate/internal/grpc/sessionpb"
	"github.com/magabrotheeeer/botgate/internal/lib/jwt"
	"github.com/magabrotheeeer/botgate/internal/lib/sl"
	"github.com/magabrotheeeer/botgate/internal/services/session"
	"github.com/magabrotheeeer/botgate/internal/storage/repository"
)

type App struct {
	grpcServer *grpc.Server
	listener   net.Listener
	db         *repository.Storage
	logger     *slog.Logger
}

func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}

	codec := jwt.NewJWTMaker(cfg.Session.SecretKey, cfg.Session.TTL)
	resolver := session.NewResolver(codec, db, cfg.CookieName, nil)
	rotator := session.NewRotator(db)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen %s: %w", cfg.ListenAddress, err)
	}

	grpcServer := grpc.NewServer()
	sessionpb.RegisterSessionServiceServer(grpcServer, server.NewSessionServer(resolver, rotator, logger))

	return &App{
		grpcServer: grpcServer,
		listener:   lis,
		db:         db,
		logger:     logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("Session gRPC service listening on", slog.String("address", a.listener.Addr().String()))
		errCh <- a.grpcServer.Serve(a.listener)
	}()

	defer func() {
		if err := a.db.DB.Close(); err != nil {
			a.logger.Error("failed to close database", sl.Err(err))
		}
	}()

	select {
	case <-ctx.Done():
		a.grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
