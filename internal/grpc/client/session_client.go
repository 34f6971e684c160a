// Package client реализует клиента gRPC-сервиса сессий.
//
// SessionClient подменяет локальный разрешатель сессий в HTTP-приложении,
// когда сервис сессий вынесен в отдельный процесс.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/magabrotheeeer/botgate/internal/grpc/sessionpb"
	"github.com/magabrotheeeer/botgate/internal/models"
	"github.com/magabrotheeeer/botgate/internal/services/session"
	"github.com/magabrotheeeer/botgate/internal/storage"
)

// SessionClient клиент сервиса сессий.
type SessionClient struct {
	conn   *grpc.ClientConn
	client sessionpb.SessionServiceClient
}

// NewSessionClient открывает соединение с сервисом сессий.
func NewSessionClient(addr string, opts ...grpc.DialOption) (*SessionClient, error) {
	const op = "client.NewSessionClient"

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &SessionClient{conn: conn, client: sessionpb.NewSessionServiceClient(conn)}, nil
}

// Close закрывает соединение.
func (c *SessionClient) Close() error {
	return c.conn.Close()
}

// ResolveCredential реализует session.CredentialResolver.
func (c *SessionClient) ResolveCredential(ctx context.Context, credential string) (*session.AuthContext, error) {
	const op = "client.ResolveCredential"

	out, err := c.client.ResolveSession(ctx, wrapperspb.String(credential))
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.Unauthenticated {
			return nil, session.Unauthenticated(st.Message())
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fields := out.GetFields()
	return &session.AuthContext{
		IdentityID: fields[sessionpb.FieldIdentityID].GetStringValue(),
		Role:       models.Role(fields[sessionpb.FieldRole].GetStringValue()),
		TenantID:   fields[sessionpb.FieldTenantID].GetStringValue(),
	}, nil
}

// Rotate меняет security stamp личности через сервис сессий.
func (c *SessionClient) Rotate(ctx context.Context, identityID string) error {
	const op = "client.Rotate"

	_, err := c.client.RotateStamp(ctx, wrapperspb.String(identityID))
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return fmt.Errorf("%s: %w", op, storage.ErrIdentityNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
