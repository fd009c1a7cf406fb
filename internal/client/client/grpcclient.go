package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/profitpal/internal/client/models"
	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/ledgerapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// TokenSource mints a fresh service token.
type TokenSource func() (string, error)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	ledger      *ledgerapi.LedgerClient
	health      healthpb.HealthClient
	mint        TokenSource

	mu          sync.Mutex
	accessToken string
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, token)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (c *GRPCClient) token(refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && !refresh {
		return c.accessToken, nil
	}
	t, err := c.mint()
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	c.accessToken = t
	return t, nil
}

func (c *GRPCClient) accessTokenInterceptor(ctx context.Context, method string, req, reply any,
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {

	if method == healthpb.Health_Check_FullMethodName {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	t, err := c.token(false)
	if err != nil {
		return err
	}

	err = invoker(withAccessToken(ctx, t), method, req, reply, cc, opts...)
	if !isTokenExpired(err) {
		return err
	}

	t, err = c.token(true)
	if err != nil {
		return err
	}
	return invoker(withAccessToken(ctx, t), method, req, reply, cc, opts...)
}

// NewGRPCClient dials the Ledger endpoint without transport security; the
// API is meant for a private network.
func NewGRPCClient(endpointURL string, mint TokenSource, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, mint: mint}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}

	c.conn = conn
	c.ledger = ledgerapi.NewLedgerClient(conn)
	c.health = healthpb.NewHealthClient(conn)
	return c, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrBadRequest, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func decode(in *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func call[T any](ctx context.Context, c *GRPCClient, method string, fields map[string]any) (*T, error) {
	resp, err := c.ledger.Call(ctx, method, fields)
	if err != nil {
		return nil, mapError(err)
	}
	out := new(T)
	if err := decode(resp, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping reports whether the Ledger service is serving.
func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ledgerapi.ServiceName})
	if err != nil {
		return mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return ErrUnavailable
	}
	return nil
}

func (c *GRPCClient) ConsumeCreditOrCharge(ctx context.Context, email string) (*models.BillingDecision, error) {
	return call[models.BillingDecision](ctx, c, ledgerapi.MethodConsumeCreditOrCharge, map[string]any{"email": email})
}

func (c *GRPCClient) ReferralStats(ctx context.Context, email string) (*models.ReferralStats, error) {
	return call[models.ReferralStats](ctx, c, ledgerapi.MethodReferralStats, map[string]any{"email": email})
}

func (c *GRPCClient) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	return call[models.GlobalStats](ctx, c, ledgerapi.MethodGlobalStats, nil)
}

func (c *GRPCClient) Reconcile(ctx context.Context) (*models.AuditReport, error) {
	return call[models.AuditReport](ctx, c, ledgerapi.MethodReconcile, nil)
}
