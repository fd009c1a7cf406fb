// Package grpc serves the internal Ledger API used by the billing scheduler
// and by ppctl. Every Ledger call carries a service token.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/profitpal/internal/ledgerapi"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type ledgerService interface {
	ConsumeCreditOrCharge(ctx context.Context, email string) services.BillingDecision
	Stats(ctx context.Context, email string) (*services.ReferralStats, error)
	GlobalStats(ctx context.Context) (*services.GlobalReferralStats, error)
}

type auditService interface {
	Reconcile(ctx context.Context) (*services.AuditReport, error)
	Export(ctx context.Context, report *services.AuditReport) error
	ExportEnabled() bool
}

type GRPCServer struct {
	address   string
	ledger    ledgerService
	audit     auditService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, ledger ledgerService, audit auditService, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		ledger:    ledger,
		audit:     audit,
		jwtSecret: []byte(secretKey),
	}, nil
}

// newServer builds the gRPC server with the Ledger and health services.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	ledgerapi.RegisterLedgerServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(ledgerapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
