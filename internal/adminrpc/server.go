package adminrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/jackc/pgx/v4/pgxpool"
	"google.golang.org/grpc"

	"github.com/sandboxbank/ebicsd/internal/cashout"
	"github.com/sandboxbank/ebicsd/internal/ebicscrypto"
	"github.com/sandboxbank/ebicsd/internal/subscriber"
)

// Server implements AdminServer and owns the grpc.Server lifecycle,
// grounded on rpcserver.go's atomic started/shutdown guard around a
// shared *server.
type Server struct {
	started  int32
	shutdown int32

	pool         *pgxpool.Pool
	subs         *subscriber.Repository
	demobankName string

	monitorsMu sync.RWMutex
	monitors   map[string]*cashout.Monitor

	grpcServer *grpc.Server
}

var _ AdminServer = (*Server)(nil)

// NewServer constructs a Server with a gRPC server wired to
// interceptors for recovery, Prometheus metrics, and macaroon auth.
func NewServer(pool *pgxpool.Pool, subs *subscriber.Repository, demobankName string, auth *MacaroonAuth) *Server {
	s := &Server{
		pool:         pool,
		subs:         subs,
		demobankName: demobankName,
		monitors:     make(map[string]*cashout.Monitor),
	}

	s.grpcServer = grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_prometheus.UnaryServerInterceptor,
			auth.UnaryServerInterceptor(),
		)),
	)
	RegisterAdminServer(s.grpcServer, s)
	grpc_prometheus.Register(s.grpcServer)

	return s
}

// RegisterMonitor binds a running cash-out monitor to its account
// label so TriggerDrain can address it.
func (s *Server) RegisterMonitor(accountLabel string, m *cashout.Monitor) {
	s.monitorsMu.Lock()
	defer s.monitorsMu.Unlock()
	s.monitors[accountLabel] = m
}

// Start begins serving on lis. It must be called at most once.
func (s *Server) Start(lis net.Listener) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}
	return s.grpcServer.Serve(lis)
}

// Stop gracefully shuts the gRPC server down.
func (s *Server) Stop() {
	if !atomic.CompareAndSwapInt32(&s.shutdown, 0, 1) {
		return
	}
	s.grpcServer.GracefulStop()
}

func (s *Server) Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return &HealthResponse{Healthy: false, DemobankName: s.demobankName}, nil
	}
	return &HealthResponse{Healthy: true, DemobankName: s.demobankName}, nil
}

func (s *Server) TriggerDrain(ctx context.Context, req *TriggerDrainRequest) (*TriggerDrainResponse, error) {
	s.monitorsMu.RLock()
	m, ok := s.monitors[req.AccountLabel]
	s.monitorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adminrpc: no cash-out monitor registered for account %q", req.AccountLabel)
	}

	count, err := m.Drain(ctx)
	if err != nil {
		return nil, err
	}
	return &TriggerDrainResponse{SubmittedCount: int32(count)}, nil
}

func (s *Server) DescribeSubscriber(ctx context.Context, req *DescribeSubscriberRequest) (*DescribeSubscriberResponse, error) {
	sub, err := s.subs.Get(ctx, s.pool, req.HostID, req.PartnerID, req.UserID)
	if err != nil {
		return nil, err
	}

	var bankAccountID int64
	if sub.BankAccountID != nil {
		bankAccountID = *sub.BankAccountID
	}

	return &DescribeSubscriberResponse{
		State:         string(sub.State),
		BankAccountID: bankAccountID,
		HasIniLetter:  sub.Keys[ebicscrypto.UsageSignature].State == subscriber.KeyReleased,
		HasHiaLetter: sub.Keys[ebicscrypto.UsageEncryption].State == subscriber.KeyReleased &&
			sub.Keys[ebicscrypto.UsageAuthentication].State == subscriber.KeyReleased,
	}, nil
}
