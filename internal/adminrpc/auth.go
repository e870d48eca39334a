package adminrpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	macaroon "gopkg.in/macaroon.v2"
)

// macaroonMetadataKey is the gRPC metadata key ebicsctl sends its
// admin macaroon under, mirroring lncli's "macaroon" header.
const macaroonMetadataKey = "macaroon"

// timeBeforeCaveatPrefix marks a first-party caveat restricting a
// macaroon's validity window, the same anti-replay caveat lncli adds
// before every call (cmd/lncli/main.go's getClientConn).
const timeBeforeCaveatPrefix = "time-before "

// MacaroonAuth bakes and verifies the single admin macaroon this
// daemon issues. There is exactly one capability ("admin"); the admin
// control plane has no read-only/invoice-only split worth a second
// macaroon.
type MacaroonAuth struct {
	rootKey  []byte
	location string
}

// NewMacaroonAuth constructs a MacaroonAuth over rootKey, which callers
// must persist (e.g. alongside the TLS cert) so re-baked macaroons on
// restart stay valid against already-issued ones.
func NewMacaroonAuth(rootKey []byte, location string) *MacaroonAuth {
	return &MacaroonAuth{rootKey: rootKey, location: location}
}

// Bake issues a new admin macaroon valid until validUntil, hex-encoded
// for writing to an admin.macaroon-equivalent file.
func (a *MacaroonAuth) Bake(validUntil time.Time) (string, error) {
	m, err := macaroon.New(a.rootKey, []byte("admin"), a.location, macaroon.LatestVersion)
	if err != nil {
		return "", fmt.Errorf("adminrpc: bake macaroon: %w", err)
	}

	caveat := timeBeforeCaveatPrefix + validUntil.UTC().Format(time.RFC3339)
	if err := m.AddFirstPartyCaveat([]byte(caveat)); err != nil {
		return "", fmt.Errorf("adminrpc: add caveat: %w", err)
	}

	raw, err := m.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("adminrpc: marshal macaroon: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// UnaryServerInterceptor verifies the macaroon attached to every admin
// RPC, rejecting expired or tampered ones before the handler runs.
func (a *MacaroonAuth) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (interface{}, error) {

		if err := a.verify(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *MacaroonAuth) verify(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok || len(md.Get(macaroonMetadataKey)) == 0 {
		return status.Error(codes.Unauthenticated, "adminrpc: missing macaroon")
	}

	raw, err := hex.DecodeString(md.Get(macaroonMetadataKey)[0])
	if err != nil {
		return status.Error(codes.Unauthenticated, "adminrpc: malformed macaroon")
	}

	m := &macaroon.Macaroon{}
	if err := m.UnmarshalBinary(raw); err != nil {
		return status.Error(codes.Unauthenticated, "adminrpc: malformed macaroon")
	}

	check := func(caveat string) error {
		if !strings.HasPrefix(caveat, timeBeforeCaveatPrefix) {
			return fmt.Errorf("adminrpc: unrecognized caveat %q", caveat)
		}
		deadline, err := time.Parse(time.RFC3339, strings.TrimPrefix(caveat, timeBeforeCaveatPrefix))
		if err != nil {
			return fmt.Errorf("adminrpc: malformed time-before caveat: %w", err)
		}
		if time.Now().UTC().After(deadline) {
			return fmt.Errorf("adminrpc: macaroon expired at %s", deadline)
		}
		return nil
	}

	if err := m.Verify(a.rootKey, check, nil); err != nil {
		return status.Errorf(codes.Unauthenticated, "adminrpc: macaroon verification failed: %v", err)
	}
	return nil
}
