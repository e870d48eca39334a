// Package notify implements the LISTEN/NOTIFY-style publish/subscribe
// bus described in spec.md §4.9 (C9). Topic names are constructed as
// "<domain>::<subject>", e.g. "REGIO_TX::admin". Delivery is best-effort
// and ordered per subscriber; a publish to a channel with no
// subscribers is dropped.
package notify

import "context"

// Handle identifies one subscription created by Listen. Unlisten is
// idempotent: calling it twice, or on an already-expired handle, is a
// no-op.
type Handle interface {
	Channel() string
}

// Bus is the core contract design note §9 asks implementations to meet:
// publish never blocks, wait blocks up to a timeout, and unlisten is
// idempotent. Two implementations satisfy it: a lib/pq LISTEN/NOTIFY
// backed Bus for production, and an in-process broadcast Bus for unit
// tests that don't want a live Postgres.
type Bus interface {
	// Publish delivers payload to every current subscriber of channel.
	// It never blocks on a slow or absent subscriber.
	Publish(ctx context.Context, channel, payload string) error

	// Listen subscribes to channel and returns a handle usable with
	// Wait/Unlisten.
	Listen(ctx context.Context, channel string) (Handle, error)

	// Wait blocks until a notification arrives on handle's channel, or
	// ctx is done (WaitTimeout bounds it with a timeout). It reports
	// whether a notification arrived.
	// The wait is interruptible via ctx (spec.md §5: "the 30s LISTEN
	// wait... MUST be interruptible").
	Wait(ctx context.Context, h Handle) (payload string, ok bool, err error)

	// Unlisten cancels a subscription. Idempotent.
	Unlisten(h Handle) error
}

// ChannelName builds the "<domain>::<subject>" topic name convention
// used throughout the ledger and cash-out monitor.
func ChannelName(domain, subject string) string {
	return domain + "::" + subject
}

const (
	DomainRegionalTx = "REGIO_TX"
	DomainFiatIn     = "FIAT_INCOMING"

	PayloadCredit = "CRDT"
	PayloadDebit  = "DBIT"
)
