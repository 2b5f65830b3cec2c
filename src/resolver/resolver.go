package resolver

import (
	"context"

	"github.com/hathorqa/qaconsole/src/eventlog"
	"github.com/hathorqa/qaconsole/src/hathorapi"
	"github.com/hathorqa/qaconsole/src/metrics"
	"github.com/hathorqa/qaconsole/src/model"
	"go.uber.org/zap"
)

// WalletSource hands out the connection to query. An empty wallet id asks for
// the best-effort fallback instance.
type WalletSource interface {
	InstanceFor(walletID string) hathorapi.Connection
}

// Resolver answers "what is the confirmation status of transaction H" from
// four sources of differing trust and latency: the live event channel, the
// status cache, the wallet-local tx cache, and finally the remote full node.
type Resolver struct {
	log     *eventlog.Log
	cache   *StatusCache
	wallets WalletSource
	logger  *zap.Logger
}

func NewResolver(log *eventlog.Log, cache *StatusCache, wallets WalletSource, logger *zap.Logger) *Resolver {
	return &Resolver{
		log:     log,
		cache:   cache,
		wallets: wallets,
		logger:  logger.With(zap.String("component", "resolver")),
	}
}

// Resolve is total: it always returns a status and never an error. This is
// operator telemetry, a failed lookup degrades to Unknown instead of
// surfacing an error banner on every hash in the UI.
func (r *Resolver) Resolve(ctx context.Context, hash, walletID string) model.TxStatus {
	// 1. live event stream; freshest source, never cached since it is
	// re-derived from the latest event on every call
	if ev := r.log.LatestForHash(hash); ev != nil {
		metrics.ResolverLookups.WithLabelValues("event").Inc()
		return model.DeriveTxStatus(ev.Payload.Voided, ev.Payload.HasNano, ev.Payload.FirstBlock != nil)
	}

	// 2. status cache; permanent entries unconditional, unconfirmed within TTL
	if status, ok := r.cache.Get(hash); ok {
		metrics.ResolverLookups.WithLabelValues("cache").Inc()
		return status
	}

	conn := r.wallets.InstanceFor(walletID)
	if conn == nil {
		r.logger.Debug("no wallet instance available for resolution",
			zap.String("hash", hash), zap.String("wallet", walletID))
		metrics.ResolverUnknown.Inc()
		return model.TxStatusUnknown
	}

	// 3. wallet-local cache; answers without a network round-trip whenever
	// the wallet already knows the outcome
	tx, err := conn.GetTx(ctx, hash)
	if err != nil {
		r.logger.Warn("wallet-local tx lookup failed", zap.String("hash", hash), zap.Error(err))
		metrics.ResolverUnknown.Inc()
		return model.TxStatusUnknown
	}
	hasNano := false
	if tx != nil {
		hasNano = tx.NCID != nil
		status := model.DeriveTxStatus(tx.IsVoided, hasNano, tx.FirstBlock != nil)
		if status.Permanent() {
			metrics.ResolverLookups.WithLabelValues("wallet").Inc()
			r.cache.Put(hash, status)
			return status
		}
		// nano tx the wallet still sees as unconfirmed; it may have
		// confirmed since the wallet last refreshed, ask the node
	}

	// 4. remote full node, the only source that costs a network round-trip
	full, err := conn.GetFullTxByID(ctx, hash)
	if err != nil {
		r.logger.Warn("full node tx lookup failed", zap.String("hash", hash), zap.Error(err))
		metrics.ResolverUnknown.Inc()
		return model.TxStatusUnknown
	}
	if full == nil || !full.Success {
		metrics.ResolverUnknown.Inc()
		return model.TxStatusUnknown
	}
	if full.Tx != nil && full.Tx.NCID != nil {
		hasNano = true
	}
	status := model.DeriveTxStatus(len(full.Meta.VoidedBy) > 0, hasNano, full.Meta.FirstBlock != nil)
	metrics.ResolverLookups.WithLabelValues("node").Inc()
	r.cache.Put(hash, status)
	return status
}
