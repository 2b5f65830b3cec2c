package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hathorqa/qaconsole/src/addressindex"
	"github.com/hathorqa/qaconsole/src/eventlog"
	"github.com/hathorqa/qaconsole/src/hathorapi"
	"github.com/hathorqa/qaconsole/src/metrics"
	"github.com/hathorqa/qaconsole/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrDuplicateWallet = fmt.Errorf("duplicate wallet id")
	ErrWalletNotFound  = fmt.Errorf("wallet not found")
)

type walletEntry struct {
	record model.WalletRecord
	cancel context.CancelFunc
}

// Registry owns every wallet record and is the sole mutator of record status
// and instance. State machine: idle -> starting -> syncing -> ready, with
// starting -> error on connection failure; stop returns any state to idle.
// There is no automatic retry out of error.
type Registry struct {
	mu        sync.Mutex
	wallets   map[string]*walletEntry
	connector hathorapi.Connector
	log       *eventlog.Log
	addresses *addressindex.Index
	logger    *zap.Logger
	onChange  func()
}

func NewRegistry(connector hathorapi.Connector, log *eventlog.Log, addresses *addressindex.Index, logger *zap.Logger) *Registry {
	return &Registry{
		wallets:   map[string]*walletEntry{},
		connector: connector,
		log:       log,
		addresses: addresses,
		logger:    logger.With(zap.String("component", "registry")),
	}
}

// SetChangeHook installs a callback invoked after any record mutation. The
// composition root points this at the supervisor's kick.
func (r *Registry) SetChangeHook(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Registry) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Add creates a record in idle state with a fresh id.
func (r *Registry) Add(meta model.WalletMetadata) (model.WalletRecord, error) {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	return r.addWithID(uuid.NewString(), meta)
}

// AddWithID creates a record under a caller-chosen id, used for the
// designated funding/test wallet slots from config.
func (r *Registry) AddWithID(id string, meta model.WalletMetadata) (model.WalletRecord, error) {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	return r.addWithID(id, meta)
}

func (r *Registry) addWithID(id string, meta model.WalletMetadata) (model.WalletRecord, error) {
	r.mu.Lock()
	if _, exists := r.wallets[id]; exists {
		r.mu.Unlock()
		return model.WalletRecord{}, errors.Wrapf(ErrDuplicateWallet, "id %s", id)
	}
	entry := &walletEntry{record: model.WalletRecord{
		ID:       id,
		Metadata: meta,
		Status:   model.WalletStatusIdle,
	}}
	r.wallets[id] = entry
	rec := entry.record
	r.mu.Unlock()
	r.logger.Info("wallet added", zap.String("wallet", id), zap.String("name", meta.FriendlyName))
	r.notify()
	return rec, nil
}

// Get returns a snapshot of the record, nil when the id is unknown.
func (r *Registry) Get(id string) *model.WalletRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.wallets[id]
	if !ok {
		return nil
	}
	rec := entry.record
	return &rec
}

// List returns snapshots of every record, oldest first.
func (r *Registry) List() []model.WalletRecord {
	r.mu.Lock()
	out := make([]model.WalletRecord, 0, len(r.wallets))
	for _, entry := range r.wallets {
		out = append(out, entry.record)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metadata.CreatedAt.Equal(out[j].Metadata.CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].Metadata.CreatedAt.Before(out[j].Metadata.CreatedAt)
	})
	return out
}

// Start connects the wallet. Calling Start on a record that is not idle is a
// no-op returning nil, so racing callers cost exactly one connection attempt.
func (r *Registry) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	entry, ok := r.wallets[id]
	if !ok {
		r.mu.Unlock()
		return errors.Wrapf(ErrWalletNotFound, "id %s", id)
	}
	if entry.record.Status != model.WalletStatusIdle {
		r.mu.Unlock()
		return nil
	}
	entry.record.Status = model.WalletStatusStarting
	entry.record.LastError = ""
	meta := entry.record.Metadata
	r.mu.Unlock()
	r.notify()

	conn, err := r.connector.Connect(ctx, id, meta.Network)
	if err != nil {
		metrics.WalletStarts.WithLabelValues("error").Inc()
		r.mu.Lock()
		// stopped or removed while connecting; the stale failure must not
		// overwrite whatever state the record moved to since
		if e, ok := r.wallets[id]; ok && e.record.Status == model.WalletStatusStarting {
			e.record.Status = model.WalletStatusError
			e.record.LastError = err.Error()
			e.record.Instance = nil
		}
		r.mu.Unlock()
		r.logger.Warn("wallet connection failed", zap.String("wallet", id), zap.Error(err))
		r.notify()
		return errors.Wrapf(err, "failed starting wallet %s", id)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	entry, ok = r.wallets[id]
	if !ok || entry.record.Status != model.WalletStatusStarting {
		// stopped or removed while connecting
		r.mu.Unlock()
		cancel()
		conn.Disconnect()
		return nil
	}
	entry.record.Instance = conn
	entry.record.Status = model.WalletStatusSyncing
	entry.cancel = cancel
	r.mu.Unlock()
	metrics.WalletStarts.WithLabelValues("ok").Inc()
	r.logger.Info("wallet connected, syncing", zap.String("wallet", id))

	go r.pump(pumpCtx, id, conn)
	go r.primeFirstAddress(pumpCtx, id, conn)
	r.notify()
	return nil
}

// Stop tears down the connection and event subscriptions and returns the
// record to idle. Safe from any state.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	entry, ok := r.wallets[id]
	if !ok {
		r.mu.Unlock()
		return errors.Wrapf(ErrWalletNotFound, "id %s", id)
	}
	conn := entry.record.Instance
	cancel := entry.cancel
	entry.record.Instance = nil
	entry.cancel = nil
	entry.record.Status = model.WalletStatusIdle
	entry.record.LastError = ""
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			r.logger.Warn("wallet disconnect failed", zap.String("wallet", id), zap.Error(err))
		}
	}
	r.logger.Info("wallet stopped", zap.String("wallet", id))
	r.notify()
	return nil
}

// Remove destroys the record. The pump is torn down first so event handlers
// cannot keep mutating state for a wallet that no longer exists.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.Stop(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.wallets, id)
	r.mu.Unlock()
	r.notify()
	return nil
}

// InstanceFor implements resolver.WalletSource. An empty id falls back to the
// first ready instance, then any live instance; callers that care about
// which wallet answers must pass an explicit id.
func (r *Registry) InstanceFor(walletID string) hathorapi.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if walletID != "" {
		if entry, ok := r.wallets[walletID]; ok {
			return entry.record.Instance
		}
		return nil
	}
	var fallback hathorapi.Connection
	ids := make([]string, 0, len(r.wallets))
	for id := range r.wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := r.wallets[id].record
		if rec.Instance == nil {
			continue
		}
		if rec.Status == model.WalletStatusReady {
			return rec.Instance
		}
		if fallback == nil {
			fallback = rec.Instance
		}
	}
	return fallback
}

// pump drains one connection's event stream into the ingestion channel and
// applies the record projections. Exits when the stream closes or the
// wallet is stopped.
func (r *Registry) pump(ctx context.Context, id string, conn hathorapi.Connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-conn.Events():
			if !ok {
				return
			}
			payload := raw.Normalize()
			r.log.Append(id, raw.Type, payload)
			r.applyEvent(ctx, id, raw.Type, payload)
		}
	}
}

func (r *Registry) primeFirstAddress(ctx context.Context, id string, conn hathorapi.Connection) {
	addr, err := conn.GetAddressAtIndex(ctx, 0)
	if err != nil || addr == "" {
		return
	}
	r.mu.Lock()
	if entry, ok := r.wallets[id]; ok && entry.record.FirstAddress == "" {
		entry.record.FirstAddress = addr
	}
	r.mu.Unlock()
	idx := uint32(0)
	if err := r.addresses.Record(ctx, addr, id, &idx); err != nil {
		r.logger.Warn("failed indexing first address", zap.String("wallet", id), zap.Error(err))
	}
	r.notify()
}

func (r *Registry) applyEvent(ctx context.Context, id string, eventType hathorapi.EventType, payload hathorapi.EventPayload) {
	var staleConn hathorapi.Connection
	var staleCancel context.CancelFunc
	r.mu.Lock()
	entry, ok := r.wallets[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	switch eventType {
	case hathorapi.EventState:
		switch payload.State {
		case hathorapi.StateReady:
			if entry.record.Status == model.WalletStatusStarting || entry.record.Status == model.WalletStatusSyncing {
				entry.record.Status = model.WalletStatusReady
			}
		case hathorapi.StateSyncing:
			if entry.record.Status == model.WalletStatusReady {
				entry.record.Status = model.WalletStatusSyncing
			}
		case hathorapi.StateError:
			// instance is cleared on error just like on stop; the wallet
			// needs a fresh start after the daemon reports a failure
			entry.record.Status = model.WalletStatusError
			entry.record.LastError = "wallet reported error state"
			staleConn = entry.record.Instance
			staleCancel = entry.cancel
			entry.record.Instance = nil
			entry.cancel = nil
		}
	case hathorapi.EventMoreAddresses:
		for _, a := range payload.Addresses {
			if entry.record.FirstAddress == "" && a.Index != nil && *a.Index == 0 {
				entry.record.FirstAddress = a.Address
			}
		}
	}
	if payload.Balance != nil {
		entry.record.Balance = *payload.Balance
	}
	addresses := payload.Addresses
	r.mu.Unlock()

	if staleCancel != nil {
		staleCancel()
	}
	if staleConn != nil {
		if err := staleConn.Disconnect(); err != nil {
			r.logger.Warn("wallet disconnect failed", zap.String("wallet", id), zap.Error(err))
		}
	}

	for _, a := range addresses {
		if err := r.addresses.Record(ctx, a.Address, id, a.Index); err != nil {
			r.logger.Warn("failed indexing address", zap.String("wallet", id),
				zap.String("address", a.Address), zap.Error(err))
		}
	}
	r.notify()
}
