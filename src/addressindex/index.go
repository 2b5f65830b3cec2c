package addressindex

import (
	"context"
	"time"

	"github.com/hathorqa/qaconsole/src/metrics"
	"github.com/hathorqa/qaconsole/src/model"
	"go.uber.org/zap"
)

// KeyedStore is the durable store collaborator the index delegates
// persistence to. Get returns nil, nil for an absent key.
type KeyedStore interface {
	Get(ctx context.Context, address string) (*model.AddressRecord, error)
	Put(ctx context.Context, rec *model.AddressRecord) error
	GetAll(ctx context.Context) ([]*model.AddressRecord, error)
}

// Index is the reverse address -> wallet lookup, populated opportunistically
// as addresses are derived or seen on transactions.
type Index struct {
	store  KeyedStore
	logger *zap.Logger
	nowFn  func() time.Time
}

func NewIndex(store KeyedStore, logger *zap.Logger) *Index {
	return &Index{
		store:  store,
		logger: logger.With(zap.String("component", "addressindex")),
		nowFn:  time.Now,
	}
}

// Record inserts or overwrites the mapping for address. Last write wins; a
// write that moves an address between wallets is suspicious enough to flag
// to the operator, but it is not rejected (two QA wallets restored from the
// same seed legitimately share addresses).
func (ix *Index) Record(ctx context.Context, address, walletID string, index *uint32) error {
	prev, err := ix.store.Get(ctx, address)
	if err != nil {
		return err
	}
	if prev != nil && prev.WalletID != walletID {
		metrics.AddressOverwrites.Inc()
		ix.logger.Warn("address reassigned to a different wallet",
			zap.String("address", address),
			zap.String("previous_wallet", prev.WalletID),
			zap.String("wallet", walletID))
	}
	return ix.store.Put(ctx, &model.AddressRecord{
		Address:      address,
		WalletID:     walletID,
		Index:        index,
		DiscoveredAt: ix.nowFn().UTC(),
	})
}

// FindWallet returns the owning wallet id, "" when the address is unknown.
func (ix *Index) FindWallet(ctx context.Context, address string) (string, error) {
	rec, err := ix.store.Get(ctx, address)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.WalletID, nil
}

func (ix *Index) ListForWallet(ctx context.Context, walletID string) ([]*model.AddressRecord, error) {
	all, err := ix.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.AddressRecord
	for _, rec := range all {
		if rec.WalletID == walletID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (ix *Index) ListAll(ctx context.Context) ([]*model.AddressRecord, error) {
	return ix.store.GetAll(ctx)
}
