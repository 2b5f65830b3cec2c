package registry

import (
	"context"
	"testing"
	"time"

	"github.com/hathorqa/qaconsole/src/addressindex"
	"github.com/hathorqa/qaconsole/src/common"
	"github.com/hathorqa/qaconsole/src/eventlog"
	"github.com/hathorqa/qaconsole/src/hathorapi"
	"github.com/hathorqa/qaconsole/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type fixture struct {
	connector *hathorapi.MockConnector
	registry  *Registry
	log       *eventlog.Log
	index     *addressindex.Index
}

func newFixture() *fixture {
	logger := common.ConfigureZap(zap.ErrorLevel)
	connector := hathorapi.NewMockConnector()
	log := eventlog.NewLog(logger)
	index := addressindex.NewIndex(addressindex.NewMemoryStore(), logger)
	return &fixture{
		connector: connector,
		registry:  NewRegistry(connector, log, index, logger),
		log:       log,
		index:     index,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWalletLifecycleIdleToReady(t *testing.T) {
	f := newFixture()
	rec, err := f.registry.Add(model.WalletMetadata{FriendlyName: "funding", Network: "testnet"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != model.WalletStatusIdle {
		t.Fatalf("new wallet must be idle, got %s", rec.Status)
	}

	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.registry.Get(rec.ID).Status; got != model.WalletStatusSyncing {
		t.Fatalf("expected syncing right after connect, got %s", got)
	}

	conn := f.connector.ConnectionFor(rec.ID)
	conn.Emit(hathorapi.RawEvent{Type: hathorapi.EventState, State: hathorapi.StateReady})
	waitFor(t, "wallet to reach ready", func() bool {
		return f.registry.Get(rec.ID).Status == model.WalletStatusReady
	})

	listed := model.WalletArrayToMap(f.registry.List())
	if listed[rec.ID].Instance == nil {
		t.Fatal("ready wallet must expose a non-nil instance")
	}
}

func TestStartIsIdempotentWhileStarting(t *testing.T) {
	f := newFixture()
	gate := make(chan struct{})
	f.connector.Gate = gate
	rec, _ := f.registry.Add(model.WalletMetadata{FriendlyName: "w"})

	done := make(chan error, 1)
	go func() { done <- f.registry.Start(context.Background(), rec.ID) }()
	waitFor(t, "wallet to enter starting", func() bool {
		return f.registry.Get(rec.ID).Status == model.WalletStatusStarting
	})

	// racing second start must be a cheap no-op
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("start on a starting wallet must be a no-op, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := f.connector.ConnectCount(); got != 1 {
		t.Fatalf("expected exactly one connection attempt, got %d", got)
	}
}

func TestConnectionFailureRecordsErrorState(t *testing.T) {
	f := newFixture()
	f.connector.ConnectErr = errors.New("daemon unreachable")
	rec, _ := f.registry.Add(model.WalletMetadata{FriendlyName: "w"})

	if err := f.registry.Start(context.Background(), rec.ID); err == nil {
		t.Fatal("expected start to report the connection failure")
	}
	got := f.registry.Get(rec.ID)
	if got.Status != model.WalletStatusError {
		t.Fatalf("expected error state, got %s", got.Status)
	}
	if got.LastError == "" {
		t.Fatal("failure reason must be recorded for the operator")
	}
	if got.Instance != nil {
		t.Fatal("failed wallet must not hold an instance")
	}

	// no automatic retry: the record stays in error until stopped
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatalf("start on an errored wallet must be a no-op, got %v", err)
	}
	if f.connector.ConnectCount() != 1 {
		t.Fatal("errored wallet must not reconnect without an explicit stop")
	}

	// explicit stop + start recovers
	f.connector.ConnectErr = nil
	if err := f.registry.Stop(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.registry.Get(rec.ID).Status; got != model.WalletStatusSyncing {
		t.Fatalf("expected syncing after recovery, got %s", got)
	}
}

func TestStopDuringConnectDiscardsStaleFailure(t *testing.T) {
	f := newFixture()
	gate := make(chan struct{})
	f.connector.Gate = gate
	f.connector.ConnectErr = errors.New("daemon unreachable")
	rec, _ := f.registry.Add(model.WalletMetadata{FriendlyName: "w"})

	done := make(chan error, 1)
	go func() { done <- f.registry.Start(context.Background(), rec.ID) }()
	waitFor(t, "wallet to enter starting", func() bool {
		return f.registry.Get(rec.ID).Status == model.WalletStatusStarting
	})

	// operator stops the wallet while the connect attempt is still in flight
	if err := f.registry.Stop(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-done; err == nil {
		t.Fatal("the start call itself still reports the failure to its caller")
	}

	got := f.registry.Get(rec.ID)
	if got.Status != model.WalletStatusIdle || got.LastError != "" {
		t.Fatalf("stale start failure overwrote the stopped wallet: status=%s lastError=%q",
			got.Status, got.LastError)
	}
}

func TestErrorStateEventTearsDownInstance(t *testing.T) {
	f := newFixture()
	rec, _ := f.registry.Add(model.WalletMetadata{FriendlyName: "w"})
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	conn := f.connector.ConnectionFor(rec.ID)

	conn.Emit(hathorapi.RawEvent{Type: hathorapi.EventState, State: hathorapi.StateError})
	waitFor(t, "wallet to reach error", func() bool {
		return f.registry.Get(rec.ID).Status == model.WalletStatusError
	})

	got := f.registry.Get(rec.ID)
	if got.Instance != nil {
		t.Fatal("errored wallet must not keep its instance")
	}
	if got.LastError == "" {
		t.Fatal("failure reason must be recorded for the operator")
	}
	waitFor(t, "connection teardown", conn.Disconnected)

	// recovery path is the same as any other error: stop, then start again
	if err := f.registry.Stop(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.registry.Get(rec.ID).Status; got != model.WalletStatusSyncing {
		t.Fatalf("expected syncing after recovery, got %s", got)
	}
}

func TestStopTearsDownConnectionAndPump(t *testing.T) {
	f := newFixture()
	rec, _ := f.registry.Add(model.WalletMetadata{FriendlyName: "w"})
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	conn := f.connector.ConnectionFor(rec.ID)

	if err := f.registry.Stop(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	got := f.registry.Get(rec.ID)
	if got.Status != model.WalletStatusIdle || got.Instance != nil {
		t.Fatalf("stop must return to idle with no instance, got %s", got.Status)
	}
	waitFor(t, "connection teardown", conn.Disconnected)
}

func TestDuplicateAndUnknownIds(t *testing.T) {
	f := newFixture()
	if _, err := f.registry.AddWithID("F1", model.WalletMetadata{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.AddWithID("F1", model.WalletMetadata{}); !errors.Is(err, ErrDuplicateWallet) {
		t.Fatalf("expected ErrDuplicateWallet, got %v", err)
	}
	if err := f.registry.Start(context.Background(), "nope"); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	if err := f.registry.Stop(context.Background(), "nope"); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	if f.registry.Get("nope") != nil {
		t.Fatal("unknown id must return nil")
	}
}

func TestEventsUpdateProjectionsAndAddressIndex(t *testing.T) {
	f := newFixture()
	rec, _ := f.registry.Add(model.WalletMetadata{FriendlyName: "w"})
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	conn := f.connector.ConnectionFor(rec.ID)

	// first address primed from the connection
	waitFor(t, "first address projection", func() bool {
		return f.registry.Get(rec.ID).FirstAddress != ""
	})

	bal := uint64(4200)
	conn.Emit(hathorapi.RawEvent{Type: hathorapi.EventState, State: hathorapi.StateReady, Balance: &bal})
	waitFor(t, "balance projection", func() bool {
		return f.registry.Get(rec.ID).Balance == 4200
	})

	idx := uint32(7)
	conn.Emit(hathorapi.RawEvent{
		Type:      hathorapi.EventMoreAddresses,
		Addresses: []hathorapi.DerivedAddress{{Address: "HTRderived7", Index: &idx}},
	})
	waitFor(t, "derived address in index", func() bool {
		w, _ := f.index.FindWallet(context.Background(), "HTRderived7")
		return w == rec.ID
	})

	// addresses seen on a tx are indexed passively, with no index
	conn.Emit(hathorapi.RawEvent{
		Type: hathorapi.EventNewTx,
		Tx:   &hathorapi.RawTxData{TxID: "tx1", Addresses: []string{"HTRpassive"}},
	})
	waitFor(t, "passive address in index", func() bool {
		w, _ := f.index.FindWallet(context.Background(), "HTRpassive")
		return w == rec.ID
	})
	records, err := f.index.ListForWallet(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if r.Address == "HTRpassive" && r.Index != nil {
			t.Fatal("passively discovered address must carry no derivation index")
		}
	}

	// and the tx event is visible on the ingestion channel
	if ev := f.log.LatestForHash("tx1"); ev == nil || ev.WalletID != rec.ID {
		t.Fatal("tx event missing from the ingestion channel")
	}
}

func TestInstanceForFallbackPrefersReadyWallets(t *testing.T) {
	f := newFixture()
	a, _ := f.registry.AddWithID("a-wallet", model.WalletMetadata{CreatedAt: time.Unix(1, 0)})
	b, _ := f.registry.AddWithID("b-wallet", model.WalletMetadata{CreatedAt: time.Unix(2, 0)})
	if err := f.registry.Start(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Start(context.Background(), b.ID); err != nil {
		t.Fatal(err)
	}

	// b reaches ready, a stays syncing
	f.connector.ConnectionFor(b.ID).Emit(hathorapi.RawEvent{Type: hathorapi.EventState, State: hathorapi.StateReady})
	waitFor(t, "b ready", func() bool {
		return f.registry.Get(b.ID).Status == model.WalletStatusReady
	})

	if got := f.registry.InstanceFor(""); got != f.connector.ConnectionFor(b.ID) {
		t.Fatal("fallback should prefer the ready wallet")
	}
	if got := f.registry.InstanceFor(a.ID); got != f.connector.ConnectionFor(a.ID) {
		t.Fatal("explicit id should return that wallet's instance")
	}
	if got := f.registry.InstanceFor("nope"); got != nil {
		t.Fatal("unknown id should return nil")
	}
}

func TestRemoveDestroysRecord(t *testing.T) {
	f := newFixture()
	rec, _ := f.registry.Add(model.WalletMetadata{FriendlyName: "w"})
	if err := f.registry.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.registry.Remove(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if f.registry.Get(rec.ID) != nil {
		t.Fatal("removed wallet must be gone")
	}
	if len(f.registry.List()) != 0 {
		t.Fatal("list must be empty after removal")
	}
}
