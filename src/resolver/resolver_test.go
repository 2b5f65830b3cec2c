package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/hathorqa/qaconsole/src/common"
	"github.com/hathorqa/qaconsole/src/eventlog"
	"github.com/hathorqa/qaconsole/src/hathorapi"
	"github.com/hathorqa/qaconsole/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type staticSource struct {
	conn hathorapi.Connection
}

func (s staticSource) InstanceFor(string) hathorapi.Connection { return s.conn }

func strptr(s string) *string { return &s }

func newTestResolver(conn hathorapi.Connection) (*Resolver, *eventlog.Log, *StatusCache) {
	logger := common.ConfigureZap(zap.ErrorLevel)
	log := eventlog.NewLog(logger)
	cache := NewStatusCache()
	return NewResolver(log, cache, staticSource{conn: conn}, logger), log, cache
}

func TestPlainTxValidFromWalletCacheWithoutRemoteQuery(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	conn.PutLocalTx(&hathorapi.TxRecord{TxID: "abc", FirstBlock: nil})
	r, _, _ := newTestResolver(conn)

	if st := r.Resolve(context.Background(), "abc", ""); st != model.TxStatusValid {
		t.Fatalf("plain tx known to the wallet must be valid, got %s", st)
	}
	if conn.GetFullTxCalls() != 0 {
		t.Fatal("remote node must not be queried for a plain wallet-known tx")
	}
}

func TestNanoTxUnconfirmedIsCachedWithTTL(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	conn.PutLocalTx(&hathorapi.TxRecord{TxID: "nano1", NCID: strptr("nc1")})
	conn.PutFullTx("nano1", &hathorapi.FullTxResponse{
		Success: true,
		Tx:      &hathorapi.FullTx{TxID: "nano1", NCID: strptr("nc1")},
		Meta:    hathorapi.TxMeta{FirstBlock: nil, VoidedBy: []string{}},
	})
	r, _, cache := newTestResolver(conn)
	base := time.Now()
	now := base
	cache.nowFn = func() time.Time { return now }

	if st := r.Resolve(context.Background(), "nano1", ""); st != model.TxStatusUnconfirmed {
		t.Fatalf("expected unconfirmed, got %s", st)
	}
	if conn.GetTxCalls() != 1 || conn.GetFullTxCalls() != 1 {
		t.Fatalf("expected one wallet and one node query, got %d/%d", conn.GetTxCalls(), conn.GetFullTxCalls())
	}

	// second ask inside the TTL answers from cache with zero extra queries
	now = base.Add(UnconfirmedTTL - time.Millisecond)
	if st := r.Resolve(context.Background(), "nano1", ""); st != model.TxStatusUnconfirmed {
		t.Fatalf("expected cached unconfirmed, got %s", st)
	}
	if conn.GetTxCalls() != 1 || conn.GetFullTxCalls() != 1 {
		t.Fatal("cached answer must not trigger additional queries")
	}

	// past the TTL the sources are consulted again
	now = base.Add(UnconfirmedTTL + time.Millisecond)
	if st := r.Resolve(context.Background(), "nano1", ""); st != model.TxStatusUnconfirmed {
		t.Fatalf("expected re-resolved unconfirmed, got %s", st)
	}
	if conn.GetTxCalls() != 2 || conn.GetFullTxCalls() != 2 {
		t.Fatalf("expired entry must re-query, got %d/%d", conn.GetTxCalls(), conn.GetFullTxCalls())
	}
}

func TestNanoTxConfirmedRemotelyIsCachedPermanently(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	conn.PutLocalTx(&hathorapi.TxRecord{TxID: "nano2", NCID: strptr("nc1")})
	conn.PutFullTx("nano2", &hathorapi.FullTxResponse{
		Success: true,
		Tx:      &hathorapi.FullTx{TxID: "nano2", NCID: strptr("nc1")},
		Meta:    hathorapi.TxMeta{FirstBlock: strptr("blockhash1"), VoidedBy: []string{}},
	})
	r, _, _ := newTestResolver(conn)

	if st := r.Resolve(context.Background(), "nano2", ""); st != model.TxStatusValid {
		t.Fatalf("expected valid, got %s", st)
	}

	// the permanent cache entry survives a now-failing node
	conn.GetFullTxFn = func(string) (*hathorapi.FullTxResponse, error) {
		return nil, errors.New("node down")
	}
	conn.GetTxFn = func(string) (*hathorapi.TxRecord, error) {
		return nil, errors.New("wallet down")
	}
	if st := r.Resolve(context.Background(), "nano2", ""); st != model.TxStatusValid {
		t.Fatalf("permanent status downgraded to %s after source failure", st)
	}
}

func TestWalletConfirmedTxSkipsRemoteQuery(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	conn.PutLocalTx(&hathorapi.TxRecord{TxID: "nano3", NCID: strptr("nc1"), FirstBlock: strptr("b1")})
	r, _, _ := newTestResolver(conn)

	if st := r.Resolve(context.Background(), "nano3", ""); st != model.TxStatusValid {
		t.Fatalf("expected valid, got %s", st)
	}
	if conn.GetFullTxCalls() != 0 {
		t.Fatal("wallet already knows the confirming block, remote query is a waste")
	}
}

func TestVoidedEventShortCircuitsEverything(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	r, log, cache := newTestResolver(conn)

	// a conflicting stale cache entry must lose to the live event
	cache.Put("xyz", model.TxStatusUnconfirmed)
	log.Append("w1", hathorapi.EventNewTx, hathorapi.EventPayload{TxID: "xyz", Voided: true})

	if st := r.Resolve(context.Background(), "xyz", ""); st != model.TxStatusVoided {
		t.Fatalf("expected voided from the event stream, got %s", st)
	}
	if conn.GetTxCalls() != 0 || conn.GetFullTxCalls() != 0 {
		t.Fatal("event answer must not touch wallet or node")
	}
}

func TestEventDerivedStatusIsNotCached(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	r, log, cache := newTestResolver(conn)
	log.Append("w1", hathorapi.EventNewTx, hathorapi.EventPayload{TxID: "evt", Voided: true})

	if st := r.Resolve(context.Background(), "evt", ""); st != model.TxStatusVoided {
		t.Fatalf("expected voided, got %s", st)
	}
	if _, ok := cache.Get("evt"); ok {
		t.Fatal("event-derived status must not land in the ttl cache")
	}
}

func TestRemoteVoidedTx(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	conn.PutFullTx("gone", &hathorapi.FullTxResponse{
		Success: true,
		Tx:      &hathorapi.FullTx{TxID: "gone"},
		Meta:    hathorapi.TxMeta{VoidedBy: []string{"conflict1"}},
	})
	r, _, _ := newTestResolver(conn)
	if st := r.Resolve(context.Background(), "gone", ""); st != model.TxStatusVoided {
		t.Fatalf("expected voided, got %s", st)
	}
}

func TestLookupFailuresDegradeToUnknown(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	conn.GetTxFn = func(string) (*hathorapi.TxRecord, error) {
		return nil, errors.New("wallet connection lost")
	}
	r, _, _ := newTestResolver(conn)
	if st := r.Resolve(context.Background(), "whatever", ""); st != model.TxStatusUnknown {
		t.Fatalf("wallet failure must yield unknown, got %s", st)
	}

	conn2 := hathorapi.NewMockConnection()
	conn2.GetFullTxFn = func(string) (*hathorapi.FullTxResponse, error) {
		return nil, errors.New("node timeout")
	}
	r2, _, _ := newTestResolver(conn2)
	if st := r2.Resolve(context.Background(), "whatever", ""); st != model.TxStatusUnknown {
		t.Fatalf("node failure must yield unknown, got %s", st)
	}
}

func TestNoWalletInstanceYieldsUnknown(t *testing.T) {
	r, _, _ := newTestResolver(nil)
	if st := r.Resolve(context.Background(), "abc", ""); st != model.TxStatusUnknown {
		t.Fatalf("expected unknown without any instance, got %s", st)
	}
}

func TestUnsuccessfulNodeResponseYieldsUnknownWithoutCaching(t *testing.T) {
	conn := hathorapi.NewMockConnection()
	r, _, cache := newTestResolver(conn)
	if st := r.Resolve(context.Background(), "missing", ""); st != model.TxStatusUnknown {
		t.Fatalf("expected unknown, got %s", st)
	}
	if cache.Len() != 0 {
		t.Fatal("unknown must not be cached")
	}
}
