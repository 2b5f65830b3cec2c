package eventlog

import (
	"sync"
	"time"

	"github.com/hathorqa/qaconsole/src/hathorapi"
	"github.com/hathorqa/qaconsole/src/metrics"
	"go.uber.org/zap"
)

// EventBufferSize caps retention. Older events fall out of the ring and the
// resolver falls through to the cache/wallet/node path for them.
const EventBufferSize = 4096

type WalletEvent struct {
	Seq       uint64
	WalletID  string
	Type      hathorapi.EventType
	Payload   hathorapi.EventPayload
	Timestamp time.Time
}

// Sink receives every appended event, after it is stored. Sinks must not
// block; slow sinks should copy and hand off.
type Sink func(ev *WalletEvent)

// Log is the process-wide ordered event channel. Every running wallet
// connection appends here; seq assignment is atomic under one lock so
// concurrent appends never duplicate or reorder ids.
type Log struct {
	mu     sync.Mutex
	events [EventBufferSize]*WalletEvent
	seq    uint64
	sinks  []Sink
	logger *zap.Logger
	nowFn  func() time.Time
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{
		logger: logger.With(zap.String("component", "eventlog")),
		nowFn:  time.Now,
	}
}

func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// NewBufferedSink wraps a slow consumer in a Sink that never blocks Append:
// events are handed to a single drain goroutine through a bounded channel, so
// the consumer sees them in append order. When the backlog is full the event
// is dropped and logged; the ring is the source of truth, the sink is
// opportunistic.
func NewBufferedSink(logger *zap.Logger, capacity int, drain func(ev *WalletEvent)) Sink {
	backlog := make(chan *WalletEvent, capacity)
	go func() {
		for ev := range backlog {
			drain(ev)
		}
	}()
	return func(ev *WalletEvent) {
		select {
		case backlog <- ev:
		default:
			logger.Warn("sink backlog full, dropping event", zap.Uint64("seq", ev.Seq))
		}
	}
}

func (l *Log) Append(walletID string, eventType hathorapi.EventType, payload hathorapi.EventPayload) *WalletEvent {
	l.mu.Lock()
	l.seq++
	ev := &WalletEvent{
		Seq:       l.seq,
		WalletID:  walletID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: l.nowFn(),
	}
	l.events[ev.Seq%EventBufferSize] = ev
	sinks := l.sinks
	l.mu.Unlock()

	metrics.EventsIngested.WithLabelValues(string(eventType)).Inc()
	for _, s := range sinks {
		s(ev)
	}
	return ev
}

// LatestForHash returns the most recent new-tx/update-tx event for hash, or
// nil. Scans newest-first so the freshest snapshot wins when the same hash
// arrived from several wallets.
func (l *Log) LatestForHash(hash string) *WalletEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hash == "" || l.seq == 0 {
		return nil
	}
	oldest := uint64(1)
	if l.seq > EventBufferSize {
		oldest = l.seq - EventBufferSize + 1
	}
	for seq := l.seq; seq >= oldest; seq-- {
		ev := l.events[seq%EventBufferSize]
		if ev == nil || ev.Seq != seq {
			continue
		}
		if ev.Type != hathorapi.EventNewTx && ev.Type != hathorapi.EventUpdateTx {
			continue
		}
		if ev.Payload.TxID == hash {
			return ev
		}
	}
	return nil
}

// LatestSeq returns the last assigned sequence id, 0 if nothing was appended.
func (l *Log) LatestSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
