package registry

import (
	"context"
	"sync"
	"time"

	"github.com/hathorqa/qaconsole/src/model"
	"go.uber.org/zap"
)

// Supervisor watches the externally designated wallet slots (funding wallet,
// test wallet) and starts each exactly once without operator interaction.
// Evaluation is re-entrant-safe: any number of kicks can arrive while a start
// is in flight and the in-flight set keeps it to at most one attempt per
// wallet id. A failed start leaves the slot eligible again on the next
// evaluation, never an immediate retry.
type Supervisor struct {
	mu       sync.Mutex
	registry *Registry
	slots    map[string]string
	inflight map[string]struct{}
	kick     chan struct{}
	logger   *zap.Logger
}

func NewSupervisor(reg *Registry, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		registry: reg,
		slots:    map[string]string{},
		inflight: map[string]struct{}{},
		kick:     make(chan struct{}, 1),
		logger:   logger.With(zap.String("component", "supervisor")),
	}
}

// AssignSlot designates the wallet id for a slot; an empty id clears it.
func (s *Supervisor) AssignSlot(slot, walletID string) {
	s.mu.Lock()
	if walletID == "" {
		delete(s.slots, slot)
	} else {
		s.slots[slot] = walletID
	}
	s.mu.Unlock()
	s.Kick()
}

// Kick requests a re-evaluation. Non-blocking; coalesces with a pending kick.
func (s *Supervisor) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping supervisor, context cancelled")
			return
		case <-ticker.C:
			s.Evaluate(ctx)
		case <-s.kick:
			s.Evaluate(ctx)
		}
	}
}

// Evaluate starts every designated wallet that exists, is idle, and has no
// start in flight. A slot whose id has no record is skipped without error.
func (s *Supervisor) Evaluate(ctx context.Context) {
	s.mu.Lock()
	var candidates []string
	for slot, id := range s.slots {
		if _, busy := s.inflight[id]; busy {
			continue
		}
		rec := s.registry.Get(id)
		if rec == nil {
			s.logger.Debug("designated wallet has no record yet",
				zap.String("slot", slot), zap.String("wallet", id))
			continue
		}
		if rec.Status != model.WalletStatusIdle {
			continue
		}
		s.inflight[id] = struct{}{}
		candidates = append(candidates, id)
	}
	s.mu.Unlock()

	for _, id := range candidates {
		go func(id string) {
			if err := s.registry.Start(ctx, id); err != nil {
				s.logger.Warn("auto-start failed, will retry on next evaluation",
					zap.String("wallet", id), zap.Error(err))
			}
			s.mu.Lock()
			delete(s.inflight, id)
			s.mu.Unlock()
		}(id)
	}
}

// InFlight reports whether a start attempt is outstanding for the wallet.
func (s *Supervisor) InFlight(walletID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[walletID]
	return ok
}
