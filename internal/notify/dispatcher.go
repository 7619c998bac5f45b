package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"
	"TradeFuse/pkg/queue"
)

// Dispatcher queues operator events for asynchronous delivery. Dispatch is
// fire-and-forget: enqueue failures are logged, never retried by the caller.
// A per-kind-and-priority cooldown suppresses repeats; critical events
// always pass.
type Dispatcher struct {
	queue    queue.Service
	logger   *logger.Logger
	clock    domsvc.Clock
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domsvc.Event) {}

// Nop returns a notifier that drops every event. Used when the operator
// channel is disabled.
func Nop() domsvc.Notifier { return nopNotifier{} }

// NewDispatcher creates a dispatcher publishing onto the given queue.
func NewDispatcher(lgr *logger.Logger, q queue.Service, clock domsvc.Clock, cooldown time.Duration) *Dispatcher {
	if clock == nil {
		clock = domsvc.RealClock()
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Dispatcher{
		queue:    q,
		logger:   lgr,
		clock:    clock,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
	}
}

// Notify enqueues the event for delivery.
func (d *Dispatcher) Notify(ctx context.Context, ev domsvc.Event) {
	if !d.allow(ev) {
		return
	}

	if err := d.queue.PublishMessage(ctx, MessageType, ev); err != nil {
		d.logger.Error("notification enqueue failed",
			logger.String("kind", string(ev.Kind)),
			logger.String("symbol", ev.Symbol),
			logger.Error(err))
	}
}

func (d *Dispatcher) allow(ev domsvc.Event) bool {
	if ev.Priority == "critical" {
		return true
	}

	key := fmt.Sprintf("%s|%s|%s", ev.Kind, ev.Symbol, ev.Priority)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.lastSent[key] = now
	return true
}

var _ domsvc.Notifier = (*Dispatcher)(nil)
