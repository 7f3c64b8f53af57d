package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const defaultCooldown = 30 * time.Second

// Alerter delivers a human-readable alert. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notify forwards events to chat alerts, throttled per route and per
// venue so a persisting spread or a flapping feed does not spam
// operators.
type Notify struct {
	alerter  Alerter
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

var _ Sink = (*Notify)(nil)

func NewNotify(alerter Alerter, cooldown time.Duration) *Notify {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Notify{
		alerter:  alerter,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
	}
}

func (n *Notify) Name() string { return "notify" }

func (n *Notify) HandleOpportunity(ctx context.Context, opp domain.Opportunity) error {
	if n.throttled("opportunity:" + opp.Route()) {
		return nil
	}
	title := fmt.Sprintf("Arbitrage %s", opp.Route())
	message := fmt.Sprintf("buy %s at %s, sell %s at %s, profit %s (%s%%)",
		opp.BuyExchange, opp.BuyPrice.String(),
		opp.SellExchange, opp.SellPrice.String(),
		opp.ProfitAbs.String(), opp.ProfitPct.Round(4).String())
	return n.alerter.Notify(ctx, "opportunity", title, message)
}

func (n *Notify) HandleHealth(ctx context.Context, exchange string, state domain.ConnState) error {
	// Intermediate states are noise; only report loss and recovery.
	if state != domain.StateDisconnected && state != domain.StateStreaming {
		return nil
	}
	if n.throttled("health:" + exchange + ":" + state.String()) {
		return nil
	}
	title := fmt.Sprintf("Feed %s %s", exchange, state.String())
	message := fmt.Sprintf("venue %s is now %s", exchange, state.String())
	return n.alerter.Notify(ctx, "health", title, message)
}

// throttled records key as sent unless it was already sent within the
// cooldown window.
func (n *Notify) throttled(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	if now.Sub(n.lastSent[key]) < n.cooldown {
		return true
	}
	n.lastSent[key] = now
	return false
}
