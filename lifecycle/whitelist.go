package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vortexdex/dexproxy/log"
)

// WhitelistEntry is one permitted (symbol, destination address) pair.
type WhitelistEntry struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

// WhitelistRefresher fetches the externally managed whitelist additions,
// typically from a custody provider.
type WhitelistRefresher func(ctx context.Context) ([]WhitelistEntry, error)

// Whitelist is the set of destinations withdrawals may target: a static base
// set loaded from a resource file, unioned with a periodically refreshed
// external set. A refresh failure keeps the previous external set.
type Whitelist struct {
	mu       sync.RWMutex
	base     map[string]struct{}
	external map[string]struct{}

	refresh  WhitelistRefresher
	interval time.Duration
}

func whitelistKey(symbol, address string) string {
	return strings.ToUpper(symbol) + "|" + strings.ToLower(address)
}

// NewWhitelist builds a whitelist from the given base entries. refresh may
// be nil when no external source is configured.
func NewWhitelist(base []WhitelistEntry, refresh WhitelistRefresher, interval time.Duration) *Whitelist {
	w := &Whitelist{
		base:     make(map[string]struct{}, len(base)),
		external: make(map[string]struct{}),
		refresh:  refresh,
		interval: interval,
	}
	for _, e := range base {
		w.base[whitelistKey(e.Symbol, e.Address)] = struct{}{}
	}
	return w
}

// LoadWhitelistFile reads the base whitelist from a JSON resource file
// holding a list of {symbol, address} objects.
func LoadWhitelistFile(path string) ([]WhitelistEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whitelist file: %w", err)
	}
	var entries []WhitelistEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse whitelist file %s: %w", path, err)
	}
	return entries, nil
}

// Contains reports whether the (symbol, address) pair may receive a
// withdrawal.
func (w *Whitelist) Contains(symbol, address string) bool {
	key := whitelistKey(symbol, address)
	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.base[key]; ok {
		return true
	}
	_, ok := w.external[key]
	return ok
}

// Start runs the periodic external refresh until ctx is cancelled. No-op
// when no refresher is configured.
func (w *Whitelist) Start(ctx context.Context) {
	if w.refresh == nil {
		return
	}
	go func() {
		w.doRefresh(ctx)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.doRefresh(ctx)
			}
		}
	}()
}

func (w *Whitelist) doRefresh(ctx context.Context) {
	entries, err := w.refresh(ctx)
	if err != nil {
		log.Warnw("whitelist refresh failed, keeping previous set", "error", err.Error())
		return
	}
	next := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		next[whitelistKey(e.Symbol, e.Address)] = struct{}{}
	}
	w.mu.Lock()
	w.external = next
	w.mu.Unlock()
	log.Debugw("whitelist refreshed", "externalEntries", len(next))
}
