package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"limitless/internal/logger"
)

// WatchlistProfile binds the symbol universe to sizing tiers. It lives in its
// own yaml file so operators can edit it without restarting the bot.
type WatchlistProfile struct {
	Symbols            []string           `yaml:"symbols"`
	Priority           []string           `yaml:"priority"`
	TierNotionalUSD    map[string]float64 `yaml:"tier_notional_usd"`
	DefaultNotionalUSD float64            `yaml:"default_notional_usd"`
}

func (p WatchlistProfile) normalized() WatchlistProfile {
	out := WatchlistProfile{
		Symbols:            normalizeSymbols(p.Symbols),
		Priority:           normalizeSymbols(p.Priority),
		TierNotionalUSD:    make(map[string]float64, len(p.TierNotionalUSD)),
		DefaultNotionalUSD: p.DefaultNotionalUSD,
	}
	for sym, notional := range p.TierNotionalUSD {
		s := strings.ToUpper(strings.TrimSpace(sym))
		if s == "" || notional <= 0 {
			continue
		}
		out.TierNotionalUSD[s] = notional
	}
	if len(out.Priority) == 0 {
		out.Priority = out.Symbols
	}
	if out.DefaultNotionalUSD <= 0 {
		out.DefaultNotionalUSD = 5000
	}
	return out
}

// NotionalFor returns the fixed margin-mode notional for a symbol.
func (p WatchlistProfile) NotionalFor(symbol string) float64 {
	if n, ok := p.TierNotionalUSD[strings.ToUpper(symbol)]; ok {
		return n
	}
	return p.DefaultNotionalUSD
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, sym := range in {
		s := strings.ToUpper(strings.TrimSpace(sym))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// WatchlistLoader loads the profile file and keeps it fresh via fsnotify.
// Readers always get an immutable snapshot.
type WatchlistLoader struct {
	path string

	mu      sync.RWMutex
	current WatchlistProfile
	version int
}

func NewWatchlistLoader(path string) *WatchlistLoader {
	return &WatchlistLoader{path: path}
}

// Load reads the profile from disk and swaps it in.
func (l *WatchlistLoader) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("reading watchlist profile failed (%s): %w", l.path, err)
	}
	var p WatchlistProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parsing watchlist profile failed (%s): %w", l.path, err)
	}
	p = p.normalized()
	if len(p.Symbols) == 0 {
		return fmt.Errorf("watchlist profile %s lists no symbols", l.path)
	}
	l.mu.Lock()
	l.current = p
	l.version++
	v := l.version
	l.mu.Unlock()
	logger.Infof("watchlist: loaded %d symbols (version=%d)", len(p.Symbols), v)
	return nil
}

// Snapshot returns the active profile and its version.
func (l *WatchlistLoader) Snapshot() (WatchlistProfile, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current, l.version
}

// Watch reloads the profile whenever the file changes, until ctx ends.
// Reload failures keep the previous snapshot active.
func (l *WatchlistLoader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Watch the directory: editors replace files by rename, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return err
	}
	target := filepath.Base(l.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				if err := l.Load(); err != nil {
					logger.Warnf("watchlist: reload failed, keeping previous profile: %v", err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("watchlist: watcher error: %v", err)
		}
	}
}
