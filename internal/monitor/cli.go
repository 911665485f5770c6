// Package monitor renders the live state of a running collector: which
// exporters are talking, what templates they've announced, and basic
// throughput counters. cli.go is the plain-terminal renderer; tui.go adds
// an interactive tcell/tview view over the same state.
package monitor

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"

	"ipfixcore/internal/exporter"
	"ipfixcore/internal/resolver"
)

// CLI is a plain, non-interactive terminal renderer that redraws a
// snapshot of exporter state on a fixed interval.
type CLI struct {
	exporters   *exporter.Registry
	resolver    *resolver.Resolver
	refreshRate time.Duration
	stopChan    chan struct{}
}

// NewCLI returns a CLI monitor over reg, resolving exporter addresses
// through res if non-nil.
func NewCLI(reg *exporter.Registry, res *resolver.Resolver, refreshRate time.Duration) *CLI {
	if refreshRate == 0 {
		refreshRate = time.Second
	}
	return &CLI{
		exporters:   reg,
		resolver:    res,
		refreshRate: refreshRate,
		stopChan:    make(chan struct{}),
	}
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

// Start begins the redraw loop. It blocks until Stop is called.
func (c *CLI) Start() {
	ticker := time.NewTicker(c.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.render()
		}
	}
}

// Stop ends the redraw loop.
func (c *CLI) Stop() {
	close(c.stopChan)
}

func (c *CLI) render() {
	keys, states := c.snapshot()

	var b strings.Builder
	b.WriteString("\x1b[H\x1b[2J") // home cursor, clear screen
	fmt.Fprintf(&b, "ipfixcored — %d exporter(s)\n", len(keys))
	fmt.Fprintln(&b, strings.Repeat("-", terminalWidth()))
	fmt.Fprintf(&b, "%-28s %10s %10s %10s %10s\n", "EXPORTER", "DOMAIN", "TEMPLATES", "OPTIONS", "LAST SEEN")

	for i, k := range keys {
		s := states[i]
		name := k.Addr.String()
		if c.resolver != nil {
			name = c.resolver.Resolve(k.Addr)
		}
		fmt.Fprintf(&b, "%-28s %10d %10s %10s %10s\n",
			truncate(name, 28), k.Domain,
			formatNumber(uint64(len(s.Templates))), formatNumber(uint64(len(s.OptionTemplates))),
			time.Since(s.LastSeenAt).Round(time.Second))
	}

	os.Stdout.WriteString(b.String())
}

func (c *CLI) snapshot() ([]exporter.Key, []*exporter.State) {
	keys := c.exporters.Snapshot()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Addr != keys[j].Addr {
			return keys[i].Addr.Less(keys[j].Addr)
		}
		return keys[i].Domain < keys[j].Domain
	})
	states := make([]*exporter.State, len(keys))
	for i, k := range keys {
		states[i], _ = c.exporters.Get(k)
	}
	return keys, states
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
