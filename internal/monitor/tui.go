package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"ipfixcore/internal/exporter"
	"ipfixcore/internal/metrics"
	"ipfixcore/internal/resolver"
)

// TUI is the interactive terminal monitor: an exporter table on top, a
// rolling counters readout below, refreshed on a timer.
type TUI struct {
	app       *tview.Application
	table     *tview.Table
	stats     *tview.TextView
	layout    *tview.Flex
	exporters *exporter.Registry
	resolver  *resolver.Resolver
	metrics   *metrics.Metrics
	refresh   time.Duration
}

// NewTUI builds a TUI monitor over reg and m, resolving addresses through
// res if non-nil.
func NewTUI(reg *exporter.Registry, res *resolver.Resolver, m *metrics.Metrics, refresh time.Duration) *TUI {
	if refresh == 0 {
		refresh = time.Second
	}
	t := &TUI{
		app:       tview.NewApplication(),
		table:     tview.NewTable().SetBorders(false).SetFixed(1, 0),
		stats:     tview.NewTextView().SetDynamicColors(true),
		exporters: reg,
		resolver:  res,
		metrics:   m,
		refresh:   refresh,
	}
	t.table.SetSelectable(true, false)
	t.table.SetBorder(true).SetTitle(" exporters ")
	t.stats.SetBorder(true).SetTitle(" counters ")

	t.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(t.table, 0, 3, true).
		AddItem(t.stats, 5, 1, false)

	t.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEsc || ev.Rune() == 'q' {
			t.app.Stop()
			return nil
		}
		return ev
	})
	return t
}

// Run starts the refresh loop and blocks until the user quits.
func (t *TUI) Run() error {
	go t.refreshLoop()
	t.redraw()
	return t.app.SetRoot(t.layout, true).Run()
}

func (t *TUI) refreshLoop() {
	ticker := time.NewTicker(t.refresh)
	defer ticker.Stop()
	for range ticker.C {
		t.redraw()
	}
}

func (t *TUI) redraw() {
	t.app.QueueUpdateDraw(func() {
		t.table.Clear()
		headers := []string{"EXPORTER", "DOMAIN", "TEMPLATES", "OPTIONS", "LAST SEEN"}
		for col, h := range headers {
			t.table.SetCell(0, col, tview.NewTableCell(h).
				SetTextColor(tcell.ColorYellow).
				SetSelectable(false))
		}

		keys := t.exporters.Snapshot()
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Addr != keys[j].Addr {
				return keys[i].Addr.Less(keys[j].Addr)
			}
			return keys[i].Domain < keys[j].Domain
		})

		for row, k := range keys {
			state, _ := t.exporters.Get(k)
			name := k.Addr.String()
			if t.resolver != nil {
				name = t.resolver.Resolve(k.Addr)
			}
			cells := []string{
				name,
				fmt.Sprintf("%d", k.Domain),
				fmt.Sprintf("%d", len(state.Templates)),
				fmt.Sprintf("%d", len(state.OptionTemplates)),
				time.Since(state.LastSeenAt).Round(time.Second).String(),
			}
			for col, v := range cells {
				t.table.SetCell(row+1, col, tview.NewTableCell(v))
			}
		}

		t.stats.SetText(fmt.Sprintf(
			"exporters: %s    records: %s    dropped: %s    sequence gaps: %s",
			formatNumber(uint64(len(keys))),
			formatNumber(readCounter(t.metrics.RecordsTotal)),
			formatNumber(readCounter(t.metrics.DroppedRecords)),
			formatNumber(readCounter(t.metrics.SequenceMismatches)),
		))
	})
}

// Stop tears down the application, safe to call even if Run never
// returned.
func (t *TUI) Stop() {
	t.app.Stop()
}
