package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// numberPrinter renders counters with locale-aware thousands separators,
// matching how the teacher's TUI formats flow and byte counts.
var numberPrinter = message.NewPrinter(language.English)

func formatNumber(n uint64) string {
	return numberPrinter.Sprintf("%d", n)
}

// readCounter extracts the current value of a prometheus counter or gauge
// for display, since the collector interface only exposes Write.
func readCounter(c prometheus.Metric) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	if m.Counter != nil {
		return uint64(m.Counter.GetValue())
	}
	if m.Gauge != nil {
		return uint64(m.Gauge.GetValue())
	}
	return 0
}
