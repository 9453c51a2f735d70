// Package cost accumulates the estimated spend of one pipeline run.
package cost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"today_eat_what/telemetry"
)

// Record is one charged external call.
type Record struct {
	Stage  string    `json:"stage"`
	Vendor string    `json:"vendor"`
	Amount float64   `json:"amount"`
	At     time.Time `json:"at"`
}

// Tracker is an append-only ledger. Safe for concurrent Charge/Add.
type Tracker struct {
	mu      sync.Mutex
	prices  map[string]float64
	records []Record
	counter metric.Float64Counter
}

// NewTracker builds a tracker with a per-call price for each vendor. Unknown vendors cost 0.
func NewTracker(prices map[string]float64) *Tracker {
	p := make(map[string]float64, len(prices))
	for k, v := range prices {
		p[k] = v
	}
	counter, _ := telemetry.Meter("today_eat_what/cost").Float64Counter("tew.cost.estimated",
		metric.WithDescription("Estimated spend of external calls"),
	)
	return &Tracker{prices: p, counter: counter}
}

// Price returns the configured per-call price of vendor.
func (t *Tracker) Price(vendor string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prices[vendor]
}

// Charge records one call to vendor at its configured price.
func (t *Tracker) Charge(stage, vendor string) Record {
	return t.Add(stage, vendor, t.Price(vendor))
}

// Add records an explicit amount.
func (t *Tracker) Add(stage, vendor string, amount float64) Record {
	r := Record{Stage: stage, Vendor: vendor, Amount: amount, At: time.Now()}
	t.mu.Lock()
	t.records = append(t.records, r)
	t.mu.Unlock()
	if t.counter != nil {
		t.counter.Add(context.Background(), amount, metric.WithAttributes(
			attribute.String("tew.stage", stage),
			attribute.String("tew.vendor", vendor),
		))
	}
	return r
}

// Records returns a copy of the ledger in append order.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Total sums every record.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, r := range t.records {
		sum += r.Amount
	}
	return sum
}

// Breakdown sums records per vendor.
func (t *Tracker) Breakdown() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64)
	for _, r := range t.records {
		out[r.Vendor] += r.Amount
	}
	return out
}

// Reset clears the ledger at the start of a run. Prices are kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
}

// Summary is the end-of-run report.
type Summary struct {
	Total     float64            `json:"total"`
	Breakdown map[string]float64 `json:"breakdown"`
	Calls     int                `json:"calls"`
}

// Summarize snapshots the ledger.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{Breakdown: make(map[string]float64), Calls: len(t.records)}
	for _, r := range t.records {
		s.Total += r.Amount
		s.Breakdown[r.Vendor] += r.Amount
	}
	return s
}

func (s Summary) String() string {
	vendors := make([]string, 0, len(s.Breakdown))
	for v := range s.Breakdown {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	parts := make([]string, 0, len(vendors))
	for _, v := range vendors {
		parts = append(parts, fmt.Sprintf("%s=%.4f", v, s.Breakdown[v]))
	}
	return fmt.Sprintf("total=%.4f calls=%d [%s]", s.Total, s.Calls, strings.Join(parts, " "))
}
