// Package metrics holds the small set of in-process counters the admin API
// exposes (spec.md §6, local admin API). It is deliberately not a full
// metrics system: no histograms, no external exporter, just atomically
// updated counters a human can read back as JSON.
package metrics

import "sync/atomic"

// Counters is the full set of counters either client process maintains.
type Counters struct {
	IssuesHandled      int64
	RedeemsHandled     int64
	ReplacesHandled    int64
	RefundsHandled     int64
	CancellationsSent  int64
	CollateralLocked   int64
	AuctionsSubmitted  int64
	TheftReportsFiled  int64
	EventHandlerErrors int64
}

func (c *Counters) IncIssuesHandled()      { atomic.AddInt64(&c.IssuesHandled, 1) }
func (c *Counters) IncRedeemsHandled()     { atomic.AddInt64(&c.RedeemsHandled, 1) }
func (c *Counters) IncReplacesHandled()    { atomic.AddInt64(&c.ReplacesHandled, 1) }
func (c *Counters) IncRefundsHandled()     { atomic.AddInt64(&c.RefundsHandled, 1) }
func (c *Counters) IncCancellationsSent()  { atomic.AddInt64(&c.CancellationsSent, 1) }
func (c *Counters) IncCollateralLocked()   { atomic.AddInt64(&c.CollateralLocked, 1) }
func (c *Counters) IncAuctionsSubmitted()  { atomic.AddInt64(&c.AuctionsSubmitted, 1) }
func (c *Counters) IncTheftReportsFiled()  { atomic.AddInt64(&c.TheftReportsFiled, 1) }
func (c *Counters) IncEventHandlerErrors() { atomic.AddInt64(&c.EventHandlerErrors, 1) }

// Snapshot is a point-in-time, plain-value copy safe to marshal to JSON.
type Snapshot struct {
	IssuesHandled      int64 `json:"issues_handled"`
	RedeemsHandled     int64 `json:"redeems_handled"`
	ReplacesHandled    int64 `json:"replaces_handled"`
	RefundsHandled     int64 `json:"refunds_handled"`
	CancellationsSent  int64 `json:"cancellations_sent"`
	CollateralLocked   int64 `json:"collateral_locked_events"`
	AuctionsSubmitted  int64 `json:"auctions_submitted"`
	TheftReportsFiled  int64 `json:"theft_reports_filed"`
	EventHandlerErrors int64 `json:"event_handler_errors"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		IssuesHandled:      atomic.LoadInt64(&c.IssuesHandled),
		RedeemsHandled:     atomic.LoadInt64(&c.RedeemsHandled),
		ReplacesHandled:    atomic.LoadInt64(&c.ReplacesHandled),
		RefundsHandled:     atomic.LoadInt64(&c.RefundsHandled),
		CancellationsSent:  atomic.LoadInt64(&c.CancellationsSent),
		CollateralLocked:   atomic.LoadInt64(&c.CollateralLocked),
		AuctionsSubmitted:  atomic.LoadInt64(&c.AuctionsSubmitted),
		TheftReportsFiled:  atomic.LoadInt64(&c.TheftReportsFiled),
		EventHandlerErrors: atomic.LoadInt64(&c.EventHandlerErrors),
	}
}
