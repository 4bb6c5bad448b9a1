package collateral

import (
	"context"
	"math/big"
	"time"

	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/xlog"
)

// DefaultInterval is the Collateral Maintainer's polling cadence (spec.md
// §4.5, "default 5 s").
const DefaultInterval = 5 * time.Second

// Maintainer periodically tops up this vault's own locked collateral.
type Maintainer struct {
	log          *xlog.Logger
	client       chain.Client
	self         chain.AccountId
	maxCollateral *big.Int
	interval     time.Duration
}

func NewMaintainer(log *xlog.Logger, client chain.Client, self chain.AccountId, maxCollateral *big.Int, interval time.Duration) *Maintainer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Maintainer{log: log, client: client, self: self, maxCollateral: maxCollateral, interval: interval}
}

// Run ticks forever until ctx is cancelled, calling Tick on each iteration.
func (m *Maintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.log.Warn("collateral tick failed", "err", err)
			}
		}
	}
}

// Tick reads required/current collateral once and, if short, locks the
// difference — but never so much that current + delta would exceed
// maxCollateral (spec.md §8, invariant 6). Exported for scenario S1.
func (m *Maintainer) Tick(ctx context.Context) error {
	required, err := m.client.GetRequiredCollateralForVault(ctx, m.self)
	if err != nil {
		return err
	}
	current, err := m.client.GetVaultCollateral(ctx, m.self)
	if err != nil {
		return err
	}

	if current.Cmp(required) >= 0 {
		return nil
	}

	delta := new(big.Int).Sub(required, current)
	projected := new(big.Int).Add(current, delta)
	if projected.Cmp(m.maxCollateral) > 0 {
		m.log.Warn("required collateral exceeds ceiling, skipping", "required", required, "current", current, "ceiling", m.maxCollateral)
		return nil
	}

	if err := m.client.LockAdditionalCollateral(ctx, delta); err != nil {
		return err
	}
	m.log.Info("locked additional collateral", "amount", delta)
	return nil
}
