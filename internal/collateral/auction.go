package collateral

import (
	"context"
	"math/big"
	"time"

	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/xlog"
)

// LiquidationThresholdPPM is the default collateralisation ratio (parts per
// million) below which a vault is considered auctionable.
const LiquidationThresholdPPM = 1_350_000 // 135%, conventional liquidation line

// AuctionMonitor enumerates all registered vaults (other than this one) each
// tick and submits an auction_replace against any vault below the
// liquidation threshold, forcing a replace request against it. A successful
// submission surfaces to the replace scheduler indirectly: the parachain's
// resulting AuctionedReplace event reaches the auctioned vault's own reactor
// and feeds its replace scheduler exactly like a self-initiated
// ReplaceRequested (spec.md §4.3), so this monitor needs no direct feedback
// hook into its own scheduler.
type AuctionMonitor struct {
	log          *xlog.Logger
	client       chain.Client
	self         chain.AccountId
	thresholdPPM int64
	interval     time.Duration
}

func NewAuctionMonitor(log *xlog.Logger, client chain.Client, self chain.AccountId, interval time.Duration) *AuctionMonitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &AuctionMonitor{log: log, client: client, self: self, thresholdPPM: LiquidationThresholdPPM, interval: interval}
}

func (a *AuctionMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Tick(ctx); err != nil {
				a.log.Warn("auction monitor tick failed", "err", err)
			}
		}
	}
}

// Tick ranks all vaults by collateralisation ratio and auctions off a
// portion of every vault's obligation that falls below threshold. Run calls
// it once per interval; it is exported so it can also be driven directly.
func (a *AuctionMonitor) Tick(ctx context.Context) error {
	vaults, err := a.client.GetAllVaults(ctx)
	if err != nil {
		return err
	}
	rate, err := a.client.GetExchangeRate(ctx)
	if err != nil {
		return err
	}

	ranked := RankByRatio(vaults, rate)
	for _, r := range BelowThresholdVaults(ranked, a.thresholdPPM) {
		if r.Vault.Id == a.self {
			continue
		}
		if err := a.auction(ctx, r.Vault); err != nil {
			a.log.Warn("auction_replace submission failed", "vault", r.Vault.Id, "err", err)
		}
	}
	return nil
}

func (a *AuctionMonitor) auction(ctx context.Context, v *chain.Vault) error {
	// Auction a quarter of the vault's outstanding obligation per round;
	// a full replace floods the order book and this vault alone cannot
	// absorb the whole position anyway.
	portion := new(big.Int).Div(v.IssuedTokens, big.NewInt(4))
	if portion.Sign() == 0 {
		portion = v.IssuedTokens
	}

	if len(v.Addresses) == 0 {
		return errNoDepositAddress(v.Id)
	}
	addr := v.Addresses[0]

	return a.client.AuctionReplace(ctx, v.Id, portion, v.LockedCollateral, addr)
}

type errNoDepositAddress chain.AccountId

func (e errNoDepositAddress) Error() string {
	id := chain.AccountId(e)
	return "auction target vault has no deposit address: " + id.String()
}
