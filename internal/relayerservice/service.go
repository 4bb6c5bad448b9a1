// Package relayerservice wires the staked-relayer's subsystems together: the
// shared Bitcoin and parachain clients, the vault registry, the Theft
// Detector, and the local admin API. The orchestrator shape mirrors
// vaultservice's (spec.md §2, "Startup orchestrator"; §5, "Failure
// containment").
package relayerservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/fjl/memsize"

	"github.com/bridgevault/clients/internal/api"
	"github.com/bridgevault/clients/internal/btc"
	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/config"
	"github.com/bridgevault/clients/internal/metrics"
	"github.com/bridgevault/clients/internal/registry"
	"github.com/bridgevault/clients/internal/theft"
	"github.com/bridgevault/clients/internal/xlog"
)

// Service is the assembled staked-relayer.
type Service struct {
	log    *xlog.Logger
	cfg    config.Relayer
	params *chaincfg.Params

	chain chain.Client
	btc   btc.Client

	vaults  *registry.Vaults
	metrics *metrics.Counters
}

// New validates configuration, but performs no I/O.
func New(log *xlog.Logger, cfg config.Relayer) (*Service, error) {
	params, err := btc.Network(cfg.Network)
	if err != nil {
		return nil, err
	}
	return &Service{
		log:     log,
		cfg:     cfg,
		params:  params,
		vaults:  registry.NewVaults(),
		metrics: &metrics.Counters{},
	}, nil
}

// Run blocks until a fatal task error occurs or ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		return err
	}

	vaults, err := s.chain.GetAllVaults(ctx)
	if err != nil {
		return err
	}
	s.vaults.LoadAll(vaults)

	startHeight := s.cfg.StartHeight
	if startHeight == 0 {
		startHeight, err = s.chain.GetCurrentChainHeight(ctx)
		if err != nil {
			return err
		}
	}

	detector := theft.New(s.log, s.btc, s.chain, s.vaults, s.params)

	errCh := make(chan error, 4)
	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && err != context.Canceled && err != theft.ErrCancelled {
				s.log.Error("task exited", "task", name, "err", err)
				select {
				case errCh <- fmt.Errorf("%s: %w", name, err):
				default:
				}
				cancel()
			}
		}()
	}

	spawn("theft-detector", func(ctx context.Context) error { return detector.Run(ctx, startHeight) })
	spawn("vault-registry-refresh", func(ctx context.Context) error { return s.refreshVaults(ctx) })

	if !s.cfg.NoAPI() {
		srv, err := api.New(s.log, s.cfg.HTTPAddr, s.cfg.RPCCorsDomain, s.statusSnapshot, s.metrics, s.memSizeSnapshot)
		if err != nil {
			return err
		}
		spawn("admin-api", srv.Run)
	}

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (s *Service) connect(ctx context.Context) error {
	if s.btc == nil {
		rpc, err := btc.DialRPCClient(s.cfg.Network, s.cfg.BitcoinRPCURL, s.cfg.BitcoinRPCUser, s.cfg.BitcoinRPCPass)
		if err != nil {
			return err
		}
		s.btc = rpc
	}
	if s.chain == nil {
		parachain, err := chain.DialParachainClient(ctx, s.cfg.PolkaBtcURL)
		if err != nil {
			return err
		}
		s.chain = parachain
	}
	return nil
}

// refreshVaults keeps the vault registry current by re-subscribing to
// VaultRegistered/VaultDeregistered events (the theft detector's vault
// lookups must reflect vaults registered after this process started).
func (s *Service) refreshVaults(ctx context.Context) error {
	events, sub, err := s.chain.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err != nil {
				s.log.Error("vault registry subscription failed", "err", err)
			}
			return err
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case chain.VaultRegistered:
				s.vaults.Register(e.Address, e.Vault)
			case chain.VaultDeregistered:
				s.vaults.DeregisterVault(e.Vault)
			}
		}
	}
}

func (s *Service) statusSnapshot() api.Status {
	return api.Status{
		Component:   "staked-relayer",
		KnownVaults: s.vaults.Len(),
	}
}

// memSizeSnapshot reports the heap footprint of the vault registry, for the
// admin API's /debug/memsize route.
func (s *Service) memSizeSnapshot() memsize.Sizes {
	return memsize.Scan([]interface{}{s.vaults})
}
