// Package vaultservice wires every subsystem the Vault client needs into one
// orchestrator: it constructs the shared parachain and Bitcoin clients,
// performs startup reconciliation, spawns each long-running task, and
// propagates the first task failure as process failure (spec.md §2,
// "Startup orchestrator"; §5, "Failure containment").
package vaultservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjl/memsize"

	"github.com/bridgevault/clients/internal/api"
	"github.com/bridgevault/clients/internal/btc"
	"github.com/bridgevault/clients/internal/chain"
	"github.com/bridgevault/clients/internal/collateral"
	"github.com/bridgevault/clients/internal/config"
	"github.com/bridgevault/clients/internal/executor"
	"github.com/bridgevault/clients/internal/metrics"
	"github.com/bridgevault/clients/internal/reactor"
	"github.com/bridgevault/clients/internal/registry"
	"github.com/bridgevault/clients/internal/scheduler"
	"github.com/bridgevault/clients/internal/xlog"
)

// Service is the assembled Vault client. Its chain/btc clients are normally
// dialed in connect, but tests in this package set them directly before
// calling Run to substitute chain.MockClient / btc.MockClient.
type Service struct {
	log  *xlog.Logger
	cfg  config.Vault
	self chain.AccountId

	chain chain.Client
	btc   btc.Client

	vaults  *registry.Vaults
	issues  *registry.IssueRequests
	metrics *metrics.Counters

	registered bool
}

// New validates configuration and wires in-process state, but performs no
// I/O; actual RPC connections and the startup handshake happen in Run.
func New(log *xlog.Logger, cfg config.Vault) (*Service, error) {
	if _, err := btc.Network(cfg.Network); err != nil {
		return nil, err
	}
	if cfg.MaxCollateral == nil || cfg.MaxCollateral.Sign() < 0 {
		return nil, fmt.Errorf("vaultservice: invalid --max-collateral")
	}

	self, err := loadSelf(cfg.KeyringFile)
	if err != nil {
		return nil, err
	}

	return &Service{
		log:     log,
		cfg:     cfg,
		self:    self,
		vaults:  registry.NewVaults(),
		issues:  registry.NewIssueRequests(),
		metrics: &metrics.Counters{},
	}, nil
}

// Run blocks until a fatal task error occurs or ctx is cancelled. A nil
// return only happens on clean cancellation; any task failure returns a
// non-nil error that cmd/vault surfaces as a process exit 1.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := s.reconcileStartup(ctx); err != nil {
		return err
	}

	blockSource, blockSub, err := s.chain.SubscribeHeaders(ctx)
	if err != nil {
		return err
	}
	defer blockSub.Unsubscribe()
	eventSource, eventSub, err := s.chain.SubscribeEvents(ctx)
	if err != nil {
		return err
	}

	issueBlocks := make(chan chain.Header, 16)
	replaceBlocks := make(chan chain.Header, 16)
	issueEvents := make(chan scheduler.RequestEvent, 16)
	replaceEvents := make(chan scheduler.RequestEvent, 16)
	reactorEvents := make(chan chain.Event, 16)

	issueState, replaceState, err := s.reconcileSchedules(ctx)
	if err != nil {
		return err
	}

	numConfirmations := s.cfg.BtcConfirmations
	if n, err := s.chain.GetBitcoinConfirmations(ctx); err == nil && n > 0 {
		numConfirmations = n
	}
	exec := executor.New(s.log, s.btc, numConfirmations)

	errCh := make(chan error, 16)
	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && err != context.Canceled {
				s.log.Error("task exited", "task", name, "err", err)
				select {
				case errCh <- fmt.Errorf("%s: %w", name, err):
				default:
				}
				cancel()
			}
		}()
	}

	// With --no-auto-replace nothing reads the replace channels, so they are
	// left out of the fan-out instead of filling up and stalling it.
	blockOuts := []chan<- chain.Header{issueBlocks}
	var replaceEventsOut chan<- scheduler.RequestEvent
	if !s.cfg.NoAutoReplace {
		blockOuts = append(blockOuts, replaceBlocks)
		replaceEventsOut = replaceEvents
	}
	spawn("block-fanout", func(ctx context.Context) error {
		return fanOutBlocks(ctx, blockSource, blockOuts...)
	})
	spawn("event-fanout", func(ctx context.Context) error {
		return s.fanOutEvents(ctx, eventSource, issueEvents, replaceEventsOut, reactorEvents)
	})

	issueLoop := scheduler.NewLoop(s.log.With("flow", "issue"), s.chain.CancelIssue, issueBlocks, issueEvents)
	spawn("issue-scheduler", func(ctx context.Context) error { return issueLoop.Run(ctx, issueState) })

	if !s.cfg.NoAutoReplace {
		replaceLoop := scheduler.NewLoop(s.log.With("flow", "replace"), s.chain.CancelReplace, replaceBlocks, replaceEvents)
		spawn("replace-scheduler", func(ctx context.Context) error { return replaceLoop.Run(ctx, replaceState) })
	}

	react := reactor.New(s.log, s.self, s.vaults, s.issues, s.buildHandlers(exec))
	spawn("event-reactor", func(ctx context.Context) error { return react.Run(ctx, reactorEvents, eventSub) })

	if !s.cfg.NoIssueExecution {
		spawn("open-request-executor", func(ctx context.Context) error { return s.runOpenRequestExecutor(ctx, exec) })
	}

	interval := time.Duration(s.cfg.CollateralTimeoutMs) * time.Millisecond
	maintainer := collateral.NewMaintainer(s.log, s.chain, s.self, s.cfg.MaxCollateral, interval)
	spawn("collateral-maintainer", maintainer.Run)

	if !s.cfg.NoAutoAuction {
		monitor := collateral.NewAuctionMonitor(s.log, s.chain, s.self, interval)
		spawn("auction-monitor", monitor.Run)
	}

	if !s.cfg.NoAPI {
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
		return nil
	}
}

// connect dials the production Bitcoin RPC and parachain clients if one was
// not already injected (tests substitute btc.MockClient / chain.MockClient
// directly).
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

// reconcileStartup performs the one-time startup sequence from spec.md
// §4.9: load the known vault set, confirm an already-registered vault's
// Bitcoin public key is actually present in the local wallet (spec.md:168,
// fatal otherwise), auto-register if requested and not already registered
// (scenario S6), and optionally top up collateral once before the periodic
// maintainer takes over.
func (s *Service) reconcileStartup(ctx context.Context) error {
	vaults, err := s.chain.GetAllVaults(ctx)
	if err != nil {
		return err
	}
	s.vaults.LoadAll(vaults)

	vault, err := s.chain.GetVault(ctx, s.self)
	switch {
	case err == nil:
		s.registered = true
		has, err := s.btc.WalletHasPublicKey(ctx, vault.BTCPublicKey)
		if err != nil {
			return err
		}
		if !has {
			return fmt.Errorf("vaultservice: registered vault %s's public key is not in the local Bitcoin wallet", s.self)
		}
	case err == chain.ErrVaultNotFound:
		s.registered = false
	default:
		return err
	}

	if !s.registered && s.cfg.AutoRegisterWithCollateral != nil {
		pubKey, err := s.btc.GetNewPublicKey(ctx)
		if err != nil {
			return err
		}
		if err := s.chain.RegisterVault(ctx, s.cfg.AutoRegisterWithCollateral, pubKey); err != nil {
			return err
		}
		s.registered = true
		s.log.Info("auto-registered vault", "collateral", s.cfg.AutoRegisterWithCollateral)
	}

	if s.registered && !s.cfg.NoStartupCollateralIncrease {
		m := collateral.NewMaintainer(s.log, s.chain, s.self, s.cfg.MaxCollateral, 0)
		if err := m.Tick(ctx); err != nil {
			s.log.Warn("startup collateral top-up failed", "err", err)
		}
	}
	return nil
}

// reconcileSchedules enumerates this vault's currently open issue and
// replace requests and seeds both cancellation schedulers from them
// (spec.md §4.1, "Reconciliation on start").
func (s *Service) reconcileSchedules(ctx context.Context) (issueState, replaceState scheduler.State, err error) {
	issues, err := s.chain.GetOpenIssueRequests(ctx, s.self)
	if err != nil {
		return scheduler.State{}, scheduler.State{}, err
	}
	issueOpen := make(map[chain.RequestId]uint64, len(issues))
	for _, req := range issues {
		issueOpen[req.ID()] = req.Deadline()
		s.issues.Add(req.ID())
	}

	replaces, err := s.chain.GetOpenReplaceRequests(ctx, s.self)
	if err != nil {
		return scheduler.State{}, scheduler.State{}, err
	}
	replaceOpen := make(map[chain.RequestId]uint64, len(replaces))
	for _, req := range replaces {
		replaceOpen[req.ID()] = req.Deadline()
	}

	return scheduler.Reconcile(issueOpen), scheduler.Reconcile(replaceOpen), nil
}

// runOpenRequestExecutor satisfies, once, every redeem/replace/refund
// obligation already open against this vault at startup (spec.md §4.2). New
// obligations that arrive afterwards are satisfied one at a time by the
// reactor's handlers (buildHandlers).
func (s *Service) runOpenRequestExecutor(ctx context.Context, exec *executor.Executor) error {
	var obligations []executor.Obligation

	redeems, err := s.chain.GetOpenRedeemRequests(ctx, s.self)
	if err != nil {
		return err
	}
	for _, r := range redeems {
		obligations = append(obligations, redeemObligation(s.chain, r))
	}

	replaces, err := s.chain.GetOpenReplaceRequests(ctx, s.self)
	if err != nil {
		return err
	}
	for _, r := range replaces {
		obligations = append(obligations, replaceObligation(s.chain, r))
	}

	refunds, err := s.chain.GetOpenRefundRequests(ctx, s.self)
	if err != nil {
		return err
	}
	for _, r := range refunds {
		obligations = append(obligations, refundObligation(s.chain, r))
	}

	if len(obligations) == 0 {
		return nil
	}
	return exec.Run(ctx, obligations)
}

func redeemObligation(client chain.Client, req *chain.RedeemRequest) executor.Obligation {
	return executor.Obligation{
		Id:            req.ID(),
		Address:       req.BTCAddress(),
		AmountSatoshi: req.AmountSatoshi(),
		Payload:       req.OpReturnPayload(),
		Execute: func(ctx context.Context, txid [32]byte, proof, rawTx []byte) (bool, error) {
			return client.ExecuteRedeem(ctx, req.ID(), txid, proof, rawTx)
		},
	}
}

func replaceObligation(client chain.Client, req *chain.ReplaceRequest) executor.Obligation {
	return executor.Obligation{
		Id:            req.ID(),
		Address:       req.BTCAddress(),
		AmountSatoshi: req.AmountSatoshi(),
		Payload:       req.OpReturnPayload(),
		Execute: func(ctx context.Context, txid [32]byte, proof, rawTx []byte) (bool, error) {
			return client.ExecuteReplace(ctx, req.ID(), txid, proof, rawTx)
		},
	}
}

func refundObligation(client chain.Client, req *chain.RefundRequest) executor.Obligation {
	return executor.Obligation{
		Id:            req.ID(),
		Address:       req.BTCAddress(),
		AmountSatoshi: req.AmountSatoshi(),
		Payload:       req.OpReturnPayload(),
		Execute: func(ctx context.Context, txid [32]byte, proof, rawTx []byte) (bool, error) {
			return client.ExecuteRefund(ctx, req.ID(), txid, proof, rawTx)
		},
	}
}

// buildHandlers wires the event reactor's callbacks: newly arriving
// redeem/replace/refund requests against this vault are satisfied
// immediately, one at a time, rather than waiting for the next restart.
func (s *Service) buildHandlers(exec *executor.Executor) reactor.Handlers {
	return reactor.Handlers{
		OnRedeemRequested: func(ctx context.Context, ev chain.RedeemRequested) error {
			if ev.Request.Vault() != s.self {
				return nil
			}
			s.metrics.IncRedeemsHandled()
			return exec.Run(ctx, []executor.Obligation{redeemObligation(s.chain, ev.Request)})
		},
		OnReplaceRequested: func(ctx context.Context, ev chain.ReplaceRequested) error {
			if ev.Request.Vault() != s.self {
				return nil
			}
			s.metrics.IncReplacesHandled()
			return exec.Run(ctx, []executor.Obligation{replaceObligation(s.chain, ev.Request)})
		},
		OnAcceptedReplace: func(ctx context.Context, ev chain.AcceptedReplace) error {
			if ev.OldVault != s.self {
				return nil
			}
			s.metrics.IncReplacesHandled()
			return exec.Run(ctx, []executor.Obligation{replaceObligation(s.chain, ev.Request)})
		},
		OnAuctionedReplace: func(ctx context.Context, ev chain.AuctionedReplace) error {
			if ev.Request.Vault() != s.self {
				return nil
			}
			s.metrics.IncReplacesHandled()
			return exec.Run(ctx, []executor.Obligation{replaceObligation(s.chain, ev.Request)})
		},
		OnRefundRequested: func(ctx context.Context, ev chain.RefundRequested) error {
			if ev.Request.Vault() != s.self {
				return nil
			}
			s.metrics.IncRefundsHandled()
			return exec.Run(ctx, []executor.Obligation{refundObligation(s.chain, ev.Request)})
		},
	}
}

func fanOutBlocks(ctx context.Context, in <-chan chain.Header, outs ...chan<- chain.Header) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case h, ok := <-in:
			if !ok {
				return scheduler.ErrChannelClosed
			}
			for _, out := range outs {
				select {
				case out <- h:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (s *Service) fanOutEvents(ctx context.Context, in <-chan chain.Event, issueEvents, replaceEvents chan<- scheduler.RequestEvent, reactorEvents chan<- chain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return scheduler.ErrChannelClosed
			}

			select {
			case reactorEvents <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}

			se, ok := reactor.ToSchedulerInput(ev, s.self)
			if !ok {
				continue
			}
			target := schedulerTarget(ev, issueEvents, replaceEvents)
			if target == nil {
				continue
			}
			select {
			case target <- se:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func schedulerTarget(ev chain.Event, issueEvents, replaceEvents chan<- scheduler.RequestEvent) chan<- scheduler.RequestEvent {
	switch ev.(type) {
	case chain.IssueRequested, chain.IssueExecuted, chain.IssueCancelled:
		return issueEvents
	case chain.ReplaceRequested, chain.AcceptedReplace, chain.ExecutedReplace, chain.AuctionedReplace:
		return replaceEvents
	default:
		return nil
	}
}

func (s *Service) statusSnapshot() api.Status {
	return api.Status{
		Component:       "vault",
		Self:            s.self.String(),
		RegisteredVault: s.registered,
		OpenIssues:      s.issues.Len(),
		KnownVaults:     s.vaults.Len(),
	}
}

// memSizeSnapshot reports the heap footprint of the in-memory registries
// backing this service, for the admin API's /debug/memsize route.
func (s *Service) memSizeSnapshot() memsize.Sizes {
	return memsize.Scan([]interface{}{s.vaults, s.issues})
}
