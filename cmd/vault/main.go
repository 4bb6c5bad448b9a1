// Command vault runs the Vault client: it watches the parachain for issue,
// redeem, replace and refund requests against this vault, settles them in
// Bitcoin, and keeps its own collateral and deadlines in order.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/olekukonko/tablewriter"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/bridgevault/clients/internal/config"
	"github.com/bridgevault/clients/internal/vaultservice"
	"github.com/bridgevault/clients/internal/xlog"
)

var (
	polkaBtcURLFlag = cli.StringFlag{Name: "polka-btc-url", Usage: "parachain RPC endpoint", Value: "ws://127.0.0.1:9944"}
	httpAddrFlag    = cli.StringFlag{Name: "http-addr", Usage: "local admin API listen address", Value: "127.0.0.1:8080"}
	rpcCorsFlag     = cli.StringFlag{Name: "rpc-cors-domain", Usage: "comma separated list of domains allowed to access the admin API"}

	autoRegisterFlag = cli.StringFlag{Name: "auto-register-with-collateral", Usage: "register this vault with the given collateral if not already registered"}
	noAutoAuctionFlag = cli.BoolFlag{Name: "no-auto-auction", Usage: "disable the auction monitor"}
	noAutoReplaceFlag = cli.BoolFlag{Name: "no-auto-replace", Usage: "disable the replace-request cancellation scheduler"}
	noStartupCollateralIncreaseFlag = cli.BoolFlag{Name: "no-startup-collateral-increase", Usage: "skip the initial collateral top-up at startup"}
	noIssueExecutionFlag = cli.BoolFlag{Name: "no-issue-execution", Usage: "skip the startup open-request executor for open redeem/replace/refund requests"}
	noAPIFlag           = cli.BoolFlag{Name: "no-api", Usage: "disable the local admin API"}

	maxCollateralFlag      = cli.StringFlag{Name: "max-collateral", Usage: "ceiling on locked collateral", Value: "1000000"}
	collateralTimeoutFlag  = cli.Uint64Flag{Name: "collateral-timeout-ms", Usage: "collateral maintainer polling interval", Value: 5000}
	btcConfirmationsFlag   = cli.Uint64Flag{Name: "btc-confirmations", Usage: "Bitcoin confirmations required before submitting an execution proof", Value: 6}
	networkFlag            = cli.StringFlag{Name: "network", Usage: "bitcoin network: mainnet|testnet|regtest", Value: "regtest"}

	bitcoinRPCURLFlag  = cli.StringFlag{Name: "btc-rpc-url", Usage: "Bitcoin node RPC endpoint", Value: "127.0.0.1:18443"}
	bitcoinRPCUserFlag = cli.StringFlag{Name: "btc-rpc-user", Usage: "Bitcoin node RPC username"}
	bitcoinRPCPassFlag = cli.StringFlag{Name: "btc-rpc-pass", Usage: "Bitcoin node RPC password"}
	keyringFileFlag    = cli.StringFlag{Name: "keyring-file", Usage: "parachain signing key file"}

	configFileFlag = cli.StringFlag{Name: "config", Usage: "TOML configuration file"}
)

var vaultFlags = []cli.Flag{
	polkaBtcURLFlag, httpAddrFlag, rpcCorsFlag,
	autoRegisterFlag, noAutoAuctionFlag, noAutoReplaceFlag, noStartupCollateralIncreaseFlag, noIssueExecutionFlag, noAPIFlag,
	maxCollateralFlag, collateralTimeoutFlag, btcConfirmationsFlag, networkFlag,
	bitcoinRPCURLFlag, bitcoinRPCUserFlag, bitcoinRPCPassFlag, keyringFileFlag,
	configFileFlag,
}

func main() {
	app := cli.NewApp()
	app.Name = "vault"
	app.Usage = "runs the off-chain vault client for the BridgeVault parachain"
	app.Flags = vaultFlags
	app.Action = runVault
	app.Commands = []cli.Command{
		{
			Name:   "dumpconfig",
			Usage:  "show configuration values as TOML",
			Flags:  vaultFlags,
			Action: dumpVaultConfig,
		},
		{
			Name:   "config",
			Usage:  "show the effective configuration as a table",
			Flags:  vaultFlags,
			Action: printVaultConfigTable,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildVaultConfig(ctx *cli.Context) (config.Vault, error) {
	cfg := config.DefaultVault()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := config.Load(file, &cfg); err != nil {
			return cfg, err
		}
	}
	applyVaultFlags(ctx, &cfg)
	return cfg, nil
}

func applyVaultFlags(ctx *cli.Context, cfg *config.Vault) {
	setString(ctx, polkaBtcURLFlag.Name, &cfg.PolkaBtcURL)
	setString(ctx, httpAddrFlag.Name, &cfg.HTTPAddr)
	setString(ctx, rpcCorsFlag.Name, &cfg.RPCCorsDomain)
	setString(ctx, networkFlag.Name, &cfg.Network)
	setString(ctx, bitcoinRPCURLFlag.Name, &cfg.BitcoinRPCURL)
	setString(ctx, bitcoinRPCUserFlag.Name, &cfg.BitcoinRPCUser)
	setString(ctx, bitcoinRPCPassFlag.Name, &cfg.BitcoinRPCPass)
	setString(ctx, keyringFileFlag.Name, &cfg.KeyringFile)

	if ctx.GlobalIsSet(autoRegisterFlag.Name) {
		amount, ok := new(big.Int).SetString(ctx.GlobalString(autoRegisterFlag.Name), 10)
		if !ok {
			amount = big.NewInt(0)
		}
		cfg.AutoRegisterWithCollateral = amount
	}
	if ctx.GlobalIsSet(maxCollateralFlag.Name) {
		if amount, ok := new(big.Int).SetString(ctx.GlobalString(maxCollateralFlag.Name), 10); ok {
			cfg.MaxCollateral = amount
		}
	}
	if ctx.GlobalIsSet(collateralTimeoutFlag.Name) {
		cfg.CollateralTimeoutMs = ctx.GlobalUint64(collateralTimeoutFlag.Name)
	}
	if ctx.GlobalIsSet(btcConfirmationsFlag.Name) {
		cfg.BtcConfirmations = uint32(ctx.GlobalUint64(btcConfirmationsFlag.Name))
	}

	cfg.NoAutoAuction = cfg.NoAutoAuction || ctx.GlobalBool(noAutoAuctionFlag.Name)
	cfg.NoAutoReplace = cfg.NoAutoReplace || ctx.GlobalBool(noAutoReplaceFlag.Name)
	cfg.NoStartupCollateralIncrease = cfg.NoStartupCollateralIncrease || ctx.GlobalBool(noStartupCollateralIncreaseFlag.Name)
	cfg.NoIssueExecution = cfg.NoIssueExecution || ctx.GlobalBool(noIssueExecutionFlag.Name)
	cfg.NoAPI = cfg.NoAPI || ctx.GlobalBool(noAPIFlag.Name)
}

func setString(ctx *cli.Context, name string, dst *string) {
	if ctx.GlobalIsSet(name) {
		*dst = ctx.GlobalString(name)
	}
}

func dumpVaultConfig(ctx *cli.Context) error {
	cfg, err := buildVaultConfig(ctx)
	if err != nil {
		return err
	}
	return config.Dump(os.Stdout, &cfg)
}

// printVaultConfigTable renders the effective settings an operator is most
// likely to misconfigure, rather than the full struct dump dumpconfig gives.
func printVaultConfigTable(ctx *cli.Context) error {
	cfg, err := buildVaultConfig(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"setting", "value"})
	rows := [][]string{
		{"network", cfg.Network},
		{"polka-btc-url", cfg.PolkaBtcURL},
		{"http-addr", cfg.HTTPAddr},
		{"btc-rpc-url", cfg.BitcoinRPCURL},
		{"btc-confirmations", fmt.Sprintf("%d", cfg.BtcConfirmations)},
		{"max-collateral", cfg.MaxCollateral.String()},
		{"no-api", fmt.Sprintf("%t", cfg.NoAPI)},
		{"no-auto-auction", fmt.Sprintf("%t", cfg.NoAutoAuction)},
		{"no-auto-replace", fmt.Sprintf("%t", cfg.NoAutoReplace)},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return nil
}

func runVault(ctx *cli.Context) error {
	cfg, err := buildVaultConfig(ctx)
	if err != nil {
		return err
	}

	log := xlog.New("vault")
	svc, err := vaultservice.New(log, cfg)
	if err != nil {
		return err
	}
	return svc.Run(context.Background())
}
