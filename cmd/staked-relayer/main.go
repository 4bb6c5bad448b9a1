// Command staked-relayer runs the Theft Detector: it watches the Bitcoin
// chain for vault spends not matched by a known obligation and reports them
// to the parachain.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/bridgevault/clients/internal/config"
	"github.com/bridgevault/clients/internal/relayerservice"
	"github.com/bridgevault/clients/internal/xlog"
)

var (
	polkaBtcURLFlag = cli.StringFlag{Name: "polka-btc-url", Usage: "parachain RPC endpoint", Value: "ws://127.0.0.1:9944"}
	httpAddrFlag    = cli.StringFlag{Name: "http-addr", Usage: "local admin API listen address", Value: "127.0.0.1:8081"}
	rpcCorsFlag     = cli.StringFlag{Name: "rpc-cors-domain", Usage: "comma separated list of domains allowed to access the admin API"}
	noAPIFlag       = cli.BoolFlag{Name: "no-api", Usage: "disable the local admin API"}

	networkFlag        = cli.StringFlag{Name: "network", Usage: "bitcoin network: mainnet|testnet|regtest", Value: "regtest"}
	bitcoinRPCURLFlag  = cli.StringFlag{Name: "btc-rpc-url", Usage: "Bitcoin node RPC endpoint", Value: "127.0.0.1:18443"}
	bitcoinRPCUserFlag = cli.StringFlag{Name: "btc-rpc-user", Usage: "Bitcoin node RPC username"}
	bitcoinRPCPassFlag = cli.StringFlag{Name: "btc-rpc-pass", Usage: "Bitcoin node RPC password"}

	startHeightFlag = cli.Uint64Flag{Name: "start-height", Usage: "Bitcoin height to begin scanning from (default: current tip)"}
	keyringFileFlag = cli.StringFlag{Name: "keyring-file", Usage: "parachain signing key file"}

	configFileFlag = cli.StringFlag{Name: "config", Usage: "TOML configuration file"}
)

var relayerFlags = []cli.Flag{
	polkaBtcURLFlag, httpAddrFlag, rpcCorsFlag, noAPIFlag,
	networkFlag, bitcoinRPCURLFlag, bitcoinRPCUserFlag, bitcoinRPCPassFlag,
	startHeightFlag, keyringFileFlag, configFileFlag,
}

func main() {
	app := cli.NewApp()
	app.Name = "staked-relayer"
	app.Usage = "runs the staked-relayer theft detector for the BridgeVault parachain"
	app.Flags = relayerFlags
	app.Action = runRelayer
	app.Commands = []cli.Command{
		{
			Name:   "dumpconfig",
			Usage:  "show configuration values as TOML",
			Flags:  relayerFlags,
			Action: dumpRelayerConfig,
		},
		{
			Name:   "config",
			Usage:  "show the effective configuration as a table",
			Flags:  relayerFlags,
			Action: printRelayerConfigTable,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRelayerConfig(ctx *cli.Context) (config.Relayer, error) {
	cfg := config.DefaultRelayer()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := config.Load(file, &cfg); err != nil {
			return cfg, err
		}
	}
	applyRelayerFlags(ctx, &cfg)
	return cfg, nil
}

func applyRelayerFlags(ctx *cli.Context, cfg *config.Relayer) {
	setString(ctx, polkaBtcURLFlag.Name, &cfg.PolkaBtcURL)
	setString(ctx, httpAddrFlag.Name, &cfg.HTTPAddr)
	setString(ctx, rpcCorsFlag.Name, &cfg.RPCCorsDomain)
	setString(ctx, networkFlag.Name, &cfg.Network)
	setString(ctx, bitcoinRPCURLFlag.Name, &cfg.BitcoinRPCURL)
	setString(ctx, bitcoinRPCUserFlag.Name, &cfg.BitcoinRPCUser)
	setString(ctx, bitcoinRPCPassFlag.Name, &cfg.BitcoinRPCPass)
	setString(ctx, keyringFileFlag.Name, &cfg.KeyringFile)

	if ctx.GlobalIsSet(startHeightFlag.Name) {
		cfg.StartHeight = ctx.GlobalUint64(startHeightFlag.Name)
	}
	cfg.NoAPIFlag = cfg.NoAPIFlag || ctx.GlobalBool(noAPIFlag.Name)
}

func setString(ctx *cli.Context, name string, dst *string) {
	if ctx.GlobalIsSet(name) {
		*dst = ctx.GlobalString(name)
	}
}

func dumpRelayerConfig(ctx *cli.Context) error {
	cfg, err := buildRelayerConfig(ctx)
	if err != nil {
		return err
	}
	return config.Dump(os.Stdout, &cfg)
}

func printRelayerConfigTable(ctx *cli.Context) error {
	cfg, err := buildRelayerConfig(ctx)
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
		{"start-height", fmt.Sprintf("%d", cfg.StartHeight)},
		{"no-api", fmt.Sprintf("%t", cfg.NoAPI())},
	}
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return nil
}

func runRelayer(ctx *cli.Context) error {
	cfg, err := buildRelayerConfig(ctx)
	if err != nil {
		return err
	}

	log := xlog.New("staked-relayer")
	svc, err := relayerservice.New(log, cfg)
	if err != nil {
		return err
	}
	return svc.Run(context.Background())
}
