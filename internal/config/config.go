// Package config loads the vault client's and staked-relayer's settings
// from CLI flags merged over an optional TOML file, grounded on the
// teacher's cmd/berith/config.go loadConfig/dumpConfig pair.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings keeps TOML keys identical to the Go struct field names,
// exactly as the teacher's cmd/berith/config.go does, so a dumped config
// round-trips without a translation table.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see godoc %s#%s", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Vault is the Vault client's settings (spec.md §6, "CLI surface").
type Vault struct {
	PolkaBtcURL string `toml:",omitempty"`
	HTTPAddr    string `toml:",omitempty"`
	RPCCorsDomain string `toml:",omitempty"`

	AutoRegisterWithCollateral *big.Int `toml:",omitempty"`
	NoAutoAuction              bool     `toml:",omitempty"`
	NoAutoReplace              bool     `toml:",omitempty"`
	NoStartupCollateralIncrease bool    `toml:",omitempty"`
	NoIssueExecution           bool     `toml:",omitempty"`
	NoAPI                      bool     `toml:",omitempty"`

	MaxCollateral       *big.Int `toml:",omitempty"`
	CollateralTimeoutMs uint64   `toml:",omitempty"`
	BtcConfirmations    uint32   `toml:",omitempty"`
	Network             string   `toml:",omitempty"`

	BitcoinRPCURL  string `toml:",omitempty"`
	BitcoinRPCUser string `toml:",omitempty"`
	BitcoinRPCPass string `toml:",omitempty"`
	KeyringFile    string `toml:",omitempty"`
}

// Relayer is the Staked-Relayer's settings.
type Relayer struct {
	PolkaBtcURL    string `toml:",omitempty"`
	HTTPAddr       string `toml:",omitempty"`
	RPCCorsDomain  string `toml:",omitempty"`
	NoAPIFlag      bool   `toml:"NoAPI,omitempty"`
	BitcoinRPCURL  string `toml:",omitempty"`
	BitcoinRPCUser string `toml:",omitempty"`
	BitcoinRPCPass string `toml:",omitempty"`
	Network        string `toml:",omitempty"`
	StartHeight    uint64 `toml:",omitempty"`
	KeyringFile    string `toml:",omitempty"`
}

// NoAPI reports whether the local admin API should be disabled.
func (r Relayer) NoAPI() bool { return r.NoAPIFlag }

// DefaultVault mirrors spec.md §6's documented flag defaults.
func DefaultVault() Vault {
	return Vault{
		PolkaBtcURL:      "ws://127.0.0.1:9944",
		BitcoinRPCURL:    "127.0.0.1:18443",
		HTTPAddr:         "127.0.0.1:8080",
		MaxCollateral:    big.NewInt(1_000_000),
		CollateralTimeoutMs: 5_000,
		BtcConfirmations: 6,
		Network:          "regtest",
	}
}

func DefaultRelayer() Relayer {
	return Relayer{
		PolkaBtcURL:   "ws://127.0.0.1:9944",
		BitcoinRPCURL: "127.0.0.1:18443",
		HTTPAddr:      "127.0.0.1:8081",
		Network:  "regtest",
	}
}

// Load reads file as TOML into cfg, which must already hold the defaults to
// be overridden.
func Load(file string, cfg interface{}) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// Dump renders cfg as TOML to w, the dumpconfig subcommand's sole job.
func Dump(w io.Writer, cfg interface{}) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
