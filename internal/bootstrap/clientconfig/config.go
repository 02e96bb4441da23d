// Package clientconfig loads the daemon configuration: defaults, then
// a yaml file, then environment overrides, each layer winning over the
// previous one. Validation happens once at startup; a daemon pointed
// at no contract has nothing useful to do and should fail fast.
package clientconfig

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"microloan/go-client/internal/fault"
)

type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Confirm ConfirmConfig `yaml:"confirm"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Agent   AgentConfig   `yaml:"agent"`
}

type ChainConfig struct {
	RPCEndpoint     string `yaml:"rpcEndpoint"`
	ContractAddress string `yaml:"contractAddress"`
	ChainID         int64  `yaml:"chainId"`
}

type ConfirmConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxAttempts  int           `yaml:"maxAttempts"`
}

type DaemonConfig struct {
	ListenAddr     string  `yaml:"listenAddr"`
	ReadRatePerSec float64 `yaml:"readRatePerSec"`
}

type AgentConfig struct {
	KeystorePath string `yaml:"keystorePath"`
}

func Default() Config {
	return Config{
		Chain: ChainConfig{
			RPCEndpoint: "http://127.0.0.1:8545",
		},
		Confirm: ConfirmConfig{
			PollInterval: 2 * time.Second,
			MaxAttempts:  30,
		},
		Daemon: DaemonConfig{
			ListenAddr:     "127.0.0.1:8787",
			ReadRatePerSec: 20,
		},
	}
}

// LoadFromPath resolves the effective configuration. A missing file is
// not an error (defaults plus env apply); an unreadable or malformed
// file at an explicit path is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/loand.yaml",
			"loand.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fault.Wrap(fault.CodeConfiguration, "config file unreadable", err)
			}
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fault.Wrap(fault.CodeConfiguration, "config file is not valid yaml", err)
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src Config) {
	if src.Chain.RPCEndpoint != "" {
		dst.Chain.RPCEndpoint = src.Chain.RPCEndpoint
	}
	if src.Chain.ContractAddress != "" {
		dst.Chain.ContractAddress = src.Chain.ContractAddress
	}
	if src.Chain.ChainID != 0 {
		dst.Chain.ChainID = src.Chain.ChainID
	}
	if src.Confirm.PollInterval != 0 {
		dst.Confirm.PollInterval = src.Confirm.PollInterval
	}
	if src.Confirm.MaxAttempts != 0 {
		dst.Confirm.MaxAttempts = src.Confirm.MaxAttempts
	}
	if src.Daemon.ListenAddr != "" {
		dst.Daemon.ListenAddr = src.Daemon.ListenAddr
	}
	if src.Daemon.ReadRatePerSec != 0 {
		dst.Daemon.ReadRatePerSec = src.Daemon.ReadRatePerSec
	}
	if src.Agent.KeystorePath != "" {
		dst.Agent.KeystorePath = src.Agent.KeystorePath
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := envString("LOAND_RPC_ENDPOINT"); v != "" {
		cfg.Chain.RPCEndpoint = v
	}
	if v := envString("LOAND_CONTRACT_ADDRESS"); v != "" {
		cfg.Chain.ContractAddress = v
	}
	if v := envString("LOAND_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := envString("LOAND_LISTEN_ADDR"); v != "" {
		cfg.Daemon.ListenAddr = v
	}
	if v := envString("LOAND_KEYSTORE_PATH"); v != "" {
		cfg.Agent.KeystorePath = v
	}
}

func envString(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.Chain.RPCEndpoint == "" {
		return fault.New(fault.CodeConfiguration, "chain.rpcEndpoint is required")
	}
	if c.Chain.ContractAddress == "" {
		return fault.New(fault.CodeConfiguration, "chain.contractAddress is required")
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fault.New(fault.CodeConfiguration, "chain.contractAddress is not a valid address")
	}
	if c.Confirm.PollInterval < 0 || c.Confirm.MaxAttempts < 0 {
		return fault.New(fault.CodeConfiguration, "confirm bounds must not be negative")
	}
	return nil
}

func (c Config) Contract() common.Address {
	return common.HexToAddress(c.Chain.ContractAddress)
}
