package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vortexdex/dexproxy/adaptor/evm"
	"github.com/vortexdex/dexproxy/storage"
)

const (
	defaultAPIHost       = "0.0.0.0"
	defaultAPIPort       = 9012
	defaultLogLevel      = "info"
	defaultLogOutput     = "stdout"
	defaultDatadir       = ".dexproxy" // Will be prefixed with user's home directory
	defaultPollInterval  = 2 * time.Second
	defaultCleanupAfter  = 10 * time.Minute
	defaultSignerWorkers = 4
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the application configuration
type Config struct {
	Chain     ChainConfig
	Venue     VenueConfig
	API       APIConfig
	Poller    PollerConfig
	Cache     CacheConfig
	Signer    SignerConfig
	Builders  BuildersConfig
	Whitelist WhitelistConfig
	Log       LogConfig
	Datadir   string
}

// ChainConfig holds network-related configuration
type ChainConfig struct {
	PrivKey       string   `mapstructure:"privkey"`
	Rpc           []string `mapstructure:"rpc"`
	ChainID       int64    `mapstructure:"chainid"`
	MaxGasGwei    uint64   `mapstructure:"maxgasgwei"`
	ExchangeAddr  string   `mapstructure:"exchange"`
	SpenderAddr   string   `mapstructure:"spender"`
	TokensFile    string   `mapstructure:"tokens"`
	WrappedNative string   `mapstructure:"wrappednative"`
	CallGasLimit  uint64   `mapstructure:"callgaslimit"`
}

// VenueConfig labels the venue adaptor
type VenueConfig struct {
	Name string `mapstructure:"name"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PollerConfig holds receipt polling configuration
type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// CacheConfig holds the durable request cache configuration
type CacheConfig struct {
	ProcessName  string        `mapstructure:"processname"`
	Persist      bool          `mapstructure:"persist"`
	CleanupAfter time.Duration `mapstructure:"cleanupafter"`
	Encoding     string        `mapstructure:"encoding"`
}

// SignerConfig holds the signing worker pool configuration
type SignerConfig struct {
	Workers int `mapstructure:"workers"`
}

// BuildersConfig holds the block-builder bundle configuration
type BuildersConfig struct {
	Rpc            []string      `mapstructure:"rpc"`
	SignerKey      string        `mapstructure:"signerkey"`
	BlockTime      time.Duration `mapstructure:"blocktime"`
	DeadlineBuffer time.Duration `mapstructure:"deadlinebuffer"`
}

// WhitelistConfig holds the withdrawal whitelist configuration
type WhitelistConfig struct {
	File            string        `mapstructure:"file"`
	RefreshInterval time.Duration `mapstructure:"refresh"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	// Get user's home directory for default datadir
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("poller.interval", defaultPollInterval)
	v.SetDefault("cache.processname", "dexproxy")
	v.SetDefault("cache.persist", true)
	v.SetDefault("cache.cleanupafter", defaultCleanupAfter)
	v.SetDefault("cache.encoding", "json")
	v.SetDefault("signer.workers", defaultSignerWorkers)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	// Configure flags
	flag.StringP("chain.privkey", "k", "", "private key of the trading account (required)")
	flag.StringSliceP("chain.rpc", "w", []string{}, "chain rpc endpoint(s), comma-separated (required)")
	flag.Int64("chain.chainid", 1, "chain id of the target network")
	flag.Uint64("chain.maxgasgwei", 0, "absolute gas price cap in gwei (0 disables)")
	flag.String("chain.exchange", "", "order entry contract address (required)")
	flag.String("chain.spender", "", "allowance spender contract address (defaults to exchange)")
	flag.String("chain.tokens", "", "path to the token registry JSON file (required)")
	flag.String("chain.wrappednative", "WETH", "wrapped native token symbol")
	flag.Uint64("chain.callgaslimit", 0, "contract call gas limit override")
	flag.String("venue.name", "evm", "venue name used in logs and events")
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.Duration("poller.interval", defaultPollInterval, "receipt polling cadence")
	flag.String("cache.processname", "dexproxy", "key prefix for the persisted request hash")
	flag.Bool("cache.persist", true, "persist requests to the local store")
	flag.Duration("cache.cleanupafter", defaultCleanupAfter, "TTL for finalized requests")
	flag.String("cache.encoding", "json", "serialization of persisted requests (json or cbor)")
	flag.Int("signer.workers", defaultSignerWorkers, "signature generator pool size")
	flag.StringSlice("builders.rpc", []string{}, "block builder endpoint(s) for bundle submission")
	flag.String("builders.signerkey", "", "dedicated private key signing builder request bodies (required with builders.rpc)")
	flag.Duration("builders.blocktime", 12*time.Second, "expected block time of the target network")
	flag.Duration("builders.deadlinebuffer", 0, "extra wait before a missed target block finalizes as FAILED")
	flag.String("whitelist.file", "", "path to the withdrawal whitelist JSON file")
	flag.Duration("whitelist.refresh", 0, "whitelist refresh cadence (0 disables)")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for the request store")

	// Configure usage information
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "dexproxy v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: dexproxy [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, DEXPROXY_CHAIN_PRIVKEY or DEXPROXY_API_HOST\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start against a single RPC endpoint\n")
		fmt.Fprintf(os.Stderr, "  dexproxy --chain.privkey=0x123... --chain.rpc=https://rpc1.com --chain.exchange=0x456... --chain.tokens=tokens.json\n\n")
		fmt.Fprintf(os.Stderr, "  # Enable builder bundles\n")
		fmt.Fprintf(os.Stderr, "  dexproxy ... --builders.rpc=https://relay.flashbots.net,https://rpc.titanbuilder.xyz --builders.signerkey=0x789...\n")
	}

	// Parse flags
	flag.CommandLine.SortFlags = false
	flag.Parse()

	// Configure Viper to use environment variables
	v.SetEnvPrefix("DEXPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind flags to Viper
	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if cfg.Chain.PrivKey == "" {
		return fmt.Errorf("private key is required (use --chain.privkey flag or DEXPROXY_CHAIN_PRIVKEY environment variable)")
	}
	if len(cfg.Chain.Rpc) == 0 {
		return fmt.Errorf("at least one chain rpc endpoint is required")
	}
	if !common.IsHexAddress(cfg.Chain.ExchangeAddr) {
		return fmt.Errorf("invalid exchange contract address %q", cfg.Chain.ExchangeAddr)
	}
	if cfg.Chain.SpenderAddr != "" && !common.IsHexAddress(cfg.Chain.SpenderAddr) {
		return fmt.Errorf("invalid spender contract address %q", cfg.Chain.SpenderAddr)
	}
	if cfg.Chain.TokensFile == "" {
		return fmt.Errorf("a token registry file is required (use --chain.tokens)")
	}
	if _, err := storage.ParseArtifactEncoding(cfg.Cache.Encoding); err != nil {
		return err
	}
	if len(cfg.Builders.Rpc) > 0 && cfg.Builders.SignerKey == "" {
		return fmt.Errorf("builder bundling requires a dedicated request-signing key (use --builders.signerkey)")
	}
	return nil
}

// tokenEntry is one row of the token registry file.
type tokenEntry struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// loadTokenRegistry reads the token registry JSON file, a map of upper-case
// symbol to contract address and decimals.
func loadTokenRegistry(path string) (map[string]evm.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read token registry: %w", err)
	}
	var raw map[string]tokenEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse token registry: %w", err)
	}
	tokens := make(map[string]evm.Token, len(raw))
	for symbol, t := range raw {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("invalid address %q for token %s", t.Address, symbol)
		}
		tokens[strings.ToUpper(symbol)] = evm.Token{
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("token registry is empty")
	}
	return tokens, nil
}
