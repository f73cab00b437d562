package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vortexdex/dexproxy/adaptor/evm"
	"github.com/vortexdex/dexproxy/api"
	"github.com/vortexdex/dexproxy/chain"
	"github.com/vortexdex/dexproxy/db"
	"github.com/vortexdex/dexproxy/db/pebbledb"
	"github.com/vortexdex/dexproxy/dispatch"
	"github.com/vortexdex/dexproxy/events"
	"github.com/vortexdex/dexproxy/lifecycle"
	"github.com/vortexdex/dexproxy/log"
	"github.com/vortexdex/dexproxy/poller"
	"github.com/vortexdex/dexproxy/signer"
	"github.com/vortexdex/dexproxy/storage"
	"github.com/vortexdex/dexproxy/types"
)

const healthMaxAge = 30 * time.Second

// Services holds all the running services
type Services struct {
	Store        *storage.Storage
	Signer       *signer.Pool
	BundleSigner *signer.Pool
	Poller       *poller.Poller
	Events       *events.Dispatcher
	Chain        *chain.EVMClient
	API          *api.API
	cancel       context.CancelFunc
}

// statusRelay forwards poller callbacks to the lifecycle manager. It exists
// so the poller can be constructed before the manager.
type statusRelay struct {
	mgr *lifecycle.Manager
}

func (s *statusRelay) OnRequestStatusUpdate(clientRequestID string, status types.RequestStatus,
	receipt *chain.Receipt, minedTxHash string) {
	s.mgr.OnRequestStatusUpdate(clientRequestID, status, receipt, minedTxHash)
}

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	log.Init(cfg.Log.Level, cfg.Log.Output)
	log.Infow("starting dexproxy", "version", Version)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	services.cancel = cancel
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	tokens, err := loadTokenRegistry(cfg.Chain.TokensFile)
	if err != nil {
		return nil, err
	}
	log.Infow("token registry loaded", "file", cfg.Chain.TokensFile, "tokens", len(tokens))

	// Request store
	var database db.Database
	if cfg.Cache.Persist {
		log.Infow("initializing request store", "datadir", cfg.Datadir)
		database, err = pebbledb.New(db.Options{Path: path.Join(cfg.Datadir, "requests")})
		if err != nil {
			return nil, fmt.Errorf("failed to open request store: %w", err)
		}
	}
	encoding, err := storage.ParseArtifactEncoding(cfg.Cache.Encoding)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(database, storage.Config{
		ProcessName:  cfg.Cache.ProcessName,
		Persist:      cfg.Cache.Persist,
		CleanupAfter: cfg.Cache.CleanupAfter,
		Encoding:     encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request cache: %w", err)
	}
	services.Store = store

	recovered, err := store.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover persisted requests: %w", err)
	}
	store.Start()

	// Chain client
	chainClient, err := chain.NewEVMClient(ctx, cfg.Chain.Rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect chain rpc: %w", err)
	}
	services.Chain = chainClient

	// Signing pool
	pool, err := signer.NewPool(cfg.Chain.PrivKey, cfg.Signer.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signer: %w", err)
	}
	pool.Start(ctx)
	services.Signer = pool
	log.Infow("signer initialized", "address", pool.Address().Hex(), "workers", cfg.Signer.Workers)

	// Venue adaptor
	spender := cfg.Chain.SpenderAddr
	if spender == "" {
		spender = cfg.Chain.ExchangeAddr
	}
	adaptor, err := evm.New(evm.Config{
		VenueName:     cfg.Venue.Name,
		ChainID:       big.NewInt(cfg.Chain.ChainID),
		Exchange:      common.HexToAddress(cfg.Chain.ExchangeAddr),
		Spender:       common.HexToAddress(spender),
		WrappedNative: cfg.Chain.WrappedNative,
		Tokens:        tokens,
		CallGasLimit:  cfg.Chain.CallGasLimit,
	}, chainClient, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize venue adaptor: %w", err)
	}

	// Status poller and lifecycle manager, wired through the relay so the
	// poller exists before the manager that consumes it.
	relay := &statusRelay{}
	bundling := len(cfg.Builders.Rpc) > 0
	txPoller := poller.New(chainClient, store, relay, poller.Config{
		PollInterval:          cfg.Poller.Interval,
		ReconcileTargetBlocks: bundling,
		MissGrace:             cfg.Builders.BlockTime + cfg.Builders.DeadlineBuffer,
	})
	services.Poller = txPoller

	var maxGas *types.BigInt
	if cfg.Chain.MaxGasGwei > 0 {
		maxGas = types.NewInt(0).SetUint64(cfg.Chain.MaxGasGwei * 1_000_000_000)
	}
	mgr := lifecycle.New(store, dispatch.NewDispatcher(store, 0), txPoller, adaptor,
		lifecycle.Config{MaxGasPriceWei: maxGas})
	relay.mgr = mgr

	// Event dispatcher
	eventsDispatcher := events.NewDispatcher()
	eventsDispatcher.Start(ctx)
	services.Events = eventsDispatcher
	mgr.WithEvents(eventsDispatcher)

	// Withdrawal whitelist
	if cfg.Whitelist.File != "" {
		entries, err := lifecycle.LoadWhitelistFile(cfg.Whitelist.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load withdrawal whitelist: %w", err)
		}
		whitelist := lifecycle.NewWhitelist(entries, nil, cfg.Whitelist.RefreshInterval)
		whitelist.Start(ctx)
		mgr.WithWhitelist(whitelist)
		log.Infow("withdrawal whitelist loaded", "file", cfg.Whitelist.File, "entries", len(entries))
	}

	// Builder bundle submission. Request bodies are signed with a dedicated
	// key, never the trading account key.
	if bundling {
		bundleSigner, err := signer.NewPool(cfg.Builders.SignerKey, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bundle signer: %w", err)
		}
		bundleSigner.Start(ctx)
		services.BundleSigner = bundleSigner
		builders := dispatch.NewBuilderClient(cfg.Builders.Rpc, bundleSigner)
		mgr.WithBundling(dispatch.NewBundleState(), builders)
		log.Infow("builder bundling enabled",
			"builders", len(cfg.Builders.Rpc), "signer", bundleSigner.Address().Hex())
	}

	// Re-register recovered in-flight attempts before accepting traffic
	mgr.RegisterRecovered(recovered)
	txPoller.Start(ctx)

	// API server
	apiSrv, err := api.New(&api.APIConfig{
		Host:    cfg.API.Host,
		Port:    cfg.API.Port,
		Manager: mgr,
		Events:  eventsDispatcher,
		Health: func() error {
			if !chainClient.Healthy(healthMaxAge) {
				return fmt.Errorf("chain rpc unreachable")
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	services.API = apiSrv

	return services, nil
}

// shutdownServices gracefully shuts down all services in reverse dependency
// order, flushing the request store last.
func shutdownServices(services *Services) {
	log.Info("shutting down services")
	if services.cancel != nil {
		services.cancel()
	}
	if services.Poller != nil {
		services.Poller.Stop()
	}
	if services.Events != nil {
		services.Events.Stop()
	}
	if services.BundleSigner != nil {
		services.BundleSigner.Stop()
	}
	if services.Signer != nil {
		services.Signer.Stop()
	}
	if services.Chain != nil {
		services.Chain.Close()
	}
	if services.Store != nil {
		services.Store.Close()
	}
	log.Info("shutdown complete")
}
