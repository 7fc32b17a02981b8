package app

import (
	"context"
	"errors"
	"hash/fnv"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vault-liquidator/internal/alerting"
	"vault-liquidator/internal/chain"
	"vault-liquidator/internal/config"
	"vault-liquidator/internal/engine"
	"vault-liquidator/internal/indexer"
	"vault-liquidator/internal/scheduler"
	"vault-liquidator/internal/service"
	"vault-liquidator/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newChainClient() (*chain.Client, error) {
	return chain.New(chain.Options{
		RPCURL:         a.Config.Chain.RPCURL,
		ChainID:        a.Config.Chain.ChainID,
		PrivateKey:     a.Config.Chain.PrivateKey,
		EngineAddress:  a.Config.Chain.EngineAddress,
		OracleAddress:  a.Config.Chain.OracleAddress,
		TokenAddress:   a.Config.Chain.TokenAddress,
		TokenID:        a.Config.Chain.TokenID,
		RequestTimeout: a.Config.Chain.RequestTimeout,
		ConfirmTimeout: a.Config.Chain.ConfirmTimeout,
	}, a.Logger)
}

func (a *App) newIndexer() *indexer.Client {
	return indexer.New(indexer.Options{
		BaseURL:   a.Config.Indexer.BaseURL,
		PageSize:  a.Config.Indexer.PageSize,
		Timeout:   a.Config.Indexer.RequestTimeout,
		UserAgent: a.Config.Indexer.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// lockKey picks the advisory lock key: an explicit config value wins,
// otherwise one is derived from the engine address so two instances watching
// the same engine exclude each other without coordination.
func (a *App) lockKey() int64 {
	if key := a.Config.Scheduler.AdvisoryLockKey; key != 0 {
		return key
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(a.Config.Chain.EngineAddress))
	return int64(h.Sum64() &^ (1 << 63))
}

// Run executes the long-running liquidation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	policy, err := a.Config.BuildPolicy()
	if err != nil {
		return err
	}

	chainClient, err := a.newChainClient()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; run history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	fetcher := engine.NewSnapshotFetcher(chainClient, engine.SnapshotOptions{
		OracleDecimals:    a.Config.Tokens.OracleDecimals,
		CanonicalDecimals: a.Config.Tokens.TokenDecimals,
	}, a.Logger)
	executor := engine.NewExecutor(chainClient, a.Logger)

	var runStore storage.RunStore
	if store != nil {
		runStore = store
	}

	svc := service.New(
		policy,
		a.Config.Chain.EngineAddress,
		sched,
		chainClient,
		fetcher,
		a.newIndexer(),
		executor,
		runStore,
		a.newNotifier(),
		a.lockKey(),
		a.Logger,
	)

	a.Logger.Info().
		Str("engine", a.Config.Chain.EngineAddress).
		Str("account", chainClient.OwnAddress()).
		Msg("liquidation bot initialized")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("liquidation bot stopped")
	return nil
}

// ExportOptions hold parameters for exporting scan history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions describe a hypothetical vault and market for a dry run of
// the evaluator and sizer. Integer amounts are in base units.
type SimulateOptions struct {
	Minted            string
	CollateralBalance string
	IsBeingLiquidated bool
	OraclePrice       string
	InterestRate      string
	OwnTokenBalance   string
}
