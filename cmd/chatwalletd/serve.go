package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ChatWallet/internal/agent"
	"ChatWallet/internal/aggregator"
	"ChatWallet/internal/api"
	"ChatWallet/internal/custody"
	"ChatWallet/internal/inbox"
	"ChatWallet/internal/intent"
	"ChatWallet/internal/notify"
	"ChatWallet/internal/quote"
	"ChatWallet/internal/registry"
	"ChatWallet/internal/wallet"
	"ChatWallet/internal/web3/provider"
	"ChatWallet/pkg/logger"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the inbox workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	log := logger.Named("chatwalletd")

	reg, err := registry.Load(cfg.Web3.RegistryConfig)
	if err != nil {
		return err
	}
	chains, err := provider.NewRegistry(ctx, reg, cfg.Web3.RPCTimeout())
	if err != nil {
		return err
	}
	defer chains.Close()

	custodian, err := custody.New(custody.Config{
		KeystoreDir: cfg.Custody.KeystoreDir,
		Passphrase:  cfg.Custody.Passphrase,
		LightScrypt: cfg.Custody.LightScrypt,
	})
	if err != nil {
		return err
	}

	agg, err := aggregator.NewClient(aggregator.Config{
		BaseURL: cfg.Aggregator.BaseURL,
		APIKey:  cfg.Aggregator.APIKey,
		Timeout: cfg.Aggregator.Timeout(),
	})
	if err != nil {
		return err
	}
	engine := quote.NewEngine(reg, agg,
		quote.WithTTL(cfg.Aggregator.QuoteTTL()),
		quote.WithCustody(custodian),
		quote.WithMessenger(quote.AggregatorMessenger{Submitter: agg}),
		quote.WithChains(chains),
	)

	var redisClient *goredis.Client
	if needsRedis(cfg) {
		redisClient, err = openRedis(ctx, cfg.Storage.Redis)
		if err != nil {
			return err
		}
		defer closeQuietly("redis", redisClient)
	}

	store, err := openWalletStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeQuietly("wallet_store", store)
	locker, err := openLocker(cfg, redisClient)
	if err != nil {
		return err
	}
	wallets := wallet.NewService(store, custodian,
		wallet.WithLocker(locker),
		wallet.WithDefaultChain(registry.EthereumMainnet),
	)

	cls, err := newClassifier(cfg.Classifier)
	if err != nil {
		return err
	}
	resolver := intent.NewResolver(cls, intent.WithTimeout(cfg.Classifier.Timeout()))

	telegram, err := notify.NewTelegram(notify.TelegramConfig{
		APIBase:  cfg.Telegram.APIBase,
		BotToken: cfg.Telegram.BotToken,
		Timeout:  cfg.Telegram.Timeout(),
	})
	if err != nil {
		return err
	}
	alerts := newAlertDispatcher(cfg.Alerting, telegram)

	chatAgent, err := agent.New(resolver, wallets, engine, chains, reg,
		agent.WithBalanceConcurrency(cfg.Balances.Concurrency),
		agent.WithBalanceCacheTTL(cfg.Balances.CacheTTL()),
		agent.WithAlertDispatcher(alerts),
	)
	if err != nil {
		return err
	}
	defer chatAgent.Close()

	queue, err := openQueue(cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeQuietly("inbox", queue)

	processor := inbox.NewProcessor(chatAgent, telegram, queue,
		inbox.WithWorkerCount(cfg.Inbox.Workers),
		inbox.WithMessageTimeout(cfg.Inbox.MessageTimeout()),
		inbox.WithRateLimit(cfg.Inbox.RateLimit.PerSecond, cfg.Inbox.RateLimit.Burst),
		inbox.WithAlertDispatcher(alerts),
	)
	server := api.NewServer(cfg.Server, queue)

	log.Info("chatwalletd 启动",
		slog.String("wallet_store", cfg.Storage.Wallet.Driver),
		slog.String("lock", cfg.Storage.Lock.Driver),
		slog.String("inbox", cfg.Inbox.Driver),
		slog.String("classifier", cfg.Classifier.Provider),
		slog.Any("chains", chains.Chains()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return processor.Start(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("chatwalletd 已退出")
	return nil
}
