package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ChatWallet/pkg/logger"
)

// Config 描述了 ChatWallet 在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Telegram   TelegramConfig   `json:"telegram"`
	Storage    StorageConfig    `json:"storage"`
	Inbox      InboxConfig      `json:"inbox"`
	Classifier ClassifierConfig `json:"classifier"`
	Aggregator AggregatorConfig `json:"aggregator"`
	Web3       Web3Config       `json:"web3"`
	Custody    CustodyConfig    `json:"custody"`
	Balances   BalancesConfig   `json:"balances"`
	Alerting   AlertingConfig   `json:"alerting"`
	Logging    logger.Config    `json:"logging"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制 Webhook 服务的监听地址等参数。
type ServerConfig struct {
	Address         string `json:"address"`
	WebhookPath     string `json:"webhook_path"`
	MetricsPath     string `json:"metrics_path"`
	SecretTokenEnv  string `json:"secret_token_env"`
	SecretToken     string `json:"-"`
	ShutdownSeconds int    `json:"shutdown_seconds"`
}

// TelegramConfig 描述出站 sendMessage 调用。
type TelegramConfig struct {
	APIBase        string `json:"api_base"`
	BotTokenEnv    string `json:"bot_token_env"`
	BotToken       string `json:"-"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回 Telegram 调用超时。
func (c TelegramConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// StorageConfig 统一描述钱包存储、会话锁和 Redis 连接。
type StorageConfig struct {
	Wallet WalletStoreConfig `json:"wallet"`
	Lock   LockConfig        `json:"lock"`
	Redis  RedisConfig       `json:"redis"`
}

// WalletStoreConfig 选择钱包存储驱动：memory、mysql、postgres 或 redis。
type WalletStoreConfig struct {
	Driver                 string `json:"driver"`
	DSNEnv                 string `json:"dsn_env"`
	DSN                    string `json:"-"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// LockConfig 选择会话锁实现：memory 为进程内锁，redis 为跨实例锁。
type LockConfig struct {
	Driver     string `json:"driver"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// TTL 返回分布式锁的租期。
func (c LockConfig) TTL() time.Duration {
	return seconds(c.TTLSeconds)
}

// RedisConfig 被 redis 存储、锁与队列共用。
type RedisConfig struct {
	Address     string `json:"address"`
	PasswordEnv string `json:"password_env"`
	Password    string `json:"-"`
	DB          int    `json:"db"`
	KeyPrefix   string `json:"key_prefix"`
}

// InboxConfig 描述入站更新队列以及处理器参数。
type InboxConfig struct {
	Driver                string          `json:"driver"`
	Buffer                int             `json:"buffer"`
	Workers               int             `json:"workers"`
	MessageTimeoutSeconds int             `json:"message_timeout_seconds"`
	Redis                 RedisQueue      `json:"redis"`
	RabbitMQ              RabbitMQQueue   `json:"rabbitmq"`
	RateLimit             RateLimitConfig `json:"rate_limit"`
}

// MessageTimeout 返回单条消息的处理期限。
func (c InboxConfig) MessageTimeout() time.Duration {
	return seconds(c.MessageTimeoutSeconds)
}

// RedisQueue 描述基于 Redis 列表的入站队列。
type RedisQueue struct {
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQQueue 描述 RabbitMQ 入站队列。
type RabbitMQQueue struct {
	URLEnv     string `json:"url_env"`
	URL        string `json:"-"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// RateLimitConfig 为单个会话限速。
type RateLimitConfig struct {
	PerSecond float64 `json:"per_second"`
	Burst     int     `json:"burst"`
}

// ClassifierConfig 配置自然语言意图分类器，provider 可选 http 或 openai。
type ClassifierConfig struct {
	Provider       string `json:"provider"`
	URLEnv         string `json:"url_env"`
	URL            string `json:"-"`
	APIKeyEnv      string `json:"api_key_env"`
	APIKey         string `json:"-"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回分类器调用超时。
func (c ClassifierConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// AggregatorConfig 配置兑换/跨链聚合器。
type AggregatorConfig struct {
	BaseURL         string `json:"base_url"`
	APIKeyEnv       string `json:"api_key_env"`
	APIKey          string `json:"-"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	QuoteTTLSeconds int    `json:"quote_ttl_seconds"`
}

// Timeout 返回聚合器调用超时。
func (c AggregatorConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// QuoteTTL 返回报价有效期。
func (c AggregatorConfig) QuoteTTL() time.Duration {
	return seconds(c.QuoteTTLSeconds)
}

// Web3Config 包含注册表覆盖文件与 RPC 访问参数。
type Web3Config struct {
	RegistryConfig    string `json:"registry_config"`
	RPCTimeoutSeconds int    `json:"rpc_timeout_seconds"`
}

// RPCTimeout 返回链上调用超时。
func (c Web3Config) RPCTimeout() time.Duration {
	return seconds(c.RPCTimeoutSeconds)
}

// CustodyConfig 描述托管密钥库位置与口令来源。
type CustodyConfig struct {
	KeystoreDir   string `json:"keystore_dir"`
	PassphraseEnv string `json:"passphrase_env"`
	Passphrase    string `json:"-"`
	LightScrypt   bool   `json:"light_scrypt"`
}

// BalancesConfig 控制余额查询的并发度与缓存时间。
type BalancesConfig struct {
	Concurrency     int `json:"concurrency"`
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// CacheTTL 返回余额缓存时间。
func (c BalancesConfig) CacheTTL() time.Duration {
	return seconds(c.CacheTTLSeconds)
}

// AlertingConfig 配置运维告警，OpsChatID 为 0 时只写审计日志。
type AlertingConfig struct {
	OpsChatID int64 `json:"ops_chat_id"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件，并从环境变量解析密钥。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.resolveSecrets(os.Getenv)

	return &cfg, nil
}

// Validate 检查启动服务所必需的配置项。
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.BotToken == "" {
		errs = append(errs, fmt.Errorf("环境变量 %s 未设置 Telegram bot token", c.Telegram.BotTokenEnv))
	}
	if c.Custody.Passphrase == "" {
		errs = append(errs, fmt.Errorf("环境变量 %s 未设置密钥库口令", c.Custody.PassphraseEnv))
	}
	switch c.Storage.Wallet.Driver {
	case "memory", "redis":
	case "mysql", "postgres":
		if c.Storage.Wallet.DSN == "" {
			errs = append(errs, fmt.Errorf("钱包存储 %s 需要通过 %s 提供 DSN", c.Storage.Wallet.Driver, c.Storage.Wallet.DSNEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的钱包存储驱动: %s", c.Storage.Wallet.Driver))
	}
	switch c.Storage.Lock.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("未知的会话锁驱动: %s", c.Storage.Lock.Driver))
	}
	if c.Storage.Lock.TTL() <= c.Inbox.MessageTimeout() {
		errs = append(errs, fmt.Errorf("会话锁租期 %s 必须大于消息处理期限 %s", c.Storage.Lock.TTL(), c.Inbox.MessageTimeout()))
	}
	switch c.Inbox.Driver {
	case "memory", "redis":
	case "rabbitmq":
		if c.Inbox.RabbitMQ.URL == "" {
			errs = append(errs, fmt.Errorf("rabbitmq 队列需要通过 %s 提供连接地址", c.Inbox.RabbitMQ.URLEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的队列驱动: %s", c.Inbox.Driver))
	}
	switch c.Classifier.Provider {
	case "http":
		if c.Classifier.URL == "" {
			errs = append(errs, fmt.Errorf("http 分类器需要通过 %s 提供地址", c.Classifier.URLEnv))
		}
	case "openai":
		if c.Classifier.APIKey == "" {
			errs = append(errs, fmt.Errorf("openai 分类器需要通过 %s 提供 API Key", c.Classifier.APIKeyEnv))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("未知的分类器 provider: %s", c.Classifier.Provider))
	}
	if strings.TrimSpace(c.Aggregator.BaseURL) == "" {
		errs = append(errs, errors.New("未配置聚合器地址"))
	}
	return errors.Join(errs...)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = "/webhook"
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if c.Server.SecretTokenEnv == "" {
		c.Server.SecretTokenEnv = "TELEGRAM_WEBHOOK_SECRET"
	}
	if c.Server.ShutdownSeconds <= 0 {
		c.Server.ShutdownSeconds = 10
	}

	if c.Telegram.APIBase == "" {
		c.Telegram.APIBase = "https://api.telegram.org"
	}
	if c.Telegram.BotTokenEnv == "" {
		c.Telegram.BotTokenEnv = "TELEGRAM_BOT_TOKEN"
	}
	if c.Telegram.TimeoutSeconds <= 0 {
		c.Telegram.TimeoutSeconds = 5
	}

	if c.Storage.Wallet.Driver == "" {
		c.Storage.Wallet.Driver = "memory"
	}
	if c.Storage.Wallet.DSNEnv == "" {
		c.Storage.Wallet.DSNEnv = "WALLET_DSN"
	}
	if c.Storage.Lock.Driver == "" {
		c.Storage.Lock.Driver = "memory"
	}
	if c.Storage.Lock.TTLSeconds <= 0 {
		c.Storage.Lock.TTLSeconds = 60
	}
	if c.Storage.Redis.Address == "" {
		c.Storage.Redis.Address = "127.0.0.1:6379"
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "chatwallet"
	}

	if c.Inbox.Driver == "" {
		c.Inbox.Driver = "memory"
	}
	if c.Inbox.Buffer <= 0 {
		c.Inbox.Buffer = 1024
	}
	if c.Inbox.Workers <= 0 {
		c.Inbox.Workers = 4
	}
	if c.Inbox.MessageTimeoutSeconds <= 0 {
		c.Inbox.MessageTimeoutSeconds = 30
	}
	if c.Inbox.Redis.Queue == "" {
		c.Inbox.Redis.Queue = "chatwallet:updates"
	}
	if c.Inbox.Redis.BlockWaitSeconds <= 0 {
		c.Inbox.Redis.BlockWaitSeconds = 5
	}
	if c.Inbox.RabbitMQ.URLEnv == "" {
		c.Inbox.RabbitMQ.URLEnv = "RABBITMQ_URL"
	}
	if c.Inbox.RabbitMQ.Queue == "" {
		c.Inbox.RabbitMQ.Queue = "chatwallet.updates"
	}
	if c.Inbox.RateLimit.PerSecond <= 0 {
		c.Inbox.RateLimit.PerSecond = 1
	}
	if c.Inbox.RateLimit.Burst <= 0 {
		c.Inbox.RateLimit.Burst = 5
	}

	if c.Classifier.Provider == "" {
		c.Classifier.Provider = "http"
	}
	if c.Classifier.URLEnv == "" {
		c.Classifier.URLEnv = "CLASSIFIER_URL"
	}
	if c.Classifier.APIKeyEnv == "" {
		c.Classifier.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "gpt-4o-mini"
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = 5
	}

	if c.Aggregator.APIKeyEnv == "" {
		c.Aggregator.APIKeyEnv = "AGGREGATOR_API_KEY"
	}
	if c.Aggregator.TimeoutSeconds <= 0 {
		c.Aggregator.TimeoutSeconds = 10
	}
	if c.Aggregator.QuoteTTLSeconds <= 0 {
		c.Aggregator.QuoteTTLSeconds = 300
	}

	if c.Web3.RPCTimeoutSeconds <= 0 {
		c.Web3.RPCTimeoutSeconds = 10
	}
	if c.Web3.RegistryConfig != "" && !filepath.IsAbs(c.Web3.RegistryConfig) {
		c.Web3.RegistryConfig = filepath.Join(baseDir, c.Web3.RegistryConfig)
	}

	if c.Balances.Concurrency <= 0 {
		c.Balances.Concurrency = 4
	}
	if c.Balances.CacheTTLSeconds <= 0 {
		c.Balances.CacheTTLSeconds = 15
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Custody.PassphraseEnv == "" {
		c.Custody.PassphraseEnv = "KEYSTORE_PASSPHRASE"
	}
	if c.Custody.KeystoreDir == "" {
		c.Custody.KeystoreDir = filepath.Join(c.Runtime.DataDir, "keystore")
	} else if !filepath.IsAbs(c.Custody.KeystoreDir) {
		c.Custody.KeystoreDir = filepath.Join(baseDir, c.Custody.KeystoreDir)
	}
}

// resolveSecrets 按 *_env 字段读取密钥，密钥从不写入配置文件。
func (c *Config) resolveSecrets(getenv func(string) string) {
	lookup := func(name string) string {
		if name == "" {
			return ""
		}
		return strings.TrimSpace(getenv(name))
	}
	c.Server.SecretToken = lookup(c.Server.SecretTokenEnv)
	c.Telegram.BotToken = lookup(c.Telegram.BotTokenEnv)
	c.Storage.Wallet.DSN = lookup(c.Storage.Wallet.DSNEnv)
	c.Storage.Redis.Password = lookup(c.Storage.Redis.PasswordEnv)
	c.Inbox.RabbitMQ.URL = lookup(c.Inbox.RabbitMQ.URLEnv)
	c.Classifier.URL = lookup(c.Classifier.URLEnv)
	c.Classifier.APIKey = lookup(c.Classifier.APIKeyEnv)
	c.Aggregator.APIKey = lookup(c.Aggregator.APIKeyEnv)
	c.Custody.Passphrase = lookup(c.Custody.PassphraseEnv)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
