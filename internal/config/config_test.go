package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsAndResolvesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatwallet.json")
	content := `{
  "storage": {"wallet": {"driver": "postgres", "dsn_env": "TEST_WALLET_DSN"}},
  "web3": {"registry_config": "registry.yaml"},
  "aggregator": {"base_url": "https://aggregator.example"}
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TELEGRAM_BOT_TOKEN", " 123:abc ")
	t.Setenv("TEST_WALLET_DSN", "host=localhost dbname=chatwallet")
	t.Setenv("KEYSTORE_PASSPHRASE", "correct horse")
	t.Setenv("CLASSIFIER_URL", "http://classifier.local/classify")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Address != ":8080" || cfg.Server.WebhookPath != "/webhook" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Telegram.BotToken != "123:abc" {
		t.Fatalf("bot token not resolved: %q", cfg.Telegram.BotToken)
	}
	if cfg.Storage.Wallet.DSN != "host=localhost dbname=chatwallet" {
		t.Fatalf("dsn not resolved: %q", cfg.Storage.Wallet.DSN)
	}
	if got := cfg.Classifier.Timeout(); got != 5*time.Second {
		t.Fatalf("classifier timeout = %s", got)
	}
	if got := cfg.Aggregator.QuoteTTL(); got != 5*time.Minute {
		t.Fatalf("quote ttl = %s", got)
	}
	if cfg.Web3.RegistryConfig != filepath.Join(dir, "registry.yaml") {
		t.Fatalf("registry path not anchored to config dir: %s", cfg.Web3.RegistryConfig)
	}
	if cfg.Custody.KeystoreDir != filepath.Join(dir, "data", "keystore") {
		t.Fatalf("unexpected keystore dir: %s", cfg.Custody.KeystoreDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateReportsMissingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults(t.TempDir())
	cfg.Storage.Wallet.Driver = "mysql"
	cfg.resolveSecrets(func(string) string { return "" })

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"TELEGRAM_BOT_TOKEN", "KEYSTORE_PASSPHRASE", "WALLET_DSN", "CLASSIFIER_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error should mention %s: %v", want, err)
		}
	}
}

func TestValidateRequiresLockToOutliveMessageDeadline(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults(t.TempDir())
	cfg.resolveSecrets(func(string) string { return "x" })
	cfg.Aggregator.BaseURL = "https://aggregator.example"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	for _, ttl := range []int{cfg.Inbox.MessageTimeoutSeconds, cfg.Inbox.MessageTimeoutSeconds - 1} {
		cfg.Storage.Lock.TTLSeconds = ttl
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "会话锁租期") {
			t.Fatalf("lock ttl %ds should be rejected: %v", ttl, err)
		}
	}
}

func TestLoadDotEnvSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("CHATWALLET_DOTENV_MARKER=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("CHATWALLET_DOTENV_MARKER") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("CHATWALLET_DOTENV_MARKER"); got != "loaded" {
		t.Fatalf("dotenv value = %q", got)
	}
}
