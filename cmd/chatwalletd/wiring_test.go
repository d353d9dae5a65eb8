package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"ChatWallet/internal/config"
	"ChatWallet/internal/inbox"
	"ChatWallet/internal/wallet"
)

func TestNeedsRedis(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Wallet.Driver = "postgres"
	cfg.Storage.Lock.Driver = "memory"
	cfg.Inbox.Driver = "rabbitmq"
	if needsRedis(cfg) {
		t.Fatalf("no component uses redis")
	}
	cfg.Storage.Lock.Driver = "redis"
	if !needsRedis(cfg) {
		t.Fatalf("redis locker requires a client")
	}
}

func TestMemoryWiring(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Wallet.Driver = "memory"
	cfg.Storage.Lock.Driver = "memory"
	cfg.Inbox.Driver = "memory"
	cfg.Inbox.Buffer = 8

	store, err := openWalletStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.(*wallet.MemoryStore); !ok {
		t.Fatalf("unexpected store %T", store)
	}
	if _, err := openLocker(cfg, nil); err != nil {
		t.Fatalf("open locker: %v", err)
	}
	queue, err := openQueue(cfg, nil)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	defer queue.Close()
	if _, ok := queue.(*inbox.MemoryQueue); !ok {
		t.Fatalf("unexpected queue %T", queue)
	}
}

func TestRedisWiringRequiresClient(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Wallet.Driver = "redis"
	cfg.Storage.Lock.Driver = "redis"
	if _, err := openWalletStore(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without redis client")
	}
	if _, err := openLocker(cfg, nil); err == nil {
		t.Fatalf("expected error without redis client")
	}
}

func TestRedisWiring(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Storage.Redis.Address = mr.Addr()
	cfg.Storage.Redis.KeyPrefix = "test"
	cfg.Storage.Wallet.Driver = "redis"
	cfg.Storage.Lock.Driver = "redis"
	cfg.Storage.Lock.TTLSeconds = 5
	cfg.Inbox.Driver = "redis"
	cfg.Inbox.Redis.Queue = "test:updates"
	cfg.Inbox.Redis.BlockWaitSeconds = 1

	client, err := openRedis(context.Background(), cfg.Storage.Redis)
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer client.Close()
	if _, err := openWalletStore(context.Background(), cfg, client); err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := openLocker(cfg, client); err != nil {
		t.Fatalf("open locker: %v", err)
	}
	queue, err := openQueue(cfg, client)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	if err := queue.Publish(context.Background(), inbox.Update{ChatID: "1", Text: "hi"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n, _ := mr.List("test:updates"); len(n) != 1 {
		t.Fatalf("expected one queued update, got %v", n)
	}
}

func TestClassifierSelection(t *testing.T) {
	cls, err := newClassifier(config.ClassifierConfig{Provider: "none"})
	if err != nil || cls != nil {
		t.Fatalf("none provider should yield no classifier: %v %v", cls, err)
	}
	if _, err := newClassifier(config.ClassifierConfig{Provider: "http"}); err == nil {
		t.Fatalf("http classifier without url should fail")
	}
	cls, err = newClassifier(config.ClassifierConfig{Provider: "http", URL: "http://127.0.0.1:9/analyze", TimeoutSeconds: 1})
	if err != nil || cls == nil {
		t.Fatalf("http classifier: %v", err)
	}
	if _, err := newClassifier(config.ClassifierConfig{Provider: "bogus"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}

func TestSeconds(t *testing.T) {
	if seconds(0) != 0 || seconds(3) != 3*time.Second {
		t.Fatalf("unexpected conversion")
	}
}
