package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

// main 是 chatwalletd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatalf("chatwalletd 运行失败: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "chatwalletd",
		Short:         "Custodial chat wallet served over a Telegram webhook",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the JSON config file")

	serveCmd := newServeCmd(&configPath)
	rootCmd.RunE = serveCmd.RunE
	rootCmd.AddCommand(
		serveCmd,
		newMigrateCmd(&configPath),
		newRegistryCmd(&configPath),
	)
	return rootCmd
}

func defaultConfigPath() string {
	if path := os.Getenv("CHATWALLET_CONFIG"); path != "" {
		return path
	}
	return filepath.Join("configs", "chatwallet.json")
}
