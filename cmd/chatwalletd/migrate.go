package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ChatWallet/internal/storage/mysql"
	"ChatWallet/internal/storage/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the wallet schema to the configured SQL store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store := cfg.Storage.Wallet
			switch store.Driver {
			case "mysql":
				db, err := mysql.Open(ctx, mysqlConfig(store))
				if err != nil {
					return err
				}
				defer db.Close()
				applied, err := mysql.Migrate(ctx, db)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					return nil
				}
				for _, version := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
				}
				return nil
			case "postgres":
				// Open 已经执行 AutoMigrate。
				pg, err := postgres.Open(ctx, postgresConfig(store))
				if err != nil {
					return err
				}
				defer pg.Close()
				fmt.Fprintln(cmd.OutOrStdout(), "wallets table synchronised")
				return nil
			default:
				return fmt.Errorf("钱包存储 %s 无需迁移", store.Driver)
			}
		},
	}
}
