package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ChatWallet/internal/registry"
	"ChatWallet/internal/web3/provider"
)

func newRegistryCmd(configPath *string) *cobra.Command {
	var ping bool
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "List configured chains and tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			reg, err := registry.Load(cfg.Web3.RegistryConfig)
			if err != nil {
				return err
			}

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(out, "CHAIN\tID\tNATIVE\tTOKENS")
			for _, chain := range reg.Chains() {
				tokens := reg.TokensOn(chain.ID)
				symbols := make([]string, 0, len(tokens))
				for _, token := range tokens {
					symbols = append(symbols, token.Symbol)
				}
				fmt.Fprintf(out, "%s\t%d\t%s\t%v\n", chain.Name, chain.ID, chain.NativeSymbol, symbols)
			}
			if err := out.Flush(); err != nil {
				return err
			}
			if !ping {
				return nil
			}

			chains, err := provider.NewRegistry(cmd.Context(), reg, cfg.Web3.RPCTimeout())
			if err != nil {
				return err
			}
			defer chains.Close()
			for _, id := range chains.Chains() {
				client, _ := chains.Client(id)
				snapshot, err := client.Snapshot(cmd.Context())
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: unreachable (%v)\n", reg.ChainName(id), err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: block %d\n", reg.ChainName(id), snapshot.BlockNumber)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ping, "ping", false, "query each RPC endpoint for its latest block")
	return cmd
}
