package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benvon/hawkeye-api/internal/chain"
	"github.com/benvon/hawkeye-api/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <agentId>",
		Short: "Check an agent ID against the identity registry",
		Long:  "Run one registry lookup with CHAIN_RPC_URL, REGISTRY_ADDRESS and CHAIN_TIMEOUT from the environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			v, err := chain.Dial(ctx, cfg.ChainRPCURL, common.HexToAddress(cfg.RegistryAddress), cfg.ChainNetwork,
				chain.WithTimeout(cfg.ChainTimeout))
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", cfg.ChainRPCURL, err)
			}
			defer v.Close()

			result, err := v.Verify(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
