package main

import (
	"fmt"
	"os"

	"github.com/benvon/hawkeye-api/cmd/hawkeyectl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "hawkeyectl",
		Short:         "Operator tool for the Hawkeye Agent API",
		Long:          "Run the contract scanner locally, verify agent identities and inspect rate limiting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewScanCmd())
	rootCmd.AddCommand(commands.NewVerifyCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewListCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
