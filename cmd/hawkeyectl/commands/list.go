package commands

import (
	"fmt"

	"github.com/benvon/hawkeye-api/internal/payment"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List metered routes",
		Long:  "List every paid route with its price in USD and USDC atomic units",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := table.NewWriter()
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Method", "Path", "Price", "Atomic", "Description"})

			routes := payment.DefaultRoutes()
			for _, rt := range routes {
				atomic, err := payment.AtomicAmount(rt.Price, payment.USDCDecimals)
				if err != nil {
					return fmt.Errorf("route %s %s: %w", rt.Method, rt.Path, err)
				}
				t.AppendRow(table.Row{rt.Method, rt.Path, rt.Price, atomic, rt.Description})
			}
			t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d metered routes", len(routes))})

			_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}
