package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/benvon/hawkeye-api/internal/config"
	"github.com/benvon/hawkeye-api/internal/ratelimit"
	"github.com/spf13/cobra"
)

// NewRatelimitCmd creates the ratelimit command with show and check subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect rate limit configuration",
		Long:  "Show the effective limiter settings or probe the shared Redis store.",
	}
	cmd.AddCommand(newRatelimitShowCmd())
	cmd.AddCommand(newRatelimitCheckCmd())
	return cmd
}

func newRatelimitShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective rate limit configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Rate limit configuration:")
			fmt.Fprintf(out, "  Store: %s\n", cfg.RateLimitStore)
			fmt.Fprintf(out, "  Max requests: %d\n", cfg.RateLimitMax)
			fmt.Fprintf(out, "  Window: %s\n", cfg.RateLimitWindow)
			if cfg.RateLimitStore == config.RateLimitStoreRedis {
				fmt.Fprintf(out, "  Redis: %s\n", redactURL(cfg.RedisURL))
			} else {
				fmt.Fprintf(out, "  Max clients: %d\n", cfg.RateLimitMaxClients)
				fmt.Fprintf(out, "  Sweep interval: %s\n", cfg.RateLimitSweepInterval)
			}
			return nil
		},
	}
}

func newRatelimitCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <client>",
		Short: "Count one request for a client against the Redis store",
		Long:  "Consumes one request from the client's current window in Redis and prints the decision.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			l, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitMax, cfg.RateLimitWindow)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			d, err := l.Check(ctx, args[0])
			if err != nil {
				return err
			}
			printDecision(cmd, args[0], d)
			return nil
		},
	}
}

func printDecision(cmd *cobra.Command, client string, d ratelimit.Decision) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Client: %s\n", client)
	fmt.Fprintf(out, "  Allowed: %t\n", d.Allowed)
	fmt.Fprintf(out, "  Remaining: %d/%d\n", d.Remaining, d.Limit)
	fmt.Fprintf(out, "  Resets: %s\n", d.ResetAt.UTC().Format(time.RFC3339))
	if !d.Allowed {
		fmt.Fprintf(out, "  Retry after: %ds\n", d.RetryAfter)
	}
}

// redactURL hides credentials embedded in a connection URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
