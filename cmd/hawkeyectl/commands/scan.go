package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/benvon/hawkeye-api/internal/scanner"
	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command
func NewScanCmd() *cobra.Command {
	var rulesPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan <file|->",
		Short: "Scan contract source for risky patterns",
		Long:  "Run the heuristic security scanner against a file, or stdin when the argument is '-'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := scanner.Default()
			if rulesPath != "" {
				data, err := os.ReadFile(rulesPath)
				if err != nil {
					return fmt.Errorf("failed to read rules: %w", err)
				}
				rules, err := scanner.ParseRules(data)
				if err != nil {
					return err
				}
				if s, err = scanner.New(rules); err != nil {
					return err
				}
			}

			src, err := readSource(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			report := s.Scan(src)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			for _, issue := range report.Issues {
				fmt.Fprintf(out, "[%s] %s\n", issue.Severity, issue.Issue)
			}
			fmt.Fprintln(out, report.Summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML rule file replacing the built-in rules")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func readSource(stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return string(data), nil
}
