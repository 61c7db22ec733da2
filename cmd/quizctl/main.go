// quizctl is the operator CLI for a running quizchain server: configuration
// validation, preflight simulation, bypass control, and stuck-assessment
// recovery.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "quizctl",
	Short: "Operate and diagnose a quizchain deployment",
	Long: `quizctl talks to the admin API of a running quizchain server.

Typical stall triage:
  quizctl validate          # which configuration checks fail?
  quizctl preflight submit  # would this submission revert, and why?
  quizctl bypass off        # unblock users while config is repaired
  quizctl restart           # reset a stuck assessment`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("QUIZCHAIN_SERVER", "http://localhost:8080"), "base URL of the quizchain server")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("QUIZCHAIN_TOKEN"), "admin bearer token (from quizctl login)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(preflightCmd)
	rootCmd.AddCommand(capsCmd)
	rootCmd.AddCommand(bypassCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
