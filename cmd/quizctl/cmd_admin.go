package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// bypassCmd flips the oracle flag. "off" is the escape hatch when the oracle
// configuration is broken: submissions complete immediately with a
// placeholder score until the flag is turned back on.
var bypassCmd = &cobra.Command{
	Use:   "bypass <on|off>",
	Short: "Enable or disable oracle verification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("argument must be on or off, got %q", args[0])
		}
		var out struct {
			OracleEnabled bool `json:"oracle_enabled"`
		}
		if err := doRequest("POST", "/api/admin/bypass", map[string]bool{"enabled": enabled}, &out); err != nil {
			return err
		}
		fmt.Printf("oracle_enabled=%v\n", out.OracleEnabled)
		return nil
	},
}

var (
	restartUser   string
	restartQuizID string
)

// restartCmd resets a user's assessment, invalidating any outstanding
// verification request. Used to unstick assessments parked in verifying.
var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Reset a user's assessment to not-started",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{
			"user":            restartUser,
			"question_set_id": restartQuizID,
		}
		var out map[string]any
		if err := doRequest("POST", "/api/admin/restart", body, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var (
	cfgNetworkID      string
	cfgSubscriptionID uint64
	cfgOracleAddress  string
	cfgScript         string
	cfgCallers        []string
)

// configCmd shows or replaces the oracle configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update the oracle configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := doRequest("GET", "/api/admin/oracle-config", nil, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the oracle configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"network_id":         cfgNetworkID,
			"subscription_id":    cfgSubscriptionID,
			"oracle_address":     cfgOracleAddress,
			"evaluation_script":  cfgScript,
			"authorized_callers": cfgCallers,
		}
		var out map[string]any
		if err := doRequest("POST", "/api/admin/oracle-config", body, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	restartCmd.Flags().StringVar(&restartUser, "user", "", "user address")
	restartCmd.Flags().StringVar(&restartQuizID, "question-set", "", "question set id")
	_ = restartCmd.MarkFlagRequired("user")
	_ = restartCmd.MarkFlagRequired("question-set")

	configSetCmd.Flags().StringVar(&cfgNetworkID, "network-id", "", "oracle network id (0x...)")
	configSetCmd.Flags().Uint64Var(&cfgSubscriptionID, "subscription-id", 0, "billing subscription id")
	configSetCmd.Flags().StringVar(&cfgOracleAddress, "oracle-address", "", "oracle endpoint address")
	configSetCmd.Flags().StringVar(&cfgScript, "script", "", "evaluation script source")
	configSetCmd.Flags().StringSliceVar(&cfgCallers, "authorize", nil, "authorized caller address (repeatable)")
	configCmd.AddCommand(configSetCmd)
}
