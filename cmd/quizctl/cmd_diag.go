package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quizchain/quizchain/internal/models"
)

// validateCmd runs every oracle configuration check and prints all failures.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run all oracle configuration checks and print every failure",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			OK            bool     `json:"ok"`
			FailedChecks  []string `json:"failed_checks"`
			Summary       string   `json:"summary"`
			OracleEnabled bool     `json:"oracle_enabled"`
			Height        uint64   `json:"height"`
		}
		if err := doRequest("GET", "/api/admin/validate", nil, &out); err != nil {
			return err
		}
		if out.OK {
			fmt.Println("configuration ready")
		} else {
			fmt.Println("configuration NOT ready; fix all of the following before retrying:")
			for _, c := range out.FailedChecks {
				fmt.Println("  -", c)
			}
		}
		fmt.Printf("oracle_enabled=%v height=%d\n", out.OracleEnabled, out.Height)
		return nil
	},
}

var (
	preflightUser    string
	preflightQuizID  string
	preflightAnswers string
	preflightActive  bool
	preflightEnabled bool
)

// preflightCmd simulates a ledger call and prints the decoded revert reason.
var preflightCmd = &cobra.Command{
	Use:   "preflight <submit|restart|set-active|set-use-oracle>",
	Short: "Simulate a ledger call and print the decoded revert reason, if any",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		call := models.Call{
			Caller:        models.NormalizeAddress(preflightUser),
			User:          models.NormalizeAddress(preflightUser),
			QuestionSetID: preflightQuizID,
			Active:        preflightActive,
			Enabled:       preflightEnabled,
		}
		switch args[0] {
		case "submit":
			call.Method = models.CallSubmitAnswers
			if preflightAnswers != "" {
				h, err := models.ParseHash32(preflightAnswers)
				if err != nil {
					return err
				}
				call.AnswersHash = h
			}
		case "restart":
			call.Method = models.CallRestart
		case "set-active":
			call.Method = models.CallSetActive
		case "set-use-oracle":
			call.Method = models.CallSetUseOracle
		default:
			return fmt.Errorf("unknown call %q", args[0])
		}
		var out struct {
			OK           bool     `json:"ok"`
			GasEstimate  uint64   `json:"gas_estimate"`
			RevertCode   string   `json:"revert_code"`
			RevertReason string   `json:"revert_reason"`
			FailedChecks []string `json:"failed_checks"`
			RawError     string   `json:"raw_error"`
		}
		if err := doRequest("POST", "/api/admin/preflight", call, &out); err != nil {
			return err
		}
		if out.OK {
			fmt.Printf("would succeed (gas estimate %d); advisory only, state may change before commit\n", out.GasEstimate)
			return nil
		}
		fmt.Printf("would revert: %s (%s)\n", out.RevertReason, out.RevertCode)
		for _, c := range out.FailedChecks {
			fmt.Println("  failed check:", c)
		}
		return nil
	},
}

// capsCmd prints the static capability manifest.
var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "List the callable ledger operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := doRequest("GET", "/api/admin/caps", nil, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	preflightCmd.Flags().StringVar(&preflightUser, "user", "", "caller/user address")
	preflightCmd.Flags().StringVar(&preflightQuizID, "question-set", "", "question set id")
	preflightCmd.Flags().StringVar(&preflightAnswers, "answers-hash", "", "answers hash (0x...)")
	preflightCmd.Flags().BoolVar(&preflightActive, "active", true, "target active flag for set-active")
	preflightCmd.Flags().BoolVar(&preflightEnabled, "enabled", true, "target flag for set-use-oracle")
}
