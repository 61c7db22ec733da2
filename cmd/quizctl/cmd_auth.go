package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

// loginCmd exchanges operator credentials for a bearer token.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain an admin bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"email": loginEmail, "password": loginPassword}
		var out struct {
			Token  string `json:"token"`
			UserID string `json:"user_id"`
		}
		if err := doRequest("POST", "/api/auth/login", body, &out); err != nil {
			return err
		}
		fmt.Println(out.Token)
		fmt.Fprintf(cmd.ErrOrStderr(), "export QUIZCHAIN_TOKEN=%s\n", out.Token)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "operator email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "operator password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
}
