package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	auth "github.com/goliatone/go-tenant-auth"
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Issue an invitation code from a running service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if operatorSecret == "" {
			return errors.New("operator secret is required")
		}

		client := resty.New().
			SetBaseURL(endpoint).
			SetTimeout(10*time.Second).
			SetHeader("Accept", "application/json")

		var out auth.InvitationResponse
		var failure auth.ErrorResponse
		resp, err := client.R().
			SetContext(cmd.Context()).
			SetHeader(auth.OperatorHeader, operatorSecret).
			SetResult(&out).
			SetError(&failure).
			Post("/operator/invitations")
		if err != nil {
			return fmt.Errorf("failed to call service: %w", err)
		}

		if resp.IsError() {
			return fmt.Errorf("service rejected request (%d): %s", resp.StatusCode(), failure.Error.Message)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (expires in %s)\n", out.Code, time.Duration(out.ExpiresIn)*time.Second)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inviteCmd)
}
