package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/listing-sync/internal/api"
	"github.com/sells-group/listing-sync/internal/credential"
)

var validateCookie credentialSource

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a session cookie offline without rendering anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("validate"); err != nil {
			return err
		}
		raw, err := validateCookie.read(cmd.InOrStdin())
		if err != nil {
			return err
		}

		d := credential.NewValidator(credentialRules(cfg.Credential)).Validate(raw)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(api.CredentialResponse(d, time.Now()))
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateCookie.env, "cookie-env", defaultCookieEnv, "environment variable holding the session cookie")
	validateCmd.Flags().BoolVar(&validateCookie.stdin, "cookie-stdin", false, "read the session cookie from stdin")
	rootCmd.AddCommand(validateCmd)
}
