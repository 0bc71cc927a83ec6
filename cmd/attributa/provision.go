package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/attributa/attributa/internal/config"
	"github.com/attributa/attributa/internal/logging"
	"github.com/attributa/attributa/internal/provision"
)

var (
	provisionCompany          string
	provisionConnectorType    string
	provisionExternalAccount  string
	provisionExtraJSON        string
	provisionCredentialKeys   []string
	provisionCredentialsStdin bool
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision a connector from the command line.",
	Long: `Provision a connector from the command line.

Credentials are read from stdin as a JSON object (--credentials-stdin), or
prompted for interactively with --credential KEY, one prompt per key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProvision(cmd)
	},
}

func init() {
	provisionCmd.Flags().StringVar(&provisionCompany, "company", "", "company id the connector belongs to")
	provisionCmd.Flags().StringVar(&provisionConnectorType, "connector-type", "", "connector type (bingads, googleads, marketo, mixpanel)")
	provisionCmd.Flags().StringVar(&provisionExternalAccount, "external-account-id", "", "account id at the external platform")
	provisionCmd.Flags().StringVar(&provisionExtraJSON, "extra", "", "extra connector information as a JSON object")
	provisionCmd.Flags().StringArrayVar(&provisionCredentialKeys, "credential", nil, "credential key to prompt for (repeatable)")
	provisionCmd.Flags().BoolVar(&provisionCredentialsStdin, "credentials-stdin", false, "read the credentials JSON object from stdin")
	_ = provisionCmd.MarkFlagRequired("company")
	_ = provisionCmd.MarkFlagRequired("connector-type")
	_ = provisionCmd.MarkFlagRequired("external-account-id")
}

func runProvision(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.Bootstrap(io.Discard, cmd.CommandPath())
	if err != nil {
		return err
	}

	credentials, err := collectCredentials(cmd)
	if err != nil {
		return err
	}

	var extra json.RawMessage
	if provisionExtraJSON != "" {
		if !json.Valid([]byte(provisionExtraJSON)) {
			return errors.New("--extra must be a valid JSON object")
		}
		extra = json.RawMessage(provisionExtraJSON)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	id, err := app.saga.Provision(ctx, provision.Request{
		CompanyID:         provisionCompany,
		ConnectorType:     provisionConnectorType,
		ExternalAccountID: provisionExternalAccount,
		Credentials:       credentials,
		ExtraInformation:  extra,
	})
	if err != nil {
		var postErr *provision.PostProvisionError
		if errors.As(err, &postErr) {
			cmd.Printf("connector %s created\n", postErr.ConnectorID)
			cmd.Printf("warning: initial setup incomplete: %v\n", postErr.Err)
			return nil
		}
		return err
	}

	cmd.Printf("connector %s created\n", id)
	return nil
}

func collectCredentials(cmd *cobra.Command) (map[string]any, error) {
	if provisionCredentialsStdin {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		var credentials map[string]any
		if err := json.Unmarshal(raw, &credentials); err != nil {
			return nil, fmt.Errorf("credentials stdin is not a JSON object: %w", err)
		}
		if len(credentials) == 0 {
			return nil, errors.New("credentials object is empty")
		}
		return credentials, nil
	}

	if len(provisionCredentialKeys) == 0 {
		return nil, errors.New("no credentials provided (use --credentials-stdin or --credential KEY)")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("--credential prompts need a terminal (use --credentials-stdin instead)")
	}

	credentials := make(map[string]any, len(provisionCredentialKeys))
	for _, key := range provisionCredentialKeys {
		cmd.Printf("%s: ", key)
		value, err := term.ReadPassword(int(os.Stdin.Fd()))
		cmd.Println()
		if err != nil {
			return nil, err
		}
		if len(value) == 0 {
			return nil, fmt.Errorf("credential %s is empty", key)
		}
		credentials[key] = string(value)
	}
	return credentials, nil
}
