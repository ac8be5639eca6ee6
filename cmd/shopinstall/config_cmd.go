package main

import (
	"fmt"

	"github.com/goliatone/go-shopinstall/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(configDocument(cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func configDocument(cfg core.Config) map[string]any {
	redacted := cfg.Redacted()
	return map[string]any{
		"service_name":  redacted.ServiceName,
		"base_url":      redacted.BaseURL,
		"callback_path": redacted.CallbackPath,
		"redirect_uri":  redacted.RedirectURI(),
		"credentials": map[string]any{
			"client_id":     redacted.Credentials.ClientID,
			"client_secret": redacted.Credentials.ClientSecret,
			"scopes":        redacted.Credentials.Scopes,
		},
		"shop": map[string]any{
			"domain_suffixes": redacted.Shop.DomainSuffixes,
			"access_mode":     redacted.Shop.AccessMode,
		},
		"state": map[string]any{
			"ttl":         redacted.State.TTL.String(),
			"cookie_name": redacted.State.CookieName,
		},
		"exchange": map[string]any{"timeout": redacted.Exchange.Timeout.String()},
		"callback": map[string]any{"max_age": redacted.Callback.MaxAge.String()},
		"http": map[string]any{
			"listen":  redacted.HTTP.Listen,
			"metrics": redacted.HTTP.Metrics,
		},
		"store": map[string]any{
			"driver": redacted.Store.Driver,
			"dsn":    redacted.Store.DSN,
		},
	}
}
