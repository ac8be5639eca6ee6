package main

import (
	"context"
	"strings"

	"github.com/goliatone/go-shopinstall/adapters/viperconfig"
	"github.com/goliatone/go-shopinstall/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"
)

type rootOptions struct {
	loader     *viperconfig.Loader
	configFile string
	envFile    string
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	opts := &rootOptions{loader: viperconfig.New(viper.New())}

	cmd := &cobra.Command{
		Use:           "shopinstall",
		Short:         "shopinstall serves the Shopify app install handshake (install redirect and OAuth callback)",
		SilenceErrors: true,
		Example: `
  # Legacy environment names are honoured
  BASE_URL=https://app.example.com SHOPIFY_API_KEY=... SHOPIFY_API_SECRET=... SHOPIFY_SCOPES=read_products shopinstall

  # Persist pending installs in sqlite and expose metrics
  shopinstall --store-driver sqlite3 --store-dsn file:/var/lib/shopinstall/state.db --metrics

  # Print the resolved configuration with secrets redacted
  shopinstall config
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), baseLogger, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	if err := opts.loader.RegisterFlags(flags); err != nil {
		panic(err)
	}
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with KEY=VALUE pairs")

	cmd.AddCommand(newServeCommand(baseLogger, opts))
	cmd.AddCommand(newConfigCommand(opts))
	return cmd
}

// resolve layers defaults, config file, dotenv, environment and flags and
// validates the result.
func (o *rootOptions) resolve(cmd *cobra.Command) (core.Config, error) {
	if err := o.loader.ReadConfigFile(o.configFile); err != nil {
		return core.Config{}, err
	}
	envFileRequired := false
	if flag := cmd.Flags().Lookup("env-file"); flag != nil {
		envFileRequired = flag.Changed
	}
	if err := o.loader.ReadDotEnv(o.envFile, envFileRequired); err != nil {
		return core.Config{}, err
	}
	return resolveConfig(cmd.Context(), o.loader)
}

func resolveConfig(ctx context.Context, loader core.RawConfigLoader) (core.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(loader).Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}
	cfg, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, core.Config{})
	if err != nil {
		return core.Config{}, err
	}
	cfg.Store.Driver = strings.TrimSpace(cfg.Store.Driver)
	return cfg, nil
}
