// Package main provides contentgw-cli, the command-line tool for validating
// contentgw configuration, running one-off lookups and maintaining the
// durable cache.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	contentgw "github.com/connectlist/contentgw"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "contentgw-cli",
		Short:         "contentgw command line tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONTENTGW_CONFIG"),
		"config file (JSON/YAML); environment variables are used when empty")

	root.AddCommand(
		newValidateCmd(),
		newVersionCmd(),
		newProvidersCmd(),
		newSearchCmd(opts),
		newDetailsCmd(opts),
		newPurgeCmd(opts),
	)
	return root
}

// load returns the validated config named by --config, or the environment
// config when no file is given.
func (o *rootOptions) load() (contentgw.Config, error) {
	var cfg contentgw.Config
	if o.configPath != "" {
		loaded, err := contentgw.LoadConfig(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
	} else {
		cfg = contentgw.ConfigFromEnv(os.Getenv)
	}
	if err := contentgw.ValidateConfig(cfg); err != nil {
		return cfg, fmt.Errorf("validation error: %w", err)
	}
	return cfg, nil
}

// openService builds a Service with its durable store and every configured
// provider registered. The caller closes it.
func (o *rootOptions) openService() (*contentgw.Service, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	store, err := contentgw.OpenStore(cfg.Cache.Durable)
	if err != nil {
		return nil, err
	}
	svc, err := contentgw.New(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := svc.RegisterConfiguredProviders(nil); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}
