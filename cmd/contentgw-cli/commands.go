package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	contentgw "github.com/connectlist/contentgw"
	"github.com/connectlist/contentgw/internal/durable"
	"github.com/connectlist/contentgw/internal/version"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := contentgw.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := contentgw.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Config is valid")
			fmt.Fprintf(out, "  Port:       %d\n", cfg.Server.Port)
			fmt.Fprintf(out, "  Hot tier:   %d entries, ttl %s\n", cfg.Cache.Hot.Capacity, cfg.Cache.Hot.TTL)
			fmt.Fprintf(out, "  Durable:    %s, ttl %s\n", cfg.Cache.Durable.Backend, cfg.Cache.Durable.TTL)

			names := make([]string, 0, len(cfg.Providers))
			for _, p := range cfg.Providers {
				names = append(names, p.Name)
			}
			if len(names) == 0 {
				names = append(names, "(none)")
			}
			fmt.Fprintf(out, "  Providers:  %s\n", strings.Join(names, ", "))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch output {
			case "", "text":
				fmt.Fprintf(cmd.OutOrStdout(), "contentgw-cli %s\n", version.String())
				return nil
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.Info())
			default:
				return fmt.Errorf("unknown output format %q (want text or json)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: text or json")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List content types and the provider serving each",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			for _, ct := range contentgw.ContentTypes() {
				fmt.Fprintf(out, "  %-10s %s\n", ct, ct.Provider())
			}
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a content type through the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := contentgw.ParseContentType(contentType)
			if err != nil {
				return err
			}
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			value, err := svc.TrySearch(cmd.Context(), strings.Join(args, " "), ct)
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), value)
		},
	}
	cmd.Flags().StringVarP(&contentType, "type", "t", string(contentgw.Movies), "content type")
	return cmd
}

func newDetailsCmd(opts *rootOptions) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "details <id>",
		Short: "Fetch the full record for an id through the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := contentgw.ParseContentType(contentType)
			if err != nil {
				return err
			}
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			value, err := svc.GetDetails(cmd.Context(), ct, args[0])
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), value)
		},
	}
	cmd.Flags().StringVarP(&contentType, "type", "t", string(contentgw.Movies), "content type")
	return cmd
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired rows from the durable cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := contentgw.OpenStore(cfg.Cache.Durable)
			if err != nil {
				return err
			}
			defer store.Close()
			return purge(cmd, store, cfg.Cache.Durable.Backend)
		},
	}
}

var errNoPurge = errors.New("backend expires records on its own")

func purge(cmd *cobra.Command, store durable.Store, backend contentgw.DurableBackend) error {
	p, ok := store.(durable.Purger)
	if !ok {
		return fmt.Errorf("purge %s: %w", backend, errNoPurge)
	}
	n, err := p.DeleteExpired(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired record(s)\n", n)
	return nil
}

func writeIndented(w io.Writer, value json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, value, "", "  "); err != nil {
		_, err = w.Write(value)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
