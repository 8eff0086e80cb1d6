package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/vspherebroker/config"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without contacting vCenter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context(), opts.v, opts.configFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration ok")
			fmt.Fprintf(out, "  vcenter:       %s (api mode %s)\n", cfg.VCenter.Host, cfg.VCenter.APIMode)
			fmt.Fprintf(out, "  allowed hosts: %s\n", strings.Join(cfg.VCenter.AllowedHosts, ", "))
			fmt.Fprintf(out, "  enforce auth:  %t\n", cfg.Auth.Enforce)
			fmt.Fprintf(out, "  tokens:        %d\n", len(cfg.Auth.Tokens))
			fmt.Fprintf(out, "  roles:         %s\n", strings.Join(sortedKeys(cfg.Auth.Roles), ", "))
			fmt.Fprintf(out, "  destructive:   %s\n", strings.Join(cfg.Auth.Destructive, ", "))
			if cfg.RateLimit.Enabled {
				fmt.Fprintf(out, "  rate limit:    %g/s burst %d\n", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
			} else {
				fmt.Fprintln(out, "  rate limit:    off")
			}
			fmt.Fprintf(out, "  listen:        %s%s\n", cfg.Addr(), cfg.Server.MCPPath)
			return nil
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
