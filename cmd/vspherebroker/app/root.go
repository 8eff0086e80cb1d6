// Package app holds the vspherebroker commands.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonwraymond/vspherebroker/config"
)

// Version is set at build time with -ldflags "-X ...app.Version=...".
var Version = "dev"

// options is the state shared by the commands of one root.
type options struct {
	v          *viper.Viper
	configFile string
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	opts := &options{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "vspherebroker",
		Short: "Secure vCenter access broker for MCP clients",
		Long: `vspherebroker exposes a fixed catalog of vCenter operations as MCP tools.

Every call is authorized against a token-to-role table, rate limited per
identity, confined to an allow-list of vCenter hosts and written to an
audit log. Destructive operations require confirm=true.

Configuration comes from an optional file (--config) and the environment
(VCENTER_HOST, VCENTER_USER, VCENTER_PASSWORD, TOKENS_TO_ROLES, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML, JSON or TOML configuration file")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newToolsCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// bindFlag routes a flag to the config key at path when the flag is set.
func (o *options) bindFlag(flags *pflag.FlagSet, name, path string) {
	_ = o.v.BindPFlag(config.Key(path), flags.Lookup(name))
}
