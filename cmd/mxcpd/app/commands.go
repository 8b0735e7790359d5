package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raw-labs/mxcp/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:               "mxcpd",
	DisableAutoGenTag: true,
	Short:             "Serve declared endpoints over MCP",
	Long: `mxcpd loads tool/resource/prompt endpoints declared as YAML, validates and
coerces their inputs and outputs against a restricted JSON-Schema type
system, gates and redacts them with an expression-driven policy engine,
executes them against an embedded SQL session or host-language code, and
records every invocation in an append-only audit log.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("displaying help: %v", err)
		}
	},
}

// NewRootCmd builds the mxcpd root command, binding the environment
// selectors of spec §6.6 to persistent flags the way cmd/vmcp/app's
// NewRootCmd binds --debug/--config.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("profile", "default", "Site config profile to activate")
	rootCmd.PersistentFlags().Bool("read-only", false, "Force the SQL session read-only regardless of profile")
	rootCmd.PersistentFlags().Bool("disable-analytics", false, "Disable anonymous usage analytics")
	rootCmd.PersistentFlags().String("database-path", "", "Override the profile's database path")

	for _, name := range []string{"debug", "profile", "read-only", "disable-analytics", "database-path"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			logger.Errorf("binding --%s flag: %v", name, err)
		}
	}
	viper.SetEnvPrefix("mxcp")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newServeCmd())
	rootCmd.SilenceUsage = true
	return rootCmd
}
