// Package app wires the polosync commands: one-shot or periodic roster
// syncs, the on-demand HTTP trigger server, and schema migrations.
package app

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

const envPrefix = "POLOSYNC"

var rootCmd = &cobra.Command{
	Use:   "polosync",
	Short: "Sincroniza cursos e matrículas dos polos Moodle",
	Long: `polosync fetches each polo's Moodle catalog, classifies which entries
are real courses, deduplicates enrolled students by CPF and reconciles
courses, students and enrollments into the local database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd builds the polosync command tree.
func NewRootCmd() *cobra.Command {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("tenants", "tenants.yaml", "Path to the tenants (polos) YAML file")
	pf.String("db-dsn", "", "Postgres DSN (defaults to POLOSYNC_DB_DSN or DB_DSN)")
	pf.Bool("debug", false, "Enable debug logging")
	cobra.CheckErr(viper.BindPFlag("tenants", pf.Lookup("tenants")))
	cobra.CheckErr(viper.BindPFlag("db-dsn", pf.Lookup("db-dsn")))
	cobra.CheckErr(viper.BindPFlag("debug", pf.Lookup("debug")))

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("polosync %s (commit %s, %s)\n", version, commit, runtime.Version())
	},
}
