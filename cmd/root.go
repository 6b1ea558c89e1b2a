package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/cedar-go/cmd/classes"
	"github.com/tphakala/cedar-go/cmd/config"
	"github.com/tphakala/cedar-go/cmd/convert"
	"github.com/tphakala/cedar-go/cmd/infer"
	"github.com/tphakala/cedar-go/cmd/inspect"
	"github.com/tphakala/cedar-go/cmd/review"
	"github.com/tphakala/cedar-go/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(appCtx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cedar",
		Short:         "cedar-go annotation toolkit",
		Long:          `Inspect, review, convert and infer pathology image annotations, and manage settings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, appCtx)

	rootCmd.AddCommand(
		convert.Command(appCtx),
		inspect.Command(appCtx),
		review.Command(appCtx),
		infer.Command(appCtx),
		classes.Command(appCtx),
		config.Command(appCtx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return appCtx.Init(cmd.Context())
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return appCtx.Close()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, appCtx *app.Context) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&appCtx.ConfigFile, "config", "c", "", "Path to config.yaml (default: search ./ and the user config dir)")
	flags.BoolVarP(&appCtx.Debug, "debug", "d", false, "Enable debug output")
	flags.StringVarP(&appCtx.WorkDir, "workdir", "w", "", "Folder for the class table and the audit log")
}
