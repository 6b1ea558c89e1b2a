// Package config provides the config command.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/cedar-go/internal/app"
	"github.com/tphakala/cedar-go/internal/conf"
	"github.com/tphakala/cedar-go/internal/errors"
)

// Command creates the config command.
func Command(appCtx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the effective settings",
		Long: `Show or save the settings in effect after the config file, CEDAR_* environment
variables and the --workdir and --debug flags have been applied.`,
	}
	cmd.AddCommand(showCommand(appCtx), saveCommand(appCtx))
	return cmd
}

func showCommand(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.EncodeYAML(appCtx.Settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func saveCommand(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "save [path]",
		Short: "Validate the effective settings and write them to a config file",
		Long: `Validate the effective settings and write them to path. Without a path the
file the settings were read from is overwritten, or config.yaml in the user
config directory when only the built-in defaults were used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := savePath(appCtx.Settings, args)
			if err != nil {
				return err
			}
			if err := conf.SaveYAMLConfig(path, appCtx.Settings); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved settings to %s\n", path)
			return nil
		},
	}
}

func savePath(settings *conf.Settings, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if settings.ConfigPath != "" {
		return settings.ConfigPath, nil
	}
	paths := conf.GetDefaultConfigPaths()
	if len(paths) < 2 {
		return "", errors.Newf("no user config directory; pass a path").
			Component("config").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return filepath.Join(paths[len(paths)-1], conf.ConfigFileName), nil
}
