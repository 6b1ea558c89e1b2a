// Package classes provides the classes command.
package classes

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/cedar-go/internal/app"
	classpkg "github.com/tphakala/cedar-go/internal/classes"
	"github.com/tphakala/cedar-go/internal/errors"
)

// Command creates the classes command.
func Command(appCtx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List the annotation classes",
		Long:  `List the classes of the configured class table, or the bundled table when no override file exists.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := appCtx.Classes()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "source: %s\n\n", registry.Source())
			return printTable(cmd.OutOrStdout(), registry.Classes())
		},
	}
	cmd.AddCommand(checkCommand())
	return cmd
}

func checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a class table file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.FileError(err, args[0])
			}
			defer func() { _ = f.Close() }()

			table, err := classpkg.ParseTable(f)
			if err != nil {
				return errors.New(err).
					Component("classes").
					Category(errors.CategoryValidation).
					FileContext(args[0]).
					Build()
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d classes OK\n", args[0], len(table))
			return nil
		},
	}
}

func printTable(out io.Writer, table []classpkg.Class) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tCOLOR")
	for _, c := range table {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Name, classpkg.FormatColor(c.Color))
	}
	return tw.Flush()
}
