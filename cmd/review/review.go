// Package review provides the review command, which walks through the
// visible annotations of one image.
package review

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/app"
	"github.com/tphakala/cedar-go/internal/controller"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/projection"
	reviewpkg "github.com/tphakala/cedar-go/internal/review"
	"github.com/tphakala/cedar-go/internal/workspace"
)

// pollInterval is how often the command checks whether the walkthrough ended.
const pollInterval = 50 * time.Millisecond

type options struct {
	interval    string
	autoAssign  bool
	filterField string
	filterText  string
	classes     []string
}

// Command creates the review command.
func Command(appCtx *app.Context) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "review <folder> <image>",
		Short: "Step through the annotations of an image",
		Long: `Review selects each visible annotation of the image in turn, top-left
first. With --autoassign, machine-generated annotations are marked as checked
as they are visited and the changes are saved when the walkthrough ends.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var autoAssign *bool
			if cmd.Flags().Changed("autoassign") {
				autoAssign = &opts.autoAssign
			}
			return run(cmd.Context(), appCtx, opts, autoAssign, args[0], args[1], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.interval, "interval", "", "Seconds between steps (default from config)")
	cmd.Flags().BoolVar(&opts.autoAssign, "autoassign", false, "Mark visited auto annotations as checked")
	cmd.Flags().StringVar(&opts.filterField, "filter-field", projection.FieldClassName.String(), "Field matched by --filter: class_name, class_id, metadata or style")
	cmd.Flags().StringVar(&opts.filterText, "filter", "", "Only review annotations whose field contains this text")
	cmd.Flags().StringSliceVar(&opts.classes, "classes", nil, "Only review annotations of these classes")

	return cmd
}

func buildFilter(opts *options) (projection.Filter, error) {
	field, err := projection.ParseField(opts.filterField)
	if err != nil {
		return projection.Filter{}, errors.New(err).
			Component("review").
			Category(errors.CategoryValidation).
			Build()
	}
	return projection.Filter{Field: field, Text: opts.filterText, Classes: opts.classes}, nil
}

func run(ctx context.Context, appCtx *app.Context, opts *options, autoAssign *bool, folder, image string, out io.Writer) (err error) {
	filter, err := buildFilter(opts)
	if err != nil {
		return err
	}

	var steps, promoted int
	ws, err := appCtx.OpenWorkspace(ctx, workspace.Options{
		OnReviewStep: func(rec *annotation.Annotation, wasPromoted bool) {
			steps++
			mark := ""
			if wasPromoted {
				promoted++
				mark = " -> " + rec.Style.String()
			}
			_, _ = fmt.Fprintf(out, "%4d  %-20s %-12s (%.0f, %.0f)%s\n",
				steps, rec.ClassName, rec.Style, rec.BoundsX(), rec.BoundsY(), mark)
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(ctx); err == nil {
			err = cerr
		}
	}()

	walk := ws.Walkthrough()
	if opts.interval != "" {
		if err := walk.SetInterval(opts.interval); err != nil {
			return err
		}
	}
	if autoAssign != nil {
		walk.SetAutoAssign(*autoAssign)
	}

	if _, err := ws.Open(ctx, folder); err != nil {
		return err
	}
	done, err := ws.SelectImage(ctx, image)
	if err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}

	if !filter.IsEmpty() {
		if err := ws.Do(ctx, func(c *controller.Controller) error {
			c.ApplyFilter(filter)
			return nil
		}); err != nil {
			return err
		}
	}

	if err := ws.StartReview(ctx); err != nil {
		return err
	}
	if err := waitIdle(ctx, walk); err != nil {
		_ = ws.StopReview(context.WithoutCancel(ctx))
		return err
	}

	// Steps run on the dispatcher; a round trip orders the counters.
	if err := ws.Do(ctx, func(*controller.Controller) error { return nil }); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "reviewed %d annotations, %d marked as checked\n", steps, promoted)
	return nil
}

func waitIdle(ctx context.Context, walk *reviewpkg.Walkthrough) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for walk.State() == reviewpkg.Running {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
