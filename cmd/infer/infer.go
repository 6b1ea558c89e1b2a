// Package infer provides the infer command.
package infer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/cedar-go/internal/app"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/inference"
	"github.com/tphakala/cedar-go/internal/workspace"
)

// Command creates the infer command.
func Command(appCtx *app.Context) *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "infer <folder> <image>",
		Short: "Request segmentation of an image from the inference service",
		Long: `Infer sends the image to the configured inference service. Without
--region the whole image is segmented, which is only done for images that
have no annotation file yet. With --region x,y,w,h only that rectangle is
segmented and the results are added to the existing annotations.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r *inference.Region
			if region != "" {
				parsed, err := parseRegion(region)
				if err != nil {
					return err
				}
				r = &parsed
			}
			return run(cmd.Context(), appCtx, args[0], args[1], r, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "Rectangle to segment as x,y,width,height in pixels")
	return cmd
}

// parseRegion parses "x,y,w,h".
func parseRegion(s string) (inference.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return inference.Region{}, errors.ValidationError(fmt.Sprintf("region must be x,y,width,height: %q", s))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return inference.Region{}, errors.ValidationError(fmt.Sprintf("invalid region value %q", p))
		}
		v[i] = f
	}
	r := inference.Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.IsEmpty() {
		return inference.Region{}, errors.ValidationError(fmt.Sprintf("region has no area: %q", s))
	}
	return r, nil
}

func run(ctx context.Context, appCtx *app.Context, folder, image string, region *inference.Region, out io.Writer) (err error) {
	ws, err := appCtx.OpenWorkspace(ctx, workspace.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(ctx); err == nil {
			err = cerr
		}
	}()

	if _, err := ws.Open(ctx, folder); err != nil {
		return err
	}
	loaded, err := ws.SelectImage(ctx, image)
	if err != nil {
		return err
	}
	if err := <-loaded; err != nil {
		return err
	}
	before, err := ws.Status(ctx)
	if err != nil {
		return err
	}

	done, err := ws.Infer(ctx, region)
	if err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}

	after, err := ws.Status(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s: %d annotations (%+d)\n", image, after.Records, after.Records-before.Records)
	return nil
}
