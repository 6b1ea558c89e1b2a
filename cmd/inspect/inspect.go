// Package inspect provides the inspect command.
package inspect

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/app"
	"github.com/tphakala/cedar-go/internal/codec"
	"github.com/tphakala/cedar-go/internal/controller"
	"github.com/tphakala/cedar-go/internal/workspace"
)

// Command creates the inspect command.
func Command(appCtx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <folder> [image]",
		Short: "Show images and annotation counts of a dataset folder",
		Long: `Without an image, inspect lists the images of the folder and the
annotation file found for each. With an image, it loads the annotations and
prints the number of records per class and per style.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := ""
			if len(args) == 2 {
				image = args[1]
			}
			return run(cmd.Context(), appCtx, args[0], image, cmd.OutOrStdout())
		},
	}
}

func run(ctx context.Context, appCtx *app.Context, folder, image string, out io.Writer) (err error) {
	ws, err := appCtx.OpenWorkspace(ctx, workspace.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(ctx); err == nil {
			err = cerr
		}
	}()

	images, err := ws.Open(ctx, folder)
	if err != nil {
		return err
	}
	if image == "" {
		return listImages(out, folder, images)
	}

	done, err := ws.SelectImage(ctx, image)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	var anns []*annotation.Annotation
	if err := ws.Do(ctx, func(c *controller.Controller) error {
		anns = c.View().Items()
		return nil
	}); err != nil {
		return err
	}
	return printCounts(out, image, anns, ws.InferAvailable())
}

func listImages(out io.Writer, folder string, images []string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "IMAGE\tANNOTATIONS")
	annDir := filepath.Join(folder, workspace.AnnotationsDir)
	for _, img := range images {
		status := "-"
		if path, err := codec.Resolve(annDir, img); err == nil {
			status = filepath.Base(path)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", img, status)
	}
	_, _ = fmt.Fprintf(tw, "\n%d images\n", len(images))
	return tw.Flush()
}

func printCounts(out io.Writer, image string, anns []*annotation.Annotation, noFile bool) error {
	if noFile {
		_, _ = fmt.Fprintf(out, "%s: no annotation file\n", image)
		return nil
	}

	byClass := map[string]int{}
	byStyle := map[annotation.Style]int{}
	for _, a := range anns {
		byClass[a.ClassName]++
		byStyle[a.Style]++
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s: %d annotations\n\n", image, len(anns))
	_, _ = fmt.Fprintln(tw, "CLASS\tCOUNT")
	names := make([]string, 0, len(byClass))
	for name := range byClass {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", name, byClass[name])
	}
	_, _ = fmt.Fprintln(tw, "\nSTYLE\tCOUNT")
	for _, st := range annotation.Styles {
		if n := byStyle[st]; n > 0 {
			_, _ = fmt.Fprintf(tw, "%s\t%d\n", st, n)
		}
	}
	return tw.Flush()
}
