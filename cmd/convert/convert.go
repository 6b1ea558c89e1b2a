// Package convert provides the convert command, which rewrites legacy JSON
// annotation files as GeoJSON.
package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/cedar-go/internal/app"
	"github.com/tphakala/cedar-go/internal/codec"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

type options struct {
	output string
	jobs   int
}

// Command creates the convert command.
func Command(appCtx *app.Context) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "convert [file.json|dir]...",
		Short: "Convert legacy JSON annotations to GeoJSON",
		Long: `Convert reads legacy .json annotation files, given directly or found in
the given directories, and writes a .geojson file next to each one or into
--output. Existing GeoJSON files are backed up before they are replaced.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), appCtx, opts, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Directory for the GeoJSON files (default: next to the source)")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "Number of files converted in parallel")

	return cmd
}

func run(ctx context.Context, appCtx *app.Context, opts *options, args []string, out io.Writer) error {
	sources, err := collectSources(args)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.ValidationError("no legacy .json annotation files found")
	}
	cdc, err := appCtx.Codec()
	if err != nil {
		return err
	}
	log := appCtx.Log.Module("convert")

	var (
		mu       sync.Mutex
		failed   int
		total    int
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.jobs, 1))
	for _, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dst := target(src, opts.output)
			n, err := cdc.Convert(src, dst)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				failures = append(failures, err)
				log.Error("conversion failed", logger.String("source", src), logger.Error(err))
				_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", src, err)
				return nil
			}
			total += n
			_, _ = fmt.Fprintf(out, "%s -> %s (%d annotations)\n", src, dst, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "converted %d of %d files, %d annotations\n", len(sources)-failed, len(sources), total)
	if failed > 0 {
		return errors.New(errors.Join(failures...)).
			Component("convert").
			Context("failed", failed).
			Build()
	}
	return nil
}

// collectSources expands directories into the legacy files they contain.
func collectSources(args []string) ([]string, error) {
	var sources []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.FileError(err, arg)
		}
		if !info.IsDir() {
			sources = append(sources, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*"+codec.ExtLegacy))
		if err != nil {
			return nil, errors.FileError(err, arg)
		}
		sources = append(sources, matches...)
	}
	return sources, nil
}

func target(src, outputDir string) string {
	dir := filepath.Dir(src)
	if outputDir != "" {
		dir = outputDir
	}
	return codec.AnnotationPath(dir, src)
}
