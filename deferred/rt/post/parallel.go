package post

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forRows runs fn for every row in [0, h) across CPUs, stopping on
// cancellation. Rows must not write outside their own row of the target.
func forRows(ctx context.Context, h int, fn func(y int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	const band = 8
	for y0 := 0; y0 < h; y0 += band {
		y1 := min(y0+band, h)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for y := y0; y < y1; y++ {
				fn(y)
			}
			return nil
		})
	}
	return g.Wait()
}
