package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/e7canasta/orion-event-sensor/modules/pipeline"
	"github.com/e7canasta/orion-event-sensor/modules/surface"
)

// ramp maps |value| in [0, 1] to a glyph, darkest first.
const ramp = " .:-=+*#%@"

// renderASCII draws a normalized grid into at most cols x rows glyphs. Each
// glyph shows the largest magnitude of the cells it covers.
func renderASCII(g *surface.Grid, cols, rows int) string {
	if g.Width == 0 || g.Height == 0 || cols <= 0 || rows <= 0 {
		return ""
	}
	cols = min(cols, g.Width)
	rows = min(rows, g.Height)
	n := g.Normalize()

	var b strings.Builder
	b.Grow((cols + 1) * rows)
	for cy := 0; cy < rows; cy++ {
		y0, y1 := cy*g.Height/rows, (cy+1)*g.Height/rows
		for cx := 0; cx < cols; cx++ {
			x0, x1 := cx*g.Width/cols, (cx+1)*g.Width/cols
			var peak float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					peak = math.Max(peak, math.Abs(n.At(x, y)))
				}
			}
			idx := int(peak * float64(len(ramp)-1))
			b.WriteByte(ramp[idx])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// viewer redraws a surface in the terminal until ctx ends.
type viewer struct {
	out      io.Writer
	surface  *surface.Surface
	title    string
	interval time.Duration
	size     func() (cols, rows int, err error)
}

// newViewer resolves a "stream/surface" target.
func newViewer(m *pipeline.Manager, target string) (*viewer, error) {
	streamName, surfaceName, ok := strings.Cut(target, "/")
	if !ok {
		return nil, fmt.Errorf("view target %q must be stream/surface", target)
	}
	stream := m.Stream(streamName)
	if stream == nil {
		return nil, fmt.Errorf("unknown stream %q", streamName)
	}
	sf := stream.Surface(surfaceName)
	if sf == nil {
		return nil, fmt.Errorf("stream %q has no surface %q", streamName, surfaceName)
	}
	return newTerminalViewer(sf, target, 100*time.Millisecond)
}

// newTerminalViewer fails when stdout is not a terminal.
func newTerminalViewer(s *surface.Surface, title string, interval time.Duration) (*viewer, error) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdout is not a terminal")
	}
	return &viewer{
		out:      os.Stdout,
		surface:  s,
		title:    title,
		interval: interval,
		size:     func() (int, int, error) { return term.GetSize(fd) },
	}, nil
}

func (v *viewer) Run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.draw()
		}
	}
}

func (v *viewer) draw() {
	cols, rows, err := v.size()
	if err != nil {
		cols, rows = 80, 24
	}
	grid := v.surface.SnapshotAt(v.surface.Latest())
	frame := renderASCII(grid, cols, rows-2)

	// Home + clear, then redraw.
	fmt.Fprintf(v.out, "\x1b[H\x1b[2J%s  peak %.3g\n%s", v.title, grid.Max(), frame)
}
