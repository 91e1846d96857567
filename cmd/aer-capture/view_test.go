package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/orion-event-sensor/modules/surface"
)

func TestRenderASCII(t *testing.T) {
	g := &surface.Grid{Width: 4, Height: 2, Data: []float64{
		0, 0.5, 1, 0,
		0, 0, 0, -1,
	}}

	got := renderASCII(g, 80, 24)
	want := " =@ \n   @\n"
	if got != want {
		t.Errorf("renderASCII() = %q, want %q", got, want)
	}
}

func TestRenderASCII_Downsamples(t *testing.T) {
	g := &surface.Grid{Width: 4, Height: 4, Data: make([]float64, 16)}
	g.Data[0] = 2 // top-left block
	g.Data[15] = 1

	got := renderASCII(g, 2, 2)
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 2 || len(lines[0]) != 2 {
		t.Fatalf("renderASCII() = %q, want 2x2", got)
	}
	if lines[0][0] != '@' {
		t.Errorf("top-left = %q, want '@'", lines[0][0])
	}
	if lines[1][1] == ' ' || lines[1][1] == '@' {
		t.Errorf("bottom-right = %q, want a mid glyph", lines[1][1])
	}
	if lines[0][1] != ' ' || lines[1][0] != ' ' {
		t.Errorf("empty blocks not blank: %q", got)
	}
}

func TestRenderASCII_Empty(t *testing.T) {
	if got := renderASCII(&surface.Grid{}, 80, 24); got != "" {
		t.Errorf("renderASCII(empty) = %q", got)
	}
	g := &surface.Grid{Width: 2, Height: 1, Data: []float64{0, 0}}
	if got := renderASCII(g, 80, 24); got != "  \n" {
		t.Errorf("renderASCII(zero) = %q", got)
	}
}

func TestViewer_Draws(t *testing.T) {
	s, err := surface.New(surface.Config{Width: 8, Height: 4, KernelSize: 1, DecayConstant: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(3, 1, 1, 10); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	v := &viewer{
		out:      &out,
		surface:  s,
		title:    "cli/sae",
		interval: 5 * time.Millisecond,
		size:     func() (int, int, error) { return 80, 10, nil },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	v.Run(ctx)

	text := out.String()
	if !strings.Contains(text, "cli/sae") || !strings.Contains(text, "@") {
		t.Errorf("viewer output = %q", text)
	}
}
