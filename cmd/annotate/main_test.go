package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/app"
	"image-annotator/internal/config"
	"image-annotator/internal/coords"
)

func TestParseArgs(t *testing.T) {
	o, err := parseArgs([]string{"-import", "a.png=a.json", "-import", "b.png=b.json", "-rotate", "270", "-png", "out", "a.png", "b.png"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	want := []importSpec{{"a.png", "a.json"}, {"b.png", "b.json"}}
	if d := cmp.Diff(want, o.imports, cmp.AllowUnexported(importSpec{})); d != "" {
		t.Errorf("imports (-want +got):\n%s", d)
	}
	if o.rotate != 270 || o.pngDir != "out" || len(o.images) != 2 {
		t.Errorf("options = %+v", o)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"nothing to open", nil},
		{"project and images", []string{"-project", "p.annproj", "a.png"}},
		{"bad import", []string{"-import", "a.json", "a.png"}},
		{"bad rotation", []string{"-rotate", "45", "a.png"}},
		{"negative scale", []string{"-scale", "-1", "a.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseArgs(tt.args, io.Discard); err == nil {
				t.Error("accepted")
			}
		})
	}
	if o, err := parseArgs([]string{"-version"}, io.Discard); err != nil || !o.version {
		t.Errorf("-version: %+v, %v", o, err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "page.png")
	f, err := os.Create(imgPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 40, 20))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rect := annotation.NewRect("page.png", r2.Vec{X: 20, Y: 10}, 10, 6, 0, annotation.DefaultStyle())
	rect.Content = "check"
	data, err := annotation.MarshalDTOs(annotation.ToDTOs([]annotation.Annotation{rect}))
	if err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "page.json")
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(dir, "out")
	o, err := parseArgs([]string{
		"-import", "page.png=" + jsonPath,
		"-rotate", "90",
		"-view",
		"-list",
		"-png", outDir,
		"-save", filepath.Join(dir, "result"),
		imgPath,
	}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}

	ws, err := app.NewWorkspace(config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	var stdout bytes.Buffer
	if err := run(context.Background(), o, ws, &stdout); err != nil {
		t.Fatal(err)
	}

	if out := stdout.String(); !strings.Contains(out, "page.png: 40x20, 1 annotation(s)") || !strings.Contains(out, `"check"`) {
		t.Errorf("listing:\n%s", out)
	}
	if img, _ := ws.Registry().Image("page.png"); img.Rotation != coords.Rotate90 {
		t.Errorf("rotation = %d", img.Rotation)
	}

	pf, err := os.Open(filepath.Join(outDir, "page.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer pf.Close()
	cfg, err := png.DecodeConfig(pf)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 20 || cfg.Height != 40 {
		t.Errorf("rotated export is %d×%d, want 20×40", cfg.Width, cfg.Height)
	}

	ws2, err := app.NewWorkspace(config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws2.Close()
	if err := ws2.OpenProject(context.Background(), filepath.Join(dir, "result.annproj")); err != nil {
		t.Fatal(err)
	}
	if _, ok := ws2.Registry().Find("page.png", rect.ID()); !ok {
		t.Error("saved project lost the imported annotation")
	}
}
