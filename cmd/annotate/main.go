// Command annotate loads images or a project, merges annotation files into
// them and writes the result as flattened PNG or PDF, a project file, or
// an annotation listing. It does not open a window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"image-annotator/internal/app"
	"image-annotator/internal/config"
	"image-annotator/internal/coords"
	"image-annotator/internal/export"
	"image-annotator/internal/version"
)

// importSpec is one -import flag: annotations for an image.
type importSpec struct {
	imageID string
	path    string
}

type options struct {
	configPath string
	project    string
	images     []string
	imports    []importSpec
	rotate     int
	scale      float64
	view       bool
	pngDir     string
	pdfPath    string
	savePath   string
	list       bool
	jsonLog    bool
	version    bool
}

var errUsage = errors.New("usage: annotate [flags] (-project file.annproj | image...)")

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("annotate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", config.DefaultPath(), "Preferences file")
	fs.StringVar(&o.project, "project", "", "Project file to open instead of images")
	fs.Func("import", "Merge annotations into an image: `image=file.json` (repeatable)", func(v string) error {
		id, path, ok := strings.Cut(v, "=")
		if !ok || id == "" || path == "" {
			return fmt.Errorf("want image=file.json, got %q", v)
		}
		o.imports = append(o.imports, importSpec{imageID: id, path: path})
		return nil
	})
	fs.IntVar(&o.rotate, "rotate", 0, "Rotate every image by 0, 90, 180 or 270 degrees")
	fs.Float64Var(&o.scale, "scale", 0, "Display scale applied to every image (0 keeps the current one)")
	fs.BoolVar(&o.view, "view", false, "Export with each image's rotation and scale")
	fs.StringVar(&o.pngDir, "png", "", "Write one flattened PNG per image into this directory")
	fs.StringVar(&o.pdfPath, "pdf", "", "Write every image as a page of this PDF")
	fs.StringVar(&o.savePath, "save", "", "Save the result as a project file")
	fs.BoolVar(&o.list, "list", false, "Print the annotations of every image")
	fs.BoolVar(&o.jsonLog, "json", false, "Log as JSON")
	fs.BoolVar(&o.version, "version", false, "Print the version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.images = fs.Args()

	if o.version {
		return o, nil
	}
	if (o.project == "") == (len(o.images) == 0) {
		return o, errUsage
	}
	if _, err := coords.ParseRotation(o.rotate); err != nil {
		return o, err
	}
	if o.scale < 0 {
		return o, fmt.Errorf("scale must not be negative: %v", o.scale)
	}
	return o, nil
}

func newLogger(jsonLog bool) (*zap.Logger, error) {
	if jsonLog {
		return zap.NewProduction()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func main() {
	o, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.version {
		fmt.Println(version.String())
		return
	}

	logger, err := newLogger(o.jsonLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(o.configPath)
	if err != nil {
		logger.Warn("using default preferences", zap.String("path", o.configPath), zap.Error(err))
	}

	ws, err := app.NewWorkspace(cfg, logger)
	if err != nil {
		logger.Fatal("workspace", zap.Error(err))
	}
	defer ws.Close()

	if err := run(context.Background(), o, ws, os.Stdout); err != nil {
		logger.Error("annotate failed", zap.Error(err))
		os.Exit(1)
	}
}

// run carries out the parsed options against ws.
func run(ctx context.Context, o options, ws *app.Workspace, stdout io.Writer) error {
	if o.project != "" {
		if err := ws.OpenProject(ctx, o.project); err != nil {
			return err
		}
	} else if _, err := ws.OpenImages(ctx, o.images...); err != nil {
		return err
	}

	reg := ws.Registry()
	for _, src := range ws.Sources() {
		if o.rotate != 0 {
			img, _ := reg.Image(src.ID)
			if err := reg.SetRotation(src.ID, img.Rotation.Add(o.rotate)); err != nil {
				return err
			}
		}
		if o.scale > 0 {
			if err := reg.SetScale(src.ID, o.scale); err != nil {
				return err
			}
		}
	}

	for _, im := range o.imports {
		n, err := ws.ImportFile(im.imageID, im.path)
		if err != nil {
			return err
		}
		ws.Logger().Info("imported", zap.String("image", im.imageID), zap.String("file", im.path), zap.Int("count", n))
	}

	if o.list {
		if err := list(ws, stdout); err != nil {
			return err
		}
	}

	eo := ws.ExportOptions(o.view)
	if o.scale > 0 && !o.view {
		eo = export.Options{Scale: o.scale}
	}
	if o.pngDir != "" {
		if err := os.MkdirAll(o.pngDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		for _, src := range ws.Sources() {
			name := strings.TrimSuffix(src.ID, filepath.Ext(src.ID)) + ".png"
			if err := ws.ExportPNG(src.ID, filepath.Join(o.pngDir, name), eo); err != nil {
				return err
			}
		}
	}
	if o.pdfPath != "" {
		if err := ws.ExportPDF(o.pdfPath, eo); err != nil {
			return err
		}
	}
	if o.savePath != "" {
		if _, err := ws.SaveProject(o.savePath); err != nil {
			return err
		}
	}
	return nil
}

// list prints one line per live annotation.
func list(ws *app.Workspace, w io.Writer) error {
	for _, src := range ws.Sources() {
		dtos, err := ws.Registry().Export(src.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %dx%d, %d annotation(s)\n", src.ID, src.Width(), src.Height(), len(dtos))
		for _, d := range dtos {
			line := fmt.Sprintf("  %-10s %s", d.Kind, d.ID)
			if d.TextContent != "" {
				line += fmt.Sprintf(" %q", d.TextContent)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
