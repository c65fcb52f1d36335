// Package app provides the workspace shared by the desktop viewer and the
// command line tool: preferences, the annotation registry, the loaded
// images and the project file they are saved to.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"image-annotator/internal/config"
	"image-annotator/internal/export"
	imagesrc "image-annotator/internal/image"
	"image-annotator/internal/project"
	"image-annotator/internal/session"
	"image-annotator/internal/textlayout"
)

// EventType identifies workspace events.
type EventType int

const (
	EventProjectLoaded EventType = iota
	EventProjectSaved
	EventImagesLoaded
	EventAnnotationsImported
	EventExported
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Workspace owns the registry and the images registered with it. Its
// methods may be called from any goroutine; registry reads and writes are
// serialized by the registry itself.
type Workspace struct {
	mu sync.RWMutex

	cfg      config.Config
	reg      *session.Registry
	faces    *textlayout.Measurer
	exporter *export.Exporter
	logger   *zap.Logger

	projectPath string
	project     *project.File
	sources     []*imagesrc.Source

	listeners map[EventType][]EventListener
}

// NewWorkspace creates an empty workspace configured from cfg.
func NewWorkspace(cfg config.Config, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	faces, err := textlayout.New()
	if err != nil {
		return nil, err
	}
	reg := session.NewRegistry(
		session.WithLogger(logger.Named("session")),
		session.WithAuthor(cfg.Author),
		session.WithRenderOptions(cfg.RenderOptions()),
	)
	return &Workspace{
		cfg:       cfg,
		reg:       reg,
		faces:     faces,
		exporter:  export.New(reg, faces, export.WithLogger(logger.Named("export"))),
		logger:    logger,
		listeners: make(map[EventType][]EventListener),
	}, nil
}

// On registers an event listener for the specified event type.
func (w *Workspace) On(event EventType, listener EventListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners[event] = append(w.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (w *Workspace) Emit(event EventType, data interface{}) {
	w.mu.RLock()
	listeners := w.listeners[event]
	w.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

func (w *Workspace) Config() config.Config { return w.cfg }
func (w *Workspace) Registry() *session.Registry { return w.reg }
func (w *Workspace) Faces() *textlayout.Measurer { return w.faces }
func (w *Workspace) Exporter() *export.Exporter { return w.exporter }
func (w *Workspace) Logger() *zap.Logger { return w.logger }

// ProjectPath returns the file the workspace was opened from or last saved
// to, or "" for an unsaved workspace.
func (w *Workspace) ProjectPath() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.projectPath
}

// Sources returns the loaded images in load order.
func (w *Workspace) Sources() []*imagesrc.Source {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*imagesrc.Source(nil), w.sources...)
}

// Source returns the loaded image with the given id.
func (w *Workspace) Source(id string) (*imagesrc.Source, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, s := range w.sources {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// OpenImages decodes image files concurrently and registers them. Nothing
// is registered when any file fails.
func (w *Workspace) OpenImages(ctx context.Context, paths ...string) ([]*imagesrc.Source, error) {
	srcs, err := imagesrc.LoadAll(ctx, paths, runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(srcs))
	for _, s := range srcs {
		if seen[s.ID] {
			return nil, fmt.Errorf("image %s given twice: %w", s.ID, session.ErrDuplicateID)
		}
		seen[s.ID] = true
	}
	for i, s := range srcs {
		if err := imagesrc.Register(w.reg, s); err != nil {
			for _, done := range srcs[:i] {
				w.reg.RemoveImage(done.ID)
			}
			return nil, err
		}
	}

	w.mu.Lock()
	w.sources = append(w.sources, srcs...)
	w.mu.Unlock()

	for _, s := range srcs {
		w.logger.Info("image loaded",
			zap.String("image", s.ID),
			zap.String("format", s.Format),
			zap.Int("width", s.Width()),
			zap.Int("height", s.Height()),
			zap.Float64("dpi", s.DPI))
	}
	w.Emit(EventImagesLoaded, srcs)
	return srcs, nil
}

// OpenProject replaces the workspace contents with a project file.
func (w *Workspace) OpenProject(ctx context.Context, path string) error {
	p, err := project.Load(path)
	if err != nil {
		return err
	}

	w.reg.Clear()
	srcs, err := p.Open(ctx, path, w.reg)
	if err != nil {
		w.reg.Clear()
		return err
	}

	w.mu.Lock()
	w.projectPath = path
	w.project = p
	w.sources = srcs
	w.mu.Unlock()

	w.logger.Info("project loaded", zap.String("path", path), zap.Int("images", len(srcs)))
	w.Emit(EventProjectLoaded, path)
	return nil
}

// SaveProject writes the workspace to path, adding the project extension
// when it is missing. An empty path saves to the current project file.
func (w *Workspace) SaveProject(path string) (string, error) {
	w.mu.Lock()
	if path == "" {
		path = w.projectPath
	}
	if path == "" {
		w.mu.Unlock()
		return "", fmt.Errorf("no project path")
	}
	if filepath.Ext(path) != project.Extension {
		path += project.Extension
	}
	p := w.project
	if p == nil {
		p = project.New(strings.TrimSuffix(filepath.Base(path), project.Extension))
	}
	srcs := append([]*imagesrc.Source(nil), w.sources...)
	w.mu.Unlock()

	if err := p.Capture(path, w.reg, srcs); err != nil {
		return "", err
	}
	if err := p.Save(path); err != nil {
		return "", err
	}
	w.reg.SetModified(false)

	w.mu.Lock()
	w.projectPath = path
	w.project = p
	w.mu.Unlock()

	w.logger.Info("project saved", zap.String("path", path))
	w.Emit(EventProjectSaved, path)
	return path, nil
}

// ImportFile adds the annotations of a JSON file to an image.
func (w *Workspace) ImportFile(imageID, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read annotations: %w", err)
	}
	anns, err := w.reg.ImportJSON(imageID, data)
	if err != nil {
		return 0, err
	}
	w.Emit(EventAnnotationsImported, imageID)
	return len(anns), nil
}

// ExportAnnotations writes an image's live annotations as JSON.
func (w *Workspace) ExportAnnotations(imageID, path string) error {
	data, err := w.reg.ExportJSON(imageID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write annotations: %w", err)
	}
	w.Emit(EventExported, path)
	return nil
}

// ExportOptions returns the export settings from preferences. With view
// set pages follow the on-screen rotation and zoom.
func (w *Workspace) ExportOptions(view bool) export.Options {
	if view {
		return export.Options{View: true}
	}
	return export.Options{Scale: w.cfg.ExportScale}
}

// ExportPNG writes one image with its annotations drawn in.
func (w *Workspace) ExportPNG(imageID, path string, o export.Options) error {
	src, ok := w.Source(imageID)
	if !ok {
		return fmt.Errorf("export %s: %w", imageID, session.ErrImageNotFound)
	}
	return w.writeFile(path, func(f *os.File) error {
		return w.exporter.WritePNG(f, src, o)
	})
}

// ExportPDF writes every loaded image as one page of a PDF.
func (w *Workspace) ExportPDF(path string, o export.Options) error {
	srcs := w.Sources()
	return w.writeFile(path, func(f *os.File) error {
		return w.exporter.WritePDF(f, srcs, o)
	})
}

// writeFile creates path and removes it again when write fails.
func (w *Workspace) writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	w.logger.Info("exported", zap.String("path", path))
	w.Emit(EventExported, path)
	return nil
}

// Close releases the font faces.
func (w *Workspace) Close() error {
	return w.faces.Close()
}
