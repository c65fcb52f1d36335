// Package mainwindow provides the main application window.
package mainwindow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"image-annotator/internal/app"
	"image-annotator/internal/event"
	imagesrc "image-annotator/internal/image"
	"image-annotator/internal/project"
	"image-annotator/internal/sched"
	"image-annotator/internal/version"
	"image-annotator/ui/canvas"
)

const prefKeyLastDir = "lastDirectory"

// MainWindow is the primary application window.
type MainWindow struct {
	fyne.Window
	app    fyne.App
	ws     *app.Workspace
	loop   *sched.Loop
	logger *zap.Logger

	canvas      *canvas.AnnotationCanvas
	canvasArea  *fyne.Container
	imageSelect *widget.Select
	toolSelect  *widget.Select
	statusBar   *widget.Label

	offChange func()
}

// New creates a new main window. Registry work is posted to loop.
func New(fyneApp fyne.App, ws *app.Workspace, loop *sched.Loop, logger *zap.Logger) *MainWindow {
	win := fyneApp.NewWindow(version.Name)

	mw := &MainWindow{
		Window: win,
		app:    fyneApp,
		ws:     ws,
		loop:   loop,
		logger: logger,
	}

	mw.setupUI()
	mw.setupMenus()
	mw.setupEventHandlers()
	mw.SetOnClosed(mw.close)

	return mw
}

// setupUI creates the main UI layout.
func (mw *MainWindow) setupUI() {
	mw.statusBar = widget.NewLabel("Ready")
	mw.canvasArea = container.NewStack(widget.NewLabel("Open an image or a project to start annotating."))

	mw.imageSelect = widget.NewSelect(nil, func(id string) {
		if mw.canvas == nil || mw.canvas.ImageID() != id {
			mw.showImage(id)
		}
	})
	mw.imageSelect.PlaceHolder = "(no image)"

	names := make([]string, 0, len(canvas.Tools()))
	for _, t := range canvas.Tools() {
		names = append(names, t.String())
	}
	mw.toolSelect = widget.NewSelect(names, func(name string) {
		for _, t := range canvas.Tools() {
			if t.String() == name && mw.canvas != nil && mw.canvas.Tool() != t {
				mw.canvas.SetTool(t)
			}
		}
	})
	mw.toolSelect.SetSelected(canvas.ToolSelect.String())

	content := container.NewBorder(
		mw.createToolbar(),                // top
		container.NewPadded(mw.statusBar), // bottom
		nil,                               // left
		nil,                               // right
		mw.canvasArea,                     // center
	)
	mw.SetContent(content)
	mw.Resize(fyne.NewSize(1200, 800))
}

// createToolbar creates the toolbar with tool, edit and view controls.
func (mw *MainWindow) createToolbar() fyne.CanvasObject {
	return container.NewHBox(
		widget.NewLabel("Image:"),
		mw.imageSelect,
		widget.NewSeparator(),
		widget.NewLabel("Tool:"),
		mw.toolSelect,
		widget.NewButton("Done", mw.onCommitDrawing),
		widget.NewButton("Undo", mw.onUndo),
		widget.NewButton("Delete", mw.onDelete),
		widget.NewSeparator(),
		widget.NewLabel("Zoom:"),
		widget.NewButton("-", mw.onZoomOut),
		widget.NewButton("+", mw.onZoomIn),
		widget.NewButton("Fit", mw.onFitToWindow),
		widget.NewButton("1:1", mw.onActualSize),
		widget.NewButton("⟲", func() { mw.onRotate(true) }),
		widget.NewButton("⟳", func() { mw.onRotate(false) }),
	)
}

// setupMenus creates the application menus.
func (mw *MainWindow) setupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Images...", mw.onOpenImages),
		fyne.NewMenuItem("Open Project...", mw.onOpenProject),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Save Project", mw.onSaveProject),
		fyne.NewMenuItem("Save Project As...", mw.onSaveProjectAs),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Import Annotations...", mw.onImportAnnotations),
		fyne.NewMenuItem("Export Annotations...", mw.onExportAnnotations),
		fyne.NewMenuItem("Export PNG...", mw.onExportPNG),
		fyne.NewMenuItem("Export PDF...", mw.onExportPDF),
	)

	editMenu := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Undo", mw.onUndo),
		fyne.NewMenuItem("Delete Selected", mw.onDelete),
		fyne.NewMenuItem("Finish Drawing", mw.onCommitDrawing),
	)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mw.onZoomIn),
		fyne.NewMenuItem("Zoom Out", mw.onZoomOut),
		fyne.NewMenuItem("Fit to Window", mw.onFitToWindow),
		fyne.NewMenuItem("Actual Size", mw.onActualSize),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Rotate Left", func() { mw.onRotate(true) }),
		fyne.NewMenuItem("Rotate Right", func() { mw.onRotate(false) }),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.onAbout),
	)

	mw.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, viewMenu, helpMenu))
}

// setupEventHandlers registers for workspace and registry events.
func (mw *MainWindow) setupEventHandlers() {
	mw.ws.On(app.EventProjectLoaded, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.refreshImages()
			mw.updateTitle()
			mw.updateStatus("Project loaded: " + path)
		}
	})

	mw.ws.On(app.EventProjectSaved, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.updateTitle()
			mw.updateStatus("Project saved: " + path)
		}
	})

	mw.ws.On(app.EventImagesLoaded, func(data interface{}) {
		if srcs, ok := data.([]*imagesrc.Source); ok {
			mw.refreshImages()
			mw.updateStatus(fmt.Sprintf("%d image(s) loaded", len(srcs)))
		}
	})

	mw.ws.On(app.EventExported, func(data interface{}) {
		if path, ok := data.(string); ok {
			mw.updateStatus("Exported " + path)
		}
	})

	mw.offChange = mw.ws.Registry().Bus().On(event.EventChange, func(data interface{}) {
		if ch, ok := data.(event.Change); ok && ch.Type != event.ChangeRender {
			mw.updateTitle()
		}
	})
}

// OpenArgs opens the paths given on the command line: one project file,
// or any number of images.
func (mw *MainWindow) OpenArgs(paths []string) {
	if len(paths) == 0 {
		return
	}
	if len(paths) == 1 && filepath.Ext(paths[0]) == project.Extension {
		mw.openProject(paths[0])
		return
	}
	mw.openImages(paths)
}

// showImage replaces the canvas with one for the image id.
func (mw *MainWindow) showImage(id string) {
	src, ok := mw.ws.Source(id)
	if !ok {
		return
	}
	mw.closeCanvas()

	cfg := mw.ws.Config()
	c := canvas.NewAnnotationCanvas(mw.loop, mw.ws.Registry(), src,
		canvas.WithLogger(mw.logger.Named("canvas").With(zap.String("image", id))),
		canvas.WithActivationDelay(cfg.ActivationDelay()),
		canvas.WithFaces(mw.ws.Faces()),
		canvas.WithToolSettings(canvas.SettingsFromConfig(cfg)),
	)
	c.OnZoomChange(func(zoom float64) {
		mw.updateStatus(fmt.Sprintf("Zoom: %.0f%%", zoom*100))
	})
	c.OnToolChange(func(t canvas.Tool) {
		mw.toolSelect.SetSelected(t.String())
	})
	mw.canvas = c
	mw.toolSelect.SetSelected(canvas.ToolSelect.String())
	mw.canvasArea.Objects = []fyne.CanvasObject{c.Container()}
	mw.canvasArea.Refresh()
	mw.imageSelect.SetSelected(id)
}

func (mw *MainWindow) closeCanvas() {
	if mw.canvas != nil {
		mw.canvas.Close()
		mw.canvas = nil
	}
}

// refreshImages lists the loaded images and shows the first one when the
// current canvas is gone.
func (mw *MainWindow) refreshImages() {
	srcs := mw.ws.Sources()
	ids := make([]string, len(srcs))
	for i, s := range srcs {
		ids[i] = s.ID
	}
	mw.imageSelect.Options = ids
	mw.imageSelect.Refresh()

	if mw.canvas != nil {
		if _, ok := mw.ws.Source(mw.canvas.ImageID()); ok {
			return
		}
	}
	if len(ids) > 0 {
		mw.showImage(ids[0])
	}
}

// updateStatus updates the status bar text.
func (mw *MainWindow) updateStatus(text string) {
	mw.statusBar.SetText(text)
}

// updateTitle shows the project name and an unsaved-changes marker.
func (mw *MainWindow) updateTitle() {
	title := version.Name
	if path := mw.ws.ProjectPath(); path != "" {
		title += " - " + filepath.Base(path)
	}
	if mw.ws.Registry().Modified() {
		title += " *"
	}
	mw.SetTitle(title)
}

// getLastDir returns the last used directory as a ListableURI, or nil.
func (mw *MainWindow) getLastDir() fyne.ListableURI {
	path := mw.app.Preferences().String(prefKeyLastDir)
	if path == "" {
		return nil
	}
	uri := storage.NewFileURI(path)
	listable, err := storage.ListerForURI(uri)
	if err != nil {
		return nil
	}
	return listable
}

// saveLastDir saves the directory of the given file path.
func (mw *MainWindow) saveLastDir(filePath string) {
	mw.app.Preferences().SetString(prefKeyLastDir, filepath.Dir(filePath))
}

// showError logs err and shows it in a dialog.
func (mw *MainWindow) showError(msg string, err error) {
	mw.logger.Warn(msg, zap.Error(err))
	dialog.ShowError(fmt.Errorf("%s: %w", msg, err), mw.Window)
}

// openFile runs an open dialog filtered to exts.
func (mw *MainWindow) openFile(exts []string, open func(path string)) {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		path := reader.URI().Path()
		mw.saveLastDir(path)
		open(path)
	}, mw.Window)
	fd.SetFilter(storage.NewExtensionFileFilter(exts))
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// saveFile runs a save dialog, adding ext to names without it.
func (mw *MainWindow) saveFile(name, ext string, save func(path string)) {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if !strings.EqualFold(filepath.Ext(path), ext) {
			path += ext
		}
		mw.saveLastDir(path)
		save(path)
	}, mw.Window)
	fd.SetFileName(name + ext)
	if loc := mw.getLastDir(); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

// Menu action handlers

func (mw *MainWindow) onOpenImages() {
	mw.openFile(imagesrc.SupportedFormats(), func(path string) {
		mw.openImages([]string{path})
	})
}

func (mw *MainWindow) openImages(paths []string) {
	mw.updateStatus("Loading...")
	sched.Go(context.Background(), mw.loop,
		func(ctx context.Context) ([]*imagesrc.Source, error) {
			return mw.ws.OpenImages(ctx, paths...)
		},
		func(_ []*imagesrc.Source, err error) {
			if err != nil {
				mw.showError("Failed to load images", err)
			}
		})
}

func (mw *MainWindow) onOpenProject() {
	mw.openFile([]string{project.Extension}, mw.openProject)
}

func (mw *MainWindow) openProject(path string) {
	mw.closeCanvas()
	mw.updateStatus("Loading " + filepath.Base(path) + "...")
	sched.Go(context.Background(), mw.loop,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, mw.ws.OpenProject(ctx, path)
		},
		func(_ struct{}, err error) {
			if err != nil {
				mw.showError("Failed to open project", err)
			}
		})
}

func (mw *MainWindow) onSaveProject() {
	if mw.ws.ProjectPath() == "" {
		mw.onSaveProjectAs()
		return
	}
	mw.saveProject("")
}

func (mw *MainWindow) onSaveProjectAs() {
	mw.saveFile("project", project.Extension, mw.saveProject)
}

func (mw *MainWindow) saveProject(path string) {
	mw.loop.Post(func() {
		if _, err := mw.ws.SaveProject(path); err != nil {
			mw.showError("Failed to save project", err)
		}
	})
}

func (mw *MainWindow) onImportAnnotations() {
	if mw.canvas == nil {
		return
	}
	id := mw.canvas.ImageID()
	mw.openFile([]string{".json"}, func(path string) {
		mw.loop.Post(func() {
			n, err := mw.ws.ImportFile(id, path)
			if err != nil {
				mw.showError("Failed to import annotations", err)
				return
			}
			mw.updateStatus(fmt.Sprintf("Imported %d annotation(s)", n))
		})
	})
}

func (mw *MainWindow) onExportAnnotations() {
	if mw.canvas == nil {
		return
	}
	id := mw.canvas.ImageID()
	mw.saveFile(strings.TrimSuffix(id, filepath.Ext(id)), ".json", func(path string) {
		mw.loop.Post(func() {
			if err := mw.ws.ExportAnnotations(id, path); err != nil {
				mw.showError("Failed to export annotations", err)
			}
		})
	})
}

func (mw *MainWindow) onExportPNG() {
	if mw.canvas == nil {
		return
	}
	id := mw.canvas.ImageID()
	mw.saveFile(strings.TrimSuffix(id, filepath.Ext(id))+"-annotated", ".png", func(path string) {
		mw.loop.Post(func() {
			if err := mw.ws.ExportPNG(id, path, mw.ws.ExportOptions(false)); err != nil {
				mw.showError("Failed to export PNG", err)
			}
		})
	})
}

func (mw *MainWindow) onExportPDF() {
	if len(mw.ws.Sources()) == 0 {
		return
	}
	mw.saveFile("annotated", ".pdf", func(path string) {
		mw.loop.Post(func() {
			if err := mw.ws.ExportPDF(path, mw.ws.ExportOptions(false)); err != nil {
				mw.showError("Failed to export PDF", err)
			}
		})
	})
}

func (mw *MainWindow) onCommitDrawing() {
	if mw.canvas != nil {
		mw.canvas.Save()
	}
}

func (mw *MainWindow) onUndo() {
	if mw.canvas != nil {
		mw.canvas.UndoLast()
	}
}

func (mw *MainWindow) onDelete() {
	if mw.canvas != nil {
		mw.canvas.DeleteSelected()
	}
}

func (mw *MainWindow) onZoomIn() {
	if mw.canvas != nil {
		mw.canvas.ZoomIn()
	}
}

func (mw *MainWindow) onZoomOut() {
	if mw.canvas != nil {
		mw.canvas.ZoomOut()
	}
}

func (mw *MainWindow) onFitToWindow() {
	if mw.canvas != nil {
		mw.canvas.FitToWindow()
	}
}

func (mw *MainWindow) onActualSize() {
	if mw.canvas != nil {
		mw.canvas.SetZoom(1.0)
	}
}

func (mw *MainWindow) onRotate(ccw bool) {
	if mw.canvas != nil {
		mw.canvas.Rotate(ccw)
	}
}

func (mw *MainWindow) onAbout() {
	dialog.ShowInformation("About "+version.Name,
		fmt.Sprintf("%s v%s\n\n"+
			"Annotate scanned pages and photographs with shapes, text,\n"+
			"stamps and notes, and export them as PNG or PDF.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			version.Name, version.Version, version.BuildTime, version.GitCommit),
		mw.Window)
}

func (mw *MainWindow) close() {
	mw.closeCanvas()
	if mw.offChange != nil {
		mw.offChange()
	}
}
