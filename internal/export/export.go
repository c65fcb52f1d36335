// Package export flattens annotated images into PNG files and PDF documents.
package export

import (
	"bytes"
	"fmt"
	goimage "image"
	"image/png"
	"io"

	"github.com/gogpu/gg"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	imagesrc "image-annotator/internal/image"
	"image-annotator/internal/session"
	"image-annotator/internal/version"
)

// screenDPI is assumed for images without resolution metadata.
const screenDPI = 96.0

// Options control how a page is produced.
type Options struct {
	// View applies the image's current rotation and scale.
	View bool
	// Scale overrides the resampling factor. Zero keeps the view scale
	// when View is set and the pixel size otherwise.
	Scale float64
}

// Exporter draws registry annotations over their source images.
type Exporter struct {
	reg    *session.Registry
	faces  annotation.FaceSource
	logger *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// New creates an exporter. Text is left out when faces is nil.
func New(reg *session.Registry, faces annotation.FaceSource, opts ...Option) *Exporter {
	e := &Exporter{reg: reg, faces: faces, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// view returns the rotation and scale a page is produced with.
func (e *Exporter) view(img *session.Image, o Options) (coords.Rotation, float64) {
	rot, scale := coords.Rotate0, 1.0
	if o.View {
		rot, scale = img.Rotation, img.Scale
	}
	if o.Scale > 0 {
		scale = o.Scale
	}
	return rot, scale
}

// Flatten draws every live annotation of src onto a copy of its pixels.
func (e *Exporter) Flatten(src *imagesrc.Source, o Options) (goimage.Image, error) {
	img, ok := e.reg.Image(src.ID)
	if !ok {
		return nil, fmt.Errorf("flatten %s: %w", src.ID, session.ErrImageNotFound)
	}
	if src.Width() != img.Width || src.Height() != img.Height {
		return nil, fmt.Errorf("flatten %s: source is %dx%d, registry has %dx%d",
			src.ID, src.Width(), src.Height(), img.Width, img.Height)
	}

	dc := gg.NewContextForImage(src.Image)
	defer dc.Close()

	rendered := e.reg.RenderAll(src.ID)
	for _, r := range rendered {
		if err := r.Appearance.Draw(dc, e.faces); err != nil {
			e.logger.Warn("annotation skipped in export",
				zap.String("image", src.ID),
				zap.String("annotation", r.Annotation.ID()),
				zap.Error(err))
		}
	}
	if err := dc.FlushGPU(); err != nil {
		return nil, fmt.Errorf("flatten %s: %w", src.ID, err)
	}
	e.logger.Debug("image flattened", zap.String("image", src.ID), zap.Int("annotations", len(rendered)))

	rot, scale := e.view(img, o)
	return imagesrc.Display(dc.Image(), rot, scale), nil
}

// WritePNG writes the flattened image as PNG.
func (e *Exporter) WritePNG(w io.Writer, src *imagesrc.Source, o Options) error {
	flat, err := e.Flatten(src, o)
	if err != nil {
		return err
	}
	if err := png.Encode(w, flat); err != nil {
		return fmt.Errorf("failed to encode %s: %w", src.ID, err)
	}
	return nil
}

// WritePDF writes one page per source, each sized to the physical extent
// of its image. Annotations carrying text are listed as bookmarks under
// their page; on rotated pages they point at the page top.
func (e *Exporter) WritePDF(w io.Writer, srcs []*imagesrc.Source, o Options) error {
	if len(srcs) == 0 {
		return fmt.Errorf("pdf export: no images")
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator(version.String(), true)
	pdf.SetTitle(srcs[0].ID, true)
	if author := e.reg.Author(); author != "" {
		pdf.SetAuthor(author, true)
	}

	for i, src := range srcs {
		flat, err := e.Flatten(src, o)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, flat); err != nil {
			return fmt.Errorf("failed to encode %s: %w", src.ID, err)
		}

		img, _ := e.reg.Image(src.ID)
		rot, scale := e.view(img, o)
		dpi := src.DPI
		if dpi <= 0 {
			dpi = screenDPI
		}
		b := flat.Bounds()
		pw := float64(b.Dx()) / scale * 72 / dpi
		ph := float64(b.Dy()) / scale * 72 / dpi

		name := fmt.Sprintf("page%d", i)
		opt := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opt, &buf)
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pw, Ht: ph})
		pdf.ImageOptions(name, 0, 0, pw, ph, false, opt, 0, "")

		pdf.Bookmark(src.ID, 0, 0)
		for _, a := range e.reg.Annotations(src.ID) {
			if h := a.Header(); h.Content != "" {
				y := 0.0
				if rot == coords.Rotate0 {
					y = a.AABB().Min.Y * ph / float64(img.Height)
				}
				pdf.Bookmark(fmt.Sprintf("%s: %s", a.Kind(), h.Content), 1, y)
			}
		}
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("pdf page %s: %w", src.ID, err)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	e.logger.Info("pdf exported", zap.Int("pages", len(srcs)))
	return nil
}
