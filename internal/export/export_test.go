package export

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	imagesrc "image-annotator/internal/image"
	"image-annotator/internal/session"
)

func whiteSource(id string, w, h int) *imagesrc.Source {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return &imagesrc.Source{ID: id, Image: img, Format: "png"}
}

func setup(t *testing.T) (*session.Registry, *imagesrc.Source) {
	t.Helper()
	reg := session.NewRegistry(session.WithAuthor("tester"))
	src := whiteSource("page", 40, 30)
	if err := imagesrc.Register(reg, src); err != nil {
		t.Fatal(err)
	}
	style := annotation.Style{Color: "#0000ff", Width: 1, Opacity: 1, Fill: "#0000ff"}
	rect := annotation.NewRect("page", r2.Vec{X: 20, Y: 15}, 20, 10, 0, style)
	rect.Content = "check this"
	if err := reg.Append(rect); err != nil {
		t.Fatal(err)
	}
	return reg, src
}

func isBlue(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return b > 0xf000 && r < 0x1000 && g < 0x1000
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xf000 && g > 0xf000 && b > 0xf000
}

func TestFlattenDrawsAnnotations(t *testing.T) {
	reg, src := setup(t)
	flat, err := New(reg, nil).Flatten(src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := flat.Bounds(); got.Dx() != 40 || got.Dy() != 30 {
		t.Fatalf("bounds = %v", got)
	}
	if c := flat.At(20, 15); !isBlue(c) {
		t.Errorf("centre pixel = %v, want blue", c)
	}
	if c := flat.At(2, 2); !isWhite(c) {
		t.Errorf("corner pixel = %v, want white", c)
	}
	if c := src.Image.At(20, 15); !isWhite(c) {
		t.Error("source pixels were modified")
	}
}

func TestWritePNGAppliesView(t *testing.T) {
	reg, src := setup(t)
	if err := reg.SetRotation("page", coords.Rotate90); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetScale("page", 2); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := New(reg, nil).WritePNG(&buf, src, Options{View: true}); err != nil {
		t.Fatal(err)
	}
	out, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Bounds(); got.Dx() != 60 || got.Dy() != 80 {
		t.Errorf("bounds = %v, want 60x80", got)
	}

	buf.Reset()
	if err := New(reg, nil).WritePNG(&buf, src, Options{}); err != nil {
		t.Fatal(err)
	}
	out, err = png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Bounds(); got.Dx() != 40 || got.Dy() != 30 {
		t.Errorf("unviewed bounds = %v, want 40x30", got)
	}
}

func TestFlattenUnknownImage(t *testing.T) {
	reg, _ := setup(t)
	_, err := New(reg, nil).Flatten(whiteSource("other", 4, 4), Options{})
	if !errors.Is(err, session.ErrImageNotFound) {
		t.Errorf("error = %v, want ErrImageNotFound", err)
	}
}

func TestFlattenSizeMismatch(t *testing.T) {
	reg, _ := setup(t)
	if _, err := New(reg, nil).Flatten(whiteSource("page", 10, 10), Options{}); err == nil {
		t.Error("mismatched source accepted")
	}
}

func TestWritePDF(t *testing.T) {
	reg, src := setup(t)
	second := whiteSource("second", 20, 20)
	if err := imagesrc.Register(reg, second); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := New(reg, nil).WritePDF(&buf, []*imagesrc.Source{src, second}, Options{}); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output does not start with a PDF header: %q", buf.Bytes()[:min(8, buf.Len())])
	}

	if err := New(reg, nil).WritePDF(&buf, nil, Options{}); err == nil {
		t.Error("empty export accepted")
	}
}
