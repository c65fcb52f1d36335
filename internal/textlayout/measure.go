// Package textlayout measures annotation text with gg/text and fits text
// boxes to their content.
package textlayout

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
)

// Measurer caches faces of one font source by size. It implements
// annotation.FaceSource and is safe for concurrent use.
type Measurer struct {
	mu    sync.Mutex
	src   *text.FontSource
	faces map[float64]text.Face
}

// New returns a measurer over the bundled Go Regular font.
func New() (*Measurer, error) {
	return NewFromData(goregular.TTF)
}

// NewFromData returns a measurer over a TTF or OTF font.
func NewFromData(data []byte) (*Measurer, error) {
	src, err := text.NewFontSource(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	return &Measurer{src: src, faces: make(map[float64]text.Face)}, nil
}

// NewFromFile returns a measurer over a font file.
func NewFromFile(path string) (*Measurer, error) {
	src, err := text.NewFontSourceFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", path, err)
	}
	return &Measurer{src: src, faces: make(map[float64]text.Face)}, nil
}

// Face returns the face for size, creating it on first use.
func (m *Measurer) Face(size float64) text.Face {
	if size <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.faces[size]
	if !ok {
		f = m.src.Face(size)
		m.faces[size] = f
	}
	return f
}

// Lines breaks content into the lines it is drawn as. Hard breaks are
// kept; maxWidth <= 0 disables wrapping.
func (m *Measurer) Lines(content string, size, maxWidth float64) []string {
	face := m.Face(size)
	if face == nil {
		return nil
	}
	if maxWidth <= 0 {
		return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	}
	wrapped := text.WrapText(content, face, maxWidth, text.WrapWord)
	out := make([]string, len(wrapped))
	for i, w := range wrapped {
		out[i] = w.Text
	}
	return out
}

// Measure returns the extent of content drawn at size within maxWidth:
// the widest line and the total line height.
func (m *Measurer) Measure(content string, size, maxWidth float64) (width, height float64) {
	face := m.Face(size)
	if face == nil {
		return 0, 0
	}
	lines := m.Lines(content, size, maxWidth)
	for _, l := range lines {
		width = math.Max(width, text.MeasureText(l, face))
	}
	return width, float64(len(lines)) * face.Metrics().LineHeight()
}

// Close releases the font.
func (m *Measurer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = make(map[float64]text.Face)
	return m.src.Close()
}
