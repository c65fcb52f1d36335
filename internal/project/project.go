// Package project provides project file handling and persistence.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"image-annotator/internal/annotation"
	"image-annotator/internal/coords"
	imagesrc "image-annotator/internal/image"
	"image-annotator/internal/session"
)

// Extension is the project file suffix.
const Extension = ".annproj"

// CurrentVersion is the file format written by Save.
const CurrentVersion = 1

// File represents an annotation project file (.annproj).
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`

	Images []ImageRef `json:"images"`
}

// ImageRef is one image of the project with its view state and annotations.
type ImageRef struct {
	ID string `json:"id"`
	// Path is relative to the project file when possible.
	Path        string           `json:"path"`
	Rotation    int              `json:"rotation"`
	Scale       float64          `json:"scale"`
	Annotations []annotation.DTO `json:"annotations"`
}

// New creates an empty project.
func New(name string) *File {
	now := time.Now()
	return &File{
		Version:  CurrentVersion,
		Name:     name,
		Created:  now,
		Modified: now,
	}
}

// Load loads a project from an .annproj file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var proj File
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", path, err)
	}
	if proj.Version > CurrentVersion {
		return nil, fmt.Errorf("project %s has format version %d, newest supported is %d", path, proj.Version, CurrentVersion)
	}
	return &proj, nil
}

// Save saves the project to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()
	p.Version = CurrentVersion

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// relPath returns imagePath relative to the project directory.
func relPath(projectPath, imagePath string) string {
	rel, err := filepath.Rel(filepath.Dir(projectPath), imagePath)
	if err != nil {
		return imagePath
	}
	return rel
}

// ImagePath returns the absolute path of ref's image.
func (p *File) ImagePath(projectPath string, ref ImageRef) string {
	if ref.Path == "" || filepath.IsAbs(ref.Path) {
		return ref.Path
	}
	return filepath.Join(filepath.Dir(projectPath), ref.Path)
}

// Capture replaces the image list with the registry's view of srcs: their
// rotation, scale and live annotations.
func (p *File) Capture(projectPath string, reg *session.Registry, srcs []*imagesrc.Source) error {
	refs := make([]ImageRef, 0, len(srcs))
	for _, src := range srcs {
		img, ok := reg.Image(src.ID)
		if !ok {
			return fmt.Errorf("capture %s: %w", src.ID, session.ErrImageNotFound)
		}
		dtos, err := reg.Export(src.ID)
		if err != nil {
			return err
		}
		refs = append(refs, ImageRef{
			ID:          src.ID,
			Path:        relPath(projectPath, src.Path),
			Rotation:    int(img.Rotation),
			Scale:       img.Scale,
			Annotations: dtos,
		})
	}
	p.Images = refs
	if a := reg.Author(); a != "" && p.Author == "" {
		p.Author = a
	}
	return nil
}

// Open decodes the project's images, registers them with their view state
// and imports their annotations. The registry ends up unmodified.
func (p *File) Open(ctx context.Context, projectPath string, reg *session.Registry) ([]*imagesrc.Source, error) {
	paths := make([]string, len(p.Images))
	for i, ref := range p.Images {
		paths[i] = p.ImagePath(projectPath, ref)
	}
	srcs, err := imagesrc.LoadAll(ctx, paths, 0)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", p.Name, err)
	}

	for i, ref := range p.Images {
		rot, err := coords.ParseRotation(ref.Rotation)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", ref.ID, err)
		}
		srcs[i].ID = ref.ID
		if err := imagesrc.Register(reg, srcs[i]); err != nil {
			return nil, err
		}
		if err := reg.SetRotation(ref.ID, rot); err != nil {
			return nil, err
		}
		if ref.Scale > 0 {
			if err := reg.SetScale(ref.ID, ref.Scale); err != nil {
				return nil, err
			}
		}
		if _, err := reg.Import(ref.ID, ref.Annotations); err != nil {
			return nil, err
		}
	}
	reg.SetModified(false)
	return srcs, nil
}
