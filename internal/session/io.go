package session

import (
	"fmt"

	"go.uber.org/zap"

	"image-annotator/internal/annotation"
	"image-annotator/internal/event"
)

// Import adds annotations from DTOs to an image. Every DTO is validated
// first, so a malformed batch changes nothing. Imported annotations are a
// loaded baseline and push no undo command.
func (r *Registry) Import(imageID string, dtos []annotation.DTO) ([]annotation.Annotation, error) {
	anns, err := annotation.FromDTOs(dtos)
	if err != nil {
		return nil, fmt.Errorf("import into image %s: %w", imageID, err)
	}

	r.mu.Lock()
	img := r.image(imageID)
	if img == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("import into image %s: %w", imageID, ErrImageNotFound)
	}
	seen := make(map[string]bool, len(anns))
	for _, a := range anns {
		if a.ImageID() != imageID {
			r.mu.Unlock()
			return nil, fmt.Errorf("import %s: belongs to image %s, not %s: %w", a.ID(), a.ImageID(), imageID, annotation.ErrInvalidDTO)
		}
		if seen[a.ID()] || img.index(a.ID()) >= 0 {
			r.mu.Unlock()
			return nil, fmt.Errorf("import %s into image %s: %w", a.ID(), imageID, ErrDuplicateID)
		}
		seen[a.ID()] = true
	}
	img.annotations = append(img.annotations, anns...)
	r.mu.Unlock()

	ids := make([]string, len(anns))
	for i, a := range anns {
		a.Attach(r.bus)
		ids[i] = a.ID()
	}
	r.logger.Info("annotations imported", zap.String("image", imageID), zap.Int("count", len(anns)))
	r.emitChange(event.ChangeImport, imageID, ids...)
	return anns, nil
}

// ImportJSON is Import for the text form produced by ExportJSON.
func (r *Registry) ImportJSON(imageID string, data []byte) ([]annotation.Annotation, error) {
	dtos, err := annotation.UnmarshalDTOs(data)
	if err != nil {
		return nil, fmt.Errorf("import into image %s: %w", imageID, err)
	}
	return r.Import(imageID, dtos)
}

// Export returns the DTOs of an image's live annotations in order.
func (r *Registry) Export(imageID string) ([]annotation.DTO, error) {
	r.mu.RLock()
	img := r.image(imageID)
	if img == nil {
		r.mu.RUnlock()
		return nil, fmt.Errorf("export image %s: %w", imageID, ErrImageNotFound)
	}
	anns := img.Annotations()
	r.mu.RUnlock()
	return annotation.ToDTOs(anns), nil
}

// ExportJSON is Export in its serialized text form.
func (r *Registry) ExportJSON(imageID string) ([]byte, error) {
	dtos, err := r.Export(imageID)
	if err != nil {
		return nil, err
	}
	return annotation.MarshalDTOs(dtos)
}
