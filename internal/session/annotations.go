package session

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/internal/annotation"
	"image-annotator/internal/event"
)

// Append adds a to its image and pushes one undo command that removes it
// again. An id already present on the image, deleted or not, is rejected.
func (r *Registry) Append(a annotation.Annotation) error {
	imageID := a.ImageID()
	r.mu.Lock()
	img := r.image(imageID)
	if img == nil {
		r.mu.Unlock()
		return fmt.Errorf("append %s: image %s: %w", a.ID(), imageID, ErrImageNotFound)
	}
	if img.index(a.ID()) >= 0 {
		r.mu.Unlock()
		return fmt.Errorf("append %s to image %s: %w", a.ID(), imageID, ErrDuplicateID)
	}
	if h := a.Header(); h.Author == "" {
		h.Author = r.author
	}
	img.annotations = append(img.annotations, a)
	r.modified = true
	r.mu.Unlock()

	a.Attach(r.bus)
	id := a.ID()
	r.push("append "+id, func() { r.remove(imageID, id) })
	r.logger.Debug("annotation appended", zap.String("image", imageID), zap.String("annotation", id), zap.String("kind", string(a.Kind())))
	r.emitChange(event.ChangeAdd, imageID, id)
	return nil
}

// remove takes an annotation out of its image entirely. It is the inverse of
// Append and tolerates an image that has since been removed.
func (r *Registry) remove(imageID, id string) {
	r.mu.Lock()
	img := r.image(imageID)
	if img == nil {
		r.mu.Unlock()
		return
	}
	idx := img.index(id)
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	a := img.annotations[idx]
	img.annotations = append(img.annotations[:idx], img.annotations[idx+1:]...)
	r.clearRefs(imageID, id)
	r.modified = true
	r.mu.Unlock()

	a.Attach(nil)
	r.emitChange(event.ChangeDelete, imageID, id)
}

func (r *Registry) clearRefs(imageID, id string) {
	if r.selected == (ref{imageID, id}) {
		r.selected = ref{}
	}
	if r.focused == (ref{imageID, id}) {
		r.focused = ref{}
	}
}

// Delete tombstones an annotation and pushes an undo command that revives it.
func (r *Registry) Delete(imageID, id string) error {
	r.mu.Lock()
	a := r.find(imageID, id)
	if a == nil {
		r.mu.Unlock()
		return fmt.Errorf("delete %s on image %s: %w", id, imageID, ErrAnnotationNotFound)
	}
	a.SetDeleted(true)
	r.clearRefs(imageID, id)
	r.modified = true
	r.mu.Unlock()

	r.push("delete "+id, func() {
		r.mu.Lock()
		img := r.image(imageID)
		if img == nil || img.index(id) < 0 {
			r.mu.Unlock()
			return
		}
		a.SetDeleted(false)
		r.modified = true
		r.mu.Unlock()
		r.emitChange(event.ChangeAdd, imageID, id)
	})
	r.emitChange(event.ChangeDelete, imageID, id)
	return nil
}

// find returns a live annotation. The caller holds r.mu.
func (r *Registry) find(imageID, id string) annotation.Annotation {
	img := r.image(imageID)
	if img == nil {
		return nil
	}
	idx := img.index(id)
	if idx < 0 || img.annotations[idx].Deleted() {
		return nil
	}
	return img.annotations[idx]
}

// Find returns a live annotation. Continuations resumed after a suspension
// use it to re-validate their target.
func (r *Registry) Find(imageID, id string) (annotation.Annotation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.find(imageID, id)
	return a, a != nil
}

// Annotations returns the live annotations of an image in order.
func (r *Registry) Annotations(imageID string) []annotation.Annotation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img := r.image(imageID)
	if img == nil {
		return nil
	}
	return img.Annotations()
}

func (r *Registry) onEditRequest(req event.EditRequest) {
	if req.Undo == nil {
		return
	}
	r.SetModified(true)
	r.push(req.Label, func() {
		r.mu.RLock()
		img := r.image(req.ImageID)
		ok := img != nil && img.index(req.AnnotationID) >= 0
		r.mu.RUnlock()
		if !ok {
			r.logger.Debug("undo target gone", zap.String("image", req.ImageID), zap.String("annotation", req.AnnotationID))
			return
		}
		req.Undo()
		r.SetModified(true)
		r.emitChange(event.ChangeEdit, req.ImageID, req.AnnotationID)
	})
	r.emitChange(event.ChangeEdit, req.ImageID, req.AnnotationID)
}

// Undo reverts the most recent mutation across every image. It reports
// false, doing nothing, on an empty stack.
func (r *Registry) Undo() bool {
	cmd, ok := r.history.Undo()
	if ok {
		r.logger.Debug("undo", zap.String("command", cmd.Label))
	}
	return ok
}

// CanUndo reports whether Undo would do anything.
func (r *Registry) CanUndo() bool { return r.history.Len() > 0 }

// Select marks an annotation as selected. An empty id clears the selection.
func (r *Registry) Select(imageID, id string) {
	r.mu.Lock()
	if id != "" && r.find(imageID, id) == nil {
		r.mu.Unlock()
		return
	}
	r.selected = ref{imageID, id}
	r.mu.Unlock()
	if id == "" {
		r.emitChange(event.ChangeSelect, imageID)
		return
	}
	r.emitChange(event.ChangeSelect, imageID, id)
}

// Selected returns the selected annotation.
func (r *Registry) Selected() (annotation.Annotation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.find(r.selected.imageID, r.selected.annotationID)
	return a, a != nil
}

// Focus marks an annotation as focused, for keyboard input.
func (r *Registry) Focus(imageID, id string) {
	r.mu.Lock()
	if id != "" && r.find(imageID, id) == nil {
		r.mu.Unlock()
		return
	}
	r.focused = ref{imageID, id}
	r.mu.Unlock()
	if id == "" {
		r.emitChange(event.ChangeFocus, imageID)
		return
	}
	r.emitChange(event.ChangeFocus, imageID, id)
}

// Focused returns the focused annotation.
func (r *Registry) Focused() (annotation.Annotation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.find(r.focused.imageID, r.focused.annotationID)
	return a, a != nil
}

// HitTest returns the topmost live annotation within tol of p, given in
// image space.
func (r *Registry) HitTest(imageID string, p r2.Vec, tol float64) (annotation.Annotation, bool) {
	anns := r.Annotations(imageID)
	for i := len(anns) - 1; i >= 0; i-- {
		if anns[i].HitTest(p, tol) {
			return anns[i], true
		}
	}
	return nil, false
}

// Rendered pairs an annotation with its appearance.
type Rendered struct {
	Annotation annotation.Annotation
	Appearance *annotation.Appearance
}

// RenderAll renders every live annotation of an image. A failing
// annotation, by error or panic, is logged and left out.
func (r *Registry) RenderAll(imageID string) []Rendered {
	anns := r.Annotations(imageID)
	out := make([]Rendered, 0, len(anns))
	for _, a := range anns {
		app, err := r.render(a)
		if err != nil {
			r.logger.Warn("annotation render failed",
				zap.String("image", imageID),
				zap.String("annotation", a.ID()),
				zap.String("kind", string(a.Kind())),
				zap.Error(err))
			continue
		}
		out = append(out, Rendered{Annotation: a, Appearance: app})
	}
	return out
}

func (r *Registry) render(a annotation.Annotation) (app *annotation.Appearance, err error) {
	defer func() {
		if p := recover(); p != nil {
			app, err = nil, fmt.Errorf("render panicked: %v", p)
		}
	}()
	return a.Render(r.renderOpts)
}
