package recovery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/form"
)

// Scope ties one form to the overlay for the duration of a run. Close writes
// the form's facts back exactly once.
type Scope struct {
	overlay *Overlay
	form    *form.Form

	once sync.Once
	err  error
}

// Open starts a scope for f. Callers must Close it, typically with defer.
func (o *Overlay) Open(f *form.Form) *Scope {
	return &Scope{overlay: o, form: f}
}

// Close persists the form's facts. The write runs even when ctx is already
// cancelled. Later calls return the first result.
func (s *Scope) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.overlay.Persist(context.WithoutCancel(ctx), s.form)
		if s.err != nil {
			zap.L().Error("recovery: write-back failed", zap.Stringer("key", s.form.Key()), zap.Error(s.err))
		}
	})
	return s.err
}

// Render runs the form to completion through r inside a scope. Facts are
// written back on every path; a write-back failure is returned only when
// rendering itself succeeded.
func Render(ctx context.Context, o *Overlay, f *form.Form, r form.Renderer) (out string, err error) {
	scope := o.Open(f)
	defer func() {
		if cerr := scope.Close(ctx); err == nil {
			err = cerr
		}
	}()
	return f.Render(ctx, r)
}
