package framework

import (
	"context"

	"github.com/Sumatoshi-tech/jseries/internal/extract"
	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// Session is a build running in the background. Cancel may be called from
// any goroutine, for example a UI stop action or a signal handler.
type Session struct {
	cancel  context.CancelFunc
	done    chan struct{}
	history *model.History
	err     error
}

// Start runs Build on a new goroutine.
func (e *Engine) Start(ctx context.Context, inputs []extract.VersionInput, concurrency int) *Session {
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer cancel()

		s.history, s.err = e.Build(ctx, inputs, concurrency)
	}()

	return s
}

// Cancel requests cancellation. It does not wait.
func (s *Session) Cancel() { s.cancel() }

// Done is closed when the build has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the build finishes and returns its outcome.
func (s *Session) Wait() (*model.History, error) {
	<-s.done

	return s.history, s.err
}
