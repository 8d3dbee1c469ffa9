package session

import (
	"context"
	"sync"
)

// readyPromise resolves exactly once, either with nil when the session
// becomes ready or with the error that prevented it. A reconnect
// supersedes the previous promise; late resolutions of a superseded
// promise are silently dropped by the sync.Once.
type readyPromise struct {
	once sync.Once
	ch   chan error
}

func newReadyPromise() *readyPromise {
	return &readyPromise{ch: make(chan error, 1)}
}

func (p *readyPromise) resolve(err error) {
	p.once.Do(func() { p.ch <- err })
}

func (p *readyPromise) wait(ctx context.Context) error {
	select {
	case err := <-p.ch:
		// Re-buffer so later waiters observe the same outcome.
		p.ch <- err
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
