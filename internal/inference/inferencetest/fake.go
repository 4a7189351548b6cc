// Package inferencetest provides a scripted inference.Client for tests.
package inferencetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Call records one Complete invocation.
type Call struct {
	Prompt   string
	Document string
}

// Fake answers Complete from a prompt-keyed reply table. A prompt with no
// reply fails with domain.ErrInferenceUnavailable.
type Fake struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []Call

	// Handler, when set, takes precedence over the reply table.
	Handler func(prompt, document string) (string, error)
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{replies: map[string]string{}, errs: map[string]error{}}
}

// Reply scripts the completion returned for prompt.
func (f *Fake) Reply(prompt, completion string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[prompt] = completion
	return f
}

// Fail scripts an error for prompt.
func (f *Fake) Fail(prompt string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[prompt] = err
	return f
}

// Complete implements inference.Client.
func (f *Fake) Complete(_ context.Context, prompt, document string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: prompt, Document: document})
	handler := f.Handler
	reply, ok := f.replies[prompt]
	err := f.errs[prompt]
	f.mu.Unlock()

	if handler != nil {
		return handler(prompt, document)
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("inferencetest: %w: no reply scripted", domain.ErrInferenceUnavailable)
	}
	return reply, nil
}

// Calls returns a copy of every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor counts calls made with prompt.
func (f *Fake) CallsFor(prompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Prompt == prompt {
			n++
		}
	}
	return n
}
