package llm

import (
	"errors"
	"iter"
	"strings"
	"sync/atomic"
)

var (
	// ErrStreamConsumed is reported when a Fragments sequence is ranged over a second time
	ErrStreamConsumed = errors.New("fragment stream already consumed")
	// ErrStreamAbandoned is reported when the consumer stops ranging before the stream ends
	ErrStreamAbandoned = errors.New("fragment stream abandoned before completion")
	// ErrStreamTruncated is reported when the provider closes the stream without a final chunk
	ErrStreamTruncated = errors.New("fragment stream ended without completion")
)

// StreamResult summarizes a finished fragment stream
type StreamResult struct {
	Text  string
	Usage *Usage
	Err   error
}

// Fragments is a lazy, finite, single-use sequence of text fragments read from a
// provider stream. The finish callback runs exactly once, when the sequence ends
// for any reason.
type Fragments struct {
	chunks <-chan StreamChunk
	finish func(StreamResult)
	used   atomic.Bool

	result StreamResult
}

// NewFragments wraps a provider chunk channel
func NewFragments(chunks <-chan StreamChunk, finish func(StreamResult)) *Fragments {
	return &Fragments{chunks: chunks, finish: finish}
}

// All yields each non-empty fragment in arrival order. Ranging over the
// sequence a second time yields nothing.
func (f *Fragments) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !f.used.CompareAndSwap(false, true) {
			return
		}

		var text strings.Builder
		done := false
		defer func() {
			f.result.Text = text.String()
			if f.result.Err == nil && !done {
				f.result.Err = ErrStreamTruncated
			}
			if f.finish != nil {
				f.finish(f.result)
			}
		}()

		for chunk := range f.chunks {
			if chunk.Error != nil {
				f.result.Err = chunk.Error
				return
			}
			if chunk.Content != "" {
				text.WriteString(chunk.Content)
				if !yield(chunk.Content) {
					f.result.Err = ErrStreamAbandoned
					return
				}
			}
			if chunk.Done {
				f.result.Usage = chunk.Usage
				done = true
				return
			}
		}
	}
}

// Result returns the summary of a consumed stream. It is only meaningful after
// ranging over All has returned.
func (f *Fragments) Result() StreamResult {
	return f.result
}

// Collect drains the stream and returns the assembled text
func (f *Fragments) Collect() (string, error) {
	if f.used.Load() {
		return "", ErrStreamConsumed
	}
	for range f.All() {
	}
	return f.result.Text, f.result.Err
}
