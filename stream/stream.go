package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/render"
)

// Fragment is one chunk of display-safe text delivered to the client.
type Fragment struct {
	Text string
}

// HTML wraps the fragment in its own block element.
func (f Fragment) HTML() string { return "<p>" + f.Text + "</p>\n" }

// Source is the consumer side of a relay channel.
type Source interface {
	Receive() (core.Event, bool)
}

// Fragments returns the sequence of fragments read from src. It blocks on
// src for every pull and ends at the sentinel, which is the only termination
// condition. The sequence is single-use: the sentinel is sticky, so ranging
// over it again yields nothing. A nil normalize uses render.Normalize.
func Fragments(src Source, normalize render.Func) iter.Seq[Fragment] {
	if normalize == nil {
		normalize = render.Normalize
	}
	return func(yield func(Fragment) bool) {
		for {
			ev, ok := src.Receive()
			if !ok {
				return
			}
			if !yield(Fragment{Text: normalize(ev)}) {
				return
			}
		}
	}
}

// Write writes each fragment of seq to w and flushes it immediately.
//
// Once a write fails (the client went away) the remaining fragments are
// still pulled, without writing, so the producer side always reaches its
// sentinel. The first write error is returned.
func Write(w io.Writer, seq iter.Seq[Fragment]) error {
	var flush func() error
	if rw, ok := w.(http.ResponseWriter); ok {
		rc := http.NewResponseController(rw)
		flush = rc.Flush
	}

	var werr error
	for f := range seq {
		if werr != nil {
			continue
		}
		if _, err := io.WriteString(w, f.HTML()); err != nil {
			werr = fmt.Errorf("write fragment: %w", err)
			continue
		}
		if flush != nil {
			if err := flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				werr = fmt.Errorf("flush fragment: %w", err)
			}
		}
	}
	return werr
}
