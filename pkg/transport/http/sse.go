package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/unigen/pkg/api"
	"github.com/rhuss/unigen/pkg/transport"
)

type writerState int

const (
	writerIdle writerState = iota
	writerStreaming
	writerCompleted
)

// sseResponseWriter writes stream events as server-sent events and
// results as a JSON body.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

func newSSEResponseWriter(w http.ResponseWriter) *sseResponseWriter {
	return &sseResponseWriter{w: w, rc: http.NewResponseController(w)}
}

// WriteEvent sends one event as
//
//	event: {kind}
//	data: {json}
//
// and follows a terminal event with "data: [DONE]".
func (s *sseResponseWriter) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("stream already completed")
	}
	if s.state == writerIdle {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.state = writerStreaming
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if ev.IsTerminal() {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("write done: %w", err)
		}
		s.state = writerCompleted
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// WriteResult sends res as the JSON body.
func (s *sseResponseWriter) WriteResult(_ context.Context, res *api.GenerateResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return errors.New("cannot write result: streaming has started")
	case writerCompleted:
		return errors.New("cannot write result: writer is completed")
	}
	s.state = writerCompleted
	s.w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(s.w).Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// streaming reports whether any event went out, so errors must be sent
// as events rather than a JSON body.
func (s *sseResponseWriter) streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerStreaming
}

func (s *sseResponseWriter) completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerCompleted
}
