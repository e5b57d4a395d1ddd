// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/events"
)

// Request defaults used when a field is left empty.
const (
	DefaultModel   = "dall-e-3"
	DefaultSize    = "1024x1024"
	DefaultQuality = "standard"
	DefaultStyle   = "vivid"
)

// ErrSuperseded is returned when a newer Generate call started before this
// one resolved. The result, if any, was discarded.
var ErrSuperseded = errors.New("image request superseded by a newer request")

// API is the slice of the backend client the workflow needs.
type API interface {
	Bound() bool
	GenerateImage(ctx context.Context, req backend.ImageRequest) (*backend.ImageResponse, error)
}

// Request describes one image to generate.
type Request struct {
	Prompt  string
	Model   string
	Size    string
	Quality string
	Style   string
}

// Result is a generated image.
type Result struct {
	Seq           uint64
	Prompt        string
	URL           string
	RevisedPrompt string
}

// State is the content of the display slot.
type State struct {
	Seq     uint64
	Pending bool
	Result  *Result
	Err     error
}

// Workflow issues image requests and keeps only the newest outcome.
type Workflow struct {
	api      API
	defaults Request
	bus      *events.Bus
	logger   *zap.Logger

	mu    sync.Mutex
	seq   uint64
	state State

	unsubscribe func()
}

// NewWorkflow creates a workflow. Empty fields in defaults fall back to the
// package defaults. The slot is cleared when the backend disconnects.
func NewWorkflow(api API, defaults Request, bus *events.Bus, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workflow{
		api:      api,
		defaults: fillDefaults(defaults, Request{Model: DefaultModel, Size: DefaultSize, Quality: DefaultQuality, Style: DefaultStyle}),
		bus:      bus,
		logger:   logger.Named("imagegen"),
	}
	w.unsubscribe = bus.Subscribe(events.KindDisconnected, func(events.Event) {
		w.Reset()
	})
	return w
}

// Close detaches the workflow from the bus.
func (w *Workflow) Close() {
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

// Defaults returns the effective request defaults.
func (w *Workflow) Defaults() Request {
	return w.defaults
}

// Generate requests an image for req. The slot is cleared and marked pending
// before the request is sent. The response is shown only if this is still
// the latest call when it resolves.
func (w *Workflow) Generate(ctx context.Context, req Request) (*Result, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, backend.NewError(backend.ErrTypeInvalidInput, "image prompt is empty")
	}
	if !w.api.Bound() {
		return nil, backend.ErrUnbound
	}
	req = fillDefaults(req, w.defaults)

	w.mu.Lock()
	w.seq++
	mine := w.seq
	w.state = State{Seq: mine, Pending: true}
	w.mu.Unlock()

	w.bus.Publish(events.Event{
		Source: events.SourceImage,
		Kind:   events.KindImageStarted,
		Data:   map[string]any{"seq": int(mine)},
	})
	w.logger.Debug("image request started", zap.Uint64("seq", mine), zap.String("model", req.Model))

	resp, err := w.api.GenerateImage(ctx, backend.ImageRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Quality: req.Quality,
		Style:   req.Style,
		N:       1,
	})

	w.mu.Lock()
	if w.seq != mine {
		w.mu.Unlock()
		w.logger.Debug("image result discarded", zap.Uint64("seq", mine))
		w.bus.Publish(events.Event{
			Source: events.SourceImage,
			Kind:   events.KindImageDiscarded,
			Data:   map[string]any{"seq": int(mine)},
		})
		return nil, ErrSuperseded
	}
	if err != nil {
		err = fmt.Errorf("generate image: %w", err)
		w.state = State{Seq: mine, Err: err}
		w.mu.Unlock()
		w.logger.Warn("image request failed", zap.Uint64("seq", mine), zap.Error(err))
		return nil, err
	}
	result := &Result{Seq: mine, Prompt: req.Prompt, URL: resp.URL, RevisedPrompt: resp.RevisedPrompt}
	w.state = State{Seq: mine, Result: result}
	w.mu.Unlock()

	w.bus.Publish(events.Event{
		Source: events.SourceImage,
		Kind:   events.KindImageResult,
		Data:   map[string]any{"seq": int(mine), "url": result.URL, "revised_prompt": result.RevisedPrompt},
	})
	out := *result
	return &out, nil
}

// Current returns the display slot.
func (w *Workflow) Current() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.state
	if st.Result != nil {
		r := *st.Result
		st.Result = &r
	}
	return st
}

// Reset empties the slot and supersedes any request still in flight.
func (w *Workflow) Reset() {
	w.mu.Lock()
	w.seq++
	w.state = State{Seq: w.seq}
	w.mu.Unlock()
}

func fillDefaults(req, defaults Request) Request {
	if req.Model == "" {
		req.Model = defaults.Model
	}
	if req.Size == "" {
		req.Size = defaults.Size
	}
	if req.Quality == "" {
		req.Quality = defaults.Quality
	}
	if req.Style == "" {
		req.Style = defaults.Style
	}
	return req
}
