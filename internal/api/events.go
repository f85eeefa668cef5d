package api

import (
	"context"
	"fmt"
	"html"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-massing/internal/service"
)

// EventHandler streams pipeline status events to a Datastar UI via SSE.
type EventHandler struct {
	bus *service.EventBus
}

// NewEventHandler creates a new event handler.
func NewEventHandler(bus *service.EventBus) *EventHandler {
	return &EventHandler{bus: bus}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events,
		huma.OperationTags("context"),
	)
}

// Events keeps the connection open and forwards every bus event as a
// status signal, an appended log line and a custom DOM event.
func (h *EventHandler) Events(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	if h.bus == nil {
		return nil, huma.Error503ServiceUnavailable("event bus not available")
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			// Subscribe before NewSSE flushes headers, so a client holding
			// the response cannot miss the next event.
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			r, w := humago.Unwrap(humaCtx)
			sse := datastar.NewSSE(w, r)

			done := humaCtx.Context().Done()
			for {
				select {
				case <-done:
					return
				case ev := <-ch:
					if err := send(sse, ev); err != nil {
						return
					}
				}
			}
		},
	}, nil
}

func send(sse *datastar.ServerSentEventGenerator, ev service.Event) error {
	signals := map[string]any{"status": ev.Message}
	if ev.Kind == service.EventError {
		signals["error"] = ev.Message
	}
	if ev.History != 0 {
		signals["history"] = ev.History
	}
	if err := sse.MarshalAndPatchSignals(signals); err != nil {
		return err
	}

	line := fmt.Sprintf(`<li class="%s">%s</li>`, ev.Kind, html.EscapeString(ev.Message))
	if err := sse.PatchElements(line, datastar.WithSelector("#status-log"), datastar.WithModeAppend()); err != nil {
		return err
	}

	return sse.DispatchCustomEvent("massing-"+ev.Kind, map[string]any{
		"message": ev.Message,
		"history": ev.History,
	})
}
