// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-massing/internal/extrude"
	"github.com/joeblew999/plat-massing/internal/geo"
	"github.com/joeblew999/plat-massing/internal/overpass"
	"github.com/joeblew999/plat-massing/internal/service"
)

// ContextRunner is the pipeline the API drives. Implemented by
// service.ContextService.
type ContextRunner interface {
	Create(ctx context.Context, req service.CreateRequest) (service.RunReport, error)
	Undo(ctx context.Context) (service.UndoReport, error)
	History() []int64
	Location(ctx context.Context) (service.Location, error)
}

// Services holds the service dependencies for API handlers.
type Services struct {
	Context ContextRunner
	Bus     *service.EventBus
}

// Types

type CreateInput struct {
	Body service.CreateRequest
}

type RunOutput struct {
	Body service.RunReport
}

type UndoOutput struct {
	Body service.UndoReport
}

type HistoryBody struct {
	Histories []int64 `json:"histories" doc:"Run history ids, oldest first"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// RunError is a failed run. It carries the partial report so callers can see
// what was created before the failure.
type RunError struct {
	Status int                `json:"status" doc:"HTTP status code"`
	Title  string             `json:"title" doc:"Short error summary"`
	Detail string             `json:"detail" doc:"Error detail"`
	Report *service.RunReport `json:"report,omitempty" doc:"Partial run report"`
}

func (e *RunError) Error() string  { return e.Detail }
func (e *RunError) GetStatus() int { return e.Status }

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterContext registers the context creation and undo routes.
func (h *APIHandler) RegisterContext(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-context",
		Method:        http.MethodPost,
		Path:          "/api/v1/context",
		Summary:       "Create context buildings around a point",
		Tags:          []string{"context"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateContext)
	huma.Post(api, "/api/v1/context/undo", h.UndoContext, huma.OperationTags("context"))
	huma.Get(api, "/api/v1/history", h.GetHistory, huma.OperationTags("context"))
	huma.Get(api, "/api/v1/location", h.GetLocation, huma.OperationTags("context"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) CreateContext(ctx context.Context, input *CreateInput) (*RunOutput, error) {
	if h.svc == nil || h.svc.Context == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	report, err := h.svc.Context.Create(ctx, input.Body)
	if err != nil {
		return nil, runError(report, err)
	}
	return &RunOutput{Body: report}, nil
}

func (h *APIHandler) UndoContext(ctx context.Context, input *struct{}) (*UndoOutput, error) {
	if h.svc == nil || h.svc.Context == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	report, err := h.svc.Context.Undo(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("undo failed", err)
	}
	return &UndoOutput{Body: report}, nil
}

func (h *APIHandler) GetHistory(ctx context.Context, input *struct{}) (*struct{ Body HistoryBody }, error) {
	histories := []int64{}
	if h.svc != nil && h.svc.Context != nil {
		histories = append(histories, h.svc.Context.History()...)
	}
	return &struct{ Body HistoryBody }{Body: HistoryBody{Histories: histories}}, nil
}

func (h *APIHandler) GetLocation(ctx context.Context, input *struct{}) (*struct{ Body service.Location }, error) {
	if h.svc == nil || h.svc.Context == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	loc, err := h.svc.Context.Location(ctx)
	if err != nil {
		return nil, huma.Error404NotFound("site location not available", err)
	}
	return &struct{ Body service.Location }{Body: loc}, nil
}

// runError maps a pipeline error to its HTTP status.
func runError(report service.RunReport, err error) error {
	var (
		inv *geo.InvalidInputError
		dse *overpass.DataSourceError
		ge  *extrude.GeometryError
	)
	switch {
	case errors.As(err, &inv):
		return huma.Error400BadRequest(err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return &RunError{Status: http.StatusGatewayTimeout, Title: "Gateway Timeout", Detail: err.Error()}
	case errors.As(err, &dse):
		return &RunError{Status: http.StatusBadGateway, Title: "Bad Gateway", Detail: err.Error()}
	case errors.As(err, &ge):
		return &RunError{Status: http.StatusInternalServerError, Title: "Geometry Error", Detail: err.Error(), Report: &report}
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
