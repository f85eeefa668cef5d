package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	endpoint string
	dbOK     bool
	cacheOK  bool
}

func NewInfoHandler(endpoint string, dbOK, cacheOK bool) *InfoHandler {
	return &InfoHandler{endpoint: endpoint, dbOK: dbOK, cacheOK: cacheOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	Overpass string   `json:"overpass" doc:"Overpass API endpoint"`
	DB       bool     `json:"db" doc:"Whether the run archive is available"`
	Cache    bool     `json:"cache" doc:"Whether the Overpass response cache is enabled"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"overpass", "extrusion", "undo", "obj", "geojson"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-massing",
		Version:  "0.1.0",
		Overpass: h.endpoint,
		DB:       h.dbOK,
		Cache:    h.cacheOK,
		Features: features,
	}}, nil
}
