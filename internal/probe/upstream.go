package probe

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/status"
)

// Names reported by RuntimeStatus for the source that answered.
const (
	SourceModelStatus = "models/status"
	SourceDiagnostics = "diagnostics"
)

// Upstream knows the endpoint layout of the inference, retrieval and audio services.
type Upstream struct {
	prober    *Prober
	endpoints config.EndpointsConfig
}

func NewUpstream(p *Prober, endpoints config.EndpointsConfig) *Upstream {
	return &Upstream{prober: p, endpoints: endpoints}
}

// Endpoints returns the resolved base URLs.
func (u *Upstream) Endpoints() config.EndpointsConfig { return u.endpoints }

// BaseURL returns the base URL for a service key (llm, rag, audio).
func (u *Upstream) BaseURL(key string) string {
	switch key {
	case "llm":
		return u.endpoints.LLM
	case "rag":
		return u.endpoints.RAG
	case "audio":
		return u.endpoints.Audio
	}
	return ""
}

func join(base, path string, query url.Values) string {
	s := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		s += "?" + query.Encode()
	}
	return s
}

// RuntimeStatus tries /internal/models/status, then /internal/diagnostics.
// Any failure of the first source falls through, not only 404.
func (u *Upstream) RuntimeStatus(ctx context.Context) (status.ModelRuntimeStatus, string, error) {
	return First(ctx, u.modelStatusSource(), u.diagnosticsSource())
}

func (u *Upstream) modelStatusSource() Source[status.ModelRuntimeStatus] {
	return NewSource(SourceModelStatus, func(ctx context.Context) (status.ModelRuntimeStatus, bool) {
		res := u.prober.ProbeTimed(ctx, join(u.endpoints.LLM, "/internal/models/status", nil))
		if !res.OK {
			return status.ModelRuntimeStatus{}, false
		}
		s, err := status.FromStatusEndpoint(res.Data)
		return s, err == nil
	})
}

func (u *Upstream) diagnosticsSource() Source[status.ModelRuntimeStatus] {
	return NewSource(SourceDiagnostics, func(ctx context.Context) (status.ModelRuntimeStatus, bool) {
		res := u.prober.ProbeTimed(ctx, join(u.endpoints.LLM, "/internal/diagnostics", nil))
		if !res.OK {
			return status.ModelRuntimeStatus{}, false
		}
		s, err := status.FromDiagnostics(res.Data)
		return s, err == nil
	})
}

// Ecosystem fetches the aggregate status. ok is false when the endpoint is
// unavailable or did not return an aggregate.
func (u *Upstream) Ecosystem(ctx context.Context, collection string) (status.Ecosystem, bool) {
	q := url.Values{}
	if collection != "" {
		q.Set("collection", collection)
	}
	res := u.prober.ProbeTimed(ctx, join(u.endpoints.LLM, "/internal/ecosystem/status", q))
	if !res.OK {
		return status.Ecosystem{}, false
	}
	eco, err := status.ParseEcosystem(res.Data, collection)
	if err != nil {
		return status.Ecosystem{}, false
	}
	return eco, true
}

// Health probes {base}/health.
func (u *Upstream) Health(ctx context.Context, base string) Result {
	return u.prober.ProbeTimed(ctx, join(base, "/health", nil))
}

// StatsURL is the rag_stats URL for one collection.
func (u *Upstream) StatsURL(collection string) string {
	return join(u.endpoints.RAG, "/rag_stats", url.Values{"collection": {collection}})
}

// RAGStats fetches statistics for one retrieval collection.
func (u *Upstream) RAGStats(ctx context.Context, collection string) (status.CollectionStats, bool) {
	res := u.prober.ProbeTimed(ctx, u.StatsURL(collection))
	if !res.OK {
		return status.CollectionStats{}, false
	}
	return status.ExtractStats(res.Data), true
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Models lists the model catalog from /v1/models.
func (u *Upstream) Models(ctx context.Context) ([]string, bool) {
	res := u.prober.ProbeTimed(ctx, join(u.endpoints.LLM, "/v1/models", nil))
	if !res.OK {
		return nil, false
	}
	var list modelList
	if err := json.Unmarshal(res.Data, &list); err != nil {
		return nil, false
	}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, true
}

type loadRequest struct {
	ModelID string `json:"model_id"`
	Force   bool   `json:"force"`
}

type unloadRequest struct {
	Force bool `json:"force"`
}

// LoadModel asks the inference server to load modelID.
func (u *Upstream) LoadModel(ctx context.Context, modelID string, force bool) Result {
	return u.prober.Post(ctx, join(u.endpoints.LLM, "/internal/models/load", nil), loadRequest{ModelID: modelID, Force: force})
}

// UnloadModel asks the inference server to release the current model.
func (u *Upstream) UnloadModel(ctx context.Context, force bool) Result {
	return u.prober.Post(ctx, join(u.endpoints.LLM, "/internal/models/unload", nil), unloadRequest{Force: force})
}
