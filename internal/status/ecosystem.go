package status

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrNotAggregate is returned when a payload lacks the services object.
var ErrNotAggregate = errors.New("status: payload is not an ecosystem aggregate")

// Row status values.
const (
	RowOK      = "ok"
	RowDown    = "down"
	RowUnknown = "unknown"
)

// Row type values.
const (
	TypeService    = "service"
	TypeCollection = "collection"
)

// SystemRow is one line of the status table. Rebuilt on every poll cycle.
type SystemRow struct {
	Resource string `json:"resource"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Docs     string `json:"docs"`
	Updated  string `json:"updated"`
	Endpoint string `json:"endpoint"`
}

// Service names a dependent service by its aggregate key and table label.
type Service struct {
	Key      string
	Resource string
}

// Services lists every service the aggregate endpoint can report, in table order.
// The first three are probed directly when the aggregate is unavailable.
var Services = []Service{
	{Key: "llm", Resource: "mlx-llm"},
	{Key: "rag", Resource: "rag-service"},
	{Key: "audio", Resource: "audio-service"},
	{Key: "vlm", Resource: "vlm-service"},
	{Key: "mcp", Resource: "mcp-service"},
}

// ServiceReport is one service's entry in the aggregate.
type ServiceReport struct {
	OK      bool
	Status  string
	ModelID string
	Loaded  *bool
	URL     string
}

// Ecosystem is the decoded aggregate status.
type Ecosystem struct {
	Services    map[string]ServiceReport
	Collections map[string]CollectionStats
}

// ParseEcosystem decodes /internal/ecosystem/status. queried names the collection
// passed in the query string; a top-level rag_stats object is attributed to it.
func ParseEcosystem(data []byte, queried string) (Ecosystem, error) {
	if !gjson.ValidBytes(data) {
		return Ecosystem{}, ErrNotAggregate
	}
	root := gjson.ParseBytes(data)
	services := root.Get("services")
	if !services.IsObject() {
		return Ecosystem{}, ErrNotAggregate
	}

	eco := Ecosystem{
		Services:    make(map[string]ServiceReport),
		Collections: make(map[string]CollectionStats),
	}
	services.ForEach(func(key, value gjson.Result) bool {
		eco.Services[key.String()] = parseServiceReport(value)
		return true
	})

	root.Get("collections").ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() {
			eco.Collections[key.String()] = statsFromResult(value)
		}
		return true
	})
	if rs := root.Get("rag_stats"); queried != "" && rs.IsObject() {
		if _, ok := eco.Collections[queried]; !ok {
			eco.Collections[queried] = statsFromResult(rs)
		}
	}
	return eco, nil
}

func parseServiceReport(v gjson.Result) ServiceReport {
	r := ServiceReport{
		Status:  v.Get("status").String(),
		ModelID: v.Get("model_id").String(),
		URL:     v.Get("url").String(),
	}
	if ok := v.Get("ok"); present(ok) {
		r.OK = ok.Bool()
	} else {
		r.OK = r.Status == "ok"
	}
	if loaded := v.Get("loaded"); present(loaded) {
		b := loaded.Bool()
		r.Loaded = &b
	}
	return r
}

// RowStatus maps a reachability flag to a row status.
func RowStatus(ok bool) string {
	if ok {
		return RowOK
	}
	return RowDown
}

// ParseServiceReport decodes one service object outside the aggregate, such
// as a /health body. Invalid JSON yields the zero report.
func ParseServiceReport(data []byte) ServiceReport {
	if !gjson.ValidBytes(data) {
		return ServiceReport{}
	}
	return parseServiceReport(gjson.ParseBytes(data))
}
