package panel

import (
	"fmt"
	"strings"

	"github.com/llamawrapper/sitepanel/internal/config"
	"github.com/llamawrapper/sitepanel/internal/posts"
	"github.com/llamawrapper/sitepanel/internal/status"
)

// RuntimeView is the display form of the runtime panel.
type RuntimeView struct {
	Available      bool         `json:"available"`
	Source         string       `json:"source"`
	Status         string       `json:"status"`
	Model          string       `json:"model"`
	ModelFull      string       `json:"model_full"`
	Path           string       `json:"path"`
	Type           string       `json:"type"`
	Loaded         string       `json:"loaded"`
	ActiveRequests string       `json:"active_requests"`
	QueueSize      string       `json:"queue_size"`
	ActiveStreams  string       `json:"active_streams"`
	Config         string       `json:"config"`
	Message        string       `json:"message,omitempty"`
	Busy           bool         `json:"busy"`
	Options        []OptionView `json:"options"`
}

// OptionView is one entry of the model select.
type OptionView struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// PostView is one entry of a post list.
type PostView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Tags      string `json:"tags"`
	Project   string `json:"project"`
	VoiceID   string `json:"voice_id"`
	Published string `json:"published"`
}

// Runtime maps a runtime status into display fields. A nil status yields the
// unavailable view with every field dashed.
func Runtime(s *status.ModelRuntimeStatus, source string) RuntimeView {
	v := RuntimeView{
		Source:         OrDash(source),
		Status:         Dash,
		Model:          Dash,
		ModelFull:      Dash,
		Path:           Dash,
		Type:           Dash,
		Loaded:         Dash,
		ActiveRequests: Dash,
		QueueSize:      Dash,
		ActiveStreams:  Dash,
		Config:         Dash,
	}
	if s == nil {
		v.Status = "unreachable"
		return v
	}

	v.Available = true
	v.Status = OrDash(s.Status)
	v.Model = OrDash(AbbreviateModelID(s.ModelID))
	v.ModelFull = OrDash(s.ModelID)
	v.Path = OrDash(s.ModelPath)
	v.Type = OrDash(s.ModelType)
	if s.Loaded != nil {
		v.Loaded = yesNo(*s.Loaded)
	}
	if q := s.Queue; q != nil {
		if qs := q.QueueStats; qs != nil {
			v.ActiveRequests = intOrDash(qs.ActiveRequests)
			v.QueueSize = intOrDash(qs.QueueSize)
		}
		v.ActiveStreams = intOrDash(q.ActiveStreams)
	}
	v.Config = ConfigSummary(s.Config)
	return v
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ModelOptions builds the model select, marking current as selected. The
// current model is listed even when the catalog omits it.
func ModelOptions(ids []string, current string) []OptionView {
	opts := make([]OptionView, 0, len(ids)+1)
	seen := false
	for _, id := range ids {
		sel := id == current
		seen = seen || sel
		opts = append(opts, OptionView{Value: id, Label: AbbreviateModelID(id), Selected: sel})
	}
	if current != "" && !seen {
		opts = append([]OptionView{{Value: current, Label: AbbreviateModelID(current), Selected: true}}, opts...)
	}
	return opts
}

// Posts maps posts in display order.
func Posts(list []posts.Post) []PostView {
	out := make([]PostView, 0, len(list))
	for _, p := range list {
		out = append(out, PostView{
			ID:        p.ID,
			Title:     OrDash(p.Title),
			Summary:   OrDash(p.Summary),
			Tags:      OrDash(strings.Join(p.Tags, ", ")),
			Project:   OrDash(p.Project),
			VoiceID:   OrDash(p.VoiceID),
			Published: status.FormatTimestamp(p.PublishedAt),
		})
	}
	return out
}

// ProjectPosts keeps the posts tied to a project, for the projects list.
func ProjectPosts(list []PostView) []PostView {
	var out []PostView
	for _, p := range list {
		if p.Project != Dash {
			out = append(out, p)
		}
	}
	return out
}

// Rows dashes every blank column of the status table.
func Rows(rows []status.SystemRow) []status.SystemRow {
	out := make([]status.SystemRow, len(rows))
	for i, r := range rows {
		out[i] = status.SystemRow{
			Resource: r.Resource,
			Type:     r.Type,
			Status:   OrDash(r.Status),
			Docs:     OrDash(r.Docs),
			Updated:  OrDash(r.Updated),
			Endpoint: OrDash(r.Endpoint),
		}
	}
	return out
}

// BootLines is the static terminal text shown before anything is loaded.
func BootLines(ep config.EndpointsConfig, collections []string) []string {
	return []string{
		"sitepanel: boot sequence start",
		fmt.Sprintf("  llm    -> %s", OrDash(ep.LLM)),
		fmt.Sprintf("  rag    -> %s", OrDash(ep.RAG)),
		fmt.Sprintf("  audio  -> %s", OrDash(ep.Audio)),
		fmt.Sprintf("  collections: %s", OrDash(strings.Join(collections, ", "))),
		"loading posts snapshot...",
	}
}
