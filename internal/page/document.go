package page

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/PuerkitoBio/goquery"

	"github.com/llamawrapper/sitepanel/internal/panel"
	"github.com/llamawrapper/sitepanel/internal/status"
)

var fragments = template.Must(template.New("fragments").Parse(`
{{define "boot"}}{{range .}}<div class="line">{{.}}</div>{{end}}{{end}}

{{define "posts"}}{{range .}}<li class="post" data-id="{{.ID}}">
<h3>{{.Title}}</h3><p>{{.Summary}}</p>
<span class="meta">{{.Published}} · {{.Tags}}{{if ne .VoiceID "-"}} · voice {{.VoiceID}}{{end}}</span>
</li>{{else}}<li class="post empty">-</li>{{end}}{{end}}

{{define "rows"}}{{range .}}<tr data-resource="{{.Resource}}">
<td>{{.Resource}}</td><td>{{.Type}}</td><td class="status-{{.Status}}">{{.Status}}</td>
<td>{{.Docs}}</td><td>{{.Updated}}</td><td>{{.Endpoint}}</td>
</tr>{{end}}{{end}}

{{define "options"}}{{range .}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}{{end}}
`))

// Document is one render of the shell.
type Document struct {
	doc *goquery.Document
}

func (d *Document) fill(id, name string, data any) error {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	d.doc.Find("#" + id).SetHtml(buf.String())
	return nil
}

func (d *Document) text(id, s string) {
	d.doc.Find("#" + id).SetText(s)
}

// WriteBoot fills the boot terminal.
func (d *Document) WriteBoot(lines []string) error {
	return d.fill("boot-terminal", "boot", lines)
}

// WritePosts fills the post and project lists.
func (d *Document) WritePosts(list, projects []panel.PostView, generatedAt string) error {
	if err := d.fill("posts-list", "posts", list); err != nil {
		return err
	}
	if err := d.fill("projects-list", "posts", projects); err != nil {
		return err
	}
	if generatedAt != "" {
		d.text("posts-generated", "("+generatedAt+")")
	}
	return nil
}

// WriteSystem replaces the status table body.
func (d *Document) WriteSystem(rows []status.SystemRow) error {
	return d.fill("system-rows", "rows", rows)
}

// WriteRuntime fills the runtime panel. Controls are disabled while an
// action is in flight.
func (d *Document) WriteRuntime(v panel.RuntimeView) error {
	d.text("runtime-source", v.Source)
	d.text("runtime-status", v.Status)
	d.text("runtime-model", v.Model)
	d.doc.Find("#runtime-model").SetAttr("title", v.ModelFull)
	d.text("runtime-path", v.Path)
	d.text("runtime-type", v.Type)
	d.text("runtime-loaded", v.Loaded)
	d.text("runtime-active", v.ActiveRequests)
	d.text("runtime-queue", v.QueueSize)
	d.text("runtime-streams", v.ActiveStreams)
	d.text("runtime-config", v.Config)
	d.text("runtime-message", v.Message)

	if err := d.fill("model-select", "options", v.Options); err != nil {
		return err
	}

	controls := d.doc.Find("#runtime-load, #runtime-unload, #model-select")
	if v.Busy {
		controls.SetAttr("disabled", "disabled")
	} else {
		controls.RemoveAttr("disabled")
	}
	return nil
}

// WriteChat shows the chat notice.
func (d *Document) WriteChat(notice string) {
	d.text("chat-log", notice)
}

// HTML serializes the document.
func (d *Document) HTML() (string, error) {
	out, err := d.doc.Html()
	if err != nil {
		return "", fmt.Errorf("serializing page: %w", err)
	}
	return out, nil
}

// Find exposes the document for callers that post-process a render.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}
