// Package page owns the HTML shell the panels are written into. The shell is
// parsed with goquery; each render works on a fresh copy of the document.
package page

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/llamawrapper/sitepanel/internal/config"
)

//go:embed shell.html
var defaultShell []byte

// Panel names one independently rendered section of the page.
type Panel string

const (
	PanelBoot    Panel = "boot"
	PanelPosts   Panel = "posts"
	PanelSystem  Panel = "system"
	PanelRuntime Panel = "runtime"
	PanelChat    Panel = "chat"
)

// Panels lists every panel in render order.
var Panels = []Panel{PanelBoot, PanelPosts, PanelSystem, PanelRuntime, PanelChat}

// required holds the element ids each panel writes to. A panel whose ids
// are not all present in the shell is skipped.
var required = map[Panel][]string{
	PanelBoot:   {"boot-terminal"},
	PanelPosts:  {"posts-list", "projects-list"},
	PanelSystem: {"system-table", "system-rows"},
	PanelRuntime: {
		"runtime-panel", "runtime-source", "runtime-status", "runtime-model",
		"runtime-path", "runtime-type", "runtime-loaded", "runtime-active",
		"runtime-queue", "runtime-streams", "runtime-config", "runtime-message",
		"model-select", "runtime-load", "runtime-unload",
	},
	PanelChat: {"chat-form", "chat-log"},
}

// Meta tag names carrying the upstream base URLs.
const (
	MetaLLM   = "llm-base-url"
	MetaRAG   = "rag-base-url"
	MetaAudio = "audio-base-url"
)

// Shell is a parsed page template.
type Shell struct {
	raw     []byte
	missing map[Panel][]string
	meta    config.EndpointsConfig
}

// Load reads the shell at path, or the embedded shell when path is empty.
func Load(path string) (*Shell, error) {
	if path == "" {
		return Parse(defaultShell)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading page shell: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded shell.
func Default() *Shell {
	s, err := Parse(defaultShell)
	if err != nil {
		panic(fmt.Sprintf("page: embedded shell is invalid: %v", err))
	}
	return s
}

// Parse inspects an HTML document for panel elements and endpoint meta tags.
func Parse(data []byte) (*Shell, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing page shell: %w", err)
	}

	s := &Shell{
		raw:     data,
		missing: make(map[Panel][]string),
		meta: config.EndpointsConfig{
			LLM:   metaContent(doc, MetaLLM),
			RAG:   metaContent(doc, MetaRAG),
			Audio: metaContent(doc, MetaAudio),
		},
	}
	for p, ids := range required {
		for _, id := range ids {
			if doc.Find("#"+id).Length() == 0 {
				s.missing[p] = append(s.missing[p], id)
			}
		}
	}
	return s, nil
}

func metaContent(doc *goquery.Document, name string) string {
	v, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(v)
}

// Endpoints returns the base URLs named by the shell's meta tags. Blank
// tags yield empty fields.
func (s *Shell) Endpoints() config.EndpointsConfig { return s.meta }

// Supports reports whether every element the panel writes to exists.
func (s *Shell) Supports(p Panel) bool { return len(s.missing[p]) == 0 }

// Missing lists the absent element ids of a panel.
func (s *Shell) Missing(p Panel) []string { return s.missing[p] }

// Document returns a fresh, writable copy of the shell.
func (s *Shell) Document() (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.raw))
	if err != nil {
		return nil, fmt.Errorf("parsing page shell: %w", err)
	}
	return &Document{doc: doc}, nil
}
