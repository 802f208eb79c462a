// Package panel maps normalized status, posts and rows into display values.
// Nothing here touches the network or the clock.
package panel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/llamawrapper/sitepanel/internal/status"
)

const Dash = status.Placeholder

const (
	maxModelIDLen = 52
	idPrefixLen   = 24
	idSuffixLen   = 18
)

// AbbreviateModelID keeps the first 24 and last 18 characters of identifiers
// longer than 52, joined by "...".
func AbbreviateModelID(id string) string {
	r := []rune(id)
	if len(r) <= maxModelIDLen {
		return id
	}
	return string(r[:idPrefixLen]) + "..." + string(r[len(r)-idSuffixLen:])
}

// OrDash returns s, or Dash when s is blank.
func OrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return Dash
	}
	return s
}

func intOrDash(v *int) string {
	if v == nil {
		return Dash
	}
	return strconv.Itoa(*v)
}

// ConfigSummary lists the reported configuration facets, or Dash when none are.
func ConfigSummary(c *status.RuntimeConfig) string {
	if c == nil {
		return Dash
	}
	var parts []string
	if c.MaxConcurrency != nil {
		parts = append(parts, fmt.Sprintf("concurrency %d", *c.MaxConcurrency))
	}
	if c.QueueSize != nil {
		parts = append(parts, fmt.Sprintf("queue %d", *c.QueueSize))
	}
	if c.QueueTimeout != nil {
		parts = append(parts, "timeout "+strconv.FormatFloat(*c.QueueTimeout, 'f', -1, 64)+"s")
	}
	if c.MLXWarmup != nil {
		if *c.MLXWarmup {
			parts = append(parts, "warmup on")
		} else {
			parts = append(parts, "warmup off")
		}
	}
	if len(parts) == 0 {
		return Dash
	}
	return strings.Join(parts, " · ")
}

// LLMDocs picks the docs column for the inference row: the model id when
// known, else the loaded flag, else Dash.
func LLMDocs(modelID string, loaded *bool) string {
	switch {
	case strings.TrimSpace(modelID) != "":
		return AbbreviateModelID(strings.TrimSpace(modelID))
	case loaded != nil && *loaded:
		return "loaded"
	case loaded != nil:
		return "unloaded"
	default:
		return Dash
	}
}
