package site

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/panel"
	"github.com/llamawrapper/sitepanel/internal/probe"
	"github.com/llamawrapper/sitepanel/internal/status"
)

var (
	// ErrPanelBusy is returned when a runtime action is issued while another
	// is in flight. Actions are rejected, never queued.
	ErrPanelBusy = errors.New("runtime panel is busy")
	// ErrModelRequired is returned by Load without a model id.
	ErrModelRequired = errors.New("model_id is required")
)

const (
	actionTimeout  = 120 * time.Second
	maxMessageBody = 300
)

// ActionResult is the outcome of a load or unload.
type ActionResult struct {
	Action  string            `json:"action"`
	OK      bool              `json:"ok"`
	Message string            `json:"message"`
	Runtime panel.RuntimeView `json:"runtime"`
}

// RuntimePanel shows the inference server's runtime state and issues
// load/unload requests, one at a time.
type RuntimePanel struct {
	upstream *probe.Upstream
	logger   *zap.Logger

	busy atomic.Bool

	mu      sync.Mutex
	message string
}

// Busy reports whether an action is in flight.
func (p *RuntimePanel) Busy() bool { return p.busy.Load() }

// Message returns the inline text of the last action.
func (p *RuntimePanel) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// SetMessage replaces the inline text without running an action.
func (p *RuntimePanel) SetMessage(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

// Refresh probes the runtime status chain and the model catalog.
func (p *RuntimePanel) Refresh(ctx context.Context) panel.RuntimeView {
	var rs *status.ModelRuntimeStatus
	s, source, err := p.upstream.RuntimeStatus(ctx)
	if err != nil {
		p.logger.Debug("runtime status unavailable", zap.Error(err))
	} else {
		rs = &s
	}
	v := panel.Runtime(rs, source)

	ids, _ := p.upstream.Models(ctx)
	v.Options = panel.ModelOptions(ids, currentModel(rs))
	v.Message = p.Message()
	v.Busy = p.Busy()
	return v
}

// Models returns the catalog as select options, with the current model marked.
func (p *RuntimePanel) Models(ctx context.Context) ([]panel.OptionView, bool) {
	ids, ok := p.upstream.Models(ctx)
	var rs *status.ModelRuntimeStatus
	if s, _, err := p.upstream.RuntimeStatus(ctx); err == nil {
		rs = &s
	}
	return panel.ModelOptions(ids, currentModel(rs)), ok
}

// Load asks the inference server to load modelID, then refreshes the panel.
func (p *RuntimePanel) Load(ctx context.Context, modelID string, force bool) (ActionResult, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return ActionResult{}, ErrModelRequired
	}
	return p.act(ctx, "load", func(ctx context.Context) probe.Result {
		return p.upstream.LoadModel(ctx, modelID, force)
	})
}

// Unload asks the inference server to release its model, then refreshes the panel.
func (p *RuntimePanel) Unload(ctx context.Context, force bool) (ActionResult, error) {
	return p.act(ctx, "unload", func(ctx context.Context) probe.Result {
		return p.upstream.UnloadModel(ctx, force)
	})
}

func (p *RuntimePanel) act(ctx context.Context, action string, do func(context.Context) probe.Result) (ActionResult, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return ActionResult{}, ErrPanelBusy
	}

	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	res := do(actx)
	cancel()

	msg := actionMessage(action, res)
	p.SetMessage(msg)
	p.busy.Store(false)

	if res.OK {
		p.logger.Info("runtime action succeeded", zap.String("action", action))
	} else {
		p.logger.Warn("runtime action failed", zap.String("action", action), zap.String("detail", msg))
	}

	return ActionResult{
		Action:  action,
		OK:      res.OK,
		Message: msg,
		Runtime: p.Refresh(ctx),
	}, nil
}

// actionMessage renders the inline status text, including the upstream
// status code and body when a response arrived.
func actionMessage(action string, res probe.Result) string {
	if res.OK {
		return action + " ok"
	}
	if res.StatusCode != 0 {
		msg := fmt.Sprintf("%s failed: HTTP %d", action, res.StatusCode)
		if body := strings.TrimSpace(string(res.Body)); body != "" {
			msg += " " + clip(body, maxMessageBody)
		}
		return msg
	}
	if res.Err != nil {
		return fmt.Sprintf("%s failed: %v", action, res.Err)
	}
	return action + " failed"
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// currentModel is the model id the runtime reports, if any.
func currentModel(s *status.ModelRuntimeStatus) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.ModelID)
}
