package plugin

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager holds the plugins registered at each lifecycle stage and drives
// them in registration order.
type Manager struct {
	byStage map[Stage][]Plugin
}

// NewManager creates a new plugin manager.
func NewManager() *Manager {
	return &Manager{byStage: make(map[Stage][]Plugin)}
}

// Register registers a plugin at the given stage.
func (m *Manager) Register(stage Stage, p Plugin) error {
	switch stage {
	case StageBeforeRequest, StageAfterRequest, StageOnError:
		m.byStage[stage] = append(m.byStage[stage], p)
	default:
		return fmt.Errorf("unknown plugin stage: %s", stage)
	}
	slog.Info("plugin registered", "name", p.Name(), "type", p.Type(), "stage", stage)
	return nil
}

// RunBefore executes all before-request plugins in order. Returns an error
// if a plugin errors or rejects the request outright.
func (m *Manager) RunBefore(ctx context.Context, pctx *Context) error {
	for _, p := range m.byStage[StageBeforeRequest] {
		if err := p.Execute(ctx, pctx); err != nil {
			return fmt.Errorf("plugin %s failed: %w", p.Name(), err)
		}
		if pctx.Reject {
			return fmt.Errorf("request rejected by %s: %s", p.Name(), pctx.Reason)
		}
		if pctx.Skip {
			break
		}
	}
	return nil
}

// RunAfter executes all after-request plugins. A plugin error is logged
// and swallowed — the response has already been produced by this stage.
func (m *Manager) RunAfter(ctx context.Context, pctx *Context) error {
	for _, p := range m.byStage[StageAfterRequest] {
		if err := p.Execute(ctx, pctx); err != nil {
			slog.Warn("after-request plugin error", "plugin", p.Name(), "error", err)
		}
		if pctx.Skip {
			break
		}
	}
	return nil
}

// RunOnError executes all on-error plugins; their own errors are logged,
// never propagated, so an error-handling plugin can't mask the original
// failure.
func (m *Manager) RunOnError(ctx context.Context, pctx *Context) {
	for _, p := range m.byStage[StageOnError] {
		if err := p.Execute(ctx, pctx); err != nil {
			slog.Warn("on-error plugin error", "plugin", p.Name(), "error", err)
		}
	}
}

// HasPlugins reports whether any plugin is registered at any stage.
func (m *Manager) HasPlugins() bool {
	for _, stage := range []Stage{StageBeforeRequest, StageAfterRequest, StageOnError} {
		if len(m.byStage[stage]) > 0 {
			return true
		}
	}
	return false
}
