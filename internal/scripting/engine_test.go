package scripting

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newEngine(t *testing.T, script string) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	dir := t.TempDir()
	if script != "" {
		if err := os.MkdirAll(filepath.Join(dir, "scenario"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "scenario", "plan.lua"), []byte(script), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	core, logs := observer.New(zap.DebugLevel)
	e, err := NewEngine(dir, zap.New(core))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e, logs
}

func TestPlanFromScript(t *testing.T) {
	e, _ := newEngine(t, `
function plan_tick(ctx)
  local burst = 0
  if ctx.tick % 10 == 0 then burst = 5 end
  return {
    spawn = 2 + burst,
    attach = ctx.entities,
    detach = 1,
    destroy = -4,
    acquire = ctx.refs + 1,
    types = {"Health", "Sprite"},
  }
end
`)
	got := e.Plan(TickContext{Tick: 20, Entities: 3, Refs: 6})
	if got.Spawn != 7 || got.Attach != 3 || got.Detach != 1 || got.Acquire != 7 {
		t.Errorf("Plan() = %+v", got)
	}
	if got.Destroy != 0 || got.Release != 0 {
		t.Errorf("negative and missing counts must read as zero, got %+v", got)
	}
	if !slices.Equal(got.Types, []string{"Health", "Sprite"}) {
		t.Errorf("Types = %v", got.Types)
	}
}

func TestPlanFallsBackToDefault(t *testing.T) {
	tests := []struct {
		name   string
		script string
		errMsg string
	}{
		{"NoScript", "", ""},
		{"RuntimeError", "function plan_tick(ctx) error('boom') end", "lua plan_tick error"},
		{"NonTable", "function plan_tick(ctx) return 3 end", "lua plan_tick returned non-table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, logs := newEngine(t, tt.script)
			got := e.Plan(TickContext{Tick: 1})
			if !slices.Equal(got.Types, DefaultPlan.Types) || got.Spawn != DefaultPlan.Spawn || got.Attach != DefaultPlan.Attach {
				t.Errorf("Plan() = %+v, want DefaultPlan", got)
			}
			if tt.errMsg != "" && logs.FilterMessage(tt.errMsg).Len() != 1 {
				t.Errorf("Expected %q to be logged", tt.errMsg)
			}
		})
	}
}

func TestNewEngineReportsBrokenScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "core"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "core", "bad.lua"), []byte("function ("), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEngine(dir, nil); err == nil {
		t.Error("Expected a load error for invalid Lua")
	}
}
