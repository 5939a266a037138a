package core

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type orderModule struct {
	id       ModuleID
	log      *[]string
	startErr error
	stopErr  error
}

func (m *orderModule) ModuleInfo() ModuleInfo {
	cp := *m
	return ModuleInfo{ID: m.id, New: func() Module { c := cp; return &c }}
}

func (m *orderModule) Start() error {
	*m.log = append(*m.log, "start "+string(m.id))
	return m.startErr
}

func (m *orderModule) Stop(context.Context) error {
	*m.log = append(*m.log, "stop "+string(m.id))
	return m.stopErr
}

func TestApp_StopJoinsErrors(t *testing.T) {
	t.Parallel()

	var log []string
	boom := errors.New("flush failed")
	app := NewApp(NewAppContext(nil, t.TempDir()))
	app.AppendModule("memory.sqlite", &orderModule{id: "memory.sqlite", log: &log, stopErr: boom})
	app.AppendModule("router", &orderModule{id: "router", log: &log})
	if err := app.Start(); err != nil {
		t.Fatal(err)
	}

	if err := app.Stop(); !errors.Is(err, boom) {
		t.Errorf("Stop err = %v, want %v", err, boom)
	}
	if log[len(log)-1] != "stop memory.sqlite" {
		t.Errorf("router error stopped the sequence: %v", log)
	}
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&orderModule{id: "a.one", log: &log})
	RegisterModule(&orderModule{id: "b.two", log: &log})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"a.one", "b.two"}); err != nil {
		t.Fatal(err)
	}
	app.AppendModule("router", &orderModule{id: "router", log: &log})

	if err := app.Start(); err != nil {
		t.Fatal(err)
	}
	if err := app.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := app.Stop(); err != nil {
		t.Fatal(err)
	}

	want := []string{"start a.one", "start b.two", "start router", "stop router", "stop b.two", "stop a.one"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&orderModule{id: "a.one", log: &log})
	RegisterModule(&orderModule{id: "b.two", log: &log, startErr: errors.New("boom")})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"a.one", "b.two"}); err != nil {
		t.Fatal(err)
	}
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start a.one", "start b.two", "stop a.one"}
	if !slices.Equal(log, want) {
		t.Errorf("lifecycle = %v, want %v", log, want)
	}
}

func TestApp_Module(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&orderModule{id: "a.one", log: &log})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"a.one"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := app.Module("a.one"); !ok {
		t.Error("expected a.one to be loaded")
	}
	if _, ok := app.Module("b.two"); ok {
		t.Error("b.two should not be loaded")
	}
	if len(app.Modules()) != 1 {
		t.Errorf("Modules() = %d, want 1", len(app.Modules()))
	}
}

func TestRegistry_Namespace(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&orderModule{id: "tools.web", log: &log})
	RegisterModule(&orderModule{id: "tools.extra", log: &log})
	RegisterModule(&orderModule{id: "channel.telegram", log: &log})

	got := GetModulesByNamespace("tools")
	if len(got) != 2 || got[0].ID != "tools.extra" || got[1].ID != "tools.web" {
		t.Errorf("GetModulesByNamespace(tools) = %v", got)
	}
	if ModuleID("channel.telegram").Namespace() != "channel" {
		t.Error("Namespace mismatch")
	}
}

func TestRegisterModule_Rejects(t *testing.T) {
	t.Cleanup(resetRegistry)

	var log []string
	RegisterModule(&orderModule{id: "mcp.servers", log: &log})

	tests := map[string]Module{
		"duplicate":    &orderModule{id: "mcp.servers", log: &log},
		"no namespace": &orderModule{id: "servers", log: &log},
		"uppercase":    &orderModule{id: "MCP.servers", log: &log},
		"empty":        &orderModule{id: "", log: &log},
	}
	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			RegisterModule(m)
		})
	}

	if got := ModuleID("telemetry.langfuse").Name(); got != "langfuse" {
		t.Errorf("Name() = %q", got)
	}
}
