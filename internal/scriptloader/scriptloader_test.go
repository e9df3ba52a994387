package scriptloader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/eeks-rt/eeks"
	"github.com/eeks-rt/eeks/internal/scriptloader"
)

type stubWorld struct {
	eeks.World
	commands []string
}

func (w *stubWorld) Command(tokens []string) (string, error) {
	w.commands = append(w.commands, tokens[0])
	return "ok", nil
}

const greeterModule = `
local M = {}

function M.systems()
	local s = new_system("tick", "greet")
	s:run_after("warmup")
	finalize_system(s)
end

function M.greet(world)
	world:command("greet-command")
	return "greeted"
end

M.commands = {"greet"}

return M
`

func writeModule(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greeter.lua")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCollectsSystemsAndCommands(t *testing.T) {
	l := scriptloader.New()
	defer l.Close()

	path := writeModule(t, greeterModule)
	mod, err := l.Load("greeter", path)
	if err != nil {
		t.Fatal(err)
	}

	if len(mod.Systems) != 1 {
		t.Fatalf("got %d systems, want 1", len(mod.Systems))
	}
	sys := mod.Systems[0]
	if sys.Group != "tick" || sys.ID != "greet" {
		t.Fatalf("system = %+v, want group=tick id=greet", sys)
	}
	if len(sys.RunAfter) != 1 || sys.RunAfter[0] != "warmup" {
		t.Fatalf("system.RunAfter = %v, want [warmup]", sys.RunAfter)
	}
	if len(mod.Commands) != 1 || mod.Commands[0] != "greet" {
		t.Fatalf("module.Commands = %v, want [greet]", mod.Commands)
	}
}

func TestInvokeRunsSystemAgainstWorld(t *testing.T) {
	l := scriptloader.New()
	defer l.Close()

	path := writeModule(t, greeterModule)
	mod, err := l.Load("greeter", path)
	if err != nil {
		t.Fatal(err)
	}

	w := &stubWorld{}
	if err := mod.Systems[0].Invoke(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	if len(w.commands) != 1 || w.commands[0] != "greet-command" {
		t.Fatalf("world received commands %v, want [greet-command]", w.commands)
	}
}

func TestInvokeCommandReturnsResult(t *testing.T) {
	l := scriptloader.New()
	defer l.Close()

	path := writeModule(t, greeterModule)
	if _, err := l.Load("greeter", path); err != nil {
		t.Fatal(err)
	}

	got, err := l.InvokeCommand(context.Background(), "greeter", "greet", &stubWorld{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "greeted" {
		t.Fatalf("InvokeCommand = %q, want %q", got, "greeted")
	}
}

func TestUnloadRemovesModule(t *testing.T) {
	l := scriptloader.New()
	defer l.Close()

	path := writeModule(t, greeterModule)
	if _, err := l.Load("greeter", path); err != nil {
		t.Fatal(err)
	}
	l.Unload("greeter")

	if _, err := l.InvokeCommand(context.Background(), "greeter", "greet", &stubWorld{}, nil); err == nil {
		t.Fatal("expected an error invoking a command on an unloaded module")
	}
}
