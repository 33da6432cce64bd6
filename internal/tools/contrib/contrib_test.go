package contrib

import (
	"context"
	"testing"
	"time"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/internal/memory"
	"github.com/tessel-ai/tessel/internal/plan"
	"github.com/tessel-ai/tessel/internal/skills"
	"github.com/tessel-ai/tessel/internal/storage"
)

type nullDriver struct{}

func (nullDriver) FetchHTML(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (nullDriver) Screenshot(context.Context, string, time.Duration) ([]byte, error) {
	return nil, nil
}
func (nullDriver) Close() error { return nil }

func TestRegisterFullSet(t *testing.T) {
	store, err := memory.OpenStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	reg := agent.NewRegistry()
	Register(reg, Deps{
		Memory:        memory.NewEngine(store, &memory.HashEmbedder{}, config.Default().Memory),
		Skills:        skills.NewManager(storage.NewMemory()),
		Plans:         plan.NewService(nil),
		BrowserDriver: nullDriver{},
	})

	names := []string{
		"filesystem", "shell", "browser", "brave_search", "email",
		"memory", "skill_transition", "set_tier", "send_voice",
		"datetime", "weather", "plan_get", "plan_set_content", "plan_finalize",
	}
	for _, name := range names {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
	// No goal store wired, so goal_management is absent.
	if _, ok := reg.Get("goal_management"); ok {
		t.Error("goal_management registered without a store")
	}
}

func TestRegisterMinimal(t *testing.T) {
	reg := agent.NewRegistry()
	Register(reg, Deps{BrowserDriver: nullDriver{}})

	for _, name := range []string{"memory", "skill_transition", "plan_get"} {
		if _, ok := reg.Get(name); ok {
			t.Errorf("tool %q registered without its dependency", name)
		}
	}
	if _, ok := reg.Get("filesystem"); !ok {
		t.Error("filesystem missing")
	}
}
