// Package contrib is the static tool-contribution layer: it binds the
// concrete executors into a registry. Nil dependencies skip the tools
// that need them; per-settings gating stays with each tool's Enabled.
package contrib

import (
	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/autopilot"
	"github.com/tessel-ai/tessel/internal/memory"
	"github.com/tessel-ai/tessel/internal/plan"
	"github.com/tessel-ai/tessel/internal/skills"
	"github.com/tessel-ai/tessel/internal/tools/browser"
	"github.com/tessel-ai/tessel/internal/tools/datetime"
	"github.com/tessel-ai/tessel/internal/tools/email"
	"github.com/tessel-ai/tessel/internal/tools/fs"
	"github.com/tessel-ai/tessel/internal/tools/goals"
	"github.com/tessel-ai/tessel/internal/tools/memorytool"
	"github.com/tessel-ai/tessel/internal/tools/plantool"
	"github.com/tessel-ai/tessel/internal/tools/search"
	"github.com/tessel-ai/tessel/internal/tools/shell"
	"github.com/tessel-ai/tessel/internal/tools/skilltool"
	"github.com/tessel-ai/tessel/internal/tools/tiertool"
	"github.com/tessel-ai/tessel/internal/tools/voice"
	"github.com/tessel-ai/tessel/internal/tools/weather"
)

// Deps carries the services the executors are built over.
type Deps struct {
	Memory        *memory.Engine
	GoalStore     *autopilot.Store
	Skills        *skills.Manager
	Plans         *plan.Service
	BrowserDriver browser.Driver
}

// Register binds every available executor into the registry.
func Register(reg *agent.Registry, deps Deps) {
	reg.Register(fs.New())
	reg.Register(shell.New())
	reg.Register(search.New())
	reg.Register(email.New())
	reg.Register(tiertool.New())
	reg.Register(voice.New())
	reg.Register(datetime.New())
	reg.Register(weather.New())

	driver := deps.BrowserDriver
	if driver == nil {
		driver = browser.NewPlaywrightDriver()
	}
	reg.Register(browser.New(driver))

	if deps.Memory != nil {
		reg.Register(memorytool.New(deps.Memory))
	}
	if deps.GoalStore != nil {
		reg.Register(goals.New(deps.GoalStore))
	}
	if deps.Skills != nil {
		reg.Register(skilltool.New(deps.Skills))
	}
	if deps.Plans != nil {
		for _, tool := range plantool.Tools(deps.Plans) {
			reg.Register(tool)
		}
	}
}
