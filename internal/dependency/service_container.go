// Package dependency wires miniclaw's core services using go.uber.org/dig:
// config, Model Client, Hub, sessions, memory, skills, tool registry, cron
// scheduler, context builder, and the dispatcher that drives the agent loop.
package dependency

import (
	"go.uber.org/dig"

	"github.com/crystaldolphin/crystaldolphin/internal/agent"
	"github.com/crystaldolphin/crystaldolphin/internal/bus"
	"github.com/crystaldolphin/crystaldolphin/internal/config"
	"github.com/crystaldolphin/crystaldolphin/internal/cron"
	"github.com/crystaldolphin/crystaldolphin/internal/memory"
	"github.com/crystaldolphin/crystaldolphin/internal/providers"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
	"github.com/crystaldolphin/crystaldolphin/internal/session"
	"github.com/crystaldolphin/crystaldolphin/internal/skills"
	"github.com/crystaldolphin/crystaldolphin/internal/tools"
)

// ServiceContainer holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type ServiceContainer struct {
	hub        *bus.Hub
	dispatcher *agent.Dispatcher
	cronSvc    *cron.Scheduler
	sessions   *session.Manager
	workspace  string
}

func (c *ServiceContainer) Hub() *bus.Hub                { return c.hub }
func (c *ServiceContainer) AgentLoop() schema.AgentLooper { return c.dispatcher }
func (c *ServiceContainer) Dispatcher() *agent.Dispatcher { return c.dispatcher }
func (c *ServiceContainer) CronService() *cron.Scheduler  { return c.cronSvc }
func (c *ServiceContainer) Sessions() *session.Manager    { return c.sessions }
func (c *ServiceContainer) Workspace() string             { return c.workspace }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*ServiceContainer, error) {
	d := dig.New()

	ctors := []any{
		func() *config.Config { return cfg },
		newProvider,
		newHub,
		newSessionManager,
		newMemoryStore,
		newSkillsManager,
		newContextBuilder,
		newSubagentManager,
		newAgentRegistry,
		newAgentFactory,
		newDispatcher,
		newCronScheduler,
	}
	for _, ctor := range ctors {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *ServiceContainer
	err := d.Invoke(func(
		hub *bus.Hub,
		loop *agent.Dispatcher,
		cronSvc *cron.Scheduler,
		sessions *session.Manager,
	) {
		result = &ServiceContainer{
			hub:        hub,
			dispatcher: loop,
			cronSvc:    cronSvc,
			sessions:   sessions,
			workspace:  cfg.ResolvedWorkspacePath(),
		}
	})
	return result, err
}

func newProvider(cfg *config.Config) schema.LLMProvider {
	return providers.New(cfg)
}

func newHub() *bus.Hub {
	return bus.NewHub()
}

func newSessionManager(cfg *config.Config) (*session.Manager, error) {
	return session.NewManager(cfg.ResolvedWorkspacePath())
}

func newMemoryStore(cfg *config.Config) (schema.MemoryStore, error) {
	return memory.New(cfg.ResolvedWorkspacePath())
}

func newSkillsManager(cfg *config.Config) *skills.Manager {
	return skills.NewManager(cfg.ResolvedWorkspacePath())
}

func newContextBuilder(cfg *config.Config, mem schema.MemoryStore, sk *skills.Manager) *agent.ContextBuilder {
	return agent.NewContextBuilder(cfg.ResolvedWorkspacePath(), mem, sk)
}

// newCronScheduler wires fired jobs straight back onto the hub as routed
// inbound messages: the job payload carries the origin channel/chat packed
// in by the cron tools, which DecodeCronPayload unpacks.
func newCronScheduler(hub *bus.Hub) *cron.Scheduler {
	return cron.NewScheduler(func(job cron.Job) {
		channel, chatID, message := tools.DecodeCronPayload(job.Payload)
		in := bus.NewInboundMessage(bus.ChannelCron, "cron", channel+":"+chatID, message)
		hub.SendInbound(in)
	})
}

// newSubagentManager gives subagents the same exec timeout and workspace
// restriction as the main tool set; config.Config has no separate overrides
// for them yet.
func newSubagentManager(p schema.LLMProvider, cfg *config.Config, hub *bus.Hub) *agent.SubagentManager {
	return agent.NewSubagentManager(
		p,
		cfg.ResolvedWorkspacePath(),
		hub,
		cfg.Model,
		cfg.Temperature,
		cfg.MaxTokens,
		cfg.WebSearchAPIKey,
		cfg.ExecTimeoutSec,
		cfg.RestrictToWorkspace,
	)
}

func newAgentRegistry(
	cfg *config.Config,
	hub *bus.Hub,
	mem schema.MemoryStore,
	sk *skills.Manager,
	cronSvc *cron.Scheduler,
	subMgr *agent.SubagentManager,
) *tools.Registry {
	workspace := cfg.ResolvedWorkspacePath()
	allowedDir := ""
	if cfg.RestrictToWorkspace {
		allowedDir = workspace
	}

	return tools.NewRegistryBuilder().
		WithTool(tools.NewReadFileTool(workspace, allowedDir)).
		WithTool(tools.NewWriteFileTool(workspace, allowedDir)).
		WithTool(tools.NewListDirTool(workspace, allowedDir)).
		WithTool(tools.NewDeleteFileTool(workspace, allowedDir)).
		WithTool(tools.NewExecTool(workspace, cfg.ExecTimeoutSec, cfg.RestrictToWorkspace)).
		WithTool(tools.NewWebSearchTool(cfg.WebSearchAPIKey, cfg.WebSearchMaxResults)).
		WithTool(tools.NewWebGetTool(0)).
		WithTool(tools.NewMessageTool(hub)).
		WithTool(tools.NewCronOnceTool(cronSvc)).
		WithTool(tools.NewCronEveryTool(cronSvc)).
		WithTool(tools.NewCronListTool(cronSvc)).
		WithTool(tools.NewMemoryWriteTool(mem)).
		WithTool(tools.NewSkillCreateTool(sk)).
		WithTool(tools.NewSkillReadTool(sk)).
		WithTool(tools.NewSkillListTool(sk)).
		WithTool(tools.NewSkillDeleteTool(sk)).
		WithTool(tools.NewSubagentDelegateTool(subMgr)).
		Build()
}

func newAgentFactory(p schema.LLMProvider, cfg *config.Config, reg *tools.Registry) *agent.AgentFactory {
	maxIter := cfg.MaxToolIter
	if maxIter <= 0 {
		maxIter = 200
	}
	settings := schema.NewAgentSettings(cfg.Model, maxIter, cfg.Temperature, cfg.MaxTokens, 0)

	factory := agent.NewFactory(p, settings)
	factory.SetCoreTools(tools.NewToolList(reg))
	return factory
}

func newDispatcher(hub *bus.Hub, factory *agent.AgentFactory, sessions *session.Manager, cb *agent.ContextBuilder) *agent.Dispatcher {
	return agent.NewDispatcher(hub, factory, sessions, cb, session.MaxMessages)
}
