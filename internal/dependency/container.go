// Package dependency wires core instrumentgpt services using go.uber.org/dig.
package dependency

import (
	"log/slog"

	"go.uber.org/dig"

	"github.com/instrumentgpt/instrumentgpt/internal/agent"
	"github.com/instrumentgpt/instrumentgpt/internal/bus"
	"github.com/instrumentgpt/instrumentgpt/internal/channels"
	"github.com/instrumentgpt/instrumentgpt/internal/config"
	"github.com/instrumentgpt/instrumentgpt/internal/gateway"
	"github.com/instrumentgpt/instrumentgpt/internal/knowledge"
	"github.com/instrumentgpt/instrumentgpt/internal/maintenance"
	"github.com/instrumentgpt/instrumentgpt/internal/memory"
	"github.com/instrumentgpt/instrumentgpt/internal/providers"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
	"github.com/instrumentgpt/instrumentgpt/internal/store"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	db      *store.SQLiteStore
	msgBus  *bus.MessageBus
	engine  *agent.Engine
	loop    *agent.Loop
	manager *channels.Manager
	gw      *gateway.Server
	worker  *knowledge.Worker
	sweeper *maintenance.Sweeper
}

func (c *Container) Store() *store.SQLiteStore        { return c.db }
func (c *Container) MessageBus() *bus.MessageBus      { return c.msgBus }
func (c *Container) Engine() *agent.Engine            { return c.engine }
func (c *Container) Loop() *agent.Loop                { return c.loop }
func (c *Container) Channels() *channels.Manager      { return c.manager }
func (c *Container) Gateway() *gateway.Server         { return c.gw }
func (c *Container) Knowledge() *knowledge.Worker     { return c.worker }
func (c *Container) Sweeper() *maintenance.Sweeper    { return c.sweeper }

// Close releases the container's resources, currently just the database.
func (c *Container) Close() error { return c.db.Close() }

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	constructors := []any{
		func() *config.Config { return cfg },
		newStore,
		asConversationStore,
		newExtractor,
		newAssembler,
		newFolder,
		newTransport,
		newEngine,
		newMessageBus,
		newLoop,
		newChannelManager,
		newKnowledgeWorker,
		asLiker,
		newGateway,
		asLocker,
		newSweeper,
	}
	for _, ctor := range constructors {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		db *store.SQLiteStore,
		msgBus *bus.MessageBus,
		engine *agent.Engine,
		loop *agent.Loop,
		manager *channels.Manager,
		gw *gateway.Server,
		worker *knowledge.Worker,
		sweeper *maintenance.Sweeper,
	) {
		result = &Container{
			db:      db,
			msgBus:  msgBus,
			engine:  engine,
			loop:    loop,
			manager: manager,
			gw:      gw,
			worker:  worker,
			sweeper: sweeper,
		}
	})
	return result, err
}

func newStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.Open(config.ExpandHome(cfg.Storage.DBPath))
}

func asConversationStore(s *store.SQLiteStore) schema.ConversationStore { return s }

func newExtractor(cfg *config.Config) (*memory.Extractor, error) {
	rs := memory.DefaultRuleSet()
	if cfg.Devices.RulesPath != "" {
		path := config.ExpandHome(cfg.Devices.RulesPath)
		loaded, err := memory.LoadRuleSet(path)
		if err != nil {
			slog.Warn("rules file unusable, using built-in patterns", "path", path, "err", err)
		}
		rs = loaded
	}
	return memory.NewExtractor(rs)
}

func newAssembler(cfg *config.Config) *memory.Assembler {
	return memory.NewAssembler(cfg.Memory.RecentTurns, cfg.Memory.MaxRecentChars)
}

func newFolder(cfg *config.Config) *memory.SummaryBuilder {
	return memory.NewSummaryBuilder(cfg.Memory.MaxSummaryChars, cfg.Memory.CompressBudget)
}

func newTransport(cfg *config.Config) schema.Transport {
	return providers.NewAgentCLI(
		cfg.Agent.BinPath,
		config.ExpandHome(cfg.Agent.Workdir),
		cfg.Agent.Model,
		config.ExpandHome(cfg.Agent.DebugDir),
		nil,
	)
}

func newEngine(
	cfg *config.Config,
	s schema.ConversationStore,
	transport schema.Transport,
	extractor *memory.Extractor,
	assembler *memory.Assembler,
	folder *memory.SummaryBuilder,
) *agent.Engine {
	return agent.NewEngine(s, transport, extractor, assembler, folder, agent.Options{
		GuideTag: cfg.Devices.GuideTag,
		Model:    cfg.Agent.Model,
		Mode:     cfg.Agent.Mode,
		Workdir:  config.ExpandHome(cfg.Agent.Workdir),
	})
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newLoop(b *bus.MessageBus, engine *agent.Engine) *agent.Loop {
	return agent.NewLoop(b, engine, nil)
}

func newChannelManager(cfg *config.Config, b *bus.MessageBus) *channels.Manager {
	return channels.NewManager(cfg, b)
}

func newKnowledgeWorker(cfg *config.Config, s schema.ConversationStore, transport schema.Transport) *knowledge.Worker {
	return knowledge.NewWorker(s, transport, config.ExpandHome(cfg.Storage.LikedDir), nil)
}

func asLiker(w *knowledge.Worker) gateway.Liker { return w }

func newGateway(cfg *config.Config, engine *agent.Engine, s schema.ConversationStore, liker gateway.Liker) *gateway.Server {
	return gateway.New(cfg.Gateway, engine, s, liker, nil)
}

func asLocker(e *agent.Engine) maintenance.Locker { return e }

func newSweeper(
	cfg *config.Config,
	s schema.ConversationStore,
	folder *memory.SummaryBuilder,
	assembler *memory.Assembler,
	locker maintenance.Locker,
) *maintenance.Sweeper {
	return maintenance.NewSweeper(s, folder, assembler.RecentWindow(), locker, cfg.Maintenance.Schedule, nil)
}
