// Package shopkeepertest wires a complete shopkeeper environment for tests.
package shopkeepertest

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/citizens"
	"github.com/TomCreeper/Shopkeepers/internal/events"
	"github.com/TomCreeper/Shopkeepers/internal/observability/metrics"
	"github.com/TomCreeper/Shopkeepers/internal/registry"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/admin"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/book"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject/citizen"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject/sign"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

const WorldName = "world"

// Storage records persistence requests instead of writing anything.
type Storage struct {
	Saves        int
	DelayedSaves int
	Dirty        int
}

func (s *Storage) Save()        { s.Saves++ }
func (s *Storage) SaveDelayed() { s.DelayedSaves++ }
func (s *Storage) MarkDirty()   { s.Dirty++ }

func (s *Storage) Reset() { *s = Storage{} }

type Harness struct {
	T        testing.TB
	Log      *zap.Logger
	Logs     *observer.ObservedLogs
	Settings *settings.Settings
	Worlds   *world.Worlds
	World    *world.World
	NPCs     *citizens.Manager
	Objects  *shopobject.Registry
	Types    *shopkeeper.ShopTypes
	Registry *registry.Registry
	Storage  *Storage
	Events   *events.Bus
	UI       *ui.Manager
	Metrics  *metrics.Metrics
	Env      *shopkeeper.Env

	SignType    *shopobject.Type
	CitizenType *shopobject.Type
	BookType    *shopkeeper.ShopType
	AdminType   *shopkeeper.ShopType
}

// New builds a harness with one world ("world"), no loaded chunks, default
// settings and an enabled NPC subsystem.
func New(t testing.TB) *Harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	cfg, err := settings.Load("")
	require.NoError(t, err)

	h := &Harness{
		T:        t,
		Log:      log,
		Logs:     logs,
		Settings: &cfg,
		Worlds:   world.NewWorlds(),
		Objects:  shopobject.NewRegistry(),
		Types:    shopkeeper.NewShopTypes(),
		Storage:  &Storage{},
		Events:   events.NewBus(),
		UI:       ui.NewManager(),
		Metrics:  metrics.New(prometheus.NewRegistry()),
	}
	h.World = h.Worlds.Load(WorldName, world.DefaultGen(1))
	h.NPCs = citizens.New(log, h.Worlds)
	h.NPCs.Enable(true)

	h.SignType = sign.NewType(log, h.Worlds, h.Settings)
	h.CitizenType = citizen.NewType(log, h.NPCs, h.Settings)
	h.Objects.Register(h.SignType)
	h.Objects.Register(h.CitizenType)

	h.BookType = book.NewType(h.Settings)
	h.AdminType = admin.NewType(h.Settings)
	h.Types.Register(h.BookType)
	h.Types.Register(h.AdminType)

	h.Env = &shopkeeper.Env{
		Log:      log,
		Settings: h.Settings,
		Worlds:   h.Worlds,
		Objects:  h.Objects,
		Storage:  h.Storage,
		Events:   h.Events,
		UI:       h.UI,
		Metrics:  h.Metrics,
	}
	h.Registry = registry.New(h.Env, h.Types, h.Metrics)
	h.Env.Registry = h.Registry
	h.Worlds.AddListener(h.Registry)
	return h
}

// Loc returns a location in the harness world. Y 64 is always air.
func Loc(x, y, z int) world.Location {
	return world.Location{World: WorldName, X: x, Y: y, Z: z}
}

// LoadChunk loads the chunk containing loc.
func (h *Harness) LoadChunk(loc world.Location) {
	h.World.LoadChunk(loc.Chunk())
}

func (h *Harness) UnloadChunk(loc world.Location) {
	h.World.UnloadChunk(loc.Chunk())
}

// Creation returns the data of a wall sign shop placed against the north face.
func (h *Harness) Creation(creator actor.Actor, typ *shopkeeper.ShopType, loc world.Location) shopkeeper.CreationData {
	return shopkeeper.CreationData{
		Creator:      creator,
		ShopType:     typ,
		ObjectType:   h.SignType,
		Location:     loc,
		TargetedFace: world.FaceNorth,
	}
}

// Create registers a shopkeeper, failing the test on error.
func (h *Harness) Create(data shopkeeper.CreationData) *shopkeeper.Shopkeeper {
	h.T.Helper()
	sk, err := h.Registry.CreateShopkeeper(data)
	require.NoError(h.T, err)
	return sk
}

// Player returns a player allowed to create book shops.
func Player(name string) *actor.Player {
	return actor.NewPlayer(name, book.Permission, sign.Permission, citizen.Permission, ui.PermTrade)
}
