package shopkeeper

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/events"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

// Registry is the shopkeeper index the pipelines register into.
type Registry interface {
	CreateShopkeeper(data CreationData) (*Shopkeeper, error)
	DeleteShopkeeper(sk *Shopkeeper)
	ShopkeepersAtLocation(loc world.Location) []*Shopkeeper
	ShopkeepersOwnedBy(owner uuid.UUID) []*Shopkeeper
	OnShopkeeperMove(sk *Shopkeeper, old ChunkCoords)
}

// Storage persists dirty shopkeepers.
type Storage interface {
	Save()
	SaveDelayed()
	MarkDirty()
}

type Metrics interface {
	ObserveCreation(shopType, outcome string)
}

// Env holds the collaborators shared by all shopkeepers. It is wired once at
// startup; Registry and Storage may be set after construction to break the
// dependency cycle between them.
type Env struct {
	Log      *zap.Logger
	Settings *settings.Settings
	Worlds   *world.Worlds
	Objects  *shopobject.Registry
	Registry Registry
	Storage  Storage
	Events   *events.Bus
	UI       *ui.Manager
	Metrics  Metrics
}
