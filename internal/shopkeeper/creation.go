package shopkeeper

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
)

// CreationData is a request to create a shopkeeper.
type CreationData struct {
	Creator    actor.Actor
	ShopType   *ShopType
	ObjectType *shopobject.Type
	Location   world.Location
	// TargetedFace is the face of the clicked block; it decides e.g. between wall and floor signs.
	TargetedFace world.BlockFace
	// Name is optional.
	Name string
}

type Outcome int

const (
	Created Outcome = iota
	NoPermission
	TypeDisabled
	ObjectTypeDisabled
	InvalidPlacement
	PlacementOccupied
	Vetoed
	CreationFailed
)

var outcomeNames = [...]string{
	"created",
	"no_permission",
	"type_disabled",
	"object_type_disabled",
	"invalid_placement",
	"placement_occupied",
	"vetoed",
	"creation_failed",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Result is the outcome of a creation request. Shopkeeper is set only for Created;
// Reason describes a CreationFailed outcome.
type Result struct {
	Shopkeeper *Shopkeeper
	Outcome    Outcome
	Reason     string
}

func (r Result) OK() bool { return r.Outcome == Created }

// HandleCreation runs the player creation pipeline: permission and
// enablement checks for the shop type and the object type, placement checks,
// the type specific hook and finally creation, registration and saving.
// Rejections are reported to the creator and returned as outcomes.
func (t *ShopType) HandleCreation(env *Env, data CreationData) (res Result) {
	t.validateCreationData(data)
	creator := data.Creator
	if creator == nil {
		panic("shopkeeper: creation without creator")
	}
	msgs := &env.Settings.Messages
	defer func() {
		if env.Metrics != nil {
			env.Metrics.ObserveCreation(t.ID, res.Outcome.String())
		}
	}()

	if !t.HasPermission(creator) {
		actor.SendMessage(creator, msgs.NoPermission)
		return Result{Outcome: NoPermission}
	}
	if !t.IsEnabled() {
		actor.SendMessage(creator, msgs.ShopTypeDisabled, "{type}", t.ID)
		return Result{Outcome: TypeDisabled}
	}

	objType := data.ObjectType
	if objType == nil {
		return t.creationFailed(env, creator, "missing shop object type")
	}
	if !objType.HasPermission(creator) {
		actor.SendMessage(creator, msgs.NoPermission)
		return Result{Outcome: NoPermission}
	}
	if !objType.IsEnabled() {
		actor.SendMessage(creator, msgs.ShopObjectTypeDisabled, "{type}", objType.ID)
		return Result{Outcome: ObjectTypeDisabled}
	}

	if !objType.IsValidSpawnLocation(data.Location, data.TargetedFace) {
		actor.SendMessage(creator, msgs.ShopCreateFail)
		return Result{Outcome: InvalidPlacement}
	}
	if len(env.Registry.ShopkeepersAtLocation(data.Location)) > 0 {
		actor.SendMessage(creator, msgs.ShopCreateFail)
		return Result{Outcome: PlacementOccupied}
	}

	if !t.handleSpecificCreation(env, data) {
		return Result{Outcome: Vetoed}
	}

	sk, err := env.Registry.CreateShopkeeper(data)
	if err != nil {
		return t.creationFailed(env, creator, err.Error())
	}
	actor.SendMessage(creator, t.CreatedMessage(msgs))
	sk.Save()
	return Result{Shopkeeper: sk, Outcome: Created}
}

func (t *ShopType) handleSpecificCreation(env *Env, data CreationData) bool {
	if t.CreationHook != nil && !t.CreationHook(env, data) {
		env.Log.Debug("shopkeeper creation vetoed by type", zap.String("type", t.ID))
		return false
	}
	if env.Events.Fire(&CreateEvent{Data: data}) {
		env.Log.Debug("shopkeeper create event was cancelled", zap.String("type", t.ID))
		return false
	}
	return true
}

func (t *ShopType) creationFailed(env *Env, creator actor.Actor, reason string) Result {
	env.Log.Warn("shopkeeper creation failed",
		zap.String("type", t.ID),
		zap.String("creator", creator.Name()),
		zap.String("reason", reason))
	actor.SendMessage(creator, env.Settings.Messages.ShopCreationFailed, "{reason}", reason)
	return Result{Outcome: CreationFailed, Reason: reason}
}
