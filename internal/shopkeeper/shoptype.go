package shopkeeper

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/text"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

// Variant holds the type specific state of a shopkeeper.
type Variant interface {
	InitOnCreation(sk *Shopkeeper, data CreationData) error
	Load(sk *Shopkeeper, sec *section.Section) error
	// Save writes copies only, see Shopkeeper.Serialize.
	Save(sec *section.Section)
	// Setup may register UI handlers; defaults are added afterwards.
	Setup(sk *Shopkeeper)
	TradingRecipes() []ui.Recipe
}

// Owned is implemented by variants of player owned shops.
type Owned interface {
	Owner() uuid.UUID
	OwnerName() string
}

// OwnerOf returns the owning player of a player shop.
func OwnerOf(sk *Shopkeeper) (uuid.UUID, bool) {
	o, ok := sk.variant.(Owned)
	if !ok {
		return uuid.Nil, false
	}
	return o.Owner(), true
}

type ShopType struct {
	ID               string
	Permission       string
	DisplayName      func() string
	Description      func() string
	SetupDescription func() string
	// Prefixes are additional normalized identifier prefixes accepted by Matches.
	Prefixes []string

	Enabled    func() bool
	NewVariant func() Variant
	// CreationHook runs before the create event is fired. Returning false
	// vetoes the creation; the hook informs the creator itself.
	CreationHook func(env *Env, data CreationData) bool
}

func (t *ShopType) String() string { return t.ID }

func (t *ShopType) Name() string      { return call(t.DisplayName, t.ID) }
func (t *ShopType) Desc() string      { return call(t.Description, "") }
func (t *ShopType) SetupDesc() string { return call(t.SetupDescription, "") }
func (t *ShopType) IsEnabled() bool   { return t.Enabled == nil || t.Enabled() }

func (t *ShopType) HasPermission(a actor.Actor) bool {
	return a.HasPermission(t.Permission)
}

func call(f func() string, def string) string {
	if f == nil {
		return def
	}
	return f()
}

func (t *ShopType) Matches(identifier string) bool {
	id := text.Normalize(identifier)
	if id == "" {
		return false
	}
	if id == t.ID {
		return true
	}
	for _, p := range t.Prefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

func (t *ShopType) newVariant() Variant {
	if t.NewVariant == nil {
		return noVariant{}
	}
	return t.NewVariant()
}

// Select informs a that this type was selected for creation.
func (t *ShopType) Select(msgs *settings.Messages, a actor.Actor) {
	actor.SendMessage(a, msgs.SelectedShopType,
		"{type}", t.Name(),
		"{description}", t.Desc())
}

func (t *ShopType) CreatedMessage(msgs *settings.Messages) string {
	return text.ReplaceArgs(msgs.ShopkeeperCreated,
		"{type}", t.Name(),
		"{description}", t.Desc(),
		"{setupDesc}", t.SetupDesc())
}

// Create constructs a shopkeeper from a creation request. It does not register it.
func (t *ShopType) Create(env *Env, id int, data CreationData) (*Shopkeeper, error) {
	t.validateCreationData(data)
	sk := newShopkeeper(env, t, id)
	if err := sk.initOnCreation(data); err != nil {
		return nil, err
	}
	return sk, nil
}

// Load reconstructs a shopkeeper from its saved section. It does not register it.
func (t *ShopType) Load(env *Env, id int, sec *section.Section) (*Shopkeeper, error) {
	if sec == nil {
		return nil, &CreateError{Shopkeeper: id, Reason: "missing saved data"}
	}
	sk := newShopkeeper(env, t, id)
	if err := sk.initOnLoad(sec); err != nil {
		return nil, err
	}
	return sk, nil
}

func (t *ShopType) validateCreationData(data CreationData) {
	if data.ShopType != t {
		got := "<nil>"
		if data.ShopType != nil {
			got = data.ShopType.ID
		}
		panic(fmt.Sprintf("shopkeeper: expecting shop type %q, got %q", t.ID, got))
	}
}

type noVariant struct{}

func (noVariant) InitOnCreation(*Shopkeeper, CreationData) error { return nil }
func (noVariant) Load(*Shopkeeper, *section.Section) error       { return nil }
func (noVariant) Save(*section.Section)                          {}
func (noVariant) Setup(*Shopkeeper)                              {}
func (noVariant) TradingRecipes() []ui.Recipe                    { return nil }

// ShopTypes is the registry of shop types.
type ShopTypes struct {
	types map[string]*ShopType
	order []string
}

func NewShopTypes() *ShopTypes {
	return &ShopTypes{types: map[string]*ShopType{}}
}

// Register panics on duplicate identifiers.
func (r *ShopTypes) Register(t *ShopType) {
	if t == nil || t.ID == "" {
		panic("shopkeeper: register shop type without id")
	}
	if _, ok := r.types[t.ID]; ok {
		panic(fmt.Sprintf("shopkeeper: shop type %q already registered", t.ID))
	}
	r.types[t.ID] = t
	r.order = append(r.order, t.ID)
}

func (r *ShopTypes) Get(id string) (*ShopType, bool) {
	t, ok := r.types[id]
	return t, ok
}

func (r *ShopTypes) Match(identifier string) (*ShopType, bool) {
	for _, id := range r.order {
		if t := r.types[id]; t.Matches(identifier) {
			return t, true
		}
	}
	return nil, false
}

func (r *ShopTypes) All() []*ShopType {
	out := make([]*ShopType, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

// Resolve finds the shop type of a saved section. The second result reports
// whether the stored identifier had to be corrected.
func (r *ShopTypes) Resolve(id int, sec *section.Section) (*ShopType, bool, error) {
	raw := sec.String("type", "")
	if t, ok := r.Get(raw); ok {
		return t, false, nil
	}
	if t, ok := r.Match(raw); ok {
		return t, true, nil
	}
	return nil, false, &UnknownShopTypeError{Shopkeeper: id, ShopType: raw}
}
