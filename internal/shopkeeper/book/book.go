// Package book implements player shops that sell written books.
package book

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

const (
	TypeID     = "book"
	Permission = "shopkeeper.player.book"
)

func NewType(cfg *settings.Settings) *shopkeeper.ShopType {
	return &shopkeeper.ShopType{
		ID:               TypeID,
		Permission:       Permission,
		DisplayName:      func() string { return cfg.Messages.ShopTypeBook },
		Description:      func() string { return cfg.Messages.ShopTypeDescBook },
		SetupDescription: func() string { return cfg.Messages.ShopSetupDescBook },
		Prefixes:         []string{"book"},
		Enabled:          func() bool { return cfg.EnableBookShops },
		NewVariant:       func() shopkeeper.Variant { return &Shop{} },
		CreationHook:     limitShops,
	}
}

// limitShops enforces the per player shop limit.
func limitShops(env *shopkeeper.Env, data shopkeeper.CreationData) bool {
	max := env.Settings.MaxShopsPerPlayer
	if max <= 0 || data.Creator.HasPermission(ui.PermBypass) {
		return true
	}
	if len(env.Registry.ShopkeepersOwnedBy(data.Creator.UniqueID())) >= max {
		actor.SendMessage(data.Creator, env.Settings.Messages.TooManyShops)
		return false
	}
	return true
}

type Offer struct {
	Title string
	Price int
}

// Shop is the state of a book shopkeeper.
type Shop struct {
	sk        *shopkeeper.Shopkeeper
	owner     uuid.UUID
	ownerName string
	offers    []Offer
}

func (s *Shop) InitOnCreation(sk *shopkeeper.Shopkeeper, data shopkeeper.CreationData) error {
	s.sk = sk
	if data.Creator == nil {
		return errors.New("player shop without creator")
	}
	s.owner = data.Creator.UniqueID()
	s.ownerName = data.Creator.Name()
	return nil
}

func (s *Shop) Load(sk *shopkeeper.Shopkeeper, sec *section.Section) error {
	s.sk = sk
	raw := sec.String("owner uuid", "")
	owner, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid owner uuid %q: %w", raw, err)
	}
	s.owner = owner
	s.ownerName = sec.String("owner", "unknown")

	for _, o := range sec.SectionList("offers") {
		offer := Offer{Title: o.String("book", ""), Price: o.Int("price", 0)}
		if offer.Title == "" || offer.Price <= 0 {
			// Dropped; the cleaned list is written back.
			sk.MarkDirty()
			continue
		}
		s.offers = append(s.offers, offer)
	}
	return nil
}

func (s *Shop) Save(sec *section.Section) {
	sec.Set("owner uuid", s.owner.String())
	sec.Set("owner", s.ownerName)
	offers := make([]any, 0, len(s.offers))
	for _, o := range s.offers {
		entry := section.New()
		entry.Set("book", o.Title)
		entry.Set("price", o.Price)
		offers = append(offers, entry)
	}
	sec.Set("offers", offers)
}

// Setup registers the book trading window and the owner's editor.
func (s *Shop) Setup(sk *shopkeeper.Shopkeeper) {
	sk.RegisterUIHandler(&ui.TradingHandler{Recipes: s.TradingRecipes})
	sk.RegisterUIHandler(&ui.EditorHandler{Owner: s.owner})
}

func (s *Shop) TradingRecipes() []ui.Recipe {
	out := make([]ui.Recipe, 0, len(s.offers))
	for _, o := range s.offers {
		out = append(out, ui.Recipe{
			Result: "written_book:" + o.Title,
			Item1:  fmt.Sprintf("emerald x%d", o.Price),
			Item2:  "writable_book",
		})
	}
	return out
}

func (s *Shop) Owner() uuid.UUID  { return s.owner }
func (s *Shop) OwnerName() string { return s.ownerName }

func (s *Shop) Offers() []Offer {
	out := make([]Offer, len(s.offers))
	copy(out, s.offers)
	return out
}

// SetOffer adds or replaces the offer for title.
func (s *Shop) SetOffer(title string, price int) error {
	if title == "" || price <= 0 {
		return fmt.Errorf("invalid offer %q for %d", title, price)
	}
	for i := range s.offers {
		if s.offers[i].Title == title {
			s.offers[i].Price = price
			s.sk.MarkDirty()
			return nil
		}
	}
	s.offers = append(s.offers, Offer{Title: title, Price: price})
	s.sk.MarkDirty()
	return nil
}

func (s *Shop) RemoveOffer(title string) bool {
	for i := range s.offers {
		if s.offers[i].Title == title {
			s.offers = append(s.offers[:i], s.offers[i+1:]...)
			s.sk.MarkDirty()
			return true
		}
	}
	return false
}
