// Package admin implements admin shops: fixed trades with unlimited stock.
package admin

import (
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/settings"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

const (
	TypeID     = "admin"
	Permission = ui.PermAdmin
)

func NewType(cfg *settings.Settings) *shopkeeper.ShopType {
	return &shopkeeper.ShopType{
		ID:               TypeID,
		Permission:       Permission,
		DisplayName:      func() string { return cfg.Messages.ShopTypeAdmin },
		Description:      func() string { return cfg.Messages.ShopTypeDescAdmin },
		SetupDescription: func() string { return cfg.Messages.ShopSetupDescAdmin },
		Enabled:          func() bool { return cfg.EnableAdminShops },
		NewVariant:       func() shopkeeper.Variant { return &Shop{} },
	}
}

type Shop struct {
	sk      *shopkeeper.Shopkeeper
	recipes []ui.Recipe
}

func (s *Shop) InitOnCreation(sk *shopkeeper.Shopkeeper, _ shopkeeper.CreationData) error {
	s.sk = sk
	return nil
}

func (s *Shop) Load(sk *shopkeeper.Shopkeeper, sec *section.Section) error {
	s.sk = sk
	for _, r := range sec.SectionList("recipes") {
		recipe := ui.Recipe{
			Result: r.String("result", ""),
			Item1:  r.String("item1", ""),
			Item2:  r.String("item2", ""),
		}
		if recipe.Result == "" || recipe.Item1 == "" {
			sk.MarkDirty()
			continue
		}
		s.recipes = append(s.recipes, recipe)
	}
	return nil
}

func (s *Shop) Save(sec *section.Section) {
	list := make([]any, 0, len(s.recipes))
	for _, r := range s.recipes {
		entry := section.New()
		entry.Set("result", r.Result)
		entry.Set("item1", r.Item1)
		if r.Item2 != "" {
			entry.Set("item2", r.Item2)
		}
		list = append(list, entry)
	}
	sec.Set("recipes", list)
}

// Setup registers only the editor; trading uses the default handler.
func (s *Shop) Setup(sk *shopkeeper.Shopkeeper) {
	sk.RegisterUIHandler(&ui.EditorHandler{})
}

func (s *Shop) TradingRecipes() []ui.Recipe {
	out := make([]ui.Recipe, len(s.recipes))
	copy(out, s.recipes)
	return out
}

func (s *Shop) SetRecipes(recipes []ui.Recipe) {
	s.recipes = append([]ui.Recipe(nil), recipes...)
	s.sk.MarkDirty()
}
