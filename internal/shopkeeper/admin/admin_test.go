package admin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/admin"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/shopkeepertest"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

func TestRecipesSurviveReload(t *testing.T) {
	h := shopkeepertest.New(t)
	sk := h.Create(h.Creation(actor.NewOperator("op"), h.AdminType, shopkeepertest.Loc(0, 64, 0)))
	recipes := []ui.Recipe{
		{Result: "diamond", Item1: "emerald x9"},
		{Result: "elytra", Item1: "emerald x64", Item2: "nether_star"},
	}
	sk.Variant().(*admin.Shop).SetRecipes(recipes)

	sec := section.New()
	sk.Serialize(sec)
	loaded, err := h.AdminType.Load(h.Env, sk.ID(), sec)
	require.NoError(t, err)
	assert.Equal(t, recipes, loaded.Variant().(*admin.Shop).TradingRecipes())
	assert.False(t, loaded.IsDirty())
}

func TestLoadDropsIncompleteRecipes(t *testing.T) {
	h := shopkeepertest.New(t)
	sk := h.Create(h.Creation(actor.NewOperator("op"), h.AdminType, shopkeepertest.Loc(0, 64, 0)))

	sec := section.New()
	sk.Serialize(sec)
	broken := section.New()
	broken.Set("result", "diamond")
	sec.Set("recipes", []any{broken})

	loaded, err := h.AdminType.Load(h.Env, sk.ID(), sec)
	require.NoError(t, err)
	assert.Empty(t, loaded.Variant().(*admin.Shop).TradingRecipes())
	assert.True(t, loaded.IsDirty())
}

func TestDefaultTradingAndAdminEditor(t *testing.T) {
	h := shopkeepertest.New(t)
	sk := h.Create(h.Creation(actor.NewOperator("op"), h.AdminType, shopkeepertest.Loc(0, 64, 0)))
	buyer := shopkeepertest.Player("bob")

	assert.False(t, sk.OpenTradingWindow(buyer))
	sk.Variant().(*admin.Shop).SetRecipes([]ui.Recipe{{Result: "diamond", Item1: "emerald x9"}})
	assert.True(t, sk.OpenTradingWindow(buyer))

	assert.False(t, sk.OpenEditorWindow(buyer))
	assert.True(t, sk.OpenEditorWindow(actor.NewPlayer("mod", ui.PermAdmin)))
}
