package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/book"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/shopkeepertest"
)

func offer(title string, price int) *section.Section {
	s := section.New()
	s.Set("book", title)
	s.Set("price", price)
	return s
}

func TestLoadDropsInvalidOffers(t *testing.T) {
	h := shopkeepertest.New(t)
	sk := h.Create(h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(3, 64, 3)))

	sec := section.New()
	sk.Serialize(sec)
	sec.Set("offers", []any{offer("Dune", 5), offer("", 3), offer("Free", 0)})

	loaded, err := h.BookType.Load(h.Env, sk.ID(), sec)
	require.NoError(t, err)
	shop := loaded.Variant().(*book.Shop)
	assert.Equal(t, []book.Offer{{Title: "Dune", Price: 5}}, shop.Offers())
	assert.Equal(t, "alice", shop.OwnerName())
	assert.True(t, loaded.IsDirty())
}

func TestLoadRequiresOwner(t *testing.T) {
	h := shopkeepertest.New(t)
	sk := h.Create(h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(3, 64, 3)))

	sec := section.New()
	sk.Serialize(sec)
	sec.Remove("owner uuid")

	_, err := h.BookType.Load(h.Env, sk.ID(), sec)
	require.Error(t, err)
}

func TestOffers(t *testing.T) {
	h := shopkeepertest.New(t)
	sk := h.Create(h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(3, 64, 3)))
	shop := sk.Variant().(*book.Shop)

	require.Error(t, shop.SetOffer("", 4))
	require.NoError(t, shop.SetOffer("Dune", 5))
	require.NoError(t, shop.SetOffer("Dune", 7))
	require.NoError(t, shop.SetOffer("Emma", 2))
	assert.Equal(t, []book.Offer{{Title: "Dune", Price: 7}, {Title: "Emma", Price: 2}}, shop.Offers())

	recipes := shop.TradingRecipes()
	require.Len(t, recipes, 2)
	assert.Equal(t, "written_book:Dune", recipes[0].Result)
	assert.Equal(t, "emerald x7", recipes[0].Item1)

	assert.True(t, shop.RemoveOffer("Dune"))
	assert.False(t, shop.RemoveOffer("Dune"))
	assert.Len(t, shop.Offers(), 1)
}

func TestWindows(t *testing.T) {
	h := shopkeepertest.New(t)
	alice := shopkeepertest.Player("alice")
	bob := shopkeepertest.Player("bob")
	sk := h.Create(h.Creation(alice, h.BookType, shopkeepertest.Loc(3, 64, 3)))

	assert.False(t, sk.OpenTradingWindow(bob), "nothing to sell yet")
	require.NoError(t, sk.Variant().(*book.Shop).SetOffer("Dune", 5))
	assert.True(t, sk.OpenTradingWindow(bob))

	assert.True(t, sk.OpenEditorWindow(alice))
	assert.False(t, sk.OpenEditorWindow(bob))
}
