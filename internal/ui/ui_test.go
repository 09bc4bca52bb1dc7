package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
)

func TestRequestChecksPermissionAndReplacesWindow(t *testing.T) {
	m := NewManager()
	trading := &TradingHandler{Recipes: func() []Recipe { return []Recipe{{Result: "book", Item1: "emerald"}} }}

	denied := actor.NewPlayer("denied")
	assert.False(t, m.Request(1, trading, denied))
	_, ok := m.Session(denied)
	assert.False(t, ok)

	p := actor.NewPlayer("alice", PermTrade)
	require.True(t, m.Request(1, trading, p))
	require.True(t, m.Request(2, trading, p))
	s, ok := m.Session(p)
	require.True(t, ok)
	assert.Equal(t, 2, s.Owner)
	assert.Empty(t, m.Viewers(1))
	assert.Len(t, m.Viewers(2), 1)
}

func TestTradingHandlerWithoutRecipesDoesNotOpen(t *testing.T) {
	m := NewManager()
	h := &TradingHandler{Recipes: func() []Recipe { return nil }}
	assert.False(t, m.Request(1, h, actor.NewOperator("op")))
}

func TestEditorHandler(t *testing.T) {
	owner := actor.NewPlayer("owner")
	other := actor.NewPlayer("other")
	h := &EditorHandler{Owner: owner.UniqueID()}
	assert.True(t, h.CanOpen(owner))
	assert.False(t, h.CanOpen(other))
	other.Grant(PermBypass)
	assert.True(t, h.CanOpen(other))

	admin := &EditorHandler{}
	assert.False(t, admin.CanOpen(owner))
	assert.True(t, admin.CanOpen(actor.NewPlayer("staff", PermAdmin)))
}

func TestCloseAll(t *testing.T) {
	m := NewManager()
	h := &EditorHandler{}
	a := actor.NewOperator("a")
	b := actor.NewOperator("b")
	require.True(t, m.Request(7, h, a))
	require.True(t, m.Request(7, h, b))
	assert.Equal(t, 2, m.CloseAll(7))
	assert.Equal(t, 0, m.CloseAll(7))
}
