package shopkeeper_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomCreeper/Shopkeepers/internal/actor"
	"github.com/TomCreeper/Shopkeepers/internal/events"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/shopkeepertest"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject/sign"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/text"
	"github.com/TomCreeper/Shopkeepers/internal/ui"
)

func TestHandleCreation_Created(t *testing.T) {
	h := shopkeepertest.New(t)
	p := shopkeepertest.Player("alice")
	loc := shopkeepertest.Loc(10, 64, 10)
	h.LoadChunk(loc)

	res := h.BookType.HandleCreation(h.Env, h.Creation(p, h.BookType, loc))
	require.True(t, res.OK(), "outcome %s", res.Outcome)
	sk := res.Shopkeeper
	require.NotNil(t, sk)

	assert.Equal(t, loc, sk.StoredLocation())
	assert.Equal(t, []*shopkeeper.Shopkeeper{sk}, h.Registry.ShopkeepersAtLocation(loc))
	assert.True(t, sk.IsValid())
	assert.True(t, sk.IsDirty())
	assert.True(t, h.Registry.IsActive(sk))
	assert.Equal(t, world.WallSign, h.World.Block(loc.Pos()))
	assert.Equal(t, 1, h.Storage.Saves)

	owner, ok := shopkeeper.OwnerOf(sk)
	require.True(t, ok)
	assert.Equal(t, p.UniqueID(), owner)

	assert.Equal(t, []string{
		text.Colorize("&aShopkeeper created: &6Book &7(sells books)"),
		text.Colorize("&eAdd written books and blank books to the chest."),
	}, p.Messages())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.CreationsTotal.WithLabelValues("book", "created")))
}

func TestHandleCreation_SecondRequestAtSamePlacementIsOccupied(t *testing.T) {
	h := shopkeepertest.New(t)
	p := shopkeepertest.Player("alice")
	loc := shopkeepertest.Loc(10, 64, 10)

	first := h.BookType.HandleCreation(h.Env, h.Creation(p, h.BookType, loc))
	require.True(t, first.OK())

	second := h.BookType.HandleCreation(h.Env, h.Creation(p, h.BookType, loc))
	assert.Equal(t, shopkeeper.PlacementOccupied, second.Outcome)
	assert.Nil(t, second.Shopkeeper)
	assert.Equal(t, 1, h.Registry.Count())
	assert.Equal(t, text.Colorize(h.Settings.Messages.ShopCreateFail), p.LastMessage())
}

func TestHandleCreation_SignPostDisabled(t *testing.T) {
	h := shopkeepertest.New(t)
	h.Settings.EnableSignPostShops = false
	p := shopkeepertest.Player("alice")

	data := h.Creation(p, h.BookType, shopkeepertest.Loc(10, 64, 10))
	data.TargetedFace = world.FaceUp
	res := h.BookType.HandleCreation(h.Env, data)

	assert.Equal(t, shopkeeper.InvalidPlacement, res.Outcome)
	assert.Zero(t, h.Registry.Count())
	assert.Equal(t, 0, h.Storage.Saves)
}

func TestHandleCreation_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(h *shopkeepertest.Harness, data *shopkeeper.CreationData)
		typ     func(h *shopkeepertest.Harness) *shopkeeper.ShopType
		want    shopkeeper.Outcome
		message func(h *shopkeepertest.Harness) string
	}{
		{
			name: "missing shop type permission",
			prepare: func(h *shopkeepertest.Harness, data *shopkeeper.CreationData) {
				data.Creator = actor.NewPlayer("bob", sign.Permission)
			},
			want:    shopkeeper.NoPermission,
			message: func(h *shopkeepertest.Harness) string { return h.Settings.Messages.NoPermission },
		},
		{
			name: "shop type disabled",
			prepare: func(h *shopkeepertest.Harness, _ *shopkeeper.CreationData) {
				h.Settings.EnableBookShops = false
			},
			want:    shopkeeper.TypeDisabled,
			message: func(h *shopkeepertest.Harness) string { return "&7The shop type '&ebook&7' is disabled." },
		},
		{
			name: "missing object type permission",
			prepare: func(h *shopkeepertest.Harness, data *shopkeeper.CreationData) {
				data.Creator = actor.NewPlayer("bob", h.BookType.Permission)
			},
			want:    shopkeeper.NoPermission,
			message: func(h *shopkeepertest.Harness) string { return h.Settings.Messages.NoPermission },
		},
		{
			name: "object type disabled",
			prepare: func(h *shopkeepertest.Harness, data *shopkeeper.CreationData) {
				h.NPCs.Disable()
				data.ObjectType = h.CitizenType
			},
			want:    shopkeeper.ObjectTypeDisabled,
			message: func(h *shopkeepertest.Harness) string { return "&7The shop object type '&ecitizen&7' is disabled." },
		},
		{
			name: "solid block",
			prepare: func(h *shopkeepertest.Harness, data *shopkeeper.CreationData) {
				data.Location.Y = 10
			},
			want:    shopkeeper.InvalidPlacement,
			message: func(h *shopkeepertest.Harness) string { return h.Settings.Messages.ShopCreateFail },
		},
		{
			name: "downwards facing sign",
			prepare: func(h *shopkeepertest.Harness, data *shopkeeper.CreationData) {
				data.TargetedFace = world.FaceDown
			},
			want:    shopkeeper.InvalidPlacement,
			message: func(h *shopkeepertest.Harness) string { return h.Settings.Messages.ShopCreateFail },
		},
		{
			name: "missing object type",
			prepare: func(h *shopkeepertest.Harness, data *shopkeeper.CreationData) {
				data.ObjectType = nil
			},
			want:    shopkeeper.CreationFailed,
			message: func(h *shopkeepertest.Harness) string { return "&cShopkeeper creation failed: missing shop object type" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := shopkeepertest.New(t)
			data := h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(1, 64, 1))
			tt.prepare(h, &data)

			res := h.BookType.HandleCreation(h.Env, data)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Nil(t, res.Shopkeeper)
			assert.Zero(t, h.Registry.Count())

			p := data.Creator.(*actor.Player)
			assert.Equal(t, text.Colorize(tt.message(h)), p.LastMessage())
			assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.CreationsTotal.WithLabelValues("book", tt.want.String())))
		})
	}
}

func TestHandleCreation_CreateEventVeto(t *testing.T) {
	h := shopkeepertest.New(t)
	var seen []shopkeeper.CreationData
	h.Events.Subscribe(shopkeeper.EventCreate, func(e events.Event) {
		ce := e.(*shopkeeper.CreateEvent)
		seen = append(seen, ce.Data)
		ce.SetCancelled(true)
	})

	data := h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(1, 64, 1))
	res := h.BookType.HandleCreation(h.Env, data)

	assert.Equal(t, shopkeeper.Vetoed, res.Outcome)
	assert.Zero(t, h.Registry.Count())
	require.Len(t, seen, 1)
	assert.Equal(t, data.Location, seen[0].Location)
}

func TestHandleCreation_ShopLimitVetoes(t *testing.T) {
	h := shopkeepertest.New(t)
	h.Settings.MaxShopsPerPlayer = 1
	p := shopkeepertest.Player("alice")

	require.True(t, h.BookType.HandleCreation(h.Env, h.Creation(p, h.BookType, shopkeepertest.Loc(1, 64, 1))).OK())
	res := h.BookType.HandleCreation(h.Env, h.Creation(p, h.BookType, shopkeepertest.Loc(5, 64, 1)))
	assert.Equal(t, shopkeeper.Vetoed, res.Outcome)
	assert.Equal(t, text.Colorize(h.Settings.Messages.TooManyShops), p.LastMessage())

	p.Grant(ui.PermBypass)
	assert.True(t, h.BookType.HandleCreation(h.Env, h.Creation(p, h.BookType, shopkeepertest.Loc(5, 64, 1))).OK())
	assert.Equal(t, 2, h.Registry.Count())
}

func TestHandleCreation_RejectsFaceTheObjectCannotUse(t *testing.T) {
	h := shopkeepertest.New(t)
	// Accept every face so the sign itself refuses to materialize.
	h.SignType.ValidSpawnLocation = func(world.Location, world.BlockFace) bool { return true }
	data := h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(1, 64, 1))
	data.TargetedFace = world.FaceSelf

	res := h.BookType.HandleCreation(h.Env, data)
	assert.Equal(t, shopkeeper.CreationFailed, res.Outcome)
	assert.Contains(t, res.Reason, "could not create shop object")
	assert.Zero(t, h.Registry.Count())
}

func TestHandleCreation_MismatchedShopTypePanics(t *testing.T) {
	h := shopkeepertest.New(t)
	data := h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(1, 64, 1))
	assert.Panics(t, func() { h.AdminType.HandleCreation(h.Env, data) })
}

func TestHandleCreation_TrimsLongName(t *testing.T) {
	h := shopkeepertest.New(t)
	data := h.Creation(shopkeepertest.Player("alice"), h.BookType, shopkeepertest.Loc(1, 64, 1))
	data.Name = strings.Repeat("n", 200)

	res := h.BookType.HandleCreation(h.Env, data)
	require.True(t, res.OK())
	assert.Equal(t, shopkeeper.MaxNameLength, text.RuneLen(res.Shopkeeper.Name()))

	warnings := h.Logs.FilterMessage("shopkeeper name too long, trimming").All()
	require.Len(t, warnings, 1)
	assert.EqualValues(t, res.Shopkeeper.ID(), warnings[0].ContextMap()["id"])
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "placement_occupied", shopkeeper.PlacementOccupied.String())
	assert.Equal(t, "outcome(42)", shopkeeper.Outcome(42).String())
}
