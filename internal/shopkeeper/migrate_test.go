package shopkeeper_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper"
	"github.com/TomCreeper/Shopkeepers/internal/shopkeeper/shopkeepertest"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject/citizen"
	"github.com/TomCreeper/Shopkeepers/internal/shopobject/sign"
	"github.com/TomCreeper/Shopkeepers/internal/sim/world"
	"github.com/TomCreeper/Shopkeepers/internal/text"
)

var ownerID = uuid.MustParse("5f0c54b4-8f4b-4bb4-9f6e-bd2a1a4e3c11")

func savedBookShop(t *testing.T, raw string) *section.Section {
	t.Helper()
	sec, err := section.Unmarshal([]byte(raw))
	require.NoError(t, err)
	return sec
}

const nestedBookShop = `
uniqueId: 0b7c3c1e-3a58-4d8f-a0a8-0d6f4c1f2b9e
name: '&6Librarian'
world: world
x: 12
y: 64
z: -3
type: book
object:
    type: sign
    signFacing: EAST
owner uuid: 5f0c54b4-8f4b-4bb4-9f6e-bd2a1a4e3c11
owner: alice
offers:
    - book: Dune
      price: 3
`

const flatBookShop = `
uniqueId: 0b7c3c1e-3a58-4d8f-a0a8-0d6f4c1f2b9e
name: '&6Librarian'
world: world
x: 12
y: 64
z: -3
type: book
object: block
signFacing: EAST
owner uuid: 5f0c54b4-8f4b-4bb4-9f6e-bd2a1a4e3c11
owner: alice
`

func TestLoad_NestedLayoutIsClean(t *testing.T) {
	h := shopkeepertest.New(t)
	sk, err := h.BookType.Load(h.Env, 4, savedBookShop(t, nestedBookShop))
	require.NoError(t, err)

	assert.False(t, sk.IsDirty())
	assert.Equal(t, uuid.MustParse("0b7c3c1e-3a58-4d8f-a0a8-0d6f4c1f2b9e"), sk.UniqueID())
	assert.Equal(t, text.Colorize("&6Librarian"), sk.Name())
	assert.Equal(t, shopkeepertest.Loc(12, 64, -3), sk.StoredLocation())
	assert.Equal(t, shopkeeper.ChunkCoords{World: "world", CX: 0, CZ: -1}, sk.ChunkCoords())
	assert.Equal(t, sign.TypeID, sk.ShopObject().Type().ID)
	assert.Equal(t, world.FaceEast, sk.ShopObject().(*sign.Object).Facing())
	owner, ok := shopkeeper.OwnerOf(sk)
	require.True(t, ok)
	assert.Equal(t, ownerID, owner)
}

func TestLoad_FlatLayoutResolvesSameObjectType(t *testing.T) {
	h := shopkeepertest.New(t)
	nested, err := h.BookType.Load(h.Env, 4, savedBookShop(t, nestedBookShop))
	require.NoError(t, err)
	flat, err := h.BookType.Load(h.Env, 5, savedBookShop(t, flatBookShop))
	require.NoError(t, err)

	assert.True(t, flat.IsDirty())
	assert.Equal(t, nested.ShopObject().Type(), flat.ShopObject().Type())
	assert.Equal(t, world.FaceEast, flat.ShopObject().(*sign.Object).Facing())

	// Written back in the nested layout.
	out := section.New()
	flat.Serialize(out)
	obj := out.Section("object")
	require.NotNil(t, obj)
	assert.Equal(t, "sign", obj.String("type", ""))
	assert.Equal(t, "EAST", obj.String("signFacing", ""))
	assert.False(t, out.Has("signFacing"))
}

func TestLoad_ObjectTypeCorrections(t *testing.T) {
	tests := []struct {
		name   string
		typeID string
		want   string
	}{
		{name: "exact", typeID: "sign", want: sign.TypeID},
		{name: "deprecated alias", typeID: "block", want: sign.TypeID},
		{name: "case", typeID: "SIGN", want: sign.TypeID},
		{name: "fuzzy prefix", typeID: "npc", want: citizen.TypeID},
		{name: "fuzzy with separators", typeID: "Citizen_NPC", want: citizen.TypeID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := shopkeepertest.New(t)
			sec := savedBookShop(t, nestedBookShop)
			sec.Section("object").Set("type", tt.typeID)

			sk, err := h.BookType.Load(h.Env, 1, sec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sk.ShopObject().Type().ID)
			assert.Equal(t, tt.typeID != tt.want, sk.IsDirty())
		})
	}
}

func TestLoad_UnknownObjectType(t *testing.T) {
	h := shopkeepertest.New(t)
	sec := savedBookShop(t, nestedBookShop)
	sec.Section("object").Set("type", "hologram")

	_, err := h.BookType.Load(h.Env, 9, sec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shopkeeper.ErrUnknownObjectType))
	var typed *shopkeeper.UnknownObjectTypeError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 9, typed.Shopkeeper)
	assert.Equal(t, "hologram", typed.ObjectType)
}

func TestLoad_RegeneratesInvalidUniqueID(t *testing.T) {
	for _, raw := range []string{"", "not-a-uuid"} {
		t.Run(raw, func(t *testing.T) {
			h := shopkeepertest.New(t)
			sec := savedBookShop(t, nestedBookShop)
			if raw == "" {
				sec.Remove("uniqueId")
			} else {
				sec.Set("uniqueId", raw)
			}

			sk, err := h.BookType.Load(h.Env, 2, sec)
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, sk.UniqueID())
			assert.True(t, sk.IsDirty())

			warnings := h.Logs.FilterMessage("shopkeeper has an invalid unique id, creating a new one").Len()
			if raw == "" {
				assert.Zero(t, warnings)
			} else {
				assert.Equal(t, 1, warnings)
			}
		})
	}
}

func TestLoad_TrimsLongName(t *testing.T) {
	h := shopkeepertest.New(t)
	sec := savedBookShop(t, nestedBookShop)
	sec.Set("name", strings.Repeat("x", 300))

	sk, err := h.BookType.Load(h.Env, 3, sec)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", shopkeeper.MaxNameLength), sk.Name())

	warnings := h.Logs.FilterMessage("shopkeeper name too long, trimming").All()
	require.Len(t, warnings, 1)
	assert.EqualValues(t, 3, warnings[0].ContextMap()["id"])
}

func TestLoad_StructuralFailures(t *testing.T) {
	h := shopkeepertest.New(t)

	noWorld := savedBookShop(t, nestedBookShop)
	noWorld.Remove("world")
	_, err := h.BookType.Load(h.Env, 1, noWorld)
	var ce *shopkeeper.CreateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "missing world name", ce.Reason)

	badOwner := savedBookShop(t, nestedBookShop)
	badOwner.Set("owner uuid", "nobody")
	_, err = h.BookType.Load(h.Env, 1, badOwner)
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "could not load book data", ce.Reason)

	_, err = h.BookType.Load(h.Env, 1, nil)
	require.ErrorAs(t, err, &ce)
}

func TestShopTypesResolve(t *testing.T) {
	h := shopkeepertest.New(t)

	typ, corrected, err := h.Types.Resolve(1, savedBookShop(t, "type: book\n"))
	require.NoError(t, err)
	assert.Same(t, h.BookType, typ)
	assert.False(t, corrected)

	typ, corrected, err = h.Types.Resolve(1, savedBookShop(t, "type: BOOK\n"))
	require.NoError(t, err)
	assert.Same(t, h.BookType, typ)
	assert.True(t, corrected)

	_, _, err = h.Types.Resolve(7, savedBookShop(t, "type: trading-post\n"))
	assert.ErrorIs(t, err, shopkeeper.ErrUnknownShopType)
}
