package shopkeeper

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TomCreeper/Shopkeepers/internal/section"
	"github.com/TomCreeper/Shopkeepers/internal/text"
)

// objectDecoder extracts the shop object type id and the section the object
// loads from. ok is false if the layout does not apply; rewrite is true if the
// layout is outdated and must be written back in the current form.
type objectDecoder struct {
	name   string
	decode func(sec *section.Section) (typeID string, objSec *section.Section, rewrite, ok bool)
}

// objectDecoders are tried in order, current layout first.
var objectDecoders = []objectDecoder{
	{name: "nested", decode: decodeNestedObject},
	{name: "flat", decode: decodeFlatObject},
}

// decodeNestedObject reads the current layout: object: {type: sign, ...}.
func decodeNestedObject(sec *section.Section) (string, *section.Section, bool, bool) {
	objSec := sec.Section("object")
	if objSec == nil {
		return "", nil, false, false
	}
	return objSec.String("type", ""), objSec, false, true
}

// decodeFlatObject reads the legacy layout where "object" holds only the type
// id and the object data lives next to the shopkeeper data.
func decodeFlatObject(sec *section.Section) (string, *section.Section, bool, bool) {
	return sec.String("object", ""), sec, true, true
}

// objectTypeRenames maps deprecated object type ids to their replacement.
var objectTypeRenames = map[string]string{
	"block": "sign",
}

// migrateObjectTypeID applies renames and normalization. It reports whether the id changed.
func migrateObjectTypeID(id string) (string, bool) {
	changed := false
	if to, ok := objectTypeRenames[strings.ToLower(id)]; ok {
		id = to
		changed = true
	}
	if n := text.Normalize(id); n != id {
		id = n
		changed = true
	}
	return id, changed
}

func decodeObject(sec *section.Section) (typeID string, objSec *section.Section, rewrite bool, decoder string) {
	for _, d := range objectDecoders {
		if typeID, objSec, rewrite, ok := d.decode(sec); ok {
			return typeID, objSec, rewrite, d.name
		}
	}
	return "", nil, false, ""
}

func (sk *Shopkeeper) loadFromSaveData(sec *section.Section) error {
	log := sk.env.Log

	rawID := sec.String("uniqueId", "")
	id, err := uuid.Parse(rawID)
	if err != nil {
		if rawID != "" {
			log.Warn("shopkeeper has an invalid unique id, creating a new one",
				zap.Int("id", sk.id), zap.String("uniqueId", rawID))
		}
		id = uuid.New()
		sk.MarkDirty()
	}
	sk.uniqueID = id

	sk.name = sk.trimName(text.Colorize(sec.String("name", "")))
	sk.worldName = sec.String("world", "")
	if sk.worldName == "" {
		return &CreateError{Shopkeeper: sk.id, Reason: "missing world name"}
	}
	sk.x = sec.Int("x", 0)
	sk.y = sec.Int("y", 0)
	sk.z = sec.Int("z", 0)
	sk.updateChunkCoords()

	typeID, objSec, rewrite, decoder := decodeObject(sec)
	if rewrite {
		log.Debug("shopkeeper uses an outdated object layout",
			zap.Int("id", sk.id), zap.String("layout", decoder))
		sk.MarkDirty()
	}
	if migrated, changed := migrateObjectTypeID(typeID); changed {
		typeID = migrated
		sk.MarkDirty()
	}

	objType, ok := sk.env.Objects.Get(typeID)
	if !ok {
		objType, ok = sk.env.Objects.Match(typeID)
		if !ok {
			return &UnknownObjectTypeError{Shopkeeper: sk.id, ObjectType: typeID}
		}
		// Written back with the canonical id.
		sk.MarkDirty()
	}

	obj, err := objType.New(sk, nil)
	if err != nil {
		return &CreateError{Shopkeeper: sk.id, Reason: "could not create shop object", Err: err}
	}
	sk.object = obj
	if err := obj.Load(objSec); err != nil {
		return &CreateError{Shopkeeper: sk.id, Reason: "could not load shop object", Err: err}
	}

	if err := sk.variant.Load(sk, sec); err != nil {
		return &CreateError{Shopkeeper: sk.id, Reason: "could not load " + sk.typ.ID + " data", Err: err}
	}
	return nil
}
