package shopkeeper

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownObjectType = errors.New("unknown shop object type")
	ErrUnknownShopType   = errors.New("unknown shop type")
)

type UnknownObjectTypeError struct {
	Shopkeeper int
	ObjectType string
}

func (e *UnknownObjectTypeError) Error() string {
	return fmt.Sprintf("invalid object type for shopkeeper %d: %q", e.Shopkeeper, e.ObjectType)
}

func (e *UnknownObjectTypeError) Is(target error) bool { return target == ErrUnknownObjectType }

type UnknownShopTypeError struct {
	Shopkeeper int
	ShopType   string
}

func (e *UnknownShopTypeError) Error() string {
	return fmt.Sprintf("invalid shop type for shopkeeper %d: %q", e.Shopkeeper, e.ShopType)
}

func (e *UnknownShopTypeError) Is(target error) bool { return target == ErrUnknownShopType }

// CreateError reports that a shopkeeper could not be constructed from its
// creation or saved data.
type CreateError struct {
	Shopkeeper int
	Reason     string
	Err        error
}

func (e *CreateError) Error() string {
	msg := fmt.Sprintf("shopkeeper %d: %s", e.Shopkeeper, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CreateError) Unwrap() error { return e.Err }
