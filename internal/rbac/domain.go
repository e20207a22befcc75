package rbac

import (
	"fmt"

	"github.com/pinboard/pinboard/internal/shared"
)

// Object identifies the target of a grant.
type Object struct {
	Type string
	ID   int64
}

// BoardObject returns the grant target for a board.
func BoardObject(id int64) Object {
	return Object{Type: shared.ObjectBoard, ID: id}
}

// PinObject returns the grant target for a pin.
func PinObject(id int64) Object {
	return Object{Type: shared.ObjectPin, ID: id}
}

func (o Object) String() string {
	return fmt.Sprintf("%s:%d", o.Type, o.ID)
}

// Grant records that a user may perform Permission on Object.
type Grant struct {
	UserID     int64
	Permission string
	Object     Object
}

// Principal describes the authenticated actor.
type Principal interface {
	GetID() int64
	IsSuperUser() bool
}
