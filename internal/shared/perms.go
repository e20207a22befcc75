package shared

// Object types used as the target of permission grants and tag associations.
const (
	ObjectBoard = "board"
	ObjectPin   = "pin"
)

// Object-level permissions.
const (
	PermViewBoard   = "view_board"
	PermChangeBoard = "change_board"
	PermDeleteBoard = "delete_board"

	PermChangePin = "change_pin"
	PermDeletePin = "delete_pin"
)

// BoardOwnerPermissions lists the grants a board creator receives.
func BoardOwnerPermissions() []string {
	return []string{PermViewBoard, PermChangeBoard, PermDeleteBoard}
}

// PinSubmitterPermissions lists the grants a pin submitter receives.
func PinSubmitterPermissions() []string {
	return []string{PermChangePin, PermDeletePin}
}
