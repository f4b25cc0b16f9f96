package chat

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotMember       = errors.New("not a member of the room")
	ErrEmptyMessage    = errors.New("message needs text or a file")
	ErrInvalidFile     = errors.New("invalid file reference")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotAuthor       = errors.New("only the author can change a message")
	ErrInvalidPeer     = errors.New("invalid private room peer")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidRoomName = errors.New("room name is required")
)

// IsRejection reports whether err is a validation, authorization or
// not-found outcome rather than a backend failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrRoomNotFound, ErrNotMember, ErrEmptyMessage, ErrInvalidFile, ErrMessageNotFound,
		ErrNotAuthor, ErrInvalidPeer, ErrUserNotFound, ErrInvalidRoomName,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
