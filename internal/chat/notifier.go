package chat

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomchat/internal/bus"
	"roomchat/internal/models"
)

// MemberLister returns the member ids of a room.
type MemberLister interface {
	GetMembers(ctx context.Context, roomID int64) ([]int64, error)
}

// Notifier tells every other member of a room that a new message arrived.
// Members actively viewing the room are notified as well.
type Notifier struct {
	rooms MemberLister
	pub   Publisher
	log   zerolog.Logger
}

func NewNotifier(rooms MemberLister, pub Publisher, log zerolog.Logger) *Notifier {
	return &Notifier{rooms: rooms, pub: pub, log: log.With().Str("component", "notifier").Logger()}
}

// MessageCreated publishes an unread delta on the user channel of each
// member except the author and returns how many were published. Failures
// are logged and never reach the sender.
func (n *Notifier) MessageCreated(ctx context.Context, msg models.Message) int {
	members, err := n.rooms.GetMembers(ctx, msg.RoomID)
	if err != nil {
		n.log.Error().Err(err).Int64("room_id", msg.RoomID).Msg("load members for unread update")
		return 0
	}

	event := models.NewUnreadUpdateEvent(msg.RoomID, msg.Text, msg.File != "")
	sent := 0
	for _, memberID := range lo.Without(members, msg.UserID) {
		if err := n.pub.Publish(ctx, bus.UserChannel(memberID), event); err != nil {
			n.log.Warn().Err(err).Int64("room_id", msg.RoomID).Int64("user_id", memberID).Msg("publish unread update")
			continue
		}
		sent++
	}
	return sent
}
