package ws

import "time"

type ConnInfo struct {
	ConnID      string
	UserID      int64
	RoomID      int64
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
