package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"roomchat/internal/models"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrInvalidMembers = errors.New("private room needs two distinct users")
)

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	RoomExists(ctx context.Context, roomID int64) (bool, error)
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	GetRoom(ctx context.Context, roomID int64) (models.Room, error)
	GetMembers(ctx context.Context, roomID int64) ([]int64, error)
	ListMembers(ctx context.Context, roomID int64) ([]models.UserRef, error)
	CreateRoom(ctx context.Context, name string, memberIDs []int64) (models.Room, error)
	FindOrCreatePrivateRoom(ctx context.Context, userA, userB int64) (models.Room, error)
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.RoomSummary, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) RoomExists(ctx context.Context, roomID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM rooms WHERE id = ?)`), roomID)
	return exists, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?)`), roomID, userID)
	return exists, err
}

// GetRoom fetches a single room.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, r.db.Rebind(`SELECT id, name, is_private, created_at FROM rooms WHERE id = ?`), roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// GetMembers returns the member ids of a room in ascending order.
func (r *RoomRepo) GetMembers(ctx context.Context, roomID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT user_id FROM room_members WHERE room_id = ? ORDER BY user_id`), roomID)
	return ids, err
}

// ListMembers returns the members of a room with their usernames.
func (r *RoomRepo) ListMembers(ctx context.Context, roomID int64) ([]models.UserRef, error) {
	members := []models.UserRef{}
	err := r.db.SelectContext(ctx, &members, r.db.Rebind(`SELECT rm.user_id AS id, COALESCE(u.username, '') AS username
        FROM room_members rm
        LEFT JOIN users u ON u.id = rm.user_id
        WHERE rm.room_id = ?
        ORDER BY rm.user_id`), roomID)
	return members, err
}

// CreateRoom creates a group room and its members atomically.
func (r *RoomRepo) CreateRoom(ctx context.Context, name string, memberIDs []int64) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer tx.Rollback()

	room := models.Room{Name: name, CreatedAt: time.Now().UTC()}
	if err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO rooms (name, is_private, created_at) VALUES (?, FALSE, ?) RETURNING id`), name, room.CreatedAt).
		Scan(&room.ID); err != nil {
		return models.Room{}, err
	}
	if err := insertMembers(ctx, tx, room.ID, memberIDs); err != nil {
		return models.Room{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// FindOrCreatePrivateRoom returns the private room shared by exactly the
// two users, creating it on first use. Concurrent callers converge on one
// room through the unique private_key.
func (r *RoomRepo) FindOrCreatePrivateRoom(ctx context.Context, userA, userB int64) (models.Room, error) {
	if userA == userB || userA <= 0 || userB <= 0 {
		return models.Room{}, ErrInvalidMembers
	}
	key := privateKey(userA, userB)

	room, err := r.getPrivate(ctx, key)
	if err == nil || !errors.Is(err, ErrRoomNotFound) {
		return room, err
	}

	room, err = r.createPrivate(ctx, key, userA, userB)
	if err != nil {
		// lost the insert race: the winner's row is now visible
		if existing, getErr := r.getPrivate(ctx, key); getErr == nil {
			return existing, nil
		}
		return models.Room{}, err
	}
	return room, nil
}

func (r *RoomRepo) getPrivate(ctx context.Context, key string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, r.db.Rebind(`SELECT id, name, is_private, created_at FROM rooms WHERE private_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

func (r *RoomRepo) createPrivate(ctx context.Context, key string, userA, userB int64) (models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer tx.Rollback()

	room := models.Room{IsPrivate: true, CreatedAt: time.Now().UTC()}
	if err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO rooms (name, is_private, private_key, created_at) VALUES ('', TRUE, ?, ?) RETURNING id`), key, room.CreatedAt).
		Scan(&room.ID); err != nil {
		return models.Room{}, err
	}
	if err := insertMembers(ctx, tx, room.ID, []int64{userA, userB}); err != nil {
		return models.Room{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, roomID int64, memberIDs []int64) error {
	memberSet := make(map[int64]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int64, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO room_members (room_id, user_id) VALUES (?, ?)`), roomID, id); err != nil {
			return err
		}
	}
	return nil
}

func privateKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

type memberRow struct {
	RoomID   int64  `db:"room_id"`
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
}

type lastMessageRow struct {
	ID        int64     `db:"id"`
	RoomID    int64     `db:"room_id"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
	Username  string    `db:"username"`
}

// ListRoomsForUser returns the user's rooms, newest first, each with its
// unread count, members and last message.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int64) ([]models.RoomSummary, error) {
	rooms := []models.RoomSummary{}
	if err := r.db.SelectContext(ctx, &rooms, r.db.Rebind(`SELECT r.id, r.name, r.is_private,
            (SELECT COUNT(*) FROM messages m
              WHERE m.room_id = r.id AND `+unreadFilter+`) AS unread_count
        FROM rooms r
        INNER JOIN room_members rm ON rm.room_id = r.id AND rm.user_id = ?
        LEFT JOIN read_statuses rs ON rs.room_id = r.id AND rs.user_id = ?
        ORDER BY r.id DESC`), userID, userID, userID); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	var members []memberRow
	if err := r.db.SelectContext(ctx, &members, r.db.Rebind(`SELECT rm.room_id, rm.user_id, COALESCE(u.username, '') AS username
        FROM room_members rm
        LEFT JOIN users u ON u.id = rm.user_id
        WHERE rm.room_id IN (SELECT room_id FROM room_members WHERE user_id = ?)
        ORDER BY rm.room_id, rm.user_id`), userID); err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}

	var last []lastMessageRow
	if err := r.db.SelectContext(ctx, &last, r.db.Rebind(`SELECT m.id, m.room_id, m.message, m.created_at, COALESCE(u.username, '') AS username
        FROM messages m
        LEFT JOIN users u ON u.id = m.user_id
        WHERE m.id IN (
            SELECT MAX(id) FROM messages
            WHERE room_id IN (SELECT room_id FROM room_members WHERE user_id = ?)
            GROUP BY room_id
        )`), userID); err != nil {
		return nil, fmt.Errorf("list last messages: %w", err)
	}

	byRoom := make(map[int64]*models.RoomSummary, len(rooms))
	for i := range rooms {
		rooms[i].Members = []models.UserRef{}
		byRoom[rooms[i].ID] = &rooms[i]
	}
	for _, m := range members {
		if room, ok := byRoom[m.RoomID]; ok {
			room.Members = append(room.Members, models.UserRef{ID: m.UserID, Username: m.Username})
		}
	}
	for _, m := range last {
		if room, ok := byRoom[m.RoomID]; ok {
			room.LastMessage = &models.LastMessage{ID: m.ID, Message: m.Message, CreatedAt: m.CreatedAt, User: m.Username}
		}
	}
	return rooms, nil
}
