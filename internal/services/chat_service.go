package services

import (
	"context"

	"github.com/andepants/buzzbox-backend/internal/db"
	"github.com/andepants/buzzbox-backend/internal/models"

	"github.com/google/uuid"
)

type ChatService struct{}

func NewChatService() *ChatService {
	return &ChatService{}
}

func (s *ChatService) GetOrCreateDirectRoom(ctx context.Context, userID1, userID2 int) (*models.RoomResponse, error) {
	// Check if room exists
	query := `
		SELECT r.id
		FROM rooms r
		JOIN room_participants p1 ON r.id = p1.room_id
		JOIN room_participants p2 ON r.id = p2.room_id
		WHERE r.type = 'direct'
		AND p1.user_id = $1
		AND p2.user_id = $2
		LIMIT 1
	`
	var roomID string
	err := db.Pool.QueryRow(ctx, query, userID1, userID2).Scan(&roomID)
	if err == nil {
		return &models.RoomResponse{RoomID: roomID, IsNew: false}, nil
	}

	// Create new room
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	newRoomID := uuid.New().String()
	_, err = tx.Exec(ctx, "INSERT INTO rooms (id, type) VALUES ($1, 'direct')", newRoomID)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, "INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2), ($1, $3)", newRoomID, userID1, userID2)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &models.RoomResponse{RoomID: newRoomID, IsNew: true}, nil
}

func (s *ChatService) SaveMessage(ctx context.Context, msg *models.Message) error {
	query := `INSERT INTO messages (room, user_id, username, content) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	return db.Pool.QueryRow(ctx, query, msg.Room, msg.UserID, msg.Username, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
}

func (s *ChatService) GetRecentMessages(ctx context.Context, room string, limit int) ([]models.Message, error) {
	query := `SELECT id, room, user_id, username, content, created_at FROM messages WHERE room = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := db.Pool.Query(ctx, query, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.UserID, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// GetRoomParticipants returns the user IDs of everyone in a room.
func (s *ChatService) GetRoomParticipants(ctx context.Context, roomID string) ([]int, error) {
	query := `SELECT user_id FROM room_participants WHERE room_id = $1`
	rows, err := db.Pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetRoomParticipantInfos returns the current members of a room with enough
// profile data to resolve display names. The typing indicator filters against
// this list, so a user removed from the room stops showing up as a typist on
// the next recomputation.
func (s *ChatService) GetRoomParticipantInfos(ctx context.Context, roomID string) ([]models.UserInfo, error) {
	query := `
		SELECT u.id, u.username, u.first_name, u.last_name
		FROM users u
		JOIN room_participants p ON p.user_id = u.id
		WHERE p.room_id = $1
	`
	rows, err := db.Pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []models.UserInfo
	for rows.Next() {
		var info models.UserInfo
		if err := rows.Scan(&info.ID, &info.Username, &info.FirstName, &info.LastName); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
