package handlers

import (
	"context"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/andepants/buzzbox-backend/internal/models"
	"github.com/andepants/buzzbox-backend/internal/services"
	"github.com/andepants/buzzbox-backend/internal/typing"
	"github.com/andepants/buzzbox-backend/internal/utils"

	"github.com/gofiber/websocket/v2"
)

func HandleMessage(c *websocket.Conn, msgType int, msg []byte, chatService *services.ChatService, pub *typing.Publisher, agg *typing.Aggregator, userID int, username string, state *connState, connID string) {
	if msgType != websocket.TextMessage {
		return
	}

	var wsMsg models.WSMessage
	if err := utils.SafeJSONParse(msg, &wsMsg); err != nil {
		utils.LogError(err, "JSON Parse")
		return
	}

	// Override username with authenticated user
	wsMsg.Username = username
	wsMsg.Timestamp = time.Now().UnixMilli()

	switch wsMsg.Event {
	case "join":
		handleJoin(c, &wsMsg, userID, username, state, chatService, pub, agg, connID)
	case "leave":
		handleLeave(c, &wsMsg, state, pub, agg, connID)
	case "chat":
		handleChat(c, &wsMsg, userID, username, state.room, chatService, pub)
	case "typing_start":
		// Composing in the current room; throttled, self-expiring.
		if state.room != "" {
			pub.StartTyping(context.Background(), state.room)
		}
	case "typing_stop":
		// Input cleared or view dismissed.
		if state.room != "" {
			pub.StopTyping(context.Background(), state.room)
		}
	default:
		log.Printf("Unknown event: %s", wsMsg.Event)
	}
}

// subscribeTyping attaches a live typing listener for the room and pushes a
// formatted status line to this connection whenever the set of typists
// changes. The viewer's own typing never shows, and users no longer in the
// room are filtered before formatting.
func subscribeTyping(c *websocket.Conn, agg *typing.Aggregator, chatService *services.ChatService, room string, viewerID int) *typing.Subscription {
	viewer := strconv.Itoa(viewerID)

	sub, err := agg.Subscribe(room, func(typingUserIDs map[string]struct{}) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		infos, err := chatService.GetRoomParticipantInfos(ctx, room)
		if err != nil {
			utils.LogError(err, "GetRoomParticipantInfos")
			// Without a participant list we cannot name or filter
			// typists; clear the indicator rather than show stale data.
			utils.SendJSON(c, models.WSMessage{Event: "typing", Room: room})
			return
		}

		participants := make([]typing.Participant, len(infos))
		byID := make(map[string]models.UserInfo, len(infos))
		for i, info := range infos {
			id := strconv.Itoa(info.ID)
			participants[i] = typing.Participant{UserID: id, DisplayName: info.DisplayName()}
			byID[id] = info
		}

		var typingUsers []string
		for id := range typingUserIDs {
			if id == viewer {
				continue
			}
			if info, ok := byID[id]; ok {
				typingUsers = append(typingUsers, info.Username)
			}
		}
		sort.Strings(typingUsers)

		if err := utils.SendJSON(c, models.WSMessage{
			Event:       "typing",
			Room:        room,
			Text:        typing.ComputeDisplayText(typingUserIDs, viewer, participants),
			TypingUsers: typingUsers,
		}); err != nil {
			utils.LogError(err, "typing push")
		}
	})
	if err != nil {
		utils.LogError(err, "typing subscribe")
		return nil
	}
	return sub
}

func handleJoin(c *websocket.Conn, msg *models.WSMessage, userID int, username string, state *connState, chatService *services.ChatService, pub *typing.Publisher, agg *typing.Aggregator, connID string) {
	if msg.Room == "" {
		return
	}

	// Leave previous room if any
	if state.room != "" {
		pub.StopTyping(context.Background(), state.room)
		if state.typingSub != nil {
			agg.Unsubscribe(state.typingSub)
			state.typingSub = nil
		}
		Manager.Leave(state.room, connID)
		// Notify previous room
		Manager.Broadcast(state.room, models.WSMessage{
			Event:     "leave",
			Room:      state.room,
			Username:  username,
			Timestamp: time.Now().UnixMilli(),
		}, "")
	}

	state.room = msg.Room
	Manager.Join(state.room, connID, c, userID, username)
	state.typingSub = subscribeTyping(c, agg, chatService, state.room, userID)

	// Send confirmation to the sender
	utils.SendJSON(c, models.WSMessage{
		Event:     "joined",
		Room:      state.room,
		Username:  username,
		Timestamp: time.Now().UnixMilli(),
	})

	// Notify room
	Manager.Broadcast(state.room, models.WSMessage{
		Event:     "join",
		Room:      state.room,
		Username:  username,
		Timestamp: time.Now().UnixMilli(),
	}, connID)

	// Send recent history as a single packed message
	messages, err := chatService.GetRecentMessages(context.Background(), state.room, 50)
	if err == nil {
		var history []models.ChatHistoryItem
		for _, m := range messages {
			history = append(history, models.ChatHistoryItem{
				ID:            m.ID,
				Event:         "chat",
				Room:          state.room,
				Text:          m.Content,
				Username:      m.Username,
				Timestamp:     m.CreatedAt.UnixMilli(),
				IsYourMessage: m.UserID == userID,
			})
		}

		utils.SendJSON(c, models.WSMessage{
			Event:     "history",
			Room:      state.room,
			History:   history,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func handleLeave(c *websocket.Conn, msg *models.WSMessage, state *connState, pub *typing.Publisher, agg *typing.Aggregator, connID string) {
	if state.room == "" {
		return
	}

	pub.StopTyping(context.Background(), state.room)
	if state.typingSub != nil {
		agg.Unsubscribe(state.typingSub)
		state.typingSub = nil
	}
	Manager.Leave(state.room, connID)

	Manager.Broadcast(state.room, models.WSMessage{
		Event:     "leave",
		Room:      state.room,
		Username:  msg.Username,
		Timestamp: time.Now().UnixMilli(),
	}, connID)

	state.room = ""
}

func handleChat(c *websocket.Conn, msg *models.WSMessage, userID int, username string, currentRoom string, chatService *services.ChatService, pub *typing.Publisher) {
	if currentRoom == "" {
		return
	}

	if msg.Text == "" {
		utils.SendJSON(c, map[string]interface{}{
			"event": "error",
			"error": "message must have text",
		})
		return
	}

	// Sending the message ends composing.
	pub.StopTyping(context.Background(), currentRoom)

	dbMsg := &models.Message{
		Room:     currentRoom,
		UserID:   userID,
		Username: username,
		Content:  msg.Text,
	}

	if err := chatService.SaveMessage(context.Background(), dbMsg); err != nil {
		utils.LogError(err, "SaveMessage")
		return
	}

	// Broadcast to users currently in the room
	Manager.Broadcast(currentRoom, models.WSMessage{
		ID:        dbMsg.ID,
		Event:     "chat",
		Room:      currentRoom,
		Text:      msg.Text,
		Username:  username,
		Timestamp: dbMsg.CreatedAt.UnixMilli(),
	}, "") // Send to everyone including sender so they know it's confirmed

	// Notify room participants who are NOT currently in this room about the new message
	go notifyNewMessage(chatService, currentRoom, userID, username, msg.Text, dbMsg.CreatedAt.UnixMilli())
}

// notifyNewMessage sends a notification to room participants who are not currently viewing the room
func notifyNewMessage(chatService *services.ChatService, roomID string, senderID int, senderUsername string, messageText string, timestamp int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	participants, err := chatService.GetRoomParticipants(ctx, roomID)
	if err != nil {
		utils.LogError(err, "GetRoomParticipants")
		return
	}

	notification := map[string]interface{}{
		"event":           "new_message",
		"room":            roomID,
		"sender_id":       senderID,
		"sender_username": senderUsername,
		"text":            messageText,
		"timestamp":       timestamp,
	}

	for _, participantID := range participants {
		if participantID == senderID {
			continue // Don't notify the sender
		}
		if !Manager.IsUserOnline(participantID) {
			continue // User is offline, skip
		}
		if Manager.IsUserInRoom(participantID, roomID) {
			continue // User is already in the room and will get the chat message
		}
		Manager.SendToUser(participantID, notification)
	}
}
