package handlers

import (
	"log"
	"strconv"

	"github.com/andepants/buzzbox-backend/internal/models"
	"github.com/andepants/buzzbox-backend/internal/services"
	"github.com/andepants/buzzbox-backend/internal/typing"
	"github.com/andepants/buzzbox-backend/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// connState is the per-connection mutable state threaded through the event
// handlers: which room the connection is in and its live typing subscription.
type connState struct {
	room      string
	typingSub *typing.Subscription
}

// WebSocketHandler handles the websocket connection
func WebSocketHandler(chatService *services.ChatService, store *typing.MemoryStore) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		// Retrieve user info from locals (set by middleware)
		userID := c.Locals("user_id").(int)
		username := c.Locals("username").(string)

		// Generate a unique ID for this connection. It doubles as the
		// typing session ID: every typing entry this connection writes
		// is armed to vanish with it.
		connID := uuid.New().String()

		pub := typing.NewPublisher(store, connID, strconv.Itoa(userID))
		agg := typing.NewAggregator(store)
		state := &connState{}

		Manager.RegisterConnection(connID, userID, username, c)

		defer func() {
			if state.room != "" {
				Manager.Leave(state.room, connID)
				Manager.Broadcast(state.room, models.WSMessage{
					Event:    "leave",
					Room:     state.room,
					Username: username,
				}, connID)
			}
			if state.typingSub != nil {
				agg.Unsubscribe(state.typingSub)
			}
			pub.Close()
			// Crash-path guarantee: even if the orderly teardown above
			// missed something, every key this session armed is gone.
			store.Disconnect(connID)
			Manager.UnregisterConnection(connID)
			utils.ReleaseConn(c)
			c.Close()
		}()

		// Send welcome message
		utils.SendJSON(c, map[string]string{
			"event":   "connected",
			"message": "Welcome to the chat server",
		})

		for {
			msgType, msg, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("error: %v", err)
				}
				break
			}

			HandleMessage(c, msgType, msg, chatService, pub, agg, userID, username, state, connID)
		}
	})
}

// WSUpgradeMiddleware upgrades the connection to WebSocket
func WSUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// AuthMiddleware verifies the JWT token before upgrading
func AuthMiddleware(c *fiber.Ctx) error {
	// Get token from query param `access_token` or Authorization header
	token := c.Query("access_token")
	if token == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	// Store user info in locals
	// claims["user_id"] comes as float64 from JSON
	if uid, ok := claims["user_id"].(float64); ok {
		c.Locals("user_id", int(uid))
	} else {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}

	if u, ok := claims["username"].(string); ok {
		c.Locals("username", u)
	}

	return c.Next()
}
