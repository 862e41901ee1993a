package utils

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// SafeJSONParse parses JSON safely
func SafeJSONParse(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Fiber's websocket connection is not safe for concurrent writes, and both
// the hub broadcast path and typing fan-out write from other goroutines than
// the connection's own read loop. Serialize writes per connection.
var connWriteLocks sync.Map // *websocket.Conn -> *sync.Mutex

// SendJSON sends a JSON payload to a WebSocket connection.
func SendJSON(c *websocket.Conn, payload interface{}) error {
	lock, _ := connWriteLocks.LoadOrStore(c, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	return c.WriteJSON(payload)
}

// ReleaseConn drops the write lock for a closed connection.
func ReleaseConn(c *websocket.Conn) {
	connWriteLocks.Delete(c)
}

// LogError logs an error if it's not nil
func LogError(err error, context string) {
	if err != nil {
		log.Printf("Error [%s]: %v", context, err)
	}
}
