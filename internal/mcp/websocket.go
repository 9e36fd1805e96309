// File: internal/mcp/websocket.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket Upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to loopback by default and the CORS middleware allows "*".
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MessageType defines the kind of message being sent.
type MessageType string

const (
	MsgTypeCommand       MessageType = "Command"
	MsgTypeCommandResult MessageType = "CommandResult"
	MsgTypeSystemError   MessageType = "SystemError"
)

// WSMessage defines the standardized structure for communication over the WebSocket.
type WSMessage struct {
	Type MessageType `json:"type"`
	// Data is {command, params} on Command and the ToolResult on CommandResult.
	Data interface{} `json:"data,omitempty"`
	// Timestamp formatted as ISO 8601 (RFC3339).
	Timestamp string `json:"timestamp"`
	// RequestID correlates a CommandResult with its Command.
	RequestID string `json:"request_id,omitempty"`
}

// Constants for WebSocket timeouts and limits (based on Gorilla WebSocket examples).
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer. Type commands carry up to
	// interaction.max_text_length characters.
	maxMessageSize = 64 * 1024
	// Send buffer size
	sendChannelSize = 256
)

// wsClient represents a single active WebSocket connection.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	log    *zap.Logger
	// Buffered channel of outgoing messages. The writePump reads from this.
	send chan WSMessage
	// done is closed when the read pump exits.
	done chan struct{}

	// ctx is canceled when the connection goes away so in-flight commands stop.
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// handleInteract upgrades the connection and runs the pumps until the peer
// disconnects.
func (s *Server) handleInteract() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// upgrader.Upgrade automatically sends an HTTP error response if it fails.
			s.logger.Error("Failed to upgrade connection to WebSocket", zap.Error(err))
			return
		}

		ctx, cancel := context.WithCancel(s.baseContext())
		client := &wsClient{
			server: s,
			conn:   conn,
			log:    s.logger.With(zap.String("remoteAddr", r.RemoteAddr)),
			send:   make(chan WSMessage, sendChannelSize),
			done:   make(chan struct{}),
			ctx:    ctx,
			cancel: cancel,
		}
		client.log.Info("WebSocket connection established (/ws/v1/interact).")

		go client.writePump()
		client.readPump()

		client.cancel()
		client.inflight.Wait()
		client.log.Debug("WebSocket interaction handler finished.")
	}
}

// readPump reads commands until the connection closes.
func (c *wsClient) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	// Each pong extends the read deadline.
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var incoming struct {
			Type      MessageType    `json:"type"`
			Data      CommandRequest `json:"data"`
			RequestID string         `json:"request_id"`
		}
		if err := c.conn.ReadJSON(&incoming); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("WebSocket closed unexpectedly", zap.Error(err))
			} else {
				c.log.Info("WebSocket connection closed.")
			}
			return
		}

		c.log.Debug("Received message from client", zap.String("type", string(incoming.Type)), zap.String("requestID", incoming.RequestID))
		c.processMessage(incoming.Type, incoming.RequestID, incoming.Data)
	}
}

// writePump serializes all writes and sends keepalive pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error("Failed to set write deadline", zap.Error(err))
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Error("Error writing JSON message to WebSocket", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error("Failed to set write deadline for PING", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Error("Error sending PING message to WebSocket", zap.Error(err))
				return
			}
		}
	}
}

// processMessage validates a message and runs commands off the read pump so
// control frames keep flowing while an operation waits on the page.
func (c *wsClient) processMessage(msgType MessageType, requestID string, req CommandRequest) {
	switch msgType {
	case MsgTypeCommand:
		if requestID == "" {
			requestID = uuid.NewString()
		}
		if !c.server.limiter.Allow(c.conn.RemoteAddr().String()) {
			c.sendError(requestID, "rate limit exceeded")
			return
		}
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.runCommand(requestID, req)
		}()

	default:
		c.log.Warn("Received unknown message type from client", zap.String("type", string(msgType)))
		c.sendError(requestID, fmt.Sprintf("Unknown or unsupported message type: %s", msgType))
	}
}

func (c *wsClient) runCommand(requestID string, req CommandRequest) {
	res, err := c.server.handlers.Execute(c.ctx, req)
	if err != nil {
		if !errors.Is(err, errUnknownCommand) {
			c.log.Debug("Rejected command", zap.String("requestID", requestID), zap.Error(err))
		}
		c.sendError(requestID, err.Error())
		return
	}
	c.sendMessage(MsgTypeCommandResult, requestID, res)
}

// sendMessage queues a message for the writePump, dropping it when the client
// is not draining its buffer.
func (c *wsClient) sendMessage(msgType MessageType, requestID string, data interface{}) {
	msg := WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.log.Error("WebSocket send buffer full, dropping message. Client may be unresponsive.",
			zap.String("requestID", requestID), zap.String("type", string(msgType)))
	}
}

// sendError sends a SystemError message.
func (c *wsClient) sendError(requestID string, errorMessage string) {
	c.sendMessage(MsgTypeSystemError, requestID, map[string]interface{}{
		"error": errorMessage,
	})
}
