// Package wsclient is the client end of the signaling WebSocket.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/logger"
)

const sendBufferSize = 64

// ErrClosed is returned when sending on a closed connection
var ErrClosed = errors.New("signaling connection closed")

// Handler receives inbound envelopes on the read goroutine, in order
type Handler func(env domain.Envelope)

// Client is one signaling connection
type Client struct {
	conn    *websocket.Conn
	handler Handler
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// Dial opens the signaling connection, authenticating with a Bearer token
func Dial(ctx context.Context, url, token string, handler Handler) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: constants.WebSocketWriteWait,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial signaling server (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial signaling server: %w", err)
	}

	return &Client{
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Run pumps frames until the connection drops or ctx is cancelled
func (c *Client) Run(ctx context.Context) error {
	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	err := c.readPump()
	c.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Send queues an envelope for writing
func (c *Client) Send(env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", env.Type, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Join announces the user on this connection
func (c *Client) Join(userID, name string, avatar *string) error {
	env, err := domain.NewEnvelope(domain.MsgUserJoin, domain.JoinPayload{
		UserID: userID,
		Name:   name,
		Avatar: avatar,
	})
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Done is closed once the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		// WriteControl may run concurrently with the write pump
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(constants.WebSocketWriteWait))
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readPump() error {
	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	// The server pings; each ping extends the deadline
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(constants.WebSocketWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("signaling connection lost: %w", err)
		}

		var env domain.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			logger.Warn("Invalid signaling frame from server", zap.Int("bytes", len(message)))
			continue
		}
		if c.handler != nil {
			c.handler(env)
		}
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("Signaling write failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
