package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"attendance-kiosk/internal/utils"
	"attendance-kiosk/models"

	"github.com/gorilla/websocket"
)

// ============================================================
// CONSTANTS
// ============================================================

const (
	PingInterval      = 10 // seconds
	InitialRetryDelay = 5  // seconds
	MaxRetryDelay     = 60 // seconds
	MaxRetries        = 10 // maximum reconnection attempts
	DefaultTimeout    = 30 // seconds
	WriteTimeout      = 10 // seconds for WebSocket writes
	ReadTimeout       = 90 // seconds for WebSocket reads
)

// ============================================================
// SIGNALING ENVELOPE
// ============================================================

// Envelope is one JSON signaling message. DataType is one of the
// models.Signal* constants; Payload carries SDP/ICE JSON, gzip+base64
// compressed when large.
type Envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	KioskID   string `json:"kioskId"`
	PeerID    string `json:"peerId"`
	DataType  int    `json:"dataType"`
	Payload   string `json:"payload,omitempty"`
}

type EnvelopeHandler func(env *Envelope)

// ============================================================
// SIGNALING CLIENT - CORE STRUCTURE
// ============================================================

// Client maintains the websocket to the signaling server that relays call
// offers from employee devices to this kiosk.
type Client struct {
	config models.Config
	conn   *websocket.Conn

	// connStop retires the loops bound to the current connection when a
	// reconnect replaces it. Guarded by connMu.
	connStop chan struct{}

	// Thread safety
	connMu sync.Mutex // separate lock for connection operations

	// Event system
	handlers   map[string][]EnvelopeHandler
	handlersMu sync.RWMutex

	// State management
	isRetrying       bool
	isHardDisconnect bool
	reconnectMu      sync.Mutex

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

func NewClient(config models.Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:   config,
		handlers: make(map[string][]EnvelopeHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// On registers a handler for an envelope type ("signal", "reconnected").
func (c *Client) On(envType string, handler EnvelopeHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[envType] = append(c.handlers[envType], handler)
}

func (c *Client) emit(envType string, env *Envelope) {
	c.handlersMu.RLock()
	handlers := c.handlers[envType]
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
}

// ============================================================
// CONNECTION
// ============================================================

func (c *Client) Connect() error {
	wsURL := c.buildWebSocketURL()
	log.Printf("🔌 Connecting to signaling server...")

	dialer := &websocket.Dialer{HandshakeTimeout: DefaultTimeout * time.Second}
	conn, resp, err := dialer.Dial(wsURL, http.Header{
		"User-Agent": {"Attendance-Kiosk/1.0"},
	})
	if err != nil {
		if resp != nil {
			log.Printf("❌ Signaling handshake status: %d", resp.StatusCode)
		}
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.conn.SetReadDeadline(time.Now().Add(ReadTimeout * time.Second))
	c.conn.SetPingHandler(func(appData string) error {
		c.connMu.Lock()
		defer c.connMu.Unlock()
		if c.conn != nil {
			return c.conn.WriteMessage(websocket.PongMessage, []byte(appData))
		}
		return nil
	})
	stop := make(chan struct{})
	c.connStop = stop
	c.connMu.Unlock()

	log.Println("✅ Signaling connected")

	// Both loops are bound to this connection; a reconnect retires them
	// through stop and spawns fresh ones for the replacement.
	c.wg.Add(2)
	go c.readLoop(conn)
	go c.pingLoop(conn, stop)

	return nil
}

func (c *Client) buildWebSocketURL() string {
	scheme := "ws://"
	if c.config.SocketUseSSL {
		scheme = "wss://"
	}
	return fmt.Sprintf("%s%s:%s/ws?kiosk=%s&token=%s",
		scheme,
		c.config.SocketHost,
		c.config.SocketPort,
		utils.EncodeURIComponent(c.config.KioskID),
		utils.EncodeURIComponent(c.config.KioskToken))
}

// ============================================================
// SEND
// ============================================================

// SendSignal relays one signaling envelope to a peer.
func (c *Client) SendSignal(sessionID, peerID string, dataType int, payload string) error {
	env := Envelope{
		Type:      "signal",
		SessionID: sessionID,
		KioskID:   c.config.KioskID,
		PeerID:    peerID,
		DataType:  dataType,
		Payload:   payload,
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("signaling not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout * time.Second))
	return c.conn.WriteJSON(&env)
}

// ============================================================
// READ & PING LOOPS
// ============================================================

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil || c.IsClosed() {
				return
			}
			// A stale loop whose connection was already replaced must not
			// trigger another reconnect.
			c.connMu.Lock()
			live := c.conn == conn
			c.connMu.Unlock()
			if !live {
				return
			}
			log.Printf("⚠️  Signaling read error: %v", err)
			go c.handleDisconnect()
			return
		}

		conn.SetReadDeadline(time.Now().Add(ReadTimeout * time.Second))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("⚠️  Invalid signaling envelope: %v", err)
			continue
		}

		c.emit(env.Type, &env)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(PingInterval * time.Second)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-stop:
			// Connection replaced; the new connection runs its own loop.
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout * time.Second))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()

			if err != nil {
				failures++
				log.Printf("⚠️  Ping failed (%d): %v", failures, err)
				if failures >= 3 {
					return
				}
			} else {
				failures = 0
			}
		}
	}
}

// ============================================================
// LIFECYCLE
// ============================================================

func (c *Client) IsClosed() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Client) Close() error {
	var closeErr error

	c.shutdownOnce.Do(func() {
		c.reconnectMu.Lock()
		c.isHardDisconnect = true
		c.reconnectMu.Unlock()

		c.cancel()

		c.connMu.Lock()
		if c.connStop != nil {
			close(c.connStop)
			c.connStop = nil
		}
		if c.conn != nil {
			closeErr = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		c.wg.Wait()
		log.Println("🛑 Signaling closed")
	})

	return closeErr
}
