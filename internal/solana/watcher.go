package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WatcherConfig configures WalletWatcher behavior.
type WatcherConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWatcherConfig returns default websocket settings.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WalletActivity is a confirmed transaction mentioning the watched wallet.
type WalletActivity struct {
	Signature string
	Slot      int64
	Failed    bool
}

// WalletWatcher subscribes to logs mentioning a wallet and reports each
// transaction signature. It reconnects with exponential backoff until ctx ends.
type WalletWatcher struct {
	endpoint string
	wallet   string
	config   WatcherConfig
	logger   *zap.Logger
	dialer   websocket.Dialer
}

// NewWalletWatcher creates a watcher for wallet on endpoint.
func NewWalletWatcher(endpoint, wallet string, config *WatcherConfig, logger *zap.Logger) *WalletWatcher {
	cfg := DefaultWatcherConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletWatcher{
		endpoint: endpoint,
		wallet:   wallet,
		config:   cfg,
		logger:   logger.With(zap.String("component", "wallet_watcher")),
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run streams activity into out until ctx is cancelled. out is never closed by Run.
// Sends are non-blocking: a consumer that only needs a wake-up loses nothing by a drop.
func (w *WalletWatcher) Run(ctx context.Context, out chan<- WalletActivity) error {
	delay := w.config.ReconnectDelay

	for {
		start := time.Now()
		err := w.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that lived a while resets the backoff.
		if time.Since(start) > w.config.MaxReconnectDelay {
			delay = w.config.ReconnectDelay
		}
		w.logger.Warn("websocket session ended, reconnecting",
			zap.Error(err), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > w.config.MaxReconnectDelay {
			delay = w.config.MaxReconnectDelay
		}
	}
}

// session dials, subscribes and reads until the connection fails.
func (w *WalletWatcher) session(ctx context.Context, out chan<- WalletActivity) error {
	conn, _, err := w.dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string][]string{"mentions": {w.wallet}},
			map[string]string{"commitment": "confirmed"},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go w.pingLoop(conn, pingDone)

	for {
		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		w.handleMessage(message, out)
	}
}

func (w *WalletWatcher) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (w *WalletWatcher) handleMessage(message []byte, out chan<- WalletActivity) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		w.logger.Debug("unparseable websocket frame", zap.Error(err))
		return
	}

	switch {
	case msg.Error != nil:
		w.logger.Error("websocket error response",
			zap.Int("code", msg.Error.Code), zap.String("message", msg.Error.Message))
	case msg.Method == "logsNotification" && msg.Params != nil:
		value := msg.Params.Result.Value
		activity := WalletActivity{
			Signature: value.Signature,
			Failed:    value.Err != nil,
		}
		if msg.Params.Result.Context != nil {
			activity.Slot = msg.Params.Result.Context.Slot
		}
		select {
		case out <- activity:
		default:
		}
	case msg.ID != 0 && msg.Result != nil:
		w.logger.Info("subscribed to wallet logs",
			zap.String("wallet", w.wallet), zap.ByteString("subscription", msg.Result))
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsMessage struct {
	ID     uint64                `json:"id"`
	Method string                `json:"method"`
	Result json.RawMessage       `json:"result"`
	Error  *RPCError             `json:"error"`
	Params *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context *struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Logs      []string    `json:"logs"`
			Err       interface{} `json:"err"`
		} `json:"value"`
	} `json:"result"`
}
