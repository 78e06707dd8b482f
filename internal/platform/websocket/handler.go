package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	authorizeWait  = 5 * time.Second
)

// TopicAuthorizer decides whether caller may subscribe to topic.
type TopicAuthorizer func(ctx context.Context, caller auth.Caller, topic string) bool

// Conn is the part of *gorilla/websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type HandlerConfig struct {
	// AllowedOrigins restricts browser origins; empty or "*" allows any.
	AllowedOrigins []string
	// Authorize gates topic subscriptions. Nil allows every topic.
	Authorize TopicAuthorizer
}

// WebSocketHandler upgrades authenticated requests to feed connections.
type WebSocketHandler struct {
	hub       *Hub
	upgrader  gorillawebsocket.Upgrader
	authorize TopicAuthorizer
	logger    zerolog.Logger
}

func NewWebSocketHandler(hub *Hub, cfg HandlerConfig, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		authorize: cfg.Authorize,
		logger:    logger.With().Str("component", "live_feed").Logger(),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the connection and subscribes it to the topics in
// the comma-separated "topics" query parameter that the caller may see.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var requested []string
	for _, t := range strings.Split(c.QueryParam("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			requested = append(requested, t)
		}
	}
	topics, _ := wsh.filterTopics(caller, requested)

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		wsh.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	client := NewClient(wsh.hub, topics)
	wsh.hub.Register(client)
	wsh.logger.Info().Str("client_id", client.ID).Str("user_id", caller.UserID.String()).
		Strs("topics", topics).Msg("feed client connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, caller, ws)
	return nil
}

// filterTopics splits requested into the topics caller may subscribe to and
// the ones refused.
func (wsh *WebSocketHandler) filterTopics(caller auth.Caller, requested []string) (allowed, denied []string) {
	if wsh.authorize == nil {
		return requested, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), authorizeWait)
	defer cancel()

	for _, t := range requested {
		if wsh.authorize(ctx, caller, t) {
			allowed = append(allowed, t)
		} else {
			denied = append(denied, t)
		}
	}
	return allowed, denied
}

func (wsh *WebSocketHandler) readPump(client *Client, caller auth.Caller, ws Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
		wsh.logger.Info().Str("client_id", client.ID).Msg("feed client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.process(client, caller, msg)
	}
}

func (wsh *WebSocketHandler) process(client *Client, caller auth.Caller, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		allowed, denied := wsh.filterTopics(caller, msg.Topics)
		wsh.hub.Subscribe(client, allowed)
		for _, t := range denied {
			wsh.reply(client, Event{Type: "subscription.denied", Topic: t, Timestamp: time.Now().UTC()})
		}
	case "unsubscribe":
		wsh.hub.Unsubscribe(client, msg.Topics)
	}
}

func (wsh *WebSocketHandler) reply(client *Client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	wsh.hub.sendTo(client, data)
}

func (wsh *WebSocketHandler) writePump(client *Client, ws Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
