package hub

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/identity"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/metrics"
)

var (
	writeWait      = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait       = 60 * time.Second    // time allowed to read the next pong from the peer
	pingInterval   = (pongWait * 9) / 10 // send pings with this period
	maxMessageSize = int64(4 * 1024)     // client frames only carry room names
)

// bearerProtocol lets browser clients, which cannot set headers on a
// websocket request, pass the token as "Sec-WebSocket-Protocol: bearer, <token>".
const bearerProtocol = "bearer"

// Handshake authenticates websocket upgrade requests and runs the session.
type Handshake struct {
	hub      *Hub
	verifier identity.Verifier
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandshake creates the /ws handler. An empty allowedOrigins list accepts
// any origin.
func NewHandshake(h *Hub, verifier identity.Verifier, allowedOrigins []string, logger zerolog.Logger) *Handshake {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}

	return &Handshake{
		hub:      h,
		verifier: verifier,
		logger:   logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{bearerProtocol},
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(origins) == 0 || origins["*"] || origin == "" {
					return true
				}
				return origins[origin]
			},
		},
	}
}

// ServeHTTP verifies the token before upgrading so a rejected client never
// holds a session or any membership.
func (hs *Handshake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := hs.verifier.Verify(r.Context(), tokenFromRequest(r))
	if err != nil {
		metrics.RealtimeHandshakes.WithLabelValues("unauthorized").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "authentication error"})
		return
	}

	ws, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		metrics.RealtimeHandshakes.WithLabelValues("upgrade_failed").Inc()
		hs.logger.Debug().Err(err).Int64("user_id", claims.UserID).Msg("websocket upgrade failed")
		return
	}

	s, err := hs.hub.Connect(claims.UserID)
	if err != nil {
		metrics.RealtimeHandshakes.WithLabelValues("rejected").Inc()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}
	metrics.RealtimeHandshakes.WithLabelValues("accepted").Inc()

	c := &conn{ws: ws, session: s, hub: hs.hub, logger: hs.logger.With().Str("session", s.ID).Int64("user_id", claims.UserID).Logger()}
	go c.writePump()
	go c.readPump()
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	protocols := websocket.Subprotocols(r)
	for i, p := range protocols {
		if p == bearerProtocol && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}

// conn pumps frames between one websocket and its session.
type conn struct {
	ws      *websocket.Conn
	session *Session
	hub     *Hub
	logger  zerolog.Logger
}

func (c *conn) readPump() {
	defer func() {
		c.hub.Disconnect(c.session)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Frame
		if err := c.ws.ReadJSON(&in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.replyError("malformed frame")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("unexpected close")
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.logger.Debug().Msg("read deadline exceeded")
			}
			return
		}
		c.hub.handle(c.session, in)
	}
}

func (c *conn) replyError(msg string) {
	if data, err := json.Marshal(Frame{Event: EventError, Error: msg}); err == nil {
		_ = c.session.enqueue(data)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.session.Frames():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// session closed by the hub
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.Disconnect(c.session)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Disconnect(c.session)
				return
			}
		}
	}
}
