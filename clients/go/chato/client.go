// Package chato provides a client for the chato messaging API.
package chato

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a chato API client acting as one user.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New creates a client that authenticates with token.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chato error %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), out)
}

// User is a participant as embedded in messages and summaries.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Message is one direct message.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Content     string    `json:"content"`
	Kind        string    `json:"data_type"`
	Duration    *float64  `json:"duration"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
	Sender      *User     `json:"created_user,omitempty"`
	Recipient   *User     `json:"received_user,omitempty"`
}

// Conversation is one entry of the caller's conversation list.
type Conversation struct {
	User        User `json:"user"`
	LastMessage struct {
		ID        int64     `json:"id"`
		SenderID  int64     `json:"sender_id"`
		Content   string    `json:"content"`
		Kind      string    `json:"data_type"`
		Duration  *float64  `json:"duration"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"lastMessage"`
	UnreadCount int `json:"unreadCount"`
}

// Profile is a public user profile.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	JoinedAt string `json:"joined_at"`
}

// SendText sends a text message to recipient.
func (c *Client) SendText(ctx context.Context, recipient int64, content string) (*Message, error) {
	req := map[string]any{"received_user": recipient, "content": content}
	var msg Message
	if err := c.postJSON(ctx, "/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendVoice uploads a recording and sends it to recipient. A zero duration
// is omitted.
func (c *Client) SendVoice(ctx context.Context, recipient int64, filename, contentType string, audio io.Reader, duration float64) (*Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("received_user", strconv.FormatInt(recipient, 10))
	if duration != 0 {
		mw.WriteField("duration", strconv.FormatFloat(duration, 'f', -1, 64))
	}

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg Message
	if err := c.do(ctx, http.MethodPost, "/messages/voice", mw.FormDataContentType(), &buf, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Sent lists messages the caller authored, newest first.
func (c *Client) Sent(ctx context.Context) ([]Message, error) {
	var msgs []Message
	if err := c.do(ctx, http.MethodGet, "/messages", "", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// History returns the conversation with other, oldest first.
func (c *Client) History(ctx context.Context, other int64) ([]Message, error) {
	var resp struct {
		Data []Message `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/messages/to/"+strconv.FormatInt(other, 10), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Conversations lists the caller's conversations, most recent first.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := c.do(ctx, http.MethodGet, "/messages/chat-users", "", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// MarkRead marks everything other sent the caller as read and returns how
// many messages changed.
func (c *Client) MarkRead(ctx context.Context, other int64) (int64, error) {
	var resp struct {
		Success bool  `json:"success"`
		Updated int64 `json:"updated"`
	}
	if err := c.postJSON(ctx, "/messages/mark-as-read", map[string]int64{"otherUserId": other}, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// Users lists the user directory.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/messages/all-users", "", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// User gets one profile.
func (c *Client) User(ctx context.Context, id int64) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/users/"+strconv.FormatInt(id, 10), "", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Check is one dependency check in a health report.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Event is one realtime frame pushed by the server.
type Event struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Stream is an open realtime connection. The personal channel is joined
// by the server on connect.
type Stream struct {
	ws *websocket.Conn
}

// Listen opens the realtime connection.
func (c *Client) Listen(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.BaseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, err
	}
	return &Stream{ws: ws}, nil
}

// Join subscribes to a conversation room such as "conversation_5_9".
func (s *Stream) Join(room string) error {
	data, _ := json.Marshal(room)
	return s.ws.WriteJSON(Event{Event: "join_room", Data: data})
}

// Leave unsubscribes from a room.
func (s *Stream) Leave(room string) error {
	data, _ := json.Marshal(room)
	return s.ws.WriteJSON(Event{Event: "leave_room", Data: data})
}

// Next blocks for the next frame.
func (s *Stream) Next() (*Event, error) {
	var ev Event
	if err := s.ws.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Close closes the connection.
func (s *Stream) Close() error {
	s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.ws.Close()
}

// ConversationRoom returns the room both participants of a pair share.
func ConversationRoom(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("conversation_%d_%d", a, b)
}
