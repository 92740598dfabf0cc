// internal/server/client.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/internal/auth"
	"github.com/jason-s-yu/keepbreathing/internal/lobby"
	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

// Client talks to a relay. It is a logstore.Store, so a game.Session can
// run against a remote log exactly as against a local one.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the relay at baseURL (http or https).
// token may be empty until Login.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// Login asks the relay for an identity and uses its token from then on.
func (c *Client) Login(ctx context.Context, name string) (IdentityResponse, error) {
	var out IdentityResponse
	if err := c.do(ctx, http.MethodPost, "/v1/identity", IdentityRequest{Name: name}, &out); err != nil {
		return IdentityResponse{}, fmt.Errorf("login: %w", err)
	}
	c.token = out.Token
	return out, nil
}

// CreateGame returns a fresh game id.
func (c *Client) CreateGame(ctx context.Context) (uuid.UUID, error) {
	var out CreateGameResponse
	if err := c.do(ctx, http.MethodPost, "/v1/games", nil, &out); err != nil {
		return uuid.Nil, fmt.Errorf("create game: %w", err)
	}
	return out.GameID, nil
}

// Claim takes color in room for the logged-in user.
func (c *Client) Claim(ctx context.Context, room uuid.UUID, color engine.Color) (lobby.Assignment, error) {
	var out lobby.Assignment
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/v1/rooms/%s/colors/%s", room, color), nil, &out)
	return out, err
}

// Release gives up the logged-in user's color in room.
func (c *Client) Release(ctx context.Context, room uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/rooms/%s/colors", room), nil, nil)
}

// Roster returns room's players and the START action that seats them.
func (c *Client) Roster(ctx context.Context, room uuid.UUID) (RosterResponse, error) {
	var out RosterResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/rooms/%s/roster", room), nil, &out)
	return out, err
}

// Append posts rec to the relay. The relay records the token's user as
// the submitter.
func (c *Client) Append(ctx context.Context, gameID uuid.UUID, rec logstore.Record) (logstore.Entry, error) {
	if err := rec.Validate(); err != nil {
		return logstore.Entry{}, err
	}
	var e logstore.Entry
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/games/%s/log", gameID), rec, &e); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest {
			return logstore.Entry{}, fmt.Errorf("%w: %s", logstore.ErrInvalidRecord, se.Message)
		}
		return logstore.Entry{}, fmt.Errorf("append to game %s: %w", gameID, err)
	}
	return e, nil
}

// Subscribe opens a WebSocket log stream.
func (c *Client) Subscribe(ctx context.Context, gameID uuid.UUID, from int64) (logstore.Subscription, error) {
	u := fmt.Sprintf("%s/v1/games/%s/log?from=%d", c.baseURL, gameID, max(from, 1))
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: c.header()})
	if err != nil {
		return nil, fmt.Errorf("dial log stream: %w", err)
	}
	conn.SetReadLimit(maxRecordBytes * 2)

	return logstore.Pump(ctx, func(ctx context.Context, emit logstore.EmitFunc) error {
		defer conn.CloseNow()
		for {
			var e logstore.Entry
			if err := wsjson.Read(ctx, conn, &e); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return logstore.ErrClosed
				}
				return fmt.Errorf("read log stream: %w", err)
			}
			if !emit(e) {
				return ctx.Err()
			}
		}
	}), nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// StatusError is a relay response outside the 2xx range.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: %d %s", e.Code, e.Message)
}

// Unwrap maps the status onto the sentinel errors callers test for.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return auth.ErrInvalidToken
	case http.StatusConflict:
		return lobby.ErrColorTaken
	case http.StatusServiceUnavailable:
		return logstore.ErrClosed
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header = c.header()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&eb)
		return &StatusError{Code: resp.StatusCode, Message: eb.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
