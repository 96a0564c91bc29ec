// Package http is a client for the REST side of the signaling backend.
// Failed calls return *apierror.Error so callers can classify them.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adwski/realtime-session/backend/apierror"
	"github.com/adwski/realtime-session/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 10 * time.Second

	maxErrorBodySize = 64 << 10
)

type Config struct {
	Logger  *zerolog.Logger
	BaseURL string
	// Jar, when set, carries the same cookies as the realtime channel.
	Jar     http.CookieJar
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "api-client").Logger()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     cfg.Jar,
		},
		logger: logger,
	}
}

// JoinRoom registers userID as a participant of roomID.
func (c *Client) JoinRoom(ctx context.Context, roomID, userID string) (*model.GenericResponse, error) {
	var resp model.GenericResponse
	if err := c.postJSON(ctx, "/api/room", model.RoomRequest{RoomID: roomID, UserID: userID}, &resp); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	c.logger.Debug().
		Str("roomID", roomID).
		Str("userID", userID).
		Msg("joined room")
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError turns a failed response into the error envelope. Bodies that are
// not JSON still yield an *apierror.Error, just without data.
func decodeError(resp *http.Response) error {
	apiErr := &apierror.Error{StatusCode: resp.StatusCode}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil || len(b) == 0 {
		return apiErr
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Data    any    `json:"data"`
	}
	if err = json.Unmarshal(b, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(b))
		return apiErr
	}
	apiErr.Message = body.Message
	if apiErr.Message == "" {
		apiErr.Message = body.Error
	}
	apiErr.Data = body.Data
	return apiErr
}
