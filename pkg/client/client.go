// Package client is a Go client for the voice-scheduler HTTP API.
//
// A Client holds one access/refresh token pair. Requests that come back 401
// are retried once after refreshing; concurrent refreshes share a single
// round trip so the server sees the refresh token used exactly once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired means the refresh token was rejected; log in again.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voice-scheduler: %d %s", e.Status, e.Message)
}

type Candidate struct {
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	AppointmentDate *time.Time `json:"appointmentDate"`
	DurationMinutes int        `json:"durationMinutes"`
	Notes           string     `json:"notes"`
}

type Validation struct {
	IsSuccess bool   `json:"isSuccess"`
	Error     string `json:"error"`
}

type Intake struct {
	Appointment Candidate  `json:"appointment"`
	Validation  Validation `json:"validation"`
}

type Appointment struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	AppointmentDate *time.Time `json:"appointmentDate"`
	DurationMinutes *int       `json:"durationMinutes"`
	Notes           string     `json:"notes"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	access  string
	refresh string
	userID  int64

	group singleflight.Group
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetTokens installs a previously obtained token pair.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access, c.refresh = access, refresh
}

func (c *Client) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, c.refresh
}

type tokenResponse struct {
	Message      string `json:"message"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       int64  `json:"userId"`
}

func (c *Client) Register(ctx context.Context, email, password string) error {
	var out tokenResponse
	if err := c.call(ctx, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": password,
	}, &out); err != nil {
		return err
	}
	c.SetTokens(out.Token, out.RefreshToken)
	return nil
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	var out tokenResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": password,
	}, &out); err != nil {
		return err
	}
	c.mu.Lock()
	c.access, c.refresh, c.userID = out.Token, out.RefreshToken, out.UserID
	c.mu.Unlock()
	return nil
}

// Logout revokes the current session and forgets the tokens.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	body := map[string]any{"userId": c.userID, "refreshToken": c.refresh}
	c.mu.Unlock()

	if err := c.call(ctx, http.MethodPost, "/auth/logout", "", body, nil); err != nil {
		return err
	}
	c.SetTokens("", "")
	return nil
}

// Refresh rotates the token pair.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refreshIfStale(ctx, "")
}

// refreshIfStale rotates the pair unless the access token has already moved
// on from stale. An empty stale always refreshes.
func (c *Client) refreshIfStale(ctx context.Context, stale string) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		access, refresh := c.Tokens()
		if stale != "" && access != stale {
			return nil, nil
		}
		if refresh == "" {
			return nil, ErrSessionExpired
		}

		var out tokenResponse
		err := c.call(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refresh}, &out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, ErrSessionExpired
		}
		if err != nil {
			return nil, err
		}
		c.SetTokens(out.Token, out.RefreshToken)
		return nil, nil
	})
	return err
}

func (c *Client) UploadAudio(ctx context.Context, filename string, audio []byte) (*Intake, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out Intake
	if err := c.authed(ctx, http.MethodPost, "/UploadAudio", mw.FormDataContentType(), buf.Bytes(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmAppointment(ctx context.Context, candidate Candidate) (*Intake, error) {
	body, err := json.Marshal(candidate)
	if err != nil {
		return nil, err
	}
	var out Intake
	if err := c.authed(ctx, http.MethodPost, "/ConfirmAppointment", "application/json", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Appointments(ctx context.Context) ([]Appointment, error) {
	var out struct {
		Appointments []Appointment `json:"appointments"`
	}
	if err := c.authed(ctx, http.MethodGet, "/appointments", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Appointments, nil
}

// authed sends a bearer request, refreshing and retrying once on 401.
func (c *Client) authed(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	access, _ := c.Tokens()
	err := c.send(ctx, method, path, contentType, access, body, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	if err := c.refreshIfStale(ctx, access); err != nil {
		return err
	}
	access, _ = c.Tokens()
	return c.send(ctx, method, path, contentType, access, body, out)
}

func (c *Client) call(ctx context.Context, method, path, bearer string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, "application/json", bearer, body, out)
}

func (c *Client) send(ctx context.Context, method, path, contentType, bearer string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(raw, &msg)
		text := msg.Message
		if text == "" {
			text = msg.Error
		}
		return &APIError{Status: resp.StatusCode, Message: text}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
