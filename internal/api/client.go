package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidstream/client/internal/logging"
	"github.com/vidstream/client/internal/models"
	"github.com/vidstream/client/internal/session"
)

// Client talks to the video platform's REST surface. Every request carries
// the session's bearer token; a 401 response anywhere tears the session down.
type Client struct {
	baseURL string
	http    *http.Client
	session *session.Session
	timeout time.Duration
}

// NewClient constructs a REST client rooted at baseURL. The timeout bounds
// ordinary calls; uploads are bounded by the caller's context instead.
func NewClient(baseURL string, timeout time.Duration, sess *session.Session) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
		session: sess,
		timeout: timeout,
	}
}

// Filters narrows a video listing by pipeline and sensitivity state.
type Filters struct {
	Status            models.VideoStatus
	SensitivityStatus models.SensitivityStatus
}

func (f Filters) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.SensitivityStatus != "" {
		q.Set("sensitivityStatus", string(f.SensitivityStatus))
	}
	return q
}

type videoResponse struct {
	Video models.VideoEntity `json:"video"`
}

type videosResponse struct {
	Videos []models.VideoEntity `json:"videos"`
}

type usersResponse struct {
	Users []models.User `json:"users"`
}

type userResponse struct {
	User models.User `json:"user"`
}

// Me resolves the identity behind the session's bearer token.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var out userResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return models.User{}, err
	}
	return out.User, nil
}

// ListVideos fetches the snapshot of videos visible to the current user.
func (c *Client) ListVideos(ctx context.Context, filters Filters) ([]models.VideoEntity, error) {
	var out videosResponse
	if err := c.do(ctx, http.MethodGet, "/videos", filters.query(), nil, &out); err != nil {
		return nil, err
	}
	return out.Videos, nil
}

// GetVideo fetches a single video by id.
func (c *Client) GetVideo(ctx context.Context, id string) (models.VideoEntity, error) {
	var out videoResponse
	if err := c.do(ctx, http.MethodGet, "/videos/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return models.VideoEntity{}, err
	}
	return out.Video, nil
}

// DeleteVideo asks the backend to delete a video. Local removal happens only
// after this returns without error.
func (c *Client) DeleteVideo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/videos/"+url.PathEscape(id), nil, nil, nil)
}

// ShareVideo replaces the explicit per-user grants on a video.
func (c *Client) ShareVideo(ctx context.Context, id string, userIDs []string) (models.VideoEntity, error) {
	body := map[string][]string{"userIds": userIDs}
	var out videoResponse
	if err := c.do(ctx, http.MethodPut, "/videos/"+url.PathEscape(id)+"/share", nil, body, &out); err != nil {
		return models.VideoEntity{}, err
	}
	return out.Video, nil
}

// RevokeAccess removes a single user's grant from a video.
func (c *Client) RevokeAccess(ctx context.Context, videoID, userID string) (models.VideoEntity, error) {
	path := "/videos/" + url.PathEscape(videoID) + "/share/" + url.PathEscape(userID)
	var out videoResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, &out); err != nil {
		return models.VideoEntity{}, err
	}
	return out.Video, nil
}

// TogglePublic flips a video's organization-wide visibility flag.
func (c *Client) TogglePublic(ctx context.Context, id string) (models.VideoEntity, error) {
	var out videoResponse
	if err := c.do(ctx, http.MethodPut, "/videos/"+url.PathEscape(id)+"/toggle-public", nil, nil, &out); err != nil {
		return models.VideoEntity{}, err
	}
	return out.Video, nil
}

// ListUsers returns the organization's user directory (admin only).
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out usersResponse
	if err := c.do(ctx, http.MethodGet, "/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// UpdateUserRole changes another user's role (admin only).
func (c *Client) UpdateUserRole(ctx context.Context, id string, role models.Role) error {
	body := map[string]models.Role{"role": role}
	return c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id)+"/role", nil, body, nil)
}

// DeleteUser removes another user's account (admin only).
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil, nil)
}

// UploadMeta carries the user-supplied fields accompanying an upload.
type UploadMeta struct {
	Title       string
	Description string
	IsPublic    bool
}

// UploadVideo streams the asset plus metadata as one multipart transfer and
// returns the entity created by the server. The body is piped, never buffered,
// so arbitrarily large files hold steady memory.
func (c *Client) UploadVideo(ctx context.Context, meta UploadMeta, fileName, mimeType string, r io.Reader) (models.VideoEntity, error) {
	ctx, span := logging.StartSpan(ctx, "api.UploadVideo")
	defer span.End()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(form, meta, fileName, mimeType, r)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos/upload", pr)
	if err != nil {
		return models.VideoEntity{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out videoResponse
	if err := c.send(req, &out); err != nil {
		return models.VideoEntity{}, err
	}
	return out.Video, nil
}

func writeUploadForm(form *multipart.Writer, meta UploadMeta, fileName, mimeType string, r io.Reader) error {
	if err := form.WriteField("title", meta.Title); err != nil {
		return err
	}
	if meta.Description != "" {
		if err := form.WriteField("description", meta.Description); err != nil {
			return err
		}
	}
	if err := form.WriteField("isPublic", strconv.FormatBool(meta.IsPublic)); err != nil {
		return err
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, fileName))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

// StreamURL builds the time-bounded, token-qualified playback URL for a video.
// It refuses to hand out a URL once the session token has expired.
func (c *Client) StreamURL(id string) (string, error) {
	if c.session == nil {
		return "", session.ErrNotAuthenticated
	}
	if err := c.session.Valid(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/videos/%s/stream?token=%s",
		c.baseURL, url.PathEscape(id), url.QueryEscape(c.session.Token())), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := logging.StartSpan(ctx, method+" "+path)
	defer span.End()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	logger := logging.FromContext(req.Context())

	if requestID := logging.RequestIDFromContext(req.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	} else {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.classify(resp, logger)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) classify(resp *http.Response, logger *slog.Logger) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	message := body.Message
	if message == "" {
		message = body.Error
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		logger.Warn("bearer token rejected, tearing down session", "status", resp.StatusCode)
		if c.session != nil {
			c.session.SignOut()
		}
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &ServerError{StatusCode: resp.StatusCode, Message: message}
	}
}
