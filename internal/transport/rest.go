package transport

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
	"time"

	"github.com/rs/zerolog"

	"github.com/pratchat/prat/internal/chat"
)

const defaultHTTPTimeout = 15 * time.Second

// RESTClient implements chat.Client against the HTTP API.
type RESTClient struct {
	base  string
	token string
	http  *http.Client
	log   zerolog.Logger
}

func NewRESTClient(baseURL, token string, log zerolog.Logger) *RESTClient {
	return &RESTClient{
		base:  baseURL,
		token: token,
		http:  &http.Client{Timeout: defaultHTTPTimeout},
		log:   log,
	}
}

func conversationPath(conv chat.ConversationRef) string {
	if conv.Kind == chat.KindDM {
		return "/api/dms/" + url.PathEscape(conv.ID)
	}
	return "/api/channels/" + url.PathEscape(conv.ID)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, chat.ErrNotFound)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *RESTClient) FetchMessagePage(ctx context.Context, conv chat.ConversationRef, beforeID string, limit int) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if beforeID != "" {
		q.Set("before", beforeID)
	}

	var out struct {
		Messages []wireMessage `json:"messages"`
	}
	path := conversationPath(conv) + "/messages?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	msgs := make([]chat.Message, 0, len(out.Messages))
	for _, w := range out.Messages {
		msgs = append(msgs, w.toDomain())
	}
	return msgs, nil
}

func (c *RESTClient) EditMessage(ctx context.Context, conv chat.ConversationRef, id, content string) (chat.EditResult, error) {
	body := map[string]string{"content": content}
	var out struct {
		ID       string    `json:"id"`
		Content  string    `json:"content"`
		EditedAt time.Time `json:"edited_at"`
	}
	path := conversationPath(conv) + "/messages/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return chat.EditResult{}, err
	}
	return chat.EditResult{ID: out.ID, Content: out.Content, EditedAt: out.EditedAt}, nil
}

func (c *RESTClient) DeleteMessage(ctx context.Context, conv chat.ConversationRef, id string) error {
	path := conversationPath(conv) + "/messages/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *RESTClient) UploadAttachment(ctx context.Context, up chat.Upload) (chat.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", up.Filename)
	if err != nil {
		return chat.UploadResult{}, fmt.Errorf("upload %s: %w", up.Filename, err)
	}
	if _, err := io.Copy(part, up.Data); err != nil {
		return chat.UploadResult{}, fmt.Errorf("upload %s: %w", up.Filename, err)
	}
	if err := mw.Close(); err != nil {
		return chat.UploadResult{}, fmt.Errorf("upload %s: %w", up.Filename, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/media", &buf)
	if err != nil {
		return chat.UploadResult{}, fmt.Errorf("upload %s: %w", up.Filename, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return chat.UploadResult{}, fmt.Errorf("upload %s: %w", up.Filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return chat.UploadResult{}, fmt.Errorf("upload %s: status %d", up.Filename, resp.StatusCode)
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chat.UploadResult{}, fmt.Errorf("upload %s: decode response: %w", up.Filename, err)
	}
	return chat.UploadResult{MediaID: out.ID, Status: chat.AttachmentStatus(out.Status)}, nil
}

func (c *RESTClient) ProbeDerivativeReady(ctx context.Context, mediaID string) (bool, error) {
	var out struct {
		Ready bool `json:"ready"`
	}
	path := "/api/media/" + url.PathEscape(mediaID) + "/ready"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Ready, nil
}

func (c *RESTClient) AddReaction(ctx context.Context, conv chat.ConversationRef, messageID string, emoji chat.EmojiRef) error {
	path := conversationPath(conv) + "/messages/" + url.PathEscape(messageID) + "/reactions"
	return c.do(ctx, http.MethodPut, path, toWireEmoji(emoji), nil)
}

func (c *RESTClient) RemoveReaction(ctx context.Context, conv chat.ConversationRef, messageID string, emoji chat.EmojiRef) error {
	path := conversationPath(conv) + "/messages/" + url.PathEscape(messageID) + "/reactions/remove"
	return c.do(ctx, http.MethodPost, path, toWireEmoji(emoji), nil)
}

func (c *RESTClient) FetchReactionDetails(ctx context.Context, conv chat.ConversationRef, messageID string, emoji chat.EmojiRef) ([]chat.Reactor, error) {
	q := url.Values{}
	if emoji.EmojiID != "" {
		q.Set("emoji_id", emoji.EmojiID)
	} else {
		q.Set("unicode_emoji", emoji.Unicode)
	}

	var out struct {
		Users []wireAuthor `json:"users"`
	}
	path := conversationPath(conv) + "/messages/" + url.PathEscape(messageID) + "/reactions?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	who := make([]chat.Reactor, 0, len(out.Users))
	for _, u := range out.Users {
		who = append(who, chat.Reactor{UserID: u.ID, Username: u.Username, DisplayName: u.DisplayName})
	}
	return who, nil
}
