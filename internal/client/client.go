// Package client is the HTTP-side of the core engine: it implements the vote
// boundary and the feed fetcher against a running kettle-api, and consumes its
// server-sent change feed.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MannyG3/Kettle/internal/feed"
	"github.com/MannyG3/Kettle/internal/heat"
	"github.com/MannyG3/Kettle/internal/posts"
	"go.uber.org/zap"
)

// ErrUnexpectedStatus indicates a non-success response from the API.
var ErrUnexpectedStatus = errors.New("client: unexpected response status")

// Client talks to one kettle-api instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a client for the given base URL.
func New(baseURL string, logger *zap.Logger) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("client: base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

type voteRequest struct {
	PostID string `json:"post_id"`
	Action string `json:"action"`
}

type voteResponse struct {
	Heat int `json:"heat"`
}

// ApplyAction sends one vote action and returns the new authoritative score.
// It satisfies the heat.Boundary contract: errors mean no side effect was
// confirmed and the caller may fall back to optimistic scoring.
func (c *Client) ApplyAction(ctx context.Context, postID string, action heat.Action) (int, error) {
	body, err := json.Marshal(voteRequest{PostID: postID, Action: string(action)})
	if err != nil {
		return 0, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/vote", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}

	var decoded voteResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return 0, err
	}
	return decoded.Heat, nil
}

type postPayload struct {
	ID                string  `json:"id"`
	KettleID          string  `json:"kettle_id"`
	Content           string  `json:"content"`
	ImageURL          string  `json:"image_url"`
	HeatScore         int     `json:"heat_score"`
	AnonymousIdentity string  `json:"anonymous_identity"`
	ParentPostID      *string `json:"parent_post_id"`
	CreatedAtSeconds  int64   `json:"created_at_s"`
}

type listPostsResponse struct {
	Posts []postPayload `json:"posts"`
}

// KettleFetcher binds the client to one kettle slug and satisfies feed.Fetcher.
type KettleFetcher struct {
	client *Client
	slug   string
}

// FetcherForSlug returns a feed.Fetcher for the given kettle slug.
func (c *Client) FetcherForSlug(slug string) *KettleFetcher {
	return &KettleFetcher{client: c, slug: slug}
}

// ListPosts fetches the kettle's full non-removed post collection.
func (f *KettleFetcher) ListPosts(ctx context.Context, _ posts.KettleID) ([]posts.Post, error) {
	url := fmt.Sprintf("%s/api/kettles/%s/posts", f.client.baseURL, f.slug)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := f.client.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}

	var decoded listPostsResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	collection := make([]posts.Post, 0, len(decoded.Posts))
	for _, entry := range decoded.Posts {
		collection = append(collection, posts.Post{
			PostID:            entry.ID,
			KettleID:          entry.KettleID,
			Content:           entry.Content,
			ImageURL:          entry.ImageURL,
			HeatScore:         entry.HeatScore,
			AnonymousIdentity: entry.AnonymousIdentity,
			ParentPostID:      entry.ParentPostID,
			CreatedAtSeconds:  entry.CreatedAtSeconds,
		})
	}
	return collection, nil
}

type streamEventPayload struct {
	Kind   string `json:"kind"`
	PostID string `json:"post_id"`
}

// Subscribe opens the kettle's server-sent change feed and delivers its events
// until the context ends or the stream closes. Heartbeats are filtered out;
// only post-change events reach the channel.
func (c *Client) Subscribe(ctx context.Context, slug string) (<-chan feed.Event, error) {
	url := fmt.Sprintf("%s/api/kettles/%s/stream", c.baseURL, slug)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "text/event-stream")

	// No client timeout on the long-lived stream; the context governs it.
	streamClient := &http.Client{}
	response, err := streamClient.Do(request)
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}

	events := make(chan feed.Event, 16)
	go func() {
		defer close(events)
		defer response.Body.Close()

		scanner := bufio.NewScanner(response.Body)
		currentEvent := ""
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if currentEvent != "post-change" {
					continue
				}
				var payload streamEventPayload
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					c.logger.Warn("malformed change-feed payload", zap.Error(err))
					continue
				}
				select {
				case events <- feed.Event{Kind: feed.EventKind(payload.Kind), PostID: payload.PostID}:
				case <-ctx.Done():
					return
				}
			case line == "":
				currentEvent = ""
			}
		}
	}()
	return events, nil
}
