// Package transcript fetches YouTube transcripts through the ScrapeCreators API.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL     = "https://api.scrapecreators.com/v1/youtube/video"
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 64 * 1024
)

var (
	ErrMissingAPIKey = errors.New("transcript API key is not configured")
	ErrMissingURL    = errors.New("youtube URL is required")
	ErrInvalidURL    = errors.New("invalid youtube URL format")
	ErrNoVideoID     = errors.New("could not extract youtube video ID")
	ErrNoTranscript  = errors.New("no transcript data received")
)

// UpstreamError is a non-2xx response from the transcript API.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// VideoDetails describes the fetched video.
type VideoDetails struct {
	Title       string `json:"title"`
	ViewCount   int64  `json:"viewCount"`
	PublishDate string `json:"publishDate"`
	Channel     string `json:"channel"`
}

// Result is a fetched transcript.
type Result struct {
	VideoID      string       `json:"-"`
	Transcript   string       `json:"transcript"`
	VideoDetails VideoDetails `json:"videoDetails"`
}

// Fetcher retrieves the transcript of a YouTube URL.
type Fetcher interface {
	Fetch(ctx context.Context, videoURL string) (*Result, error)
}

// Config captures the runtime settings of the transcript API.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client wraps the ScrapeCreators YouTube video API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	group      singleflight.Group
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the clock used for the default publish date.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient constructs a transcript client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimSpace(cfg.BaseURL),
			Timeout: timeout,
		},
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = DefaultBaseURL
	}
	return client
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type apiResponse struct {
	TranscriptOnlyText string `json:"transcript_only_text"`
	Title              string `json:"title"`
	ViewCountInt       int64  `json:"viewCountInt"`
	PublishDate        string `json:"publishDate"`
	Channel            *struct {
		Title string `json:"title"`
	} `json:"channel"`
	Error string `json:"error"`
}

// Fetch validates videoURL and retrieves its transcript. Concurrent fetches
// of the same video share one upstream request.
func (c *Client) Fetch(ctx context.Context, videoURL string) (*Result, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return nil, ErrMissingURL
	}
	if !IsValidYouTubeURL(videoURL) {
		return nil, ErrInvalidURL
	}
	videoID := ExtractVideoID(videoURL)
	if videoID == "" {
		return nil, ErrNoVideoID
	}

	// The shared request outlives any single caller; each caller stops waiting
	// when its own context ends.
	ch := c.group.DoChan(videoID, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
		defer cancel()
		return c.fetch(fetchCtx, videoURL, videoID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug().Str("video_id", videoID).Msg("transcript fetch shared")
		}
		result := *res.Val.(*Result)
		return &result, nil
	}
}

func (c *Client) fetch(ctx context.Context, videoURL, videoID string) (*Result, error) {
	endpoint := fmt.Sprintf("%s?url=%s&get_transcript=get_transcript", c.cfg.BaseURL, url.QueryEscape(videoURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("transcript request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamError(resp)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("transcript decode: %w", err)
	}
	if payload.TranscriptOnlyText == "" {
		return nil, ErrNoTranscript
	}

	details := VideoDetails{
		Title:       payload.Title,
		ViewCount:   payload.ViewCountInt,
		PublishDate: payload.PublishDate,
		Channel:     "Unknown Channel",
	}
	if details.Title == "" {
		details.Title = "Untitled Video"
	}
	if details.PublishDate == "" {
		details.PublishDate = c.now().UTC().Format(time.RFC3339)
	}
	if payload.Channel != nil && payload.Channel.Title != "" {
		details.Channel = payload.Channel.Title
	}

	log.Info().Str("video_id", videoID).Msg("fetched transcript")
	return &Result{
		VideoID:      videoID,
		Transcript:   payload.TranscriptOnlyText,
		VideoDetails: details,
	}, nil
}

// upstreamError prefers the API's "error" field, then the status text.
func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	message := ""
	var payload apiResponse
	if json.Unmarshal(body, &payload) == nil {
		message = payload.Error
	}
	if message == "" {
		message = fmt.Sprintf("Request failed with status code %d", resp.StatusCode)
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Message: message}
}
