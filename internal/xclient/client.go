package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"memebot/internal/model"
)

// API defines the X operations the bot uses. Mentions come back
// newest-first, as the platform returns them.
type API interface {
	GetMe(ctx context.Context) (model.User, error)
	GetMentionsSince(ctx context.Context, userID, sinceID string, max int) ([]model.Mention, error)
	GetTweetByID(ctx context.Context, id string) (model.Mention, error)
	GetUserByID(ctx context.Context, id string) (model.User, error)
	PostReply(ctx context.Context, targetID, text, mediaID string) error
	UploadMedia(ctx context.Context, media []byte) (string, error)
}

// Client talks to the X API v2 (plus the v1.1 media endpoint) with
// OAuth 1.0a user-context signing. It paces requests locally but does
// not retry: a 429 surfaces as *RateLimitError so the poller owns the
// backoff schedule.
type Client struct {
	apiBase    string
	uploadBase string

	consumerKey    string
	consumerSecret string
	accessToken    string
	accessSecret   string

	httpClient *http.Client
	limiter    *rate.Limiter
	nowFn      func() time.Time
	nonceFn    func() string
}

func New(consumerKey, consumerSecret, accessToken, accessSecret string) *Client {
	return &Client{
		apiBase:        "https://api.twitter.com/2",
		uploadBase:     "https://upload.twitter.com/1.1",
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		accessToken:    accessToken,
		accessSecret:   accessSecret,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		limiter:        newDefaultLimiter(),
		nowFn:          time.Now,
		nonceFn:        func() string { return strconv.FormatInt(rand.Int63(), 36) },
	}
}

const tweetFields = "author_id,text,created_at,referenced_tweets"

type rawTweet struct {
	ID               string    `json:"id"`
	AuthorID         string    `json:"author_id"`
	Text             string    `json:"text"`
	CreatedAt        time.Time `json:"created_at"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

func (t rawTweet) toMention() model.Mention {
	m := model.Mention{ID: t.ID, AuthorID: t.AuthorID, Text: t.Text, CreatedAt: t.CreatedAt}
	if len(t.ReferencedTweets) > 0 {
		m.ReferencedParentID = t.ReferencedTweets[0].ID
	}
	return m
}

func (c *Client) get(ctx context.Context, rawURL string, params map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.oauth1Sign(req, params)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}
	return resp, nil
}

// GetMe resolves the authenticated bot identity.
func (c *Client) GetMe(ctx context.Context) (model.User, error) {
	resp, err := c.get(ctx, c.apiBase+"/users/me", nil)
	if err != nil {
		return model.User{}, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.User{}, err
	}
	if raw.Data.ID == "" {
		return model.User{}, errors.New("empty user in response")
	}
	return model.User{ID: raw.Data.ID, Username: raw.Data.Username}, nil
}

// GetMentionsSince fetches up to max mentions of userID newer than
// sinceID (all of them when sinceID is empty), newest-first.
func (c *Client) GetMentionsSince(ctx context.Context, userID, sinceID string, max int) ([]model.Mention, error) {
	params := map[string]string{
		"max_results":  strconv.Itoa(clamp(max, 5, 100)),
		"tweet.fields": tweetFields,
	}
	if sinceID != "" {
		params["since_id"] = sinceID
	}
	u := fmt.Sprintf("%s/users/%s/mentions?%s", c.apiBase, url.PathEscape(userID), encodeQuery(params))
	resp, err := c.get(ctx, u, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data []rawTweet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Mention, 0, len(raw.Data))
	for _, t := range raw.Data {
		out = append(out, t.toMention())
	}
	return out, nil
}

// GetTweetByID fetches a single tweet, used for parent walk-back.
func (c *Client) GetTweetByID(ctx context.Context, id string) (model.Mention, error) {
	params := map[string]string{"tweet.fields": tweetFields}
	u := fmt.Sprintf("%s/tweets/%s?%s", c.apiBase, url.PathEscape(id), encodeQuery(params))
	resp, err := c.get(ctx, u, params)
	if err != nil {
		return model.Mention{}, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data rawTweet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.Mention{}, err
	}
	if raw.Data.ID == "" {
		return model.Mention{}, errors.New("tweet not found")
	}
	return raw.Data.toMention(), nil
}

// GetUserByID resolves a user handle for audit records.
func (c *Client) GetUserByID(ctx context.Context, id string) (model.User, error) {
	u := fmt.Sprintf("%s/users/%s", c.apiBase, url.PathEscape(id))
	resp, err := c.get(ctx, u, nil)
	if err != nil {
		return model.User{}, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return model.User{}, err
	}
	return model.User{ID: raw.Data.ID, Username: raw.Data.Username}, nil
}

// PostReply posts one reply to targetID, with media attached when
// mediaID is non-empty.
func (c *Client) PostReply(ctx context.Context, targetID, text, mediaID string) error {
	payload := map[string]any{
		"text":  text,
		"reply": map[string]string{"in_reply_to_tweet_id": targetID},
	}
	if mediaID != "" {
		payload["media"] = map[string][]string{"media_ids": {mediaID}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/tweets", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.oauth1Sign(req, nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	resp.Body.Close()
	return nil
}

// UploadMedia pushes image bytes through the v1.1 media endpoint and
// returns the media id to attach to a reply.
func (c *Client) UploadMedia(ctx context.Context, media []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "media.png")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(media); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadBase+"/media/upload.json", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.oauth1Sign(req, nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}
	defer resp.Body.Close()
	var raw struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if raw.MediaIDString == "" {
		return "", errors.New("empty media id in response")
	}
	return raw.MediaIDString, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
