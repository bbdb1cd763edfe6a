package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

// Client talks to a cadence host over HTTP
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// PublishError carries the host's reason for rejecting a publish
type PublishError struct {
	Response api.ErrorResponse
	Status   int
}

var (
	ErrPublish       = errors.New("failed to publish")
	ErrListTopics    = errors.New("failed to list topics")
	ErrGetTopic      = errors.New("failed to get topic")
	ErrListSequences = errors.New("failed to list sequences")
	ErrNotReady      = errors.New("host not ready")
)

const (
	DefaultHostURL = "http://localhost:8080"

	routePublish   = "/publish/"
	routeTopics    = "/topics"
	routeSequences = "/sequences"
	routeReady     = "/ready"
)

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Publish sends payload to topic. Unknown topics wrap api.ErrUnknownTopic
// and schema rejections wrap api.ErrInvalidPayload
func (c *Client) Publish(
	ctx context.Context, topic api.TopicName, payload api.Payload,
) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		c.url(routePublish+url.PathEscape(string(topic))),
		bytes.NewBuffer(data),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusAccepted {
		return nil
	}
	perr := &PublishError{Status: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(&perr.Response)
	return perr
}

func (c *Client) ListTopics(ctx context.Context) (*api.TopicsResponse, error) {
	var res api.TopicsResponse
	if err := c.get(ctx, routeTopics, ErrListTopics, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetTopic(
	ctx context.Context, topic api.TopicName,
) (*api.TopicResponse, error) {
	var res api.TopicResponse
	path := routeTopics + "/" + url.PathEscape(string(topic))
	if err := c.get(ctx, path, ErrGetTopic, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ListSequences(
	ctx context.Context,
) (*api.SequencesResponse, error) {
	var res api.SequencesResponse
	if err := c.get(ctx, routeSequences, ErrListSequences, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ready returns the host's readiness info, or ErrNotReady while
// registration is still running
func (c *Client) Ready(ctx context.Context) (*api.ReadyInfo, error) {
	var res api.ReadyInfo
	if err := c.get(ctx, routeReady, ErrNotReady, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) get(
	ctx context.Context, path string, failure error, dst any,
) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url(path), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d, body: %s",
			failure, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (e *PublishError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrPublish, e.Status, msg)
}

// Unwrap maps the host's status onto the matching api sentinel
func (e *PublishError) Unwrap() []error {
	switch e.Status {
	case http.StatusNotFound:
		return []error{ErrPublish, api.ErrUnknownTopic}
	case http.StatusUnprocessableEntity:
		return []error{ErrPublish, api.ErrInvalidPayload}
	default:
		return []error{ErrPublish}
	}
}
