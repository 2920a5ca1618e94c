package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vodscribe/internal/models"
)

// Sentinel errors for the remote summary API.
var (
	ErrRemoteTaskFailed = errors.New("remote summary task failed")
	ErrRemoteRequest    = errors.New("remote summary request failed")
)

// DefaultRemoteBaseURL is the public summary task API.
const DefaultRemoteBaseURL = "https://api.bibigpt.co/api"

// RemoteClient talks to an external summary-task API: create a task for a URL, then poll it.
type RemoteClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteClient creates a remote summary client. An empty token is rejected.
func NewRemoteClient(baseURL, token string, timeout time.Duration) (*RemoteClient, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: remote api token is empty", ErrNotConfigured)
	}
	if baseURL == "" {
		baseURL = DefaultRemoteBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type createTaskResponse struct {
	TaskID  string `json:"taskId"`
	Message string `json:"message"`
}

type taskStatusResponse struct {
	Status  string          `json:"status"`
	Summary json.RawMessage `json:"summary"`
	Message string          `json:"message"`
}

// Submit creates a summary task for the video URL and returns its task id.
func (c *RemoteClient) Submit(ctx context.Context, videoURL string) (string, error) {
	var resp createTaskResponse
	if err := c.get(ctx, "/v1/createSummaryTask", url.Values{"url": {videoURL}}, &resp); err != nil {
		return "", err
	}
	taskID := strings.TrimSpace(resp.TaskID)
	if taskID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "no task id returned"
		}
		return "", fmt.Errorf("%w: %s", ErrRemoteTaskFailed, msg)
	}
	return taskID, nil
}

// Poll fetches the task status. A non-empty summary means done regardless of the status field.
func (c *RemoteClient) Poll(ctx context.Context, taskID string) (models.RemoteStatus, error) {
	var resp taskStatusResponse
	params := url.Values{"taskId": {taskID}, "includeDetail": {"true"}}
	if err := c.get(ctx, "/v1/getSummaryTaskStatus", params, &resp); err != nil {
		return models.RemoteStatus{}, err
	}
	return interpretStatus(resp), nil
}

func interpretStatus(resp taskStatusResponse) models.RemoteStatus {
	if summary := summaryText(resp.Summary); summary != "" {
		return models.RemoteStatus{State: models.RemoteDone, Summary: summary, Message: resp.Message}
	}
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "failed", "error", "canceled", "cancelled":
		msg := resp.Message
		if msg == "" {
			msg = "status=" + resp.Status
		}
		return models.RemoteStatus{State: models.RemoteFailed, Message: msg}
	}
	return models.RemoteStatus{State: models.RemotePending, Message: resp.Status}
}

// summaryText accepts either a JSON string or any other JSON value rendered as text.
func summaryText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func (c *RemoteClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRemoteRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRemoteRequest, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
