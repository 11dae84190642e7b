package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/jobhunt-companion/pkg/log"
	"github.com/google/uuid"
)

const apiPrefix = "/api/v1"

// Config configures a backend Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base url must be absolute, got %q", c.BaseURL)
	}
	return nil
}

// Client talks to the analysis backend over HTTP.
// Safe for concurrent use; the base URL may be swapped at runtime.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client

	mu      sync.RWMutex
	baseURL string
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		// streams are long-lived; cancellation comes from the context
		streamClient: &http.Client{},
	}, nil
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) SetBaseURL(baseURL string) error {
	if err := (Config{BaseURL: baseURL}).Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
	return nil
}

// StartWorkflow submits the inputs and returns the server-assigned workflow id.
func (c *Client) StartWorkflow(ctx context.Context, inputs WorkflowInputs) (string, error) {
	var resp startWorkflowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/workflow/start", inputs, &resp); err != nil {
		return "", fmt.Errorf("start workflow: %w", err)
	}
	if resp.WorkflowID == "" {
		return "", fmt.Errorf("start workflow: empty workflow id")
	}
	return resp.WorkflowID, nil
}

func (c *Client) GetWorkflowProgress(ctx context.Context, workflowID string) (*Progress, error) {
	return c.Progress(ctx, KindWorkflow, workflowID)
}

func (c *Client) StreamWorkflowProgress(ctx context.Context, workflowID string, events chan<- StreamEvent) error {
	return c.Stream(ctx, KindWorkflow, workflowID, events)
}

func (c *Client) GetWorkflowResult(ctx context.Context, workflowID string) (map[string]json.RawMessage, error) {
	var resp workflowResultResponse
	if err := c.doJSON(ctx, http.MethodGet, "/workflow/result/"+url.PathEscape(workflowID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get workflow result: %w", err)
	}
	return resp.Results, nil
}

// PrepareInterview starts interview preparation for a finished workflow.
func (c *Client) PrepareInterview(ctx context.Context, workflowID string) (string, error) {
	var resp prepareInterviewResponse
	if err := c.doJSON(ctx, http.MethodPost, "/interview/prepare", prepareInterviewRequest{WorkflowID: workflowID}, &resp); err != nil {
		return "", fmt.Errorf("prepare interview: %w", err)
	}
	if resp.InterviewID == "" {
		return "", fmt.Errorf("prepare interview: empty interview id")
	}
	return resp.InterviewID, nil
}

func (c *Client) GetInterviewProgress(ctx context.Context, interviewID string) (*Progress, error) {
	return c.Progress(ctx, KindInterview, interviewID)
}

func (c *Client) GetInterviewResult(ctx context.Context, interviewID string) (json.RawMessage, error) {
	var resp interviewResultResponse
	if err := c.doJSON(ctx, http.MethodGet, "/interview/result/"+url.PathEscape(interviewID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get interview result: %w", err)
	}
	return resp.Result, nil
}

// Progress fetches one status snapshot for a job of the given kind.
func (c *Client) Progress(ctx context.Context, kind Kind, id string) (*Progress, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s/progress/%s", kind, url.PathEscape(id)), nil, "")
	if err != nil {
		return nil, err
	}
	return decodeProgress(body)
}

func (c *Client) GetRecommendations(ctx context.Context) (*Recommendations, error) {
	var resp recommendationsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/resume/recommendations", nil, &resp); err != nil {
		return nil, fmt.Errorf("get recommendations: %w", err)
	}
	return &resp.Recommendations, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResponse, error) {
	var resp FeedbackResponse
	if err := c.doJSON(ctx, http.MethodPost, "/resume/feedback", req, &resp); err != nil {
		return nil, fmt.Errorf("submit feedback: %w", err)
	}
	return &resp, nil
}

func (c *Client) SubmitBatchFeedback(ctx context.Context, reqs []FeedbackRequest) (*FeedbackResponse, error) {
	var resp FeedbackResponse
	if err := c.doJSON(ctx, http.MethodPost, "/resume/feedback/batch", reqs, &resp); err != nil {
		return nil, fmt.Errorf("submit batch feedback: %w", err)
	}
	return &resp, nil
}

func (c *Client) GetFeedbackStatus(ctx context.Context) (*FeedbackStatus, error) {
	var resp feedbackStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/resume/feedback/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get feedback status: %w", err)
	}
	return &resp.FeedbackStatus, nil
}

func (c *Client) GenerateResume(ctx context.Context) (*GeneratedResume, error) {
	var resp GeneratedResume
	if err := c.doJSON(ctx, http.MethodPost, "/resume/generate", nil, &resp); err != nil {
		return nil, fmt.Errorf("generate resume: %w", err)
	}
	return &resp, nil
}

// ExportResume asks the backend to render the final résumé as pdf or docx.
func (c *Client) ExportResume(ctx context.Context, format, title string) (*ExportHandle, error) {
	if title == "" {
		title = "Resume"
	}
	var resp ExportHandle
	if err := c.doJSON(ctx, http.MethodPost, "/resume/export", exportRequest{Format: format, Title: title}, &resp); err != nil {
		return nil, fmt.Errorf("export resume: %w", err)
	}
	return &resp, nil
}

// UploadResumePDF sends a PDF as multipart form data and returns the extracted text.
func (c *Client) UploadResumePDF(ctx context.Context, fileName string, r io.Reader) (*ExtractedResume, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy pdf: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/upload/resume-pdf", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("upload resume pdf: %w", err)
	}
	var resp ExtractedResume
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &resp, nil
}

func (c *Client) GetClassifiedProjects(ctx context.Context) (json.RawMessage, error) {
	var resp classifiedProjectsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/projects/classified", nil, &resp); err != nil {
		return nil, fmt.Errorf("get classified projects: %w", err)
	}
	return resp.ClassifiedProjects, nil
}

// Health reports whether the backend answers with status "healthy".
func (c *Client) Health(ctx context.Context) (bool, error) {
	var resp healthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return false, err
	}
	return resp.Status == "healthy", nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	respBody, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do performs the request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Debug("Backend %s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+apiPrefix+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// IsTransient reports whether err is worth retrying on an idempotent call.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}
