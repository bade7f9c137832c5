package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com"
	defaultModel   = "wanx2.1-t2i-turbo"
	defaultSize    = "1440*960"

	synthesisPath = "/api/v1/services/aigc/text2image/image-synthesis"
	tasksPath     = "/api/v1/tasks/"
)

var errTaskPending = errors.New("task pending")

type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	Size              string
	PollInterval      time.Duration
	RequestsPerMinute float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

type Client struct {
	apiKey       string
	baseURL      string
	model        string
	size         string
	pollInterval time.Duration
	limiter      *rate.Limiter
	httpClient   *http.Client
	logger       *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = defaultSize
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerMinute/60), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		apiKey:       opts.APIKey,
		baseURL:      baseURL,
		model:        model,
		size:         size,
		pollInterval: pollInterval,
		limiter:      limiter,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// Generate submits one synthesis task and waits for it to finish. The
// submission is never repeated; only the status lookup is polled until the
// task is terminal or ctx is done.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Result{}, errors.New("prompt is empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit: %w", err)
	}

	payload := synthesisRequest{
		Model: c.model,
		Input: synthesisInput{
			Prompt:         prompt,
			NegativePrompt: req.NegativePrompt,
		},
		Parameters: synthesisParameters{
			Size:     c.size,
			N:        1,
			Steps:    req.Steps,
			CfgScale: req.GuidanceScale,
			Style:    req.Style,
			QualityControl: &qualityControl{
				Antichain:   true,
				DetailBoost: 2,
			},
		},
	}

	submitted, err := c.submit(ctx, payload)
	if err != nil {
		return Result{}, err
	}
	c.logger.Info("synthesis submitted", "task_id", submitted.Output.TaskID, "model", c.model, "steps", req.Steps)

	return c.waitTask(ctx, submitted.Output.TaskID)
}

func (c *Client) submit(ctx context.Context, payload synthesisRequest) (taskResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return taskResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+synthesisPath, bytes.NewReader(body))
	if err != nil {
		return taskResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.do(httpReq)
	if err != nil {
		return taskResponse{}, err
	}
	if resp.Output.TaskID == "" {
		return taskResponse{}, &APIError{Code: resp.Code, Message: "no task id in response", RequestID: resp.RequestID}
	}
	return resp, nil
}

func (c *Client) waitTask(ctx context.Context, taskID string) (Result, error) {
	poll := func() (Result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tasksPath+taskID, nil)
		if err != nil {
			return Result{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		resp, err := c.do(req)
		if err != nil {
			return Result{}, backoff.Permanent(err)
		}

		switch resp.Output.TaskStatus {
		case statusSucceeded:
			for _, r := range resp.Output.Results {
				if r.URL != "" {
					return Result{TaskID: taskID, RequestID: resp.RequestID, ImageURL: r.URL}, nil
				}
			}
			return Result{}, backoff.Permanent(&APIError{
				Code:      firstResultCode(resp.Output.Results),
				Message:   "task succeeded without an image",
				RequestID: resp.RequestID,
			})
		case statusFailed, statusCanceled, statusUnknown:
			return Result{}, backoff.Permanent(&APIError{
				Code:      resp.Output.Code,
				Message:   fmt.Sprintf("task %s: %s", strings.ToLower(resp.Output.TaskStatus), resp.Output.Message),
				RequestID: resp.RequestID,
			})
		default:
			c.logger.Debug("synthesis pending", "task_id", taskID, "status", resp.Output.TaskStatus)
			return Result{}, errTaskPending
		}
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), ctx)
	res, err := backoff.RetryWithData(poll, b)
	if err != nil {
		if errors.Is(err, errTaskPending) && ctx.Err() != nil {
			err = ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Result{}, fmt.Errorf("wait task %s: %w", taskID, err)
		}
		return Result{}, err
	}
	return res, nil
}

func (c *Client) do(httpReq *http.Request) (taskResponse, error) {
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return taskResponse{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return taskResponse{}, fmt.Errorf("read response: %w", err)
	}

	var decoded taskResponse
	decodeErr := json.Unmarshal(rawBody, &decoded)

	if httpResp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: httpResp.StatusCode, Message: strings.TrimSpace(string(rawBody))}
		if decodeErr == nil && decoded.Code != "" {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Message
			apiErr.RequestID = decoded.RequestID
		}
		return taskResponse{}, apiErr
	}
	if decodeErr != nil {
		return taskResponse{}, fmt.Errorf("decode response: %w", decodeErr)
	}
	if decoded.Code != "" {
		return taskResponse{}, &APIError{StatusCode: httpResp.StatusCode, Code: decoded.Code, Message: decoded.Message, RequestID: decoded.RequestID}
	}
	return decoded, nil
}

func firstResultCode(results []taskResult) string {
	for _, r := range results {
		if r.Code != "" {
			return r.Code
		}
	}
	return ""
}
