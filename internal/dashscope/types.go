package dashscope

import "fmt"

// Request is one text-to-image submission.
type Request struct {
	Prompt         string
	NegativePrompt string
	Style          string
	Steps          int
	GuidanceScale  float64
}

type Result struct {
	TaskID    string
	RequestID string
	ImageURL  string
}

// APIError is any non-success answer from the service: an HTTP error status,
// a provider error code or a task that ended without an image.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.StatusCode != 0:
		return fmt.Sprintf("dashscope %d %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("dashscope %s: %s", e.Code, e.Message)
	default:
		return fmt.Sprintf("dashscope %d: %s", e.StatusCode, e.Message)
	}
}

const (
	statusPending   = "PENDING"
	statusRunning   = "RUNNING"
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusCanceled  = "CANCELED"
	statusUnknown   = "UNKNOWN"
)

type synthesisRequest struct {
	Model      string              `json:"model"`
	Input      synthesisInput      `json:"input"`
	Parameters synthesisParameters `json:"parameters"`
}

type synthesisInput struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

type synthesisParameters struct {
	Size           string          `json:"size,omitempty"`
	N              int             `json:"n"`
	Steps          int             `json:"steps,omitempty"`
	CfgScale       float64         `json:"cfg_scale,omitempty"`
	Style          string          `json:"style,omitempty"`
	QualityControl *qualityControl `json:"quality_control,omitempty"`
}

type qualityControl struct {
	Antichain   bool `json:"antichain"`
	DetailBoost int  `json:"detail_boost"`
}

type taskResponse struct {
	RequestID string     `json:"request_id"`
	Code      string     `json:"code,omitempty"`
	Message   string     `json:"message,omitempty"`
	Output    taskOutput `json:"output"`
}

type taskOutput struct {
	TaskID     string       `json:"task_id"`
	TaskStatus string       `json:"task_status"`
	Code       string       `json:"code,omitempty"`
	Message    string       `json:"message,omitempty"`
	Results    []taskResult `json:"results,omitempty"`
}

type taskResult struct {
	URL     string `json:"url,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
