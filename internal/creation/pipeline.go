package creation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"moyun-danqing/internal/dashscope"
	"moyun-danqing/internal/prompt"
	"moyun-danqing/internal/style"
)

const MinPoemRunes = 4

const (
	msgTooShort  = "诗句过短，请题四言以上"
	msgDuplicate = "本次创作与最近作品相似，未予珍藏"
)

type State string

const (
	StateRejected         State = "rejected"
	StateFailed           State = "failed"
	StateArchived         State = "archived"
	StateSkippedDuplicate State = "skipped_duplicate"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Outcome is the result of one Create call. Creation is set for Archived and
// SkippedDuplicate; Err is set for Rejected and Failed.
type Outcome struct {
	State    State
	Level    Level
	Message  string
	Creation *Creation
	Prompt   prompt.Prompt
	Elapsed  time.Duration
	Err      error
}

func (o Outcome) Succeeded() bool {
	return o.State == StateArchived || o.State == StateSkippedDuplicate
}

type ImageService interface {
	Generate(ctx context.Context, req dashscope.Request) (dashscope.Result, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	Builder         *prompt.Builder
	Service         ImageService
	Fetcher         Fetcher
	GenerateTimeout time.Duration
	FetchTimeout    time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
}

type Pipeline struct {
	builder         *prompt.Builder
	service         ImageService
	fetcher         Fetcher
	generateTimeout time.Duration
	fetchTimeout    time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

func NewPipeline(opts Options) *Pipeline {
	generateTimeout := opts.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = 180 * time.Second
	}

	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	builder := opts.Builder
	if builder == nil {
		builder = prompt.NewBuilder(nil)
	}

	return &Pipeline{
		builder:         builder,
		service:         opts.Service,
		fetcher:         opts.Fetcher,
		generateTimeout: generateTimeout,
		fetchTimeout:    fetchTimeout,
		logger:          logger,
		now:             now,
	}
}

// Create runs one generation attempt for sess. It never panics and never
// returns a Go error: every failure is folded into the Outcome.
func (p *Pipeline) Create(ctx context.Context, sess *Session, poem string, st style.Style) (out Outcome) {
	start := p.now()
	logger := p.logger.With("session", sess.ID, "style", string(st))

	defer func() {
		out.Elapsed = p.now().Sub(start)
		if out.State == StateFailed {
			logger.Error("creation failed", "state", out.State, "dur_ms", out.Elapsed.Milliseconds(), "err", out.Err)
			return
		}
		logger.Info("creation finished", "state", out.State, "dur_ms", out.Elapsed.Milliseconds())
	}()

	sess.Touch()

	poem = strings.TrimSpace(poem)
	if utf8.RuneCountInString(poem) < MinPoemRunes {
		return Outcome{State: StateRejected, Level: LevelWarning, Message: msgTooShort, Err: ErrPoemTooShort}
	}

	profile, ok := style.Lookup(st)
	if !ok {
		err := fmt.Errorf("%w: %q", style.ErrUnknownStyle, string(st))
		return Outcome{State: StateRejected, Level: LevelWarning, Message: "未知笔法", Err: err}
	}

	sess.setLatest(nil)

	built := p.builder.Build(poem, profile)

	url, err := p.generate(ctx, built, profile)
	if err != nil {
		return p.failed(built, &ServiceError{Err: err})
	}

	image, err := p.fetch(ctx, url)
	if err != nil {
		return p.failed(built, &TransportError{URL: url, Err: err})
	}

	c := newCreation(poem, st, image, p.now())
	c.Prompt = built.Text
	c.Keywords = built.Keywords
	sess.setLatest(c)

	if !sess.History.Append(c) {
		return Outcome{State: StateSkippedDuplicate, Level: LevelWarning, Message: msgDuplicate, Creation: c, Prompt: built}
	}

	msg := fmt.Sprintf("妙笔丹青成于 %.1f秒", p.now().Sub(start).Seconds())
	return Outcome{State: StateArchived, Level: LevelSuccess, Message: msg, Creation: c, Prompt: built}
}

func (p *Pipeline) generate(ctx context.Context, built prompt.Prompt, profile style.Profile) (url string, err error) {
	if p.service == nil {
		return "", errors.New("image service is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	defer cancel()
	defer recoverInto(&err)

	res, err := p.service.Generate(ctx, dashscope.Request{
		Prompt:         built.Text,
		NegativePrompt: prompt.NegativePrompt,
		Style:          profile.APIStyle,
		Steps:          profile.Steps,
		GuidanceScale:  profile.GuidanceScale,
	})
	if err != nil {
		return "", err
	}
	if res.ImageURL == "" {
		return "", errors.New("no image location returned")
	}
	return res.ImageURL, nil
}

func (p *Pipeline) fetch(ctx context.Context, url string) (image []byte, err error) {
	if p.fetcher == nil {
		return nil, errors.New("fetcher is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	defer recoverInto(&err)

	image, err = p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	return image, nil
}

func (p *Pipeline) failed(built prompt.Prompt, err error) Outcome {
	return Outcome{
		State:   StateFailed,
		Level:   LevelError,
		Message: failureMessage(err),
		Prompt:  built,
		Err:     err,
	}
}

func failureMessage(err error) string {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return "画卷取回失败，请稍后再试"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "丹青未就：等待超时，请稍后再试"
	}

	var apiErr *dashscope.APIError
	if errors.As(err, &apiErr) {
		detail := apiErr.Message
		if apiErr.Code != "" {
			detail = apiErr.Code + " " + detail
		}
		return "丹青未就：" + strings.TrimSpace(detail)
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return "丹青未就：" + svcErr.Err.Error()
	}
	return "丹青未就：" + err.Error()
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
