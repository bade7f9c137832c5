package creation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moyun-danqing/internal/dashscope"
	"moyun-danqing/internal/prompt"
	"moyun-danqing/internal/style"
)

type fakeService struct {
	calls int
	last  dashscope.Request
	url   string
	err   error
	panic bool
}

func (f *fakeService) Generate(ctx context.Context, req dashscope.Request) (dashscope.Result, error) {
	f.calls++
	f.last = req
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return dashscope.Result{}, f.err
	}
	return dashscope.Result{ImageURL: f.url}, nil
}

type fakeFetcher struct {
	calls  int
	images [][]byte
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	img := f.images[0]
	if len(f.images) > 1 {
		f.images = f.images[1:]
	}
	return img, nil
}

type staticTagger []prompt.Token

func (s staticTagger) Tag(string) []prompt.Token { return s }

const poem = "孤舟蓑笠翁，独钓寒江雪"

func newPipeline(svc *fakeService, f *fakeFetcher) *Pipeline {
	return NewPipeline(Options{
		Builder: prompt.NewBuilder(staticTagger{{Text: "孤舟", Pos: "n"}, {Text: "独钓", Pos: "v"}}),
		Service: svc,
		Fetcher: f,
	})
}

func TestCreateRejectsShortPoemWithoutCalls(t *testing.T) {
	svc := &fakeService{url: "u"}
	f := &fakeFetcher{images: [][]byte{[]byte("img")}}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	for _, in := range []string{"", "春", "春眠", "春眠不", "   春眠 "} {
		out := p.Create(context.Background(), sess, in, style.InkWash)
		assert.Equal(t, StateRejected, out.State, in)
		assert.Equal(t, LevelWarning, out.Level)
		assert.ErrorIs(t, out.Err, ErrPoemTooShort)
		assert.Nil(t, out.Creation)
	}

	assert.Zero(t, svc.calls)
	assert.Zero(t, f.calls)
	assert.Zero(t, sess.History.Len())
}

func TestCreateArchivesAndFingerprints(t *testing.T) {
	svc := &fakeService{url: "https://img/1.png"}
	f := &fakeFetcher{images: [][]byte{[]byte("image-one")}}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	out := p.Create(context.Background(), sess, poem, style.InkWash)

	require.Equal(t, StateArchived, out.State)
	assert.Equal(t, LevelSuccess, out.Level)
	assert.Contains(t, out.Message, "妙笔丹青成于")
	require.NotNil(t, out.Creation)
	assert.Equal(t, Fingerprint([]byte("image-one")), out.Creation.Fingerprint)
	assert.Equal(t, poem, out.Creation.Poem)
	assert.Equal(t, style.InkWash, out.Creation.Style)
	assert.Equal(t, []string{"孤舟"}, out.Creation.Keywords)
	assert.Same(t, out.Creation, sess.Latest())
	assert.Equal(t, 1, sess.History.Len())

	ink := style.MustProfile(style.InkWash)
	assert.Equal(t, prompt.NegativePrompt, svc.last.NegativePrompt)
	assert.Equal(t, ink.Steps, svc.last.Steps)
	assert.Equal(t, ink.GuidanceScale, svc.last.GuidanceScale)
	assert.Equal(t, ink.APIStyle, svc.last.Style)
	assert.Contains(t, svc.last.Prompt, poem)
	assert.Contains(t, svc.last.Prompt, ink.Descriptor)
}

func TestCreateSkipsImmediateDuplicate(t *testing.T) {
	svc := &fakeService{url: "u"}
	f := &fakeFetcher{images: [][]byte{[]byte("same")}}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	first := p.Create(context.Background(), sess, poem, style.InkWash)
	require.Equal(t, StateArchived, first.State)

	second := p.Create(context.Background(), sess, poem, style.InkWash)
	assert.Equal(t, StateSkippedDuplicate, second.State)
	assert.Equal(t, LevelWarning, second.Level)
	assert.Equal(t, msgDuplicate, second.Message)
	require.NotNil(t, second.Creation)
	assert.True(t, second.Succeeded())
	assert.Same(t, second.Creation, sess.Latest())
	assert.Equal(t, 1, sess.History.Len())

	found, ok := sess.Find(second.Creation.ID)
	assert.True(t, ok)
	assert.Same(t, second.Creation, found)
}

func TestCreateArchivesWhenAnyFieldDiffers(t *testing.T) {
	svc := &fakeService{url: "u"}
	f := &fakeFetcher{images: [][]byte{[]byte("same")}}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	require.Equal(t, StateArchived, p.Create(context.Background(), sess, poem, style.InkWash).State)
	assert.Equal(t, StateArchived, p.Create(context.Background(), sess, poem, style.BlueGreen).State)
	assert.Equal(t, StateArchived, p.Create(context.Background(), sess, "床前明月光，疑是地上霜", style.BlueGreen).State)
	assert.Equal(t, 3, sess.History.Len())
}

func TestCreateDedupOnlyAgainstPreviousEntry(t *testing.T) {
	svc := &fakeService{url: "u"}
	f := &fakeFetcher{images: [][]byte{[]byte("a"), []byte("b"), []byte("a")}}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	for i := 0; i < 3; i++ {
		out := p.Create(context.Background(), sess, poem, style.InkWash)
		assert.Equal(t, StateArchived, out.State, "attempt %d", i)
	}
	assert.Equal(t, 3, sess.History.Len())
}

func TestCreateServiceFailureLeavesHistoryUntouched(t *testing.T) {
	svc := &fakeService{err: &dashscope.APIError{StatusCode: 401, Code: "InvalidApiKey", Message: "bad key"}}
	f := &fakeFetcher{images: [][]byte{[]byte("x")}}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	out := p.Create(context.Background(), sess, poem, style.FineBrush)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, LevelError, out.Level)
	assert.Contains(t, out.Message, "InvalidApiKey")
	var svcErr *ServiceError
	assert.ErrorAs(t, out.Err, &svcErr)
	assert.Zero(t, f.calls)
	assert.Zero(t, sess.History.Len())
	assert.Nil(t, sess.Latest())
}

func TestCreateFetchFailureIsTransportError(t *testing.T) {
	svc := &fakeService{url: "https://img/1.png"}
	f := &fakeFetcher{err: errors.New("connection reset")}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	out := p.Create(context.Background(), sess, poem, style.InkWash)

	assert.Equal(t, StateFailed, out.State)
	var transportErr *TransportError
	require.ErrorAs(t, out.Err, &transportErr)
	assert.Equal(t, "https://img/1.png", transportErr.URL)
	assert.Zero(t, sess.History.Len())
}

func TestCreateRecoversCollaboratorPanic(t *testing.T) {
	svc := &fakeService{panic: true}
	p := newPipeline(svc, &fakeFetcher{})
	sess := NewSession("s1")

	var out Outcome
	require.NotPanics(t, func() {
		out = p.Create(context.Background(), sess, poem, style.InkWash)
	})
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorContains(t, out.Err, "panic")
}

func TestCreateClearsLatestOnNewAttempt(t *testing.T) {
	svc := &fakeService{url: "u"}
	f := &fakeFetcher{images: [][]byte{[]byte("a")}}
	p := newPipeline(svc, f)
	sess := NewSession("s1")

	require.Equal(t, StateArchived, p.Create(context.Background(), sess, poem, style.InkWash).State)
	require.NotNil(t, sess.Latest())

	svc.err = errors.New("down")
	out := p.Create(context.Background(), sess, poem, style.InkWash)
	assert.Equal(t, StateFailed, out.State)
	assert.Nil(t, sess.Latest())
	assert.Equal(t, 1, sess.History.Len())
}

func TestCreateAppliesGenerateTimeout(t *testing.T) {
	blocking := serviceFunc(func(ctx context.Context, _ dashscope.Request) (dashscope.Result, error) {
		<-ctx.Done()
		return dashscope.Result{}, ctx.Err()
	})
	p := NewPipeline(Options{Service: blocking, Fetcher: &fakeFetcher{}, GenerateTimeout: 10 * time.Millisecond})

	out := p.Create(context.Background(), NewSession("s1"), poem, style.InkWash)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Contains(t, out.Message, "超时")
}

func TestHistoryShowsLastSixNewestFirst(t *testing.T) {
	images := make([][]byte, 10)
	for i := range images {
		images[i] = []byte(fmt.Sprintf("img-%d", i))
	}
	svc := &fakeService{url: "u"}
	p := newPipeline(svc, &fakeFetcher{images: images})
	sess := NewSession("s1")

	var ids []string
	for i := 0; i < 10; i++ {
		out := p.Create(context.Background(), sess, poem, style.InkWash)
		require.Equal(t, StateArchived, out.State)
		ids = append(ids, out.Creation.ID)
	}

	recent := sess.History.Recent(6)
	require.Len(t, recent, 6)
	for i, c := range recent {
		assert.Equal(t, ids[9-i], c.ID)
	}
	assert.Equal(t, 10, sess.History.Len())
}

type serviceFunc func(ctx context.Context, req dashscope.Request) (dashscope.Result, error)

func (f serviceFunc) Generate(ctx context.Context, req dashscope.Request) (dashscope.Result, error) {
	return f(ctx, req)
}
