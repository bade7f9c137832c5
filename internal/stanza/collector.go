package stanza

import (
	"strings"
	"sync"
	"time"
)

// Line is one text message that may be part of a longer poem.
type Line struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// Poem is the set of lines one chat sent in quick succession.
type Poem struct {
	ChatID   int64
	UserID   int64
	Username string
	Lines    []string
}

func (p Poem) Text() string {
	return strings.Join(p.Lines, "\n")
}

type Options struct {
	Debounce time.Duration
	MaxLines int
	OnFlush  func(Poem)
}

// Collector joins consecutive text messages from the same chat. Each new
// line restarts the chat's timer; the poem is flushed once the chat has
// been quiet for Debounce or MaxLines is reached.
type Collector struct {
	mu       sync.Mutex
	debounce time.Duration
	maxLines int
	onFlush  func(Poem)
	pending  map[int64]*pendingPoem
}

type pendingPoem struct {
	poem  Poem
	timer *time.Timer
}

func New(opts Options) *Collector {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1500 * time.Millisecond
	}

	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = 16
	}

	return &Collector{
		debounce: debounce,
		maxLines: maxLines,
		onFlush:  opts.OnFlush,
		pending:  make(map[int64]*pendingPoem),
	}
}

func (c *Collector) Add(line Line) {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return
	}

	c.mu.Lock()
	pp, ok := c.pending[line.ChatID]
	if !ok {
		pp = &pendingPoem{
			poem: Poem{
				ChatID:   line.ChatID,
				UserID:   line.UserID,
				Username: line.Username,
			},
		}
		c.pending[line.ChatID] = pp
	}
	pp.poem.Lines = append(pp.poem.Lines, text)

	if pp.timer != nil {
		pp.timer.Stop()
	}
	if len(pp.poem.Lines) >= c.maxLines {
		c.mu.Unlock()
		c.Flush(line.ChatID)
		return
	}

	chatID := line.ChatID
	pp.timer = time.AfterFunc(c.debounce, func() {
		c.Flush(chatID)
	})
	c.mu.Unlock()
}

// Flush hands the chat's pending poem to OnFlush right away. It reports
// whether anything was pending.
func (c *Collector) Flush(chatID int64) bool {
	c.mu.Lock()
	pp, ok := c.pending[chatID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, chatID)
	if pp.timer != nil {
		pp.timer.Stop()
	}
	poem := pp.poem
	onFlush := c.onFlush
	c.mu.Unlock()

	if onFlush != nil {
		onFlush(poem)
	}
	return true
}

// Discard drops the chat's pending lines without flushing them.
func (c *Collector) Discard(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pp, ok := c.pending[chatID]; ok {
		if pp.timer != nil {
			pp.timer.Stop()
		}
		delete(c.pending, chatID)
	}
}
