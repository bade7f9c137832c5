package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"moyun-danqing/internal/creation"
	"moyun-danqing/internal/imaging"
	"moyun-danqing/internal/session"
	"moyun-danqing/internal/stanza"
	"moyun-danqing/internal/style"
	"moyun-danqing/internal/telegram"
)

const (
	msgBusy         = "正在研磨丹青，请稍候..."
	msgEmptyGallery = "画廊尚空，先题一首诗吧。"
	msgNothingSaved = "尚无画作可存。"
)

// Messenger is the part of the Telegram client the handler talks to.
type Messenger interface {
	SendTyping(chatID int64)
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendPhoto(chatID int64, name string, data []byte, caption string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	SendAlbum(chatID int64, items []telegram.AlbumItem) error
}

type Options struct {
	Telegram       Messenger
	Pipeline       *creation.Pipeline
	Sessions       *session.Store
	HistoryDisplay int
	ThumbnailSide  int
	Logger         *slog.Logger
}

type Handler struct {
	tg             Messenger
	pipeline       *creation.Pipeline
	sessions       *session.Store
	historyDisplay int
	thumbSide      int
	logger         *slog.Logger
	collector      *stanza.Collector
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	historyDisplay := opts.HistoryDisplay
	if historyDisplay < 1 {
		historyDisplay = 6
	}

	thumbSide := opts.ThumbnailSide
	if thumbSide <= 0 {
		thumbSide = 512
	}

	return &Handler{
		tg:             opts.Telegram,
		pipeline:       opts.Pipeline,
		sessions:       opts.Sessions,
		historyDisplay: historyDisplay,
		thumbSide:      thumbSide,
		logger:         logger,
	}
}

// SetCollector routes plain text through c so that a poem sent line by line
// is painted once. Without a collector every message is its own poem.
func (h *Handler) SetCollector(c *stanza.Collector) {
	h.collector = c
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(update.CallbackQuery)
	}
	if update.Message == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		if h.collector != nil {
			h.collector.Flush(chatID)
		}
		return h.handleCommand(ctx, msg)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if h.collector != nil {
		var userID int64
		var username string
		if msg.From != nil {
			userID = msg.From.ID
			username = msg.From.UserName
		}
		h.collector.Add(stanza.Line{ChatID: chatID, UserID: userID, Username: username, Text: text})
		return nil
	}

	return h.paint(ctx, chatID, text)
}

// HandlePoem paints a poem assembled by the collector.
func (h *Handler) HandlePoem(ctx context.Context, poem stanza.Poem) {
	if err := h.paint(ctx, poem.ChatID, poem.Text()); err != nil {
		h.logger.Error("paint failed", "chat_id", poem.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID,
			"墨韵丹青\n\n"+
				"发来一首诗，我以国画笔法为你作画。\n\n"+
				"命令：\n"+
				"/style - 选择笔法\n"+
				"/history - 最近画作\n"+
				"/save - 保存原图\n"+
				"/clear - 清空画廊\n"+
				"/help - 帮助",
		)
	case "help":
		return h.tg.SendText(chatID, helpText())
	case "style":
		return h.handleStyleCommand(chatID, msg)
	case "history":
		return h.sendHistory(ctx, chatID)
	case "save":
		return h.sendLatest(chatID)
	case "clear":
		sess := h.sessions.Get(sessionID(chatID))
		if sess.Busy() {
			return h.tg.SendText(chatID, msgBusy)
		}
		if h.collector != nil {
			h.collector.Discard(chatID)
		}
		sess.Reset()
		return h.tg.SendText(chatID, "画廊已清空。")
	default:
		return h.tg.SendText(chatID, "未知命令，请用 /help 查看。")
	}
}

func (h *Handler) paint(ctx context.Context, chatID int64, text string) error {
	sess := h.sessions.Get(sessionID(chatID))

	st := sess.Style()
	poem := text
	if override, rest, ok := splitStyleDirective(text); ok {
		st = override
		poem = rest
	}

	if !sess.TryBegin() {
		return h.tg.SendText(chatID, msgBusy)
	}
	defer sess.End()

	h.tg.SendTyping(chatID)

	out := h.pipeline.Create(ctx, sess, poem, st)
	if !out.Succeeded() {
		return h.tg.SendText(chatID, out.Message)
	}

	c := out.Creation
	mounted, err := imaging.Mount(c.Image)
	if err != nil {
		h.logger.Warn("mount failed, sending raw image", "chat_id", chatID, "err", err)
		mounted = c.Image
	}

	return h.tg.SendPhoto(chatID, imaging.ExportName(c.CreatedAt), mounted, resultCaption(c, out.Message))
}

func (h *Handler) sendLatest(chatID int64) error {
	sess := h.sessions.Get(sessionID(chatID))
	c := sess.Latest()
	if c == nil {
		return h.tg.SendText(chatID, msgNothingSaved)
	}

	data, err := imaging.EnsurePNG(c.Image)
	if err != nil {
		h.logger.Error("export failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "导出失败，请稍后再试。")
	}
	return h.tg.SendDocument(chatID, imaging.ExportName(c.CreatedAt), data, imaging.Caption(c.Poem))
}

func resultCaption(c *creation.Creation, message string) string {
	var b strings.Builder
	b.WriteString(c.Poem)
	b.WriteString("\n\n")
	b.WriteString(c.Style.Label())
	if len(c.Keywords) > 0 {
		b.WriteString(" · ")
		b.WriteString(strings.Join(c.Keywords, " "))
	}
	b.WriteString("\n")
	b.WriteString(message)
	return b.String()
}

func helpText() string {
	var b strings.Builder
	b.WriteString("直接发送诗句即可作画，至少四字。\n")
	b.WriteString("可在诗前加笔法，例如「工笔：孤舟蓑笠翁」。\n\n笔法：\n")
	for _, p := range style.All() {
		fmt.Fprintf(&b, "%s (%s) - %s\n", p.Label, p.Style, p.Hint)
	}
	return b.String()
}

func sessionID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}
