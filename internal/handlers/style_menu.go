package handlers

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"moyun-danqing/internal/style"
)

const styleCallbackPrefix = "st"

func (h *Handler) handleStyleCommand(chatID int64, msg *tgbotapi.Message) error {
	sess := h.sessions.Get(sessionID(chatID))

	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		st, err := style.Parse(arg)
		if err != nil {
			return h.tg.SendText(chatID, "未知笔法："+arg+"\n\n"+helpText())
		}
		sess.SetStyle(st)
		return h.tg.SendText(chatID, "笔法已换为「"+st.Label()+"」。")
	}

	var ownerID int64
	if msg.From != nil {
		ownerID = msg.From.ID
	}
	_, err := h.tg.SendTextWithKeyboard(chatID, styleMenuText(sess.Style()), styleKeyboard(ownerID, sess.Style()))
	return err
}

func (h *Handler) handleCallback(q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.Message.Chat == nil || q.From == nil {
		return nil
	}

	ownerID, st, ok := parseStyleCallback(q.Data)
	if !ok {
		return nil
	}
	if ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "这个菜单不属于你。", true)
		return nil
	}

	chatID := q.Message.Chat.ID
	sess := h.sessions.Get(sessionID(chatID))
	sess.SetStyle(st)

	_ = h.tg.AnswerCallback(q.ID, st.Label(), false)
	return h.tg.EditTextWithKeyboard(chatID, q.Message.MessageID, styleMenuText(st), styleKeyboard(ownerID, st))
}

func styleMenuText(current style.Style) string {
	p := style.MustProfile(current)
	return fmt.Sprintf("当前笔法：%s\n%s", p.Label, p.Hint)
}

func styleKeyboard(ownerID int64, current style.Style) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, p := range style.All() {
		label := p.Label
		if p.Style == current {
			label = "✓ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, styleCallback(ownerID, p.Style)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func styleCallback(ownerID int64, st style.Style) string {
	return styleCallbackPrefix + ":" + strconv.FormatInt(ownerID, 10) + ":" + string(st)
}

func parseStyleCallback(data string) (int64, style.Style, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != styleCallbackPrefix {
		return 0, "", false
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	st, err := style.Parse(parts[2])
	if err != nil {
		return 0, "", false
	}
	return ownerID, st, true
}
