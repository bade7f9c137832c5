package handlers

import (
	"context"
	"fmt"

	"moyun-danqing/internal/imaging"
	"moyun-danqing/internal/telegram"
)

func (h *Handler) sendHistory(ctx context.Context, chatID int64) error {
	sess := h.sessions.Get(sessionID(chatID))
	recent := sess.History.Recent(h.historyDisplay)
	if len(recent) == 0 {
		return h.tg.SendText(chatID, msgEmptyGallery)
	}

	h.tg.SendTyping(chatID)

	raw := make([][]byte, len(recent))
	for i, c := range recent {
		raw[i] = c.Image
	}

	thumbs, err := imaging.Thumbnails(ctx, raw, h.thumbSide)
	if err != nil {
		h.logger.Error("thumbnails failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "画廊加载失败，请稍后再试。")
	}

	items := make([]telegram.AlbumItem, len(recent))
	for i, c := range recent {
		items[i] = telegram.AlbumItem{
			Name:    fmt.Sprintf("%d-%s", i+1, imaging.ExportName(c.CreatedAt)),
			Data:    thumbs[i],
			Caption: fmt.Sprintf("%s · %s · %s", imaging.Caption(c.Poem), c.Style.Label(), c.CreatedAt.Format("01-02 15:04")),
		}
	}

	if total := sess.History.Len(); total > len(recent) {
		_ = h.tg.SendText(chatID, fmt.Sprintf("共 %d 幅，展示最近 %d 幅。", total, len(recent)))
	}
	return h.tg.SendAlbum(chatID, items)
}
