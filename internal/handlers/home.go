package handlers

import (
	"net/http"

	"github.com/lojf/vbs/internal/notify"
)

func (h *Handlers) Home() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, "home.tmpl", map[string]any{
			"Title": h.Config.EventName,
			"Price": notify.FormatCents(h.Config.PricePerChildCents),
		})
	}
}
