package handlers

import (
	"html/template"
	"time"

	"github.com/lojf/vbs/internal/notify"
)

// Date-only friendly string, e.g. "Mon, 02 Jan 2006"
func fmtDate(d time.Time) string {
	return d.Local().Format("Mon, 02 Jan 2006")
}

func fmtDateTime(d time.Time) string {
	return d.Local().Format("Mon, 02 Jan 2006 3:04 PM")
}

// TemplateFuncs are available to every page.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"year":        func() string { return time.Now().Format("2006") },
		"fmtDate":     fmtDate,
		"fmtDateTime": fmtDateTime,
		"money":       notify.FormatCents,
		"deref": func(p *int) int {
			if p == nil {
				return 0
			}
			return *p
		},
		"derefUint": func(p *uint) uint {
			if p == nil {
				return 0
			}
			return *p
		},
	}
}
