package components

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"vodscribe/internal/models"
)

// logTail is the number of log lines shown on the page.
const logTail = 40

// StatusPage renders the run snapshot and the most recent history records (oldest first).
func StatusPage(snap models.RunSnapshot, recent []models.HistoryRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<meta http-equiv="refresh" content="5"><title>vodscribe</title></head><body>`)

		fmt.Fprintf(&b, `<h1>vodscribe <small class="status status-%s">%s</small></h1>`,
			esc(string(snap.OverallStatus)), esc(string(snap.OverallStatus)))
		fmt.Fprintf(&b, `<progress max="100" value="%d"></progress> <span>%d%%</span>`, snap.Progress, snap.Progress)

		b.WriteString(`<dl>`)
		row(&b, "Queue", fmt.Sprint(snap.QueueSize))
		row(&b, "Job", snap.CurrentJobID)
		row(&b, "Source", snap.CurrentSourceLabel)
		row(&b, "Item", snap.CurrentItemTitle)
		if snap.LastSaved.Path != "" {
			row(&b, "Last saved", snap.LastSaved.Path+" ("+snap.LastSaved.At.Format(time.DateTime)+")")
		}
		b.WriteString(`</dl>`)

		b.WriteString(`<h2>History</h2><table><thead><tr><th>Time</th><th>Source</th><th>Title</th><th>Outcome</th><th>Detail</th></tr></thead><tbody>`)
		for i := len(recent) - 1; i >= 0; i-- {
			r := recent[i]
			fmt.Fprintf(&b, `<tr class="%s"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				esc(string(r.Outcome)),
				esc(r.Timestamp.Format(time.DateTime)),
				esc(r.SourceLabel),
				esc(r.ItemTitle),
				esc(string(r.Outcome)),
				esc(r.Detail))
		}
		b.WriteString(`</tbody></table>`)

		logs := snap.Logs
		if len(logs) > logTail {
			logs = logs[len(logs)-logTail:]
		}
		b.WriteString(`<h2>Log</h2><pre>`)
		for _, line := range logs {
			b.WriteString(esc(line))
			b.WriteString("\n")
		}
		b.WriteString(`</pre></body></html>`)

		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func row(b *strings.Builder, term, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(b, `<dt>%s</dt><dd>%s</dd>`, esc(term), esc(value))
}

func esc(s string) string {
	return templ.EscapeString(s)
}
