// Package templates renders the HTML views of the web server.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/wrkportal/sheetengine/internal/core"
)

// writer runs a sequence of writes and keeps the first error.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err == nil {
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) component(ctx context.Context, c templ.Component) {
	if w.err == nil {
		w.err = c.Render(ctx, w.w)
	}
}

// Page wraps body in the site layout.
func Page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		w.text(title)
		w.raw(`</title><style>`)
		w.raw(`body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}` +
			`table{border-collapse:collapse;font-size:.875rem}` +
			`th,td{border:1px solid #e5e7eb;padding:.25rem .5rem;text-align:left;white-space:nowrap;overflow:hidden;text-overflow:ellipsis}` +
			`th{background:#f3f4f6}th.calc{background:#ecfdf5}td.num{text-align:right}` +
			`.alert{border:1px solid #fca5a5;background:#fef2f2;padding:.75rem;margin-bottom:1rem}` +
			`.issues{color:#92400e}`)
		w.raw(`</style></head><body>`)
		w.component(ctx, body)
		w.raw(`</body></html>`)
		return w.err
	})
}

// TableList renders the index of stored tables.
func TableList(tables []core.SourceInfo) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<h1>Tables</h1>`)
		if len(tables) == 0 {
			w.raw(`<p>No tables yet.</p>`)
			return w.err
		}
		w.raw(`<table><thead><tr><th>Name</th><th>Columns</th><th>Rows</th><th>Kind</th><th>Updated</th></tr></thead><tbody>`)
		for _, t := range tables {
			w.raw(`<tr><td><a href="`)
			w.text(string(templ.URL("/tables/" + url.PathEscape(t.ID))))
			w.raw(`">`)
			w.text(t.Name)
			w.raw(`</a></td><td class="num">`)
			w.text(strconv.Itoa(t.ColumnCount))
			w.raw(`</td><td class="num">`)
			w.text(strconv.Itoa(t.RowCount))
			w.raw(`</td><td>`)
			if t.Derived {
				w.raw(`merged`)
			} else {
				w.raw(`source`)
			}
			w.raw(`</td><td>`)
			w.text(t.UpdatedAt.Format("2006-01-02 15:04"))
			w.raw(`</td></tr>`)
		}
		w.raw(`</tbody></table>`)
		return w.err
	})
}

// TableGrid renders a formatted table with column widths applied.
func TableGrid(t core.RenderedTable) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<p><a href="/">All tables</a></p><h1>`)
		w.text(t.Name)
		w.raw(`</h1>`)

		if len(t.Issues) > 0 {
			w.raw(`<ul class="issues">`)
			for _, issue := range t.Issues {
				w.raw(`<li>`)
				w.text(fmt.Sprintf("%s %q: %s", issue.Kind, issue.Name, issue.Message))
				w.raw(`</li>`)
			}
			w.raw(`</ul>`)
		}

		w.raw(`<table><thead><tr>`)
		for _, c := range t.Columns {
			w.raw(`<th`)
			if c.IsCalculated {
				w.raw(` class="calc" title="`)
				w.text(c.Formula)
				w.raw(`"`)
			}
			if c.Width > 0 {
				w.raw(` style="width:`)
				w.text(strconv.Itoa(c.Width))
				w.raw(`px;max-width:`)
				w.text(strconv.Itoa(c.Width))
				w.raw(`px"`)
			}
			w.raw(`>`)
			w.text(c.Name)
			w.raw(`<br><small>`)
			w.text(string(c.DataType))
			w.raw(`</small></th>`)
		}
		w.raw(`</tr></thead><tbody>`)
		for _, row := range t.Rows {
			w.raw(`<tr>`)
			for i, v := range row {
				if i < len(t.Columns) && isNumeric(t.Columns[i].DataType) {
					w.raw(`<td class="num">`)
				} else {
					w.raw(`<td>`)
				}
				w.text(v)
				w.raw(`</td>`)
			}
			w.raw(`</tr>`)
		}
		w.raw(`</tbody></table>`)
		return w.err
	})
}

// ErrorAlert renders an error fragment with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<div class="alert" role="alert"><strong>`)
		w.text(message)
		w.raw(`</strong>`)
		if action != "" {
			w.raw(`<p>`)
			w.text(action)
			w.raw(`</p>`)
		}
		w.raw(`<small>Code: `)
		w.text(code)
		w.raw(`</small></div>`)
		return w.err
	})
}

func isNumeric(dt core.DataType) bool {
	return dt == core.TypeNumber || dt == core.TypeCurrency
}
