package main

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/pthm/hxstate"
)

// listView shows the todo list with a stats summary.
type listView struct {
	store  *Store
	status Status
}

func (v listView) Setup(ctx context.Context, p *hxstate.Page) (templ.Component, error) {
	inst := hxstate.NewInstance(p, "todos", hxstate.FromMarkers(),
		hxstate.WithHead(hxstate.Head{TitleTemplate: "%s | hxstate todos"}))

	todos := hxstate.NewRef(p, []Todo{}, "todos-Q2v7LmXk0pRb")
	filter := hxstate.NewRef(p, string(v.status), "filter-k3Zq8YhW2nDs")
	inst.Expose("todos", todos)

	hxstate.UseFetch(inst, func(ctx context.Context, _ *hxstate.Instance) error {
		list, err := v.store.List(ctx, Status(filter.Peek()))
		if err != nil {
			return err
		}
		todos.Set(list)
		return nil
	})

	stats := hxstate.NewPromise(p, v.store.Stats, "stats-b8Xw1NcQe4Tz")

	title := "All todos"
	if v.status != "" {
		title = fmt.Sprintf("%s todos", v.status)
	}
	hxstate.UseMeta(inst, hxstate.Head{
		Title: title,
		Meta:  []hxstate.Tag{{"hid": "description", "name": "description", "content": "Todos rendered on the server"}},
	})

	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		st := inst.Fetch().State()
		if _, err := io.WriteString(w, "<main"); err != nil {
			return err
		}
		if err := templ.RenderAttributes(ctx, w, inst.Attrs()); err != nil {
			return err
		}
		io.WriteString(w, ">")
		switch {
		case st.Pending:
			io.WriteString(w, `<p class="loading">Loading…</p>`)
		case st.Error != nil:
			fmt.Fprintf(w, `<p class="error">%d: %s</p>`, st.Error.StatusCode, templ.EscapeString(st.Error.Message))
		default:
			io.WriteString(w, `<ul class="todos">`)
			for _, t := range todos.Get() {
				fmt.Fprintf(w, `<li class="%s"><a href="/todos/%s">%s</a>`+
					`<button hx-post="/todos/%s/toggle" hx-target="main" hx-select="main">toggle</button></li>`,
					t.Status, templ.EscapeString(t.ID), templ.EscapeString(t.Title), templ.EscapeString(t.ID))
			}
			io.WriteString(w, `</ul>`)
		}
		if s, err := stats.Await(ctx); err == nil {
			fmt.Fprintf(w, `<footer>%d total, %d done, %d open</footer>`, s.Total, s.Completed, s.Pending)
		}
		_, err := io.WriteString(w, "</main>")
		return err
	})
	return layout(p, body), nil
}

// detailView shows a single todo. A missing todo ends up as a 404 in the
// fetch state rather than a failed render.
type detailView struct {
	store *Store
	id    string
}

func (v detailView) Setup(ctx context.Context, p *hxstate.Page) (templ.Component, error) {
	inst := hxstate.NewInstance(p, "todo:"+v.id, hxstate.FromMarkers(), hxstate.WithHeadFunc(func() hxstate.Head {
		return hxstate.Head{Title: "Todo " + v.id}
	}))

	todo := hxstate.NewRef(p, Todo{}, "todo-P0aT5rVb9eUc")
	inst.Expose("todo", todo)
	hxstate.UseFetch(inst, func(ctx context.Context, _ *hxstate.Instance) error {
		t, err := v.store.Get(ctx, v.id)
		if err != nil {
			return err
		}
		todo.Set(t)
		return nil
	})

	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		io.WriteString(w, "<article")
		if err := templ.RenderAttributes(ctx, w, inst.Attrs()); err != nil {
			return err
		}
		io.WriteString(w, ">")
		if e := inst.Fetch().State().Error; e != nil {
			fmt.Fprintf(w, `<p class="error">%d: %s</p>`, e.StatusCode, templ.EscapeString(e.Message))
		} else {
			t := todo.Get()
			fmt.Fprintf(w, `<h1>%s</h1><p>%s</p>`, templ.EscapeString(t.Title), t.Status)
		}
		_, err := io.WriteString(w, `<a href="/">back</a></article>`)
		return err
	})
	return layout(p, body), nil
}

// layout wraps body in a document. The head is read after body has run its
// setup, so UseMeta values are included.
func layout(p *hxstate.Page, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		head := hxstate.MergeHead(p.Head(), hxstate.Head{
			HTMLAttrs: map[string]string{"lang": "en"},
			Script:    []hxstate.Tag{{"src": "https://unpkg.com/htmx.org@2.0.4", "hid": "htmx"}},
		})
		io.WriteString(w, "<!doctype html><html")
		if err := templ.RenderAttributes(ctx, w, hxstate.AttrsOf(head.HTMLAttrs)); err != nil {
			return err
		}
		io.WriteString(w, "><head>")
		if err := hxstate.RenderHead(head).Render(ctx, w); err != nil {
			return err
		}
		io.WriteString(w, "</head><body>")
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		if err := hxstate.StateScript(p).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}
