package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/settings"
)

const timeLayout = "2006-01-02 15:04:05 MST"

var htmlBody = template.Must(template.New("batch").Funcs(template.FuncMap{
	"ts": func(t time.Time) string { return t.UTC().Format(timeLayout) },
}).Parse(`<!DOCTYPE html>
<html><body>
<p>{{len .Items}} new post(s) in {{.Filters.Describe}}</p>
<ul>
{{- range .Items}}
<li>[{{ts .CreatedAt}}] {{.Container}}: <a href="{{.Permalink}}">{{.Title}}</a> by {{.Author}}</li>
{{- end}}
</ul>
</body></html>
`))

// Subject renders the subject line for a batch of n items.
func Subject(n int, f settings.Filters) string {
	noun := "posts"
	if n == 1 {
		noun = "post"
	}
	return fmt.Sprintf("feedwatch: %d new %s in %s", n, noun, f.Describe())
}

// Compose builds one message from items in their dequeued order.
// When the HTML body fails to render the message still carries the text
// body and the render error is returned alongside it.
func Compose(items []domain.Item, f settings.Filters, target string) (Message, error) {
	msg := Message{
		Subject: Subject(len(items), f),
		Target:  target,
		Filters: f,
		Items:   items,
	}

	var tb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&tb, "[%s] %s: %s <%s> by %s\n",
			it.CreatedAt.UTC().Format(timeLayout), it.Container, it.Title, it.Permalink, it.Author)
	}
	msg.Text = tb.String()

	html, err := renderHTML(htmlBody, items, f)
	if err != nil {
		return msg, err
	}
	msg.HTML = html
	return msg, nil
}

func renderHTML(t *template.Template, items []domain.Item, f settings.Filters) (string, error) {
	var hb bytes.Buffer
	if err := t.Execute(&hb, struct {
		Items   []domain.Item
		Filters settings.Filters
	}{items, f}); err != nil {
		return "", fmt.Errorf("render html body: %w", err)
	}
	return hb.String(), nil
}
