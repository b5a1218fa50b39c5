package notifier

import (
	"html/template"
	"strings"
	"testing"
	"time"

	"feedwatch/internal/domain"
	"feedwatch/internal/settings"
)

func TestCompose(t *testing.T) {
	t.Parallel()

	st, err := settings.New(settings.Snapshot{Filters: settings.Filters{Scope: "golang", TitlePattern: "(?i)go"}})
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	items := []domain.Item{
		{ID: "a", Title: "Go <1.25>", Author: "alice", Container: "r/golang", Permalink: "https://www.reddit.com/r/golang/a/", CreatedAt: time.Unix(100, 0)},
		{ID: "b", Title: "Go & you", Author: "bob", Container: "r/golang", Permalink: "https://www.reddit.com/r/golang/b/", CreatedAt: time.Unix(101, 0)},
	}
	msg, err := Compose(items, st.Snapshot().Filters, "ops@example.com")
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if want := `feedwatch: 2 new posts in r/golang matching "(?i)go"`; msg.Subject != want {
		t.Fatalf("Subject = %q, want %q", msg.Subject, want)
	}
	ia := strings.Index(msg.Text, "Go <1.25>")
	ib := strings.Index(msg.Text, "Go & you")
	if ia < 0 || ib < 0 || ia > ib {
		t.Fatalf("Text order wrong:\n%s", msg.Text)
	}
	if !strings.Contains(msg.Text, "[1970-01-01 00:01:40 UTC] r/golang:") || !strings.Contains(msg.Text, "by alice") {
		t.Fatalf("Text = %q", msg.Text)
	}
	if !strings.Contains(msg.HTML, `<a href="https://www.reddit.com/r/golang/a/">Go &lt;1.25&gt;</a> by alice`) {
		t.Fatalf("HTML missing escaped link:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.HTML, "Go &amp; you") {
		t.Fatalf("HTML not escaped:\n%s", msg.HTML)
	}
}

func TestSubjectSingular(t *testing.T) {
	t.Parallel()

	if got := Subject(1, settings.Filters{}); got != "feedwatch: 1 new post in all" {
		t.Fatalf("Subject = %q", got)
	}
}

func TestRenderHTMLReportsTemplateError(t *testing.T) {
	t.Parallel()

	broken := template.Must(template.New("batch").Parse(`{{.Missing}}`))
	items := []domain.Item{{ID: "a", Title: "A"}}
	got, err := renderHTML(broken, items, settings.Filters{})
	if err == nil {
		t.Fatalf("renderHTML() error = nil, want template error")
	}
	if got != "" {
		t.Fatalf("renderHTML() = %q, want empty on error", got)
	}
}
