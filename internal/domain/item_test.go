package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestItemString(t *testing.T) {
	t.Parallel()

	it := Item{
		ID:        "t3_abc",
		Title:     `say "hi"`,
		Author:    "gopher",
		Container: "r/golang",
		CreatedAt: time.Unix(100, 0),
	}
	want := `[1970-01-01T00:01:40Z] t3_abc r/golang: "say \"hi\"" by gopher`
	if got := it.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestErrorsWrap(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("page size 0: %w", ErrConfiguration)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("errors.Is(%v, ErrConfiguration) = false", err)
	}
	if errors.Is(err, ErrNetwork) {
		t.Fatalf("errors.Is(%v, ErrNetwork) = true", err)
	}
}
