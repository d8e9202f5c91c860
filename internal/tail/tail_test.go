package tail

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func appendTo(t *testing.T, p, s string) {
	t.Helper()
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func expectLine(t *testing.T, ctx context.Context, lines <-chan string, want string) {
	t.Helper()
	select {
	case got := <-lines:
		if got != want {
			t.Fatalf("line=%q want=%q", got, want)
		}
	case <-ctx.Done():
		t.Fatalf("timeout waiting for %q", want)
	}
}

func TestFollower_PartialLineHeldUntilNewline(t *testing.T) {
	p := filepath.Join(t.TempDir(), "battle.log")
	if err := os.WriteFile(p, nil, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fl, err := NewFollower(p, Options{PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewFollower: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lines := make(chan string, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = fl.Follow(ctx, func(line string) bool { lines <- line; return true })
	}()

	appendTo(t, p, "|turn|")
	select {
	case got := <-lines:
		t.Fatalf("unexpected line before newline: %q", got)
	case <-time.After(60 * time.Millisecond):
	}

	appendTo(t, p, "1\r\n\n")
	expectLine(t, ctx, lines, "|turn|1")

	cancel()
	wg.Wait()
}

func TestFollower_TruncationRereads(t *testing.T) {
	p := filepath.Join(t.TempDir(), "battle.log")
	if err := os.WriteFile(p, []byte("|turn|1\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fl, err := NewFollower(p, Options{PollInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewFollower: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	lines := make(chan string, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = fl.Follow(ctx, func(line string) bool { lines <- line; return true })
	}()

	expectLine(t, ctx, lines, "|turn|1")
	appendTo(t, p, "|turn|2\n")
	expectLine(t, ctx, lines, "|turn|2")

	if err := os.Truncate(p, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	appendTo(t, p, "|turn|9\n")
	expectLine(t, ctx, lines, "|turn|9")

	cancel()
	wg.Wait()
}

func TestFollower_StopsAtBattleEnd(t *testing.T) {
	p := filepath.Join(t.TempDir(), "battle.log")
	body := "|player|p1|Alice|\n|turn|1\n|win|Alice\n|c|Alice|gg\n"
	if err := os.WriteFile(p, []byte(body), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fl, err := NewFollower(p, Options{PollInterval: 10 * time.Millisecond, UntilBattleEnd: true})
	if err != nil {
		t.Fatalf("NewFollower: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []string
	if err := fl.Follow(ctx, func(line string) bool { got = append(got, line); return true }); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("Follow returned only after timeout")
	}
	if len(got) != 3 || got[2] != "|win|Alice" {
		t.Fatalf("got=%q", got)
	}
}

func TestFollower_CallbackStops(t *testing.T) {
	p := filepath.Join(t.TempDir(), "battle.log")
	if err := os.WriteFile(p, []byte("a\nb\nc\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fl, _ := NewFollower(p, Options{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n := 0
	if err := fl.Follow(ctx, func(string) bool { n++; return n < 2 }); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if n != 2 {
		t.Fatalf("n=%d want=2", n)
	}
}

func TestFollower_FromEndSkipsExisting(t *testing.T) {
	p := filepath.Join(t.TempDir(), "battle.log")
	if err := os.WriteFile(p, []byte("|turn|1\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fl, _ := NewFollower(p, Options{FromEnd: true, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lines := make(chan string, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = fl.Follow(ctx, func(line string) bool { lines <- line; return true })
	}()

	time.Sleep(50 * time.Millisecond)
	appendTo(t, p, "|turn|2\n")
	expectLine(t, ctx, lines, "|turn|2")

	cancel()
	wg.Wait()
}

func TestNewFollower_EmptyPath(t *testing.T) {
	if _, err := NewFollower(" ", Options{}); err == nil {
		t.Fatalf("expected err")
	}
}
