package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

const listingFixture = `<html><body>
<ul>
<li class="item"><a href="/product/a">A</a></li>
<li class="item"><a href="/product/b">B</a></li>
</ul>
</body></html>`

func TestChromedpSessionOutlivesStartupContext(t *testing.T) {
	path, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome or chromium binary on this machine")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, listingFixture)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 45*time.Second)
	session, err := NewChromedp().Start(startCtx, Options{
		Headless:          true,
		NoSandbox:         true,
		ExecPath:          path,
		NavigationTimeout: 30 * time.Second,
	})
	startCancel()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	// Two tabs in a row: the first one's opening context is gone before it is used.
	for i := 0; i < 2; i++ {
		openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
		page, err := session.NewPage(openCtx)
		openCancel()
		if err != nil {
			t.Fatalf("tab %d: new page: %v", i, err)
		}

		if err := page.Navigate(ctx, srv.URL); err != nil {
			t.Fatalf("tab %d: navigate: %v", i, err)
		}
		n, err := page.Count(ctx, "li.item")
		if err != nil {
			t.Fatalf("tab %d: count: %v", i, err)
		}
		if n != 2 {
			t.Fatalf("tab %d: count = %d, want 2", i, n)
		}
		html, err := page.HTML(ctx)
		if err != nil {
			t.Fatalf("tab %d: html: %v", i, err)
		}
		if !strings.Contains(html, `href="/product/b"`) {
			t.Fatalf("tab %d: snapshot is missing the second item", i)
		}
		if err := page.Close(); err != nil {
			t.Fatalf("tab %d: close: %v", i, err)
		}
	}
}

func TestChromedpStartHonorsCanceledContext(t *testing.T) {
	path, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome or chromium binary on this machine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := NewChromedp().Start(ctx, Options{Headless: true, NoSandbox: true, ExecPath: path})
	if err == nil {
		session.Close()
		t.Fatal("expected start to fail on a canceled context")
	}
}
