package admin

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"chatserver/internal/roster"
)

func TestHandleListReportsEmptyRoster(t *testing.T) {
	t.Parallel()

	r := roster.New()
	var out bytes.Buffer
	c := New(r, slog.Default(), strings.NewReader(""), &out)
	c.handle("/list")
	if !strings.Contains(out.String(), "no users connected") {
		t.Fatalf("expected empty-roster message, got %q", out.String())
	}
}

func TestHandleHelp(t *testing.T) {
	t.Parallel()

	r := roster.New()
	var out bytes.Buffer
	c := New(r, slog.Default(), strings.NewReader(""), &out)
	c.handle("/help")
	if !strings.Contains(out.String(), "/kick") {
		t.Fatalf("expected help text to mention /kick, got %q", out.String())
	}
}

func TestHandleQuitInvokesShutdown(t *testing.T) {
	t.Parallel()

	r := roster.New()
	var out bytes.Buffer
	c := New(r, slog.Default(), strings.NewReader(""), &out)
	called := false
	c.Shutdown = func() { called = true }
	c.handle("/quit")
	if !called {
		t.Fatalf("expected /quit to invoke Shutdown")
	}
}

type fakeAuditor struct {
	logged []string
	banned map[string]string
}

func newFakeAuditor() *fakeAuditor {
	return &fakeAuditor{banned: make(map[string]string)}
}

func (f *fakeAuditor) InsertAuditLog(actor, action, target, reason string) error {
	f.logged = append(f.logged, action+":"+target)
	return nil
}

func (f *fakeAuditor) InsertBan(username, reason, bannedBy string) error {
	f.banned[username] = reason
	return nil
}

func (f *fakeAuditor) DeleteBan(username string) error {
	delete(f.banned, username)
	return nil
}

func TestHandleBanPersistsAndMarksRosterBanned(t *testing.T) {
	t.Parallel()

	r := roster.New()
	var out bytes.Buffer
	c := New(r, slog.Default(), strings.NewReader(""), &out)
	aud := newFakeAuditor()
	c.Audit = aud

	c.handle("/ban mallory spamming a lot")
	if aud.banned["mallory"] != "spamming a lot" {
		t.Fatalf("expected ban persisted with reason, got %v", aud.banned)
	}
	if banned, _ := r.IsBanned("mallory"); !banned {
		t.Fatalf("expected roster to reflect the ban")
	}
}

func TestHandleUnbanClearsBan(t *testing.T) {
	t.Parallel()

	r := roster.New()
	var out bytes.Buffer
	c := New(r, slog.Default(), strings.NewReader(""), &out)
	aud := newFakeAuditor()
	c.Audit = aud

	c.handle("/ban mallory rude")
	c.handle("/unban mallory")

	if _, ok := aud.banned["mallory"]; ok {
		t.Fatalf("expected ban removed from persistent store")
	}
	if banned, _ := r.IsBanned("mallory"); banned {
		t.Fatalf("expected roster ban lifted")
	}
}

func TestRunProcessesLineAndStopsOnEOF(t *testing.T) {
	t.Parallel()

	r := roster.New()
	var out bytes.Buffer
	in := strings.NewReader("/list\n")
	c := New(r, slog.Default(), in, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.Run(ctx)

	if !strings.Contains(out.String(), "no users connected") {
		t.Fatalf("expected /list output, got %q", out.String())
	}
}
