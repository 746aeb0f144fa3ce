package store

import (
	"path/filepath"
	"testing"
)

func TestInsertAndGetAuditLog(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "chat.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.InsertAuditLog("admin", "kick", "mallory", "disruptive"); err != nil {
		t.Fatalf("insert audit log: %v", err)
	}

	entries, err := st.GetAuditLog(10)
	if err != nil {
		t.Fatalf("get audit log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Action != "kick" || entries[0].Target != "mallory" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestBanLifecycle(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "chat.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.InsertBan("mallory", "spam", "admin"); err != nil {
		t.Fatalf("insert ban: %v", err)
	}

	bans, err := st.AllBans()
	if err != nil {
		t.Fatalf("all bans: %v", err)
	}
	if bans["mallory"] != "spam" {
		t.Fatalf("expected ban reason recorded, got %v", bans)
	}

	if err := st.DeleteBan("mallory"); err != nil {
		t.Fatalf("delete ban: %v", err)
	}
	bans, err = st.AllBans()
	if err != nil {
		t.Fatalf("all bans after delete: %v", err)
	}
	if _, ok := bans["mallory"]; ok {
		t.Fatalf("expected ban removed")
	}
}

func TestInsertBanUpsertsReason(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "chat.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.InsertBan("mallory", "spam", "admin"); err != nil {
		t.Fatalf("insert ban: %v", err)
	}
	if err := st.InsertBan("mallory", "harassment", "admin2"); err != nil {
		t.Fatalf("re-ban: %v", err)
	}

	bans, err := st.AllBans()
	if err != nil {
		t.Fatalf("all bans: %v", err)
	}
	if bans["mallory"] != "harassment" {
		t.Fatalf("expected updated reason, got %v", bans)
	}
}
