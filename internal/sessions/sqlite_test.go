package sessions

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/concierge/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteEnsureSessionIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := store.EnsureSession(ctx, "sess-1", "concierge")
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	second, err := store.EnsureSession(ctx, "sess-1", "other-agent")
	if err != nil {
		t.Fatalf("EnsureSession again: %v", err)
	}
	if second.AgentID != first.AgentID {
		t.Errorf("agent ID changed on re-ensure: %q -> %q", first.AgentID, second.AgentID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created at changed on re-ensure")
	}
}

func TestSQLiteEnsureSessionGeneratesID(t *testing.T) {
	store := newTestSQLiteStore(t)

	session, err := store.EnsureSession(context.Background(), "", "concierge")
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if session.ID == "" {
		t.Error("expected a generated session ID")
	}
}

func TestSQLiteHistoryOrderAndLimit(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.EnsureSession(ctx, "sess-1", "concierge"); err != nil {
		t.Fatal(err)
	}
	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		msg := &models.Message{
			SessionID: "sess-1",
			Role:      models.RoleUser,
			Parts:     []models.Part{{Type: models.PartTypeText, Text: text}},
		}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage(%q): %v", text, err)
		}
	}

	history, err := store.History(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len = %d, want 3", len(history))
	}
	for i, text := range texts {
		if history[i].Parts[0].Text != text {
			t.Errorf("history[%d] = %q, want %q", i, history[i].Parts[0].Text, text)
		}
	}

	limited, err := store.History(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("History limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited len = %d, want 2", len(limited))
	}
	// Limit keeps the most recent messages, still oldest first.
	if limited[0].Parts[0].Text != "second" || limited[1].Parts[0].Text != "third" {
		t.Errorf("limited = [%q, %q]", limited[0].Parts[0].Text, limited[1].Parts[0].Text)
	}
}

func TestSQLiteHistoryEmptySession(t *testing.T) {
	store := newTestSQLiteStore(t)

	history, err := store.History(context.Background(), "missing", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("len = %d, want 0", len(history))
	}
}

func TestSQLiteUpdateMessageRewritesParts(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.EnsureSession(ctx, "sess-1", "concierge"); err != nil {
		t.Fatal(err)
	}
	msg := &models.Message{
		SessionID: "sess-1",
		Role:      models.RoleAssistant,
		Parts: []models.Part{{
			Type:       "tool-get_weather",
			ToolCallID: "call_1",
			State:      models.PartInputAvailable,
			Input:      []byte(`{"city":"Paris"}`),
		}},
	}
	if err := store.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msg.Parts[0].State = models.PartOutputAvailable
	msg.Parts[0].Output = "22C, sunny"
	if err := store.UpdateMessage(ctx, msg); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}

	history, err := store.History(ctx, "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	part := history[0].Parts[0]
	if part.State != models.PartOutputAvailable {
		t.Errorf("state = %q", part.State)
	}
	if part.Output != "22C, sunny" {
		t.Errorf("output = %q", part.Output)
	}
}

func TestSQLiteDeleteSessionCascades(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.EnsureSession(ctx, "sess-1", "concierge"); err != nil {
		t.Fatal(err)
	}
	msg := &models.Message{
		SessionID: "sess-1",
		Role:      models.RoleUser,
		Parts:     []models.Part{{Type: models.PartTypeText, Text: "hi"}},
	}
	if err := store.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.GetSession(ctx, "sess-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession after delete: %v", err)
	}
	history, err := store.History(ctx, "sess-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("messages survived cascade: %d", len(history))
	}
}

func TestSQLiteListSessionsFilter(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.EnsureSession(ctx, "a-1", "concierge"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.EnsureSession(ctx, "b-1", "scheduler"); err != nil {
		t.Fatal(err)
	}

	all, err := store.ListSessions(ctx, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all len = %d, want 2", len(all))
	}

	filtered, err := store.ListSessions(ctx, "concierge")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != "a-1" {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestSQLiteUpdateSessionMetadata(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	session, err := store.EnsureSession(ctx, "sess-1", "concierge")
	if err != nil {
		t.Fatal(err)
	}
	session.Title = "Trip planning"
	session.Metadata = map[string]any{"origin": "web"}
	if err := store.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Trip planning" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Metadata["origin"] != "web" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
}

// matchAny lets the mocked database accept the store's prepared statements
// without restating their SQL in every test.
var matchAny = sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
	return nil
})

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matchAny))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	for i := 0; i < 7; i++ {
		mock.ExpectPrepare("")
	}
	store, err := newSQLiteStore(db)
	if err != nil {
		t.Fatalf("newSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store, mock
}

func TestSQLiteUpdateSessionNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateSession(context.Background(), &models.Session{ID: "missing"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSQLiteUpdateMessageNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateMessage(context.Background(), &models.Message{ID: "missing"})
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("err = %v, want ErrMessageNotFound", err)
	}
}

func TestSQLiteGetSessionQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("").WillReturnError(sql.ErrConnDone)

	if _, err := store.GetSession(context.Background(), "sess-1"); err == nil {
		t.Error("expected error from failed query")
	}
}

func TestSQLiteDeleteSessionExecError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("").WillReturnError(sql.ErrConnDone)

	if err := store.DeleteSession(context.Background(), "sess-1"); err == nil {
		t.Error("expected error from failed exec")
	}
}
