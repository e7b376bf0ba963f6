package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the migration is not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestIndexesExist verifies the document indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_documents_status", "idx_documents_upload_time"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestInsertAndGetDocument(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := Document{
		ID:               "doc-001",
		Filename:         "doc-001.pdf",
		OriginalFilename: "handbook.pdf",
		FilePath:         "uploads/doc-001.pdf",
		UploadTime:       now,
	}
	if err := s.InsertDocument(want); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	got, err := s.GetDocument("doc-001")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.OriginalFilename != "handbook.pdf" {
		t.Errorf("OriginalFilename = %q", got.OriginalFilename)
	}
	if got.FilePath != "uploads/doc-001.pdf" {
		t.Errorf("FilePath = %q", got.FilePath)
	}
	if got.Status != StatusProcessing {
		t.Errorf("Status = %q, want default %q", got.Status, StatusProcessing)
	}
	if !got.UploadTime.Equal(now) {
		t.Errorf("UploadTime = %v, want %v", got.UploadTime, now)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil while processing", got.CompletedAt)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetDocument("missing"); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestCompleteDocument(t *testing.T) {
	s := openTestStore(t)

	d := Document{
		ID:         "doc-done",
		Filename:   "doc-done.pdf",
		UploadTime: time.Now().UTC(),
	}
	if err := s.InsertDocument(d); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	if err := s.CompleteDocument("doc-done", 12, 48); err != nil {
		t.Fatalf("CompleteDocument: %v", err)
	}

	got, err := s.GetDocument("doc-done")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.PageCount != 12 || got.ChunkCount != 48 {
		t.Errorf("counts = %d/%d, want 12/48", got.PageCount, got.ChunkCount)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestCompleteDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.CompleteDocument("missing", 1, 1); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListDocumentsOrder(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 3; j++ {
		d := Document{
			ID:         fmt.Sprintf("doc-%02d", j),
			Filename:   fmt.Sprintf("doc-%02d.pdf", j),
			UploadTime: base.Add(time.Duration(j) * time.Hour),
		}
		if err := s.InsertDocument(d); err != nil {
			t.Fatalf("InsertDocument %d: %v", j, err)
		}
	}

	got, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d documents, want 3", len(got))
	}
	// Most recent upload first.
	if got[0].ID != "doc-02" || got[2].ID != "doc-00" {
		t.Errorf("order = [%s %s %s], want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestDeleteDocument(t *testing.T) {
	s := openTestStore(t)

	d := Document{ID: "doc-del", Filename: "doc-del.pdf", UploadTime: time.Now().UTC()}
	if err := s.InsertDocument(d); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}

	if err := s.DeleteDocument("doc-del"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument("doc-del"); err != ErrNotFound {
		t.Errorf("after delete, error = %v, want ErrNotFound", err)
	}
	// Second delete reports not found so callers can treat it as idempotent.
	if err := s.DeleteDocument("doc-del"); err != ErrNotFound {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestCountDocuments(t *testing.T) {
	s := openTestStore(t)

	if n, err := s.CountDocuments(); err != nil || n != 0 {
		t.Fatalf("CountDocuments = %d, %v; want 0", n, err)
	}
	for j := 0; j < 2; j++ {
		d := Document{ID: fmt.Sprintf("c-%d", j), Filename: "f.pdf", UploadTime: time.Now().UTC()}
		if err := s.InsertDocument(d); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}
	if n, err := s.CountDocuments(); err != nil || n != 2 {
		t.Errorf("CountDocuments = %d, %v; want 2", n, err)
	}
}
