package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/suratdinas/backend/internal/database"
	"github.com/suratdinas/backend/internal/documents"
	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/storage"
	"github.com/suratdinas/backend/internal/tester"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDocumentServicesTagLogsWithKindOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rt := &runtime{
		logger: zap.New(core),
		db:     tester.OpenSQLite(t, database.Models()...),
	}
	uploadDir := t.TempDir()
	store, err := storage.NewLocal(storage.LocalConfig{Dir: uploadDir})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	policy := numbering.Policy{EditWindow: 20 * 24 * time.Hour, Location: time.UTC}

	services, err := newDocumentServices(rt, numbering.NewAllocator(), policy, store)
	if err != nil {
		t.Fatalf("failed to build document services: %v", err)
	}
	letters := services[documents.KindLetter]
	if letters == nil || services[documents.KindMemo] == nil {
		t.Fatalf("expected a service per kind, got %v", services)
	}

	caller := numbering.Caller{UserID: "staff-a", DepartmentID: "dept-a"}
	subject, classification, level := "Undangan", "000.1", "1"
	created, err := letters.Create(context.Background(), caller, documents.CreateInput{
		Content: documents.Content{
			Subject:          &subject,
			ClassificationID: &classification,
			LevelID:          &level,
		},
		Attachment: &documents.Attachment{Name: "scan.pdf", Content: strings.NewReader("pdf")},
	})
	if err != nil {
		t.Fatalf("failed to create letter: %v", err)
	}

	// A non-empty directory in place of the file makes the removal fail.
	stored := filepath.Join(uploadDir, *created.FilePath)
	if err := os.Remove(stored); err != nil {
		t.Fatalf("failed to remove stored file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(stored, "keep"), 0o755); err != nil {
		t.Fatalf("failed to block stored path: %v", err)
	}

	if _, err := letters.Release(context.Background(), caller, created.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	entries := logs.FilterMessage("attachment removal failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one removal warning, got %d", len(entries))
	}
	kindFields := 0
	for _, field := range entries[0].Context {
		switch field.Key {
		case "kind":
			kindFields++
			if field.String != string(documents.KindLetter) {
				t.Fatalf("expected kind %q, got %q", documents.KindLetter, field.String)
			}
		case "document_kind":
			t.Fatalf("unexpected duplicate kind field %q", field.Key)
		}
	}
	if kindFields != 1 {
		t.Fatalf("expected exactly one kind field, got %d", kindFields)
	}
}
