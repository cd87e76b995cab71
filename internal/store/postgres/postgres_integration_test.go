package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestCollectionRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("PERFUMARIA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PERFUMARIA_TEST_DATABASE_URL to run postgres integration test")
	}

	if err := Migrate(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	key := fmt.Sprintf("perfume_it_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = s.Delete(ctx, key)
	})

	if _, found, err := s.Load(ctx, key); err != nil || found {
		t.Fatalf("expected missing key, found=%t err=%v", found, err)
	}

	first := []map[string]any{{"id": "c1", "name": "Ana"}}
	payload, _ := json.Marshal(first)
	if err := s.Save(ctx, key, payload); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := []map[string]any{{"id": "c1", "name": "Ana"}, {"id": "c2", "name": "Bia"}}
	payload, _ = json.Marshal(second)
	if err := s.Save(ctx, key, payload); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	raw, found, err := s.Load(ctx, key)
	if err != nil || !found {
		t.Fatalf("load: found=%t err=%v", found, err)
	}
	var got []map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1]["name"] != "Bia" {
		t.Fatalf("expected upserted collection, got %v", got)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Load(ctx, key); found {
		t.Fatalf("expected key to be gone")
	}
}
