// Package blobtest holds the behavioural suite shared by every blob driver.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"dentalcore/internal/blob/core"
)

// Factory returns an empty store.
type Factory func(t *testing.T) core.Store

// Run exercises the core.Store contract against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	t.Run("PutGetHead", func(t *testing.T) { testPutGetHead(t, factory(t)) })
	t.Run("CreateOnly", func(t *testing.T) { testCreateOnly(t, factory(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, factory(t)) })
	t.Run("ListByPrefix", func(t *testing.T) { testListByPrefix(t, factory(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("InvalidKeys", func(t *testing.T) { testInvalidKeys(t, factory(t)) })
}

func put(t *testing.T, s core.Store, key, body string) core.Info {
	t.Helper()
	info, err := s.Put(context.Background(), key, bytes.NewBufferString(body), core.PutOptions{ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
	return info
}

func testPutGetHead(t *testing.T, s core.Store) {
	ctx := context.Background()
	info, err := s.Put(ctx, "reports/2023-10/a.csv", bytes.NewBufferString("description,count\n"),
		core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"month": "2023-10"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "reports/2023-10/a.csv" || info.Size != int64(len("description,count\n")) {
		t.Fatalf("unexpected info %+v", info)
	}
	got, rc, err := s.Get(ctx, "reports/2023-10/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "description,count\n" {
		t.Fatalf("body %q", body)
	}
	if got.ContentType != "text/csv" {
		t.Fatalf("content type %q", got.ContentType)
	}
	head, err := s.Head(ctx, "reports/2023-10/a.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != info.Size {
		t.Fatalf("head size %d want %d", head.Size, info.Size)
	}
}

func testCreateOnly(t *testing.T, s core.Store) {
	ctx := context.Background()
	put(t, s, "reports/x.json", "{}")
	_, err := s.Put(ctx, "reports/x.json", bytes.NewBufferString("[]"), core.PutOptions{})
	if !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := s.Get(ctx, "reports/x.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "{}" {
		t.Fatalf("original blob overwritten: %q", body)
	}
}

func testMissing(t *testing.T, s core.Store) {
	ctx := context.Background()
	if _, err := s.Head(ctx, "reports/none.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head: expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "reports/none.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func testListByPrefix(t *testing.T, s core.Store) {
	ctx := context.Background()
	put(t, s, "reports/2023-10/b.csv", "b")
	put(t, s, "reports/2023-10/a.csv", "a")
	put(t, s, "reports/2023-09/c.csv", "c")

	list, err := s.List(ctx, "reports/2023-10/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "reports/2023-10/a.csv" || list[1].Key != "reports/2023-10/b.csv" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := s.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %+v err=%v", all, err)
	}
}

func testDelete(t *testing.T, s core.Store) {
	ctx := context.Background()
	put(t, s, "reports/d.csv", "d")
	ok, err := s.Delete(ctx, "reports/d.csv")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := s.Head(ctx, "reports/d.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("blob survived delete: %v", err)
	}
	ok, err = s.Delete(ctx, "reports/d.csv")
	if err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
	// The key is free again.
	put(t, s, "reports/d.csv", "again")
}

func testInvalidKeys(t *testing.T, s core.Store) {
	ctx := context.Background()
	for _, key := range []string{"", "/abs", "../escape", "reports/../../escape"} {
		if _, err := s.Put(ctx, key, bytes.NewBufferString("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("put %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}
