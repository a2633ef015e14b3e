package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"inmoelegance/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	store := New("/media")
	ctx := context.Background()
	meta := map[string]string{"owner": "a1"}
	info, err := store.Put(ctx, "images/a.jpg", bytes.NewReader([]byte("jpeg")), core.PutOptions{ContentType: "image/jpeg", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.URL != "/media/images/a.jpg" || info.Size != 4 {
		t.Fatalf("unexpected info %+v", info)
	}
	meta["owner"] = "mutated"

	got, rc, err := store.Get(ctx, "images/a.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "jpeg" || got.Metadata["owner"] != "a1" || got.ContentType != "image/jpeg" {
		t.Fatalf("unexpected blob %+v %q", got, body)
	}

	if _, err := store.Put(ctx, "images/a.jpg", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	if _, err := store.Put(ctx, "images/b.png", bytes.NewReader([]byte("png")), core.PutOptions{}); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if _, err := store.Put(ctx, "exports/x.csv", bytes.NewReader([]byte("csv")), core.PutOptions{}); err != nil {
		t.Fatalf("put export: %v", err)
	}
	list, err := store.List(ctx, "images/")
	if err != nil || len(list) != 2 || list[0].Key != "images/a.jpg" || list[1].Key != "images/b.png" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}

	ok, err := store.Delete(ctx, "images/a.jpg")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(ctx, "images/a.jpg"); ok {
		t.Fatalf("second delete should report false")
	}
	if _, err := store.Head(ctx, "images/a.jpg"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := store.Get(ctx, "images/a.jpg"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("fail") }

func TestStoreRejectsBadInput(t *testing.T) {
	store := New("")
	ctx := context.Background()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(ctx, "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := store.Put(ctx, " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
	info, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{})
	if err != nil || info.URL != "" {
		t.Fatalf("expected no url without prefix: %+v %v", info, err)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
}
