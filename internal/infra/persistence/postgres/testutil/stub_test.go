package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"
)

func TestStubDBStoresAndQueriesState(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	_, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2)", []driver.NamedValue{
		{Value: "properties"},
		{Value: []byte(`{}`)},
	})
	if err != nil {
		t.Fatalf("ExecContext insert: %v", err)
	}
	if payload, ok := conn.Payload("properties"); !ok || string(payload) != "{}" {
		t.Fatalf("expected stored payload, got %q", payload)
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "properties" {
		t.Fatalf("unexpected bucket %v", dest[0])
	}
	if err := rows.Next(dest); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestStubDBFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailQuery = true
	if _, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	conn.FailBegin = true
	if _, err := conn.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
	if _, err := conn.QueryContext(ctx, "SELECT 1 FROM other", nil); err == nil {
		t.Fatalf("expected unsupported query error")
	}
}
