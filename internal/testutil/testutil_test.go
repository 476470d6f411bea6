package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// recordingTB captures Errorf calls instead of failing the running test.
type recordingTB struct {
	testing.TB
	errors []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestAssertStatusCode(t *testing.T) {
	rec := &recordingTB{TB: t}
	AssertStatusCode(rec, http.StatusOK, http.StatusOK)
	if len(rec.errors) != 0 {
		t.Fatalf("matching status reported %q", rec.errors)
	}

	AssertStatusCode(rec, http.StatusOK, http.StatusBadRequest)
	if len(rec.errors) != 1 {
		t.Fatalf("mismatched status reported %d errors, want 1", len(rec.errors))
	}
	if want := "status code = 200, want 400"; rec.errors[0] != want {
		t.Errorf("error = %q, want %q", rec.errors[0], want)
	}
}

func TestNewAdminRequest(t *testing.T) {
	req := NewAdminRequest(http.MethodPost, "/debug/records-inject", strings.NewReader("record=T%3D1"))
	if req.RemoteAddr != LoopbackAddr {
		t.Errorf("RemoteAddr = %q, want %q", req.RemoteAddr, LoopbackAddr)
	}
	if req.Method != http.MethodPost || req.URL.Path != "/debug/records-inject" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != "record=T%3D1" {
		t.Errorf("body = %q", body)
	}
}

func TestSerialFixture(t *testing.T) {
	f := NewSerialFixture("/dev/ttyUSB3")

	sess, err := f.Connector.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	if call := f.Factory.LastCall(); call == nil || call.Path != "/dev/ttyUSB3" {
		t.Fatalf("unexpected open call %+v", call)
	}

	f.Port.Feed("T=1\n")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	chunk, err := sess.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if chunk != "T=1\n" {
		t.Errorf("Read() = %q", chunk)
	}
}
