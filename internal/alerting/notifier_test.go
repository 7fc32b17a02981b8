package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{
		EngineAddress:  "0xengine",
		VaultOwner:     "0xaaa",
		Amount:         decimal.RequireFromString("0.8"),
		ExpectedPayout: decimal.RequireFromString("0.9"),
		TxHash:         "0xtx",
	}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "0xaaa") {
		t.Fatalf("message should mention the vault owner: %q", received["text"])
	}
	if !strings.Contains(received["text"], "executed") {
		t.Fatalf("message should report success: %q", received["text"])
	}
}

func TestTelegramNotifierRendersFailure(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{
		VaultOwner:   "0xaaa",
		Amount:       decimal.NewFromInt(1),
		FailureCause: "front-run by another liquidator",
	}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(received["text"], "FAILED") || !strings.Contains(received["text"], "front-run") {
		t.Fatalf("failure message incomplete: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{VaultOwner: "0xaaa", Amount: decimal.NewFromInt(1)}

	if err := notifier.Notify(context.Background(), note); err == nil {
		t.Fatal("ok=false should error")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
