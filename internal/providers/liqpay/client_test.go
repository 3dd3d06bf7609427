package liqpay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		PublicKey:      "pub",
		PrivateKey:     "priv",
		BaseURL:        srv.URL,
		DisableRetries: true,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeForm(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	if err := r.ParseForm(); err != nil {
		t.Fatalf("parsing form: %v", err)
	}
	data := r.PostFormValue("data")
	if sig := r.PostFormValue("signature"); sig != Sign("priv", data) {
		t.Errorf("signature mismatch: got %q", sig)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatalf("unmarshaling data: %v", err)
	}
	return params
}

func TestGetTransaction(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/request" {
			t.Errorf("path = %q, want /request", r.URL.Path)
		}
		params := decodeForm(t, r)
		if params["action"] != "status" {
			t.Errorf("action = %v, want status", params["action"])
		}
		if params["order_id"] != "cart_1" {
			t.Errorf("order_id = %v, want cart_1", params["order_id"])
		}
		json.NewEncoder(w).Encode(TransactionStatus{
			Status:   StatusSuccess,
			OrderID:  "cart_1",
			Currency: "UAH",
		})
	})

	ts, err := client.GetTransaction(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if ts.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", ts.Status, StatusSuccess)
	}
}

func TestCreateRefund(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		params := decodeForm(t, r)
		if params["action"] != "refund" {
			t.Errorf("action = %v, want refund", params["action"])
		}
		if params["amount"] != 15.0 {
			t.Errorf("amount = %v, want 15", params["amount"])
		}
		json.NewEncoder(w).Encode(TransactionStatus{
			Status:  StatusReversed,
			OrderID: "cart_1",
		})
	})

	ts, err := client.CreateRefund(context.Background(), "cart_1", 15.0)
	if err != nil {
		t.Fatalf("CreateRefund() error = %v", err)
	}
	if ts.Status != StatusReversed {
		t.Errorf("Status = %q, want %q", ts.Status, StatusReversed)
	}
}

func TestClientUpstreamError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"err_code":        "public_key_not_found",
			"err_description": "public key not found",
		})
	})

	_, err := client.GetTransaction(context.Background(), "cart_1")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if pe.Code != "public_key_not_found" {
		t.Errorf("Code = %q, want public_key_not_found", pe.Code)
	}
	if pe.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", pe.StatusCode, http.StatusBadRequest)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(TransactionStatus{Status: StatusProcessing})
	}))
	defer srv.Close()

	client := NewClient(Config{
		PublicKey:  "pub",
		PrivateKey: "priv",
		BaseURL:    srv.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client.retry.BaseDelay = 0
	client.retry.MaxDelay = 0

	ts, err := client.GetTransaction(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if ts.Status != StatusProcessing {
		t.Errorf("Status = %q, want %q", ts.Status, StatusProcessing)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{
		PublicKey:  "pub",
		PrivateKey: "priv",
		BaseURL:    srv.URL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client.retry.BaseDelay = 0
	client.retry.MaxDelay = 0

	if _, err := client.GetTransaction(context.Background(), "cart_1"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestClientFormEncoding(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if _, err := url.ParseQuery(string(body)); err != nil {
			t.Errorf("body is not form-encoded: %v", err)
		}
		w.Write([]byte(`{"status":"success"}`))
	})

	if _, err := client.GetTransaction(context.Background(), "cart_1"); err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
}
