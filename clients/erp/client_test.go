package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-ordersync/core"
)

type rpcCall struct {
	Service string
	Method  string
	Args    []any
}

func newRPCServer(t *testing.T, handler func(call rpcCall) (any, *rpcError)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var logins atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		call := rpcCall{Service: req.Params.Service, Method: req.Params.Method, Args: req.Params.Args}

		var result any
		var fault *rpcError
		if call.Service == "common" && call.Method == "login" {
			logins.Add(1)
			result = 7
		} else {
			result, fault = handler(call)
		}

		response := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if fault != nil {
			response["error"] = fault
		} else {
			response["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	return server, &logins
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Endpoint: endpoint,
		Database: "shop",
		Username: "sync",
		APIKey:   "secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestCreateSaleOrderCachesLogin(t *testing.T) {
	server, logins := newRPCServer(t, func(call rpcCall) (any, *rpcError) {
		if call.Method != "execute_kw" {
			t.Errorf("unexpected method %s", call.Method)
		}
		return 42, nil
	})
	defer server.Close()
	client := newTestClient(t, server.URL)
	ctx := context.Background()

	orderID, err := client.CreateSaleOrder(ctx, core.CreateSaleOrderInput{Reference: "101"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != "42" {
		t.Fatalf("expected order id 42, got %s", orderID)
	}

	if _, err := client.CreateSaleOrder(ctx, core.CreateSaleOrderInput{Reference: "102"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logins.Load() != 1 {
		t.Fatalf("expected a single cached login, got %d", logins.Load())
	}
}

func TestConfirmSaleOrderRequiresID(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	if err := client.ConfirmSaleOrder(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank order id")
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)

	_, err := client.CreateSaleOrder(context.Background(), core.CreateSaleOrderInput{Reference: "101"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !core.Transient(err) {
		t.Fatalf("5xx should be transient: %v", err)
	}
}

func TestRPCFaultIsPermanent(t *testing.T) {
	server, _ := newRPCServer(t, func(rpcCall) (any, *rpcError) {
		return nil, &rpcError{Code: 200, Message: "ValidationError: missing partner"}
	})
	defer server.Close()
	client := newTestClient(t, server.URL)

	_, err := client.CreateSaleOrder(context.Background(), core.CreateSaleOrderInput{Reference: "101"})
	if err == nil {
		t.Fatal("expected error")
	}
	if core.Transient(err) {
		t.Fatalf("rpc validation fault should be permanent: %v", err)
	}
}

func TestSessionExpiryRetriesOnce(t *testing.T) {
	var calls atomic.Int64
	server, logins := newRPCServer(t, func(rpcCall) (any, *rpcError) {
		if calls.Add(1) == 1 {
			return nil, &rpcError{Code: 100, Message: "odoo.http.SessionExpiredException"}
		}
		return 42, nil
	})
	defer server.Close()
	client := newTestClient(t, server.URL)

	orderID, err := client.CreateSaleOrder(context.Background(), core.CreateSaleOrderInput{Reference: "101"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != "42" {
		t.Fatalf("expected order id 42, got %s", orderID)
	}
	if logins.Load() != 2 {
		t.Fatalf("expected re-login after session expiry, got %d logins", logins.Load())
	}
}

func TestUnreachableBackendIsTransient(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	err := client.ConfirmSaleOrder(context.Background(), "42")
	if err == nil {
		t.Fatal("expected error")
	}
	if !core.Transient(err) {
		t.Fatalf("network failure should be transient: %v", err)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(Config{Database: "shop"}); err == nil {
		t.Fatal("expected endpoint error")
	}
	if _, err := NewClient(Config{Endpoint: "http://erp"}); err == nil {
		t.Fatal("expected database error")
	}
}
