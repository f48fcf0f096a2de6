package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginDecodesSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user":{"id":"u1","email":"dev@example.com"},"tokens":{"access_token":"at","refresh_token":"rt"}}`))
	}))
	defer server.Close()

	cli, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := cli.Login(context.Background(), "dev@example.com", "longenough")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.User.ID != "u1" || resp.Tokens.AccessToken != "at" {
		t.Fatalf("unexpected session %+v", resp)
	}
}

func TestErrorResponsesSurfaceAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer server.Close()

	cli, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = cli.Login(context.Background(), "dev@example.com", "wrong")
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "invalid credentials" {
		t.Fatalf("unexpected APIError %+v", apiErr)
	}
}
