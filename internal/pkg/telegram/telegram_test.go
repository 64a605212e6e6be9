package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func signedInitData(v *Verifier, authDate time.Time, user string) string {
	values := url.Values{}
	values.Set("query_id", "AAH")
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	if user != "" {
		values.Set("user", user)
	}
	values.Set("hash", v.Sign(values))
	return values.Encode()
}

func TestVerifyAcceptsSignedData(t *testing.T) {
	v := NewVerifier("123:ABC", 24*time.Hour)
	raw := signedInitData(v, time.Now().Add(-time.Minute), `{"id":42,"first_name":"Abebe","username":"abebe"}`)

	data, err := v.Verify(raw)
	if err != nil {
		t.Fatalf("expected valid init data, got %v", err)
	}
	if data.User.ID != 42 || data.User.DisplayName() != "abebe" {
		t.Fatalf("unexpected user: %+v", data.User)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	v := NewVerifier("123:ABC", 24*time.Hour)
	raw := signedInitData(v, time.Now(), `{"id":42,"first_name":"Abebe"}`)

	values, _ := url.ParseQuery(raw)
	values.Set("user", `{"id":43,"first_name":"Abebe"}`)
	if _, err := v.Verify(values.Encode()); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}

	other := NewVerifier("999:XYZ", 24*time.Hour)
	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for a different bot, got %v", err)
	}

	values.Del("hash")
	if _, err := v.Verify(values.Encode()); !errors.Is(err, ErrMissingHash) {
		t.Fatalf("expected ErrMissingHash, got %v", err)
	}
}

func TestVerifyRejectsOldData(t *testing.T) {
	v := NewVerifier("123:ABC", 24*time.Hour)
	raw := signedInitData(v, time.Now().Add(-25*time.Hour), `{"id":42,"first_name":"Abebe"}`)

	if _, err := v.Verify(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyRequiresUser(t *testing.T) {
	v := NewVerifier("123:ABC", 24*time.Hour)
	raw := signedInitData(v, time.Now(), "")

	if _, err := v.Verify(raw); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestDisplayNameFallbacks(t *testing.T) {
	if got := (User{ID: 7, FirstName: "Selam"}).DisplayName(); got != "Selam" {
		t.Fatalf("expected first name, got %q", got)
	}
	if got := (User{ID: 7}).DisplayName(); got != "player7" {
		t.Fatalf("expected generated name, got %q", got)
	}
}

func TestBotNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req sendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ChatID != 99 || req.Text != "new deposit" {
			t.Errorf("unexpected payload %+v", req)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	defer srv.Close()

	n := NewBotNotifier("TOKEN", 99)
	n.baseURL = srv.URL
	n.policy.InitialInterval = time.Millisecond

	if err := n.Notify(context.Background(), "new deposit"); err != nil {
		t.Fatalf("expected notify to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestBotNotifierDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"})
	}))
	defer srv.Close()

	n := NewBotNotifier("TOKEN", 99)
	n.baseURL = srv.URL

	if err := n.Notify(context.Background(), "hi"); err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}
