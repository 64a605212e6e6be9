package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/royalbingo/bingo-api/internal/domain/user"
	"github.com/royalbingo/bingo-api/internal/middleware"
	"github.com/royalbingo/bingo-api/internal/pkg/jwt"
	"github.com/royalbingo/bingo-api/internal/pkg/telegram"
)

const botToken = "123:TEST"

type fakeUserRepo struct {
	byTelegram map[int64]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byTelegram: make(map[int64]*user.User)}
}

func (f *fakeUserRepo) UpsertTelegram(_ context.Context, u *user.User) error {
	existing, ok := f.byTelegram[u.TelegramID]
	if !ok {
		existing = &user.User{ID: uuid.New(), TelegramID: u.TelegramID, Role: user.RolePlayer, CreatedAt: time.Now()}
		f.byTelegram[u.TelegramID] = existing
	}
	existing.Username = u.Username
	existing.FirstName = u.FirstName
	*u = *existing
	return nil
}

func (f *fakeUserRepo) find(id uuid.UUID) *user.User {
	for _, u := range f.byTelegram {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	if u := f.find(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*user.User, error) {
	return f.byTelegram[telegramID], nil
}

func (f *fakeUserRepo) SetBanned(_ context.Context, id uuid.UUID, banned bool) error {
	u := f.find(id)
	if u == nil {
		return user.ErrUserNotFound
	}
	u.IsBanned = banned
	return nil
}

func (f *fakeUserRepo) SetRole(_ context.Context, id uuid.UUID, role user.Role) error {
	u := f.find(id)
	if u == nil {
		return user.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeUserRepo) List(context.Context, user.ListFilter) ([]user.User, error) { return nil, nil }

type fakeRefreshStore struct {
	tokens map[string]uuid.UUID
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{tokens: make(map[string]uuid.UUID)}
}

func (f *fakeRefreshStore) Save(_ context.Context, hash string, userID uuid.UUID, _ time.Duration) error {
	f.tokens[hash] = userID
	return nil
}

func (f *fakeRefreshStore) Lookup(_ context.Context, hash string) (uuid.UUID, error) {
	id, ok := f.tokens[hash]
	if !ok {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	return id, nil
}

func (f *fakeRefreshStore) Delete(_ context.Context, hash string) error {
	delete(f.tokens, hash)
	return nil
}

type fakeWallets struct {
	ensured map[uuid.UUID]int
}

func (f *fakeWallets) EnsureWallet(_ context.Context, userID uuid.UUID) error {
	f.ensured[userID]++
	return nil
}

type fixture struct {
	svc      *Service
	users    *fakeUserRepo
	refresh  *fakeRefreshStore
	wallets  *fakeWallets
	verifier *telegram.Verifier
	jwt      *jwt.Service
}

func newFixture(adminIDs ...int64) *fixture {
	f := &fixture{
		users:    newFakeUserRepo(),
		refresh:  newFakeRefreshStore(),
		wallets:  &fakeWallets{ensured: make(map[uuid.UUID]int)},
		verifier: telegram.NewVerifier(botToken, 24*time.Hour),
		jwt:      jwt.NewService("secret", time.Minute, time.Hour),
	}
	f.svc = NewService(f.users, f.verifier, f.wallets, f.jwt, f.refresh, adminIDs)
	return f
}

func (f *fixture) initData(telegramID int64, username string) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", `{"id":`+strconv.FormatInt(telegramID, 10)+`,"first_name":"Abebe","username":"`+username+`"}`)
	values.Set("hash", f.verifier.Sign(values))
	return values.Encode()
}

func TestTelegramLoginCreatesUserAndWallet(t *testing.T) {
	f := newFixture()

	res, err := f.svc.TelegramLogin(context.Background(), f.initData(42, "abebe"))
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if res.User.TelegramID != 42 || res.User.Username != "abebe" || res.User.Role != "player" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if f.wallets.ensured[res.User.ID] != 1 {
		t.Fatalf("expected wallet to be ensured once, got %d", f.wallets.ensured[res.User.ID])
	}

	claims, err := f.jwt.ValidateAccessToken(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("expected valid access token, got %v", err)
	}
	if claims.UserID != res.User.ID || claims.Name != "abebe" || claims.Role != "player" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	again, err := f.svc.TelegramLogin(context.Background(), f.initData(42, "abebe_new"))
	if err != nil {
		t.Fatalf("expected second login to succeed, got %v", err)
	}
	if again.User.ID != res.User.ID || again.User.Username != "abebe_new" {
		t.Fatalf("expected same user with refreshed username, got %+v", again.User)
	}
}

func TestTelegramLoginRejectsForgedData(t *testing.T) {
	f := newFixture()
	forged := telegram.NewVerifier("999:OTHER", 24*time.Hour)
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", `{"id":42,"first_name":"Abebe"}`)
	values.Set("hash", forged.Sign(values))

	if _, err := f.svc.TelegramLogin(context.Background(), values.Encode()); !errors.Is(err, ErrInvalidInitData) {
		t.Fatalf("expected ErrInvalidInitData, got %v", err)
	}
	if len(f.users.byTelegram) != 0 {
		t.Fatal("no user must be created for forged data")
	}
}

func TestTelegramLoginBannedUser(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.TelegramLogin(context.Background(), f.initData(7, "x"))
	_ = f.users.SetBanned(context.Background(), res.User.ID, true)

	if _, err := f.svc.TelegramLogin(context.Background(), f.initData(7, "x")); !errors.Is(err, ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned on refresh, got %v", err)
	}
}

func TestTelegramLoginPromotesConfiguredAdmin(t *testing.T) {
	f := newFixture(1001)

	res, err := f.svc.TelegramLogin(context.Background(), f.initData(1001, "ops"))
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if res.User.Role != "admin" {
		t.Fatalf("expected admin role, got %s", res.User.Role)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.TelegramLogin(context.Background(), f.initData(42, "abebe"))

	next, err := f.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("expected refresh to succeed, got %v", err)
	}
	if next.Tokens.RefreshToken == res.Tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if _, err := f.svc.Refresh(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected old token to be rejected, got %v", err)
	}

	if err := f.svc.Logout(context.Background(), next.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), next.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected logged out token to be rejected, got %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), ""); !errors.Is(err, ErrRefreshTokenRequired) {
		t.Fatalf("expected ErrRefreshTokenRequired, got %v", err)
	}
}

func TestHandlerTelegramLoginAndMe(t *testing.T) {
	f := newFixture()
	r := chi.NewRouter()
	r.Mount("/auth", NewHandler(f.svc).Routes(middleware.Auth(f.jwt)))

	body, _ := json.Marshal(TelegramLoginRequest{InitData: "hash=deadbeef&auth_date=1"})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewReader(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad init data, got %d body=%s", rr.Code, rr.Body.String())
	}

	body, _ = json.Marshal(TelegramLoginRequest{InitData: f.initData(42, "abebe")})
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/telegram", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		Success bool         `json:"success"`
		Data    AuthResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Data.Tokens.AccessToken == "" || out.Data.Tokens.RefreshToken == "" {
		t.Fatal("expected tokens in response")
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+out.Data.Tokens.AccessToken)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHandlerLoginRequiresInitData(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)

	rr := httptest.NewRecorder()
	h.TelegramLogin(rr, httptest.NewRequest(http.MethodPost, "/telegram", bytes.NewReader([]byte(`{}`))))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}
