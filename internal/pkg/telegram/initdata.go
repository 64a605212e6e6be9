// Package telegram verifies Mini App launch data and talks to the Bot API.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash   = errors.New("init data has no hash")
	ErrInvalidHash   = errors.New("init data signature mismatch")
	ErrExpired       = errors.New("init data expired")
	ErrMissingUser   = errors.New("init data has no user")
	ErrMalformedData = errors.New("malformed init data")
)

// User is the Telegram account that opened the Mini App.
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// DisplayName prefers the @username and falls back to the first name.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "player" + strconv.FormatInt(u.ID, 10)
}

type InitData struct {
	User     User
	AuthDate time.Time
	QueryID  string
}

// Verifier checks init data signed with the bot token.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	return &Verifier{
		secret: hmacSHA256([]byte("WebAppData"), []byte(botToken)),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Verify validates the hash and age of raw init data and extracts the user.
func (v *Verifier) Verify(raw string) (*InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}
	want, err := hex.DecodeString(hash)
	if err != nil {
		return nil, ErrInvalidHash
	}
	if !hmac.Equal(hmacSHA256(v.secret, []byte(dataCheckString(values))), want) {
		return nil, ErrInvalidHash
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: auth_date", ErrMalformedData)
	}
	authDate := time.Unix(authUnix, 0)
	if v.maxAge > 0 && v.now().Sub(authDate) > v.maxAge {
		return nil, ErrExpired
	}

	rawUser := values.Get("user")
	if rawUser == "" {
		return nil, ErrMissingUser
	}
	var u User
	if err := json.Unmarshal([]byte(rawUser), &u); err != nil || u.ID == 0 {
		return nil, fmt.Errorf("%w: user", ErrMalformedData)
	}

	return &InitData{User: u, AuthDate: authDate, QueryID: values.Get("query_id")}, nil
}

// Sign produces the hash Telegram would attach to values. Used by tests and
// local tooling.
func (v *Verifier) Sign(values url.Values) string {
	return hex.EncodeToString(hmacSHA256(v.secret, []byte(dataCheckString(values))))
}

// dataCheckString joins every field except hash as sorted key=value lines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	return strings.Join(lines, "\n")
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
