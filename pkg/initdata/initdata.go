// Package initdata verifies and generates Telegram Mini App initData
// payloads.
//
// The data-check algorithm follows Telegram's Mini App auth scheme: the
// query-string pairs (minus "hash") are sorted by key, joined as "key=value"
// lines, and signed with HMAC-SHA256 using a secret derived from the bot
// token via HMAC-SHA256 keyed with the literal string "WebAppData".
package initdata

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

// MaxAge is the default freshness bound for auth_date.
const MaxAge = 24 * time.Hour

var (
	// ErrMissingHash indicates the payload carries no hash field.
	ErrMissingHash = errors.New("initdata: missing hash")
	// ErrSignatureMismatch indicates the computed HMAC does not match the
	// provided hash.
	ErrSignatureMismatch = errors.New("initdata: signature mismatch")
	// ErrStaleAuth indicates auth_date is older than the freshness bound.
	ErrStaleAuth = errors.New("initdata: auth_date too old")
	// ErrMissingUser indicates the user field is absent or unparsable.
	ErrMissingUser = errors.New("initdata: missing or invalid user")
)

// User is the user profile embedded in initData.
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// Result holds the outcome of a successful validation.
type Result struct {
	TelegramUserID int64
	User           *User
	AuthDate       time.Time
}

// Validator verifies initData signatures for a single bot token.
type Validator struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

// NewValidator creates a validator with the default 24h freshness bound.
func NewValidator(botToken string) *Validator {
	return &Validator{
		botToken: botToken,
		maxAge:   MaxAge,
		now:      time.Now,
	}
}

// WithMaxAge returns a validator with a custom freshness bound. A zero or
// negative maxAge disables the staleness check.
func (v *Validator) WithMaxAge(maxAge time.Duration) *Validator {
	return &Validator{botToken: v.botToken, maxAge: maxAge, now: v.now}
}

// Validate verifies the signature and freshness of raw initData and extracts
// the embedded user. It returns one of the package sentinel errors (possibly
// wrapped) on failure.
func (v *Validator) Validate(raw string) (*Result, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("initdata: malformed query string: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}
	values.Del("hash")

	expected := signDataCheckString(dataCheckString(values), v.botToken)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return nil, ErrSignatureMismatch
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, ErrMissingUser
	}
	var user User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingUser, err)
	}
	if user.ID == 0 {
		return nil, ErrMissingUser
	}

	result := &Result{
		TelegramUserID: user.ID,
		User:           &user,
	}

	if authDateStr := values.Get("auth_date"); authDateStr != "" {
		ts, err := strconv.ParseInt(authDateStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("initdata: invalid auth_date: %w", err)
		}
		result.AuthDate = time.Unix(ts, 0)
		if v.maxAge > 0 && v.now().Sub(result.AuthDate) > v.maxAge {
			return nil, ErrStaleAuth
		}
	}

	return result, nil
}

// Generator builds signed initData strings. It is the inverse of Validator
// and exists for the companion bot and for tests.
type Generator struct {
	botToken string
	now      func() time.Time
}

// NewGenerator creates a generator for the given bot token.
func NewGenerator(botToken string) *Generator {
	return &Generator{botToken: botToken, now: time.Now}
}

// Generate produces a signed initData query string for the given user with
// auth_date set to the current time.
func (g *Generator) Generate(user User) (string, error) {
	if user.ID == 0 {
		return "", errors.New("initdata: user id is required")
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("initdata: marshal user: %w", err)
	}

	values := url.Values{}
	values.Set("user", string(userJSON))
	values.Set("auth_date", strconv.FormatInt(g.now().Unix(), 10))

	hash := signDataCheckString(dataCheckString(values), g.botToken)
	values.Set("hash", hash)

	return values.Encode(), nil
}

// dataCheckString canonicalizes query values: keys sorted lexicographically,
// joined as "key=value" lines. Values are the decoded form.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+values.Get(key))
	}
	return strings.Join(pairs, "\n")
}

// signDataCheckString computes the lowercase hex HMAC of the data-check
// string using the WebAppData-derived secret key.
func signDataCheckString(dataCheck, botToken string) string {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheck))
	return hex.EncodeToString(mac.Sum(nil))
}
