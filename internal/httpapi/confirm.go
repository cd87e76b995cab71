package httpapi

import (
	"errors"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"perfumaria/backend/internal/xid"
)

var (
	errConfirmInvalid = errors.New("invalid or expired confirmation token")
	errConfirmSpent   = errors.New("confirmation token already used")
)

// Confirmer issues and checks the short-lived tokens that commit a
// destructive action. A token is bound to one action and one target and can
// be redeemed once.
type Confirmer struct {
	mu       sync.Mutex
	secret   []byte
	ttl      time.Duration
	resetPIN string
	spent    map[string]time.Time
	now      func() time.Time
}

type confirmClaims struct {
	jwtlib.RegisteredClaims
	Action string `json:"action"`
}

// NewConfirmer hashes resetPIN with bcrypt; an empty PIN disables the PIN
// check on reset.
func NewConfirmer(secret string, ttl time.Duration, resetPIN string) (*Confirmer, error) {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	c := &Confirmer{
		secret: []byte(secret),
		ttl:    ttl,
		spent:  make(map[string]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if pin := strings.TrimSpace(resetPIN); pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		c.resetPIN = string(hash)
	}
	return c, nil
}

func (c *Confirmer) Issue(action string, target string) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.ttl)
	claims := confirmClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        xid.New("cfm"),
			Subject:   target,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "perfumaria",
		},
		Action: action,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify accepts tokenStr only for the action and target it was issued for,
// and marks it spent.
func (c *Confirmer) Verify(tokenStr string, action string, target string) error {
	claims := &confirmClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		return c.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("perfumaria"), jwtlib.WithTimeFunc(c.now))
	if err != nil || !token.Valid {
		return errConfirmInvalid
	}
	if claims.Action != action || claims.Subject != target || claims.ID == "" {
		return errConfirmInvalid
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, exp := range c.spent {
		if now.After(exp) {
			delete(c.spent, id)
		}
	}
	if _, used := c.spent[claims.ID]; used {
		return errConfirmSpent
	}
	c.spent[claims.ID] = claims.ExpiresAt.Time
	return nil
}

func (c *Confirmer) PINRequired() bool {
	return c.resetPIN != ""
}

func (c *Confirmer) CheckPIN(pin string) bool {
	if !c.PINRequired() {
		return true
	}
	input := strings.TrimSpace(pin)
	if input == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.resetPIN), []byte(input)) == nil
}
