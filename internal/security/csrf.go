package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/pkg/errors"

	"familygallery/internal/models"
)

// ErrNoTokenID is returned when an identity carries no token id to bind to
var ErrNoTokenID = errors.New("identity has no token id")

// CSRFGenerator issues HMAC-SHA256 CSRF tokens bound to one bearer token
// of one account. A new login gets a new CSRF token.
type CSRFGenerator struct {
	secret []byte
}

func NewCSRFGenerator(secret string) *CSRFGenerator {
	return &CSRFGenerator{secret: []byte(secret)}
}

func (g *CSRFGenerator) sign(id models.Identity) []byte {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte("csrf\x00"))
	mac.Write([]byte(strconv.FormatInt(id.AccountID, 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(id.TokenID))
	return mac.Sum(nil)
}

// GenerateToken returns the CSRF token for id
func (g *CSRFGenerator) GenerateToken(id models.Identity) (string, error) {
	if id.TokenID == "" {
		return "", ErrNoTokenID
	}
	return hex.EncodeToString(g.sign(id)), nil
}

// ValidateToken reports whether token was issued for id
func (g *CSRFGenerator) ValidateToken(id models.Identity, token string) bool {
	if id.TokenID == "" || token == "" {
		return false
	}
	got, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	return hmac.Equal(g.sign(id), got)
}
