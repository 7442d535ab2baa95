// Package token verifies and mints the signed QR/NFC credential a
// ticket holder presents at the gate. Grounded on the teacher's use of
// golang-jwt/jwt/v5 for HMAC-signed bearer material (internal/service
// token issuance paths) and on the claim shape of
// _examples/original_source/app/security.py's verify_qr_token.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haahuss/Ticketing-Security-Gate/internal/domain"
)

// ErrorKind distinguishes the two ways a credential can fail
// verification, per spec.md §4.1 and §7's reason-code taxonomy.
type ErrorKind int

const (
	// ErrNone indicates the token verified and every required claim is
	// present and unexpired.
	ErrNone ErrorKind = iota
	// ErrInvalid covers a bad signature, malformed token, or missing
	// required claim (exp included).
	ErrInvalid
	// ErrExpired covers a structurally valid, correctly signed token
	// whose exp claim has passed.
	ErrExpired
)

var requiredClaims = []string{"ticket_id", "event_id", "org_id", "nonce"}

// Verify checks the HMAC-SHA256 signature on raw using secret, then
// independently checks claim presence and expiry so the two failure
// modes can be reported as distinct reason codes. The signature check
// itself does not enforce exp; expiry is always evaluated here so a
// tampered exp cannot be used to convert EXPIRED into INVALID_TOKEN or
// vice versa.
func Verify(raw string, secret []byte) (domain.TokenClaims, ErrorKind) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))

	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return domain.TokenClaims{}, ErrInvalid
	}

	for _, k := range requiredClaims {
		if _, ok := claims[k]; !ok {
			return domain.TokenClaims{}, ErrInvalid
		}
	}

	out := domain.TokenClaims{}
	var ok bool
	if out.TicketID, ok = claims["ticket_id"].(string); !ok {
		return domain.TokenClaims{}, ErrInvalid
	}
	if out.EventID, ok = claims["event_id"].(string); !ok {
		return domain.TokenClaims{}, ErrInvalid
	}
	if out.OrgID, ok = claims["org_id"].(string); !ok {
		return domain.TokenClaims{}, ErrInvalid
	}
	if out.Nonce, ok = claims["nonce"].(string); !ok {
		return domain.TokenClaims{}, ErrInvalid
	}

	expClaim, err := claims.GetExpirationTime()
	if err != nil || expClaim == nil {
		return domain.TokenClaims{}, ErrInvalid
	}
	out.Exp = expClaim.Unix()

	if time.Now().After(expClaim.Time) {
		return domain.TokenClaims{}, ErrExpired
	}

	return out, ErrNone
}

// Mint signs a new credential for ticketID/eventID/orgID, valid for
// ttl, carrying the caller-supplied nonce. This is out-of-band provisioning
// surface (see spec.md §1's Non-goals) reconstructed from
// _examples/original_source/scripts/mint_token.py for test and CLI
// use, not a gate operation itself.
func Mint(ticketID, eventID, orgID, nonce string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"ticket_id": ticketID,
		"event_id":  eventID,
		"org_id":    orgID,
		"nonce":     nonce,
		"exp":       now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}
