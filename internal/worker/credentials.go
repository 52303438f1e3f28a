package worker

import (
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims is the subset of the worker's service-account JWT this
// node reads out of its credentials file (§4.3.2 step 3) to
// authenticate against the control-plane API.
type ServiceClaims struct {
	jwt.RegisteredClaims
	LocationID string `json:"location_id"`
}

// LoadServiceToken reads the worker's credentials file (a signed JWT,
// one line) and parses its claims without verifying the signature:
// the control-plane API is the one party that must verify it: the
// worker only needs LocationID/expiry to decide whether to bother
// presenting it at all.
func LoadServiceToken(path string) (string, *ServiceClaims, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", nil, ioErr("execute", "reading credentials file: %v", err)
	}
	token := trimTrailingNewline(string(b))

	claims := &ServiceClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", nil, decodeErr("execute", err)
	}
	return token, claims, nil
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
