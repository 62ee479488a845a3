package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeToken extracts the identity claims carried by the opaque client token.
// With a secret configured the HMAC signature is verified; without one the
// claims are decoded as-is, matching deployments where an upstream gateway
// already validated the token.
func DecodeToken(token, secret string) (map[string]string, error) {
	var (
		parsed *jwt.Token
		err    error
	)
	if secret == "" {
		parser := jwt.NewParser()
		parsed, _, err = parser.ParseUnverified(token, jwt.MapClaims{})
	} else {
		parsed, err = jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("session: unexpected signing method %q", t.Method.Alg())
			}
			return []byte(secret), nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("session: failed to decode token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("session: token carries no map claims")
	}

	metadata := make(map[string]string, len(claims))
	for k, v := range claims {
		switch val := v.(type) {
		case string:
			metadata[k] = val
		case float64:
			metadata[k] = fmt.Sprintf("%v", val)
		case bool:
			metadata[k] = fmt.Sprintf("%t", val)
		default:
			metadata[k] = fmt.Sprintf("%v", val)
		}
	}
	return metadata, nil
}
