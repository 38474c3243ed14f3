package types

import "github.com/golang-jwt/jwt/v5"

// Claims carried by operator tokens. Subject is the numeric user id.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	UID      string `json:"uid"`
	jwt.RegisteredClaims
}

// HasRole reports whether role is one of roles.
func HasRole(role string, roles ...Role) bool {
	for _, r := range roles {
		if string(r) == role {
			return true
		}
	}
	return false
}
