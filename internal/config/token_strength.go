package config

import zxcvbn "github.com/ccojocar/zxcvbn-go"

// MinTokenScore is the lowest zxcvbn score (0-4) an admin token must reach
// to avoid the startup weakness warning.
const MinTokenScore = 3

// IsWeakToken reports whether the admin token is guessable enough to warn
// about. An empty token means auth is disabled and is warned about
// separately, so it is not considered weak here.
func IsWeakToken(token string) bool {
	if token == "" {
		return false
	}
	return zxcvbn.PasswordStrength(token, nil).Score < MinTokenScore
}
