package config

import "strings"

const (
	secretPrefixLen = 14
	secretSuffixLen = 2
)

// MaskSecret masks a provider API key for secure logging, showing only the
// leading and trailing characters an operator needs to tell two keys apart
// at a glance. Keys too short to mask meaningfully are redacted entirely.
func MaskSecret(key string) string {
	if key == "" {
		return ""
	}

	if len(key) <= secretPrefixLen+secretSuffixLen {
		return strings.Repeat("*", len(key))
	}

	masked := len(key) - secretPrefixLen - secretSuffixLen

	return key[:secretPrefixLen] + strings.Repeat("*", masked) + key[len(key)-secretSuffixLen:]
}

// MaskDSN returns dsn with any embedded password fully redacted, following
// the same scheme/userinfo/host parse the rest of this codebase uses for
// connection strings.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}

	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd == -1 {
		return dsn
	}

	afterScheme := dsn[schemeEnd+3:]

	lastAt := strings.LastIndex(afterScheme, "@")
	if lastAt == -1 {
		return dsn
	}

	userInfo := afterScheme[:lastAt]

	colon := strings.Index(userInfo, ":")
	if colon == -1 {
		return dsn
	}

	username := userInfo[:colon]
	password := userInfo[colon+1:]

	if password == "" {
		return dsn
	}

	scheme := dsn[:schemeEnd]
	hostAndRest := afterScheme[lastAt:]

	return scheme + "://" + username + ":****" + hostAndRest
}
