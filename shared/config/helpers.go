package config

import (
	"os"
	"strconv"
	"time"
)

// envOr parses key with parse. Unset or unparsable values yield def, so a
// typo in one variable never prevents the process from starting.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, def string) string {
	return envOr(key, def, func(s string) (string, error) { return s, nil })
}

func getInt(key string, def int) int {
	return envOr(key, def, strconv.Atoi)
}

func getInt64(key string, def int64) int64 {
	return envOr(key, def, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
}

func getBool(key string, def bool) bool {
	return envOr(key, def, strconv.ParseBool)
}

func getDuration(key string, def time.Duration) time.Duration {
	return envOr(key, def, time.ParseDuration)
}
