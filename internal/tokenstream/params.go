package tokenstream

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/streambench/internal/config"
)

// Params are the two tunables of a stream request, already clamped.
type Params struct {
	Words int
	Delay time.Duration
}

func ClampWords(n int) int {
	return clamp(n, config.MinWords, config.MaxWords)
}

func ClampDelayMS(ms int) int {
	return clamp(ms, config.MinDelayMS, config.MaxDelayMS)
}

// ParseParams reads words and delay from a query string. Missing or
// malformed values take the defaults; everything is clamped, never rejected.
func ParseParams(q url.Values, defaultWords, defaultDelayMS int) Params {
	words := intOr(q.Get("words"), defaultWords)
	delay := intOr(q.Get("delay"), defaultDelayMS)
	return Params{
		Words: ClampWords(words),
		Delay: time.Duration(ClampDelayMS(delay)) * time.Millisecond,
	}
}

func intOr(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// Accept "12.7" style numbers the way a browser form would send them.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != f {
			return fallback
		}
		if f > float64(config.MaxWords) {
			return config.MaxWords
		}
		if f < 0 {
			return 0
		}
		return int(f)
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
