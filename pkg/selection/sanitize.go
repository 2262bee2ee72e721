package selection

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MaxFilenameLength bounds sanitized filenames, in bytes.
const MaxFilenameLength = 128

// SanitizeFilename reduces raw to a basename-style token: directory parts are
// dropped, characters outside [A-Za-z0-9._-] become underscores, dot runs are
// collapsed and leading dots removed. The result may be empty.
func SanitizeFilename(raw string) string {
	name := strings.TrimSpace(raw)
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if isFilenameRune(r) {
			b.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}
		if lastUnderscore {
			continue
		}
		b.WriteByte('_')
		lastUnderscore = true
	}
	name = b.String()

	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	name = strings.TrimLeft(name, ".")
	if strings.Trim(name, "._-") == "" {
		return ""
	}
	return truncateFilename(name, MaxFilenameLength)
}

// IsSafeFilename reports whether name is already in sanitized form.
func IsSafeFilename(name string) bool {
	return name != "" && SanitizeFilename(name) == name
}

// CoercePageID converts raw into a non-negative page id. Non-numeric,
// negative, fractional-overflowing or otherwise unusable input yields 0.
func CoercePageID(raw any) int {
	switch v := raw.(type) {
	case nil:
		return 0
	case int:
		return clampID(int64(v))
	case int8:
		return clampID(int64(v))
	case int16:
		return clampID(int64(v))
	case int32:
		return clampID(int64(v))
	case int64:
		return clampID(v)
	case uint:
		if uint64(v) > math.MaxInt32 {
			return 0
		}
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return clampID(int64(v))
	case uint64:
		if v > math.MaxInt32 {
			return 0
		}
		return int(v)
	case float32:
		return coerceFloat(float64(v))
	case float64:
		return coerceFloat(v)
	case json.Number:
		return coerceString(v.String())
	case string:
		return coerceString(v)
	case []byte:
		return coerceString(string(v))
	default:
		return 0
	}
}

func coerceString(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return clampID(n)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return coerceFloat(f)
	}
	return 0
}

func coerceFloat(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func clampID(n int64) int {
	if n < 0 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

func isFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '-' || r == '_':
		return true
	default:
		return false
	}
}

func truncateFilename(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := ""
	if idx := strings.LastIndexByte(name, '.'); idx > 0 && len(name)-idx <= 16 {
		ext = name[idx:]
	}
	base := strings.TrimRight(name[:limit-len(ext)], ".")
	return base + ext
}
