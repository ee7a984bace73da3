// Package canon produces a deterministic textual encoding of JSON-like
// values, suitable for hashing. Two values that are logically equal encode
// identically regardless of map key insertion order or the runtime that
// produced them.
package canon

import (
	"math"
	"sort"
	"strconv"
)

// Marshal returns the canonical encoding of v. v must be built from the
// JSON-compatible universe: nil, bool, string, float64/int-ish numbers,
// []interface{}, map[string]interface{}, and nested combinations thereof.
// Any other type, and any NaN or infinite float, encodes as null.
func Marshal(v interface{}) string {
	var buf []byte
	buf = appendValue(buf, v)
	return string(buf)
}

func appendValue(buf []byte, v interface{}) []byte {
	switch t := v.(type) {
	case nil:
		return append(buf, "null"...)
	case bool:
		if t {
			return append(buf, "true"...)
		}
		return append(buf, "false"...)
	case string:
		return appendString(buf, t)
	case float64:
		return appendNumber(buf, t)
	case float32:
		return appendNumber(buf, float64(t))
	case int:
		return strconv.AppendInt(buf, int64(t), 10)
	case int8:
		return strconv.AppendInt(buf, int64(t), 10)
	case int16:
		return strconv.AppendInt(buf, int64(t), 10)
	case int32:
		return strconv.AppendInt(buf, int64(t), 10)
	case int64:
		return strconv.AppendInt(buf, t, 10)
	case uint:
		return strconv.AppendUint(buf, uint64(t), 10)
	case uint8:
		return strconv.AppendUint(buf, uint64(t), 10)
	case uint16:
		return strconv.AppendUint(buf, uint64(t), 10)
	case uint32:
		return strconv.AppendUint(buf, uint64(t), 10)
	case uint64:
		return strconv.AppendUint(buf, t, 10)
	case []interface{}:
		return appendArray(buf, t)
	case map[string]interface{}:
		return appendObject(buf, t)
	default:
		// Function, channel, symbol-equivalents, and anything else we don't
		// recognize fall back to null rather than panicking: the caller may
		// be hashing arbitrary user input.
		return append(buf, "null"...)
	}
}

func appendNumber(buf []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(buf, "null"...)
	}
	return strconv.AppendFloat(buf, f, 'g', -1, 64)
}

func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for _, r := range s {
		switch r {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		default:
			if r < 0x20 {
				buf = append(buf, '\\', 'u')
				buf = append(buf, []byte(strconv.FormatInt(int64(r)+0x10000, 16))[1:]...)
			} else {
				buf = appendRune(buf, r)
			}
		}
	}
	return append(buf, '"')
}

func appendRune(buf []byte, r rune) []byte {
	var tmp [4]byte
	n := encodeRune(tmp[:], r)
	return append(buf, tmp[:n]...)
}

// encodeRune is a minimal UTF-8 encoder so we don't need to allocate a
// string just to append a single rune.
func encodeRune(dst []byte, r rune) int {
	switch {
	case r < 0x80:
		dst[0] = byte(r)
		return 1
	case r < 0x800:
		dst[0] = 0xC0 | byte(r>>6)
		dst[1] = 0x80 | byte(r)&0x3F
		return 2
	case r < 0x10000:
		dst[0] = 0xE0 | byte(r>>12)
		dst[1] = 0x80 | byte(r>>6)&0x3F
		dst[2] = 0x80 | byte(r)&0x3F
		return 3
	default:
		dst[0] = 0xF0 | byte(r>>18)
		dst[1] = 0x80 | byte(r>>12)&0x3F
		dst[2] = 0x80 | byte(r>>6)&0x3F
		dst[3] = 0x80 | byte(r)&0x3F
		return 4
	}
}

func appendArray(buf []byte, arr []interface{}) []byte {
	buf = append(buf, '[')
	for i, elem := range arr {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendValue(buf, elem)
	}
	return append(buf, ']')
}

func appendObject(buf []byte, obj map[string]interface{}) []byte {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = append(buf, '{')
	first := true
	for _, k := range keys {
		v := obj[k]
		if v == Undefined {
			continue
		}
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = appendString(buf, k)
		buf = append(buf, ':')
		buf = appendValue(buf, v)
	}
	return append(buf, '}')
}

// Undefined is a sentinel that, when used as a map value, causes Marshal to
// omit the key entirely — mirroring the "keys whose value is undefined are
// omitted" rule from languages that distinguish undefined from null. Go has
// no native undefined; callers that need the distinction store this value.
var Undefined = &struct{ undefined byte }{}
