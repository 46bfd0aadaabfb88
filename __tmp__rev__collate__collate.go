// Package collate implements the CouchDB/PouchDB collation order and the
// indexable-key codec built on top of it: a byte encoding of arbitrary JSON
// values whose lexicographic order matches the collation order exactly, so a
// B-tree keyed on raw bytes can serve range and prefix queries without
// decoding each key.
package collate

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// kind tags the relative rank of a normalized value; the kinds are numbered
// consecutively in collation order.
type kind int

const (
	kindNull kind = iota
	kindFalse
	kindTrue
	kindNumber
	kindString
	kindArray
	kindObject
)

// Pair is a single field of an Object, kept in emission order rather than
// sorted order: CouchDB map functions emit ordinary JavaScript objects, and
// field order in those objects is significant for tie-breaking during
// collation, which a plain Go map cannot preserve.
type Pair struct {
	Key   string
	Value any
}

// Object is an ordered list of fields, standing in for map[string]any
// wherever collation order over field emission order matters.
type Object []Pair

// Normalize canonicalizes a decoded JSON value for collation and storage:
// NaN and +/-Inf collapse to nil (CouchDB has no way to represent them),
// integral float64s stay float64 (collation treats all numbers as reals),
// and nested slices/maps are walked recursively. Normalize is idempotent:
// Normalize(Normalize(v)) equals Normalize(v) for every v.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for i, p := range t {
			out[i] = Pair{Key: p.Key, Value: Normalize(p.Value)}
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, 0, len(keys))
		for _, k := range keys {
			out = append(out, Pair{Key: k, Value: Normalize(t[k])})
		}
		return out
	default:
		return t
	}
}

func rank(v any) kind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		if v.(bool) {
			return kindTrue
		}
		return kindFalse
	case float64:
		return kindNumber
	case string:
		return kindString
	case []any:
		return kindArray
	case Object:
		return kindObject
	default:
		return kindNull
	}
}

// Compare implements the total collation order:
//
//	null < false < true < numbers < strings < arrays < objects
//
// numbers compare numerically, strings compare by Unicode code point,
// arrays and objects compare element-wise with a shorter-prefix-sorts-first
// tiebreak, matching CouchDB's documented view collation. Inputs should
// already be Normalize'd; Compare does not normalize them itself so that
// repeated comparisons in a sort don't pay the normalization cost twice.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case kindNull, kindFalse, kindTrue:
		return 0
	case kindNumber:
		na, nb := a.(float64), b.(float64)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	case kindString:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	case kindArray:
		aa, ab := a.([]any), b.([]any)
		n := len(aa)
		if len(ab) < n {
			n = len(ab)
		}
		for i := 0; i < n; i++ {
			if c := Compare(aa[i], ab[i]); c != 0 {
				return c
			}
		}
		return intCompare(len(aa), len(ab))
	case kindObject:
		oa, ob := a.(Object), b.(Object)
		n := len(oa)
		if len(ob) < n {
			n = len(ob)
		}
		for i := 0; i < n; i++ {
			if c := stringCompare(oa[i].Key, ob[i].Key); c != 0 {
				return c
			}
			if c := Compare(oa[i].Value, ob[i].Value); c != 0 {
				return c
			}
		}
		return intCompare(len(oa), len(ob))
	default:
		return 0
	}
}

func intCompare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Byte tags for ToIndexableBytes. The value tags follow `kind` order so that
// the tag byte alone reproduces Compare's top-level ordering. tagEnd closes
// arrays and objects and sorts below every value tag, so an array or object
// that is a prefix of a longer one sorts first.
const (
	tagEnd byte = iota
	tagNull
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagArrayOpen
	tagObjectOpen
)

// ToIndexableBytes encodes a normalized value into a byte string whose
// bytewise lexicographic order matches Compare's order. Numbers are encoded
// via a sign-and-magnitude transform of their IEEE-754 bits so that negative
// numbers sort before positive ones and magnitude comparisons reduce to
// unsigned byte comparisons. Strings and object keys are NUL-terminated
// after escaping embedded NUL/0x01 bytes, so a short string never becomes a
// byte-prefix of a longer one that starts the same way.
func ToIndexableBytes(v any) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(tagNull)
	case bool:
		if t {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case float64:
		buf.WriteByte(tagNumber)
		buf.Write(encodeFloat(t))
	case string:
		buf.WriteByte(tagString)
		encodeString(buf, t)
	case []any:
		buf.WriteByte(tagArrayOpen)
		for _, e := range t {
			encodeValue(buf, e)
		}
		buf.WriteByte(tagEnd)
	case Object:
		buf.WriteByte(tagObjectOpen)
		for _, p := range t {
			buf.WriteByte(tagString)
			encodeString(buf, p.Key)
			encodeValue(buf, p.Value)
		}
		buf.WriteByte(tagEnd)
	default:
		buf.WriteByte(tagNull)
	}
}

// encodeString escapes 0x00 and 0x01 so the 0x00 terminator stays
// unambiguous, then appends the terminator.
func encodeString(buf *bytes.Buffer, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x00 || c == 0x01 {
			buf.WriteByte(0x01)
			buf.WriteByte(c + 1)
			continue
		}
		buf.WriteByte(c)
	}
	buf.WriteByte(0x00)
}

func encodeFloat(f float64) []byte {
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, bits)
	return out
}

// CompositeKey builds the on-disk row key for a single emitted row:
// [collatedKey, docID, collatedValue, emitIndex]. docID breaks ties between
// rows with equal emitted keys in document order; emitIndex breaks ties
// between multiple emits from the same document at the same key.
func CompositeKey(key any, docID string, value any, emitIndex int) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, Normalize(key))
	encodeString(&buf, docID)
	encodeValue(&buf, Normalize(value))
	buf.Write(encodeFloat(float64(emitIndex)))
	return buf.Bytes()
}

// KeyPrefix encodes just the leading [collatedKey] component of a composite
// key, used to build startkey/endkey range bounds that scan every row
// sharing a given emitted key regardless of docID/value/emitIndex.
func KeyPrefix(key any) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, Normalize(key))
	return buf.Bytes()
}

// UpperBound returns b followed by a 0xff byte. That sorts after every
// composite key whose leading component is b, because the docID encoded
// next is UTF-8 and never contains 0xff, letting callers build a half-open
// [b, UpperBound(b)) range out of KeyPrefix(endkey) for an inclusive
// endkey scan.
func UpperBound(b []byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	out[len(b)] = 0xff
	return out
}


