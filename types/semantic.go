// Package types is the semantic type registry: the closed set of domain
// column types, their native spelling per dialect, and the coercions between
// stored values and in-memory values.
package types

import (
	"fmt"
	"strings"
)

// Semantic is a domain-level column type, independent of any database's
// native type spelling.
type Semantic string

// Semantic column types.
const (
	Unknown   Semantic = ""
	ID        Semantic = "id"
	String    Semantic = "string"
	Text      Semantic = "text"
	Integer   Semantic = "integer"
	Double    Semantic = "double"
	Boolean   Semantic = "boolean"
	Date      Semantic = "date"
	Time      Semantic = "time"
	Timestamp Semantic = "timestamp"
	Datetime  Semantic = "datetime"
	Created   Semantic = "created"
	Modified  Semantic = "modified"
	Binary    Semantic = "binary"
	Hex       Semantic = "hex"
	IP4       Semantic = "ip4"
	Object    Semantic = "object"
	Serialize Semantic = "serialize"
	JSON      Semantic = "json"
)

// All lists every known semantic type in a stable order.
var All = []Semantic{
	ID, String, Text, Integer, Double, Boolean, Date, Time, Timestamp,
	Datetime, Created, Modified, Binary, Hex, IP4, Object, Serialize, JSON,
}

var aliases = map[string]Semantic{
	"ip":      IP4,
	"orm":     Object,
	"bool":    Boolean,
	"int":     Integer,
	"float":   Double,
	"real":    Double,
	"hex32":   Hex,
	"blob":    Binary,
	"varchar": String,
}

// ParseSemantic parses a declaration type tag such as "string" or "ip4".
func ParseSemantic(s string) (Semantic, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for _, t := range All {
		if string(t) == tag {
			return t, nil
		}
	}
	if t, ok := aliases[tag]; ok {
		return t, nil
	}
	return Unknown, fmt.Errorf("types: unknown column type %q", s)
}

// Valid reports whether t is a member of the closed semantic set.
func (t Semantic) Valid() bool {
	for _, s := range All {
		if s == t {
			return true
		}
	}
	return false
}

// IsNumeric reports whether values of t are written as unquoted literals.
func (t Semantic) IsNumeric() bool {
	switch t {
	case ID, Integer, Double, Boolean, IP4, Object:
		return true
	}
	return false
}

// IsTemporal reports whether t holds a date, time or timestamp.
func (t Semantic) IsTemporal() bool {
	switch t {
	case Date, Time, Timestamp, Datetime, Created, Modified:
		return true
	}
	return false
}

func mustValid(t Semantic) {
	if !t.Valid() {
		panic(fmt.Sprintf("types: unknown semantic type %q", string(t)))
	}
}
