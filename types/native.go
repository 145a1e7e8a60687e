package types

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ridoystarlord/schemasync/dialect"
)

// Spec is the native type descriptor of a semantic type on one dialect.
type Spec struct {
	Name     string // native type name, e.g. "varchar"
	Size     int    // default size, 0 when the type takes none
	Unsigned bool   // the native type accepts UNSIGNED
	Sized    bool   // size participates in type equality
}

// Native is a concrete native column type.
type Native struct {
	Name     string
	Size     int
	Unsigned bool
	// Raw is the catalog spelling, kept for types that cannot be rebuilt
	// from Name and Size (e.g. "decimal(10,2)", "enum('a','b')").
	Raw string
}

// String renders the native type as it appears in DDL.
func (n Native) String() string {
	if n.Raw != "" {
		return n.Raw
	}
	s := n.Name
	if n.Size > 0 {
		s += "(" + strconv.Itoa(n.Size) + ")"
	}
	if n.Unsigned {
		s += " unsigned"
	}
	return s
}

// IsZero reports whether n carries no type.
func (n Native) IsZero() bool { return n.Name == "" && n.Raw == "" }

type dialectTypes struct {
	natives map[Semantic]Spec
	reverse map[string]Semantic
	aliases map[string]string
	sized   map[string]bool
}

// forceUnsigned lists semantic types stored unsigned wherever the dialect allows it.
var forceUnsigned = map[Semantic]bool{ID: true, IP4: true, Object: true}

var registry = map[string]*dialectTypes{
	dialect.MySQL: {
		natives: map[Semantic]Spec{
			ID:        {Name: "int", Unsigned: true},
			String:    {Name: "varchar", Size: 255, Sized: true},
			Text:      {Name: "text"},
			Integer:   {Name: "int", Unsigned: true},
			Double:    {Name: "double", Unsigned: true},
			Boolean:   {Name: "tinyint", Size: 1, Sized: true},
			Date:      {Name: "date"},
			Time:      {Name: "time"},
			Timestamp: {Name: "timestamp"},
			Datetime:  {Name: "datetime"},
			Created:   {Name: "timestamp"},
			Modified:  {Name: "timestamp"},
			Binary:    {Name: "blob"},
			Hex:       {Name: "binary", Size: 16, Sized: true},
			IP4:       {Name: "int", Unsigned: true},
			Object:    {Name: "int", Unsigned: true},
			Serialize: {Name: "blob"},
			JSON:      {Name: "text"},
		},
		reverse: map[string]Semantic{
			"int": Integer, "bigint": Integer, "smallint": Integer, "mediumint": Integer,
			"tinyint": Integer, "bit": Integer,
			"varchar": String, "char": String,
			"text": Text, "tinytext": Text, "mediumtext": Text, "longtext": Text,
			"double": Double, "float": Double, "decimal": Double, "real": Double,
			"date": Date, "time": Time, "datetime": Datetime, "timestamp": Timestamp,
			"blob": Binary, "tinyblob": Binary, "mediumblob": Binary, "longblob": Binary,
			"varbinary": Binary, "binary": Hex,
			"json": JSON,
		},
		aliases: map[string]string{
			"integer":          "int",
			"bool":             "tinyint",
			"boolean":          "tinyint",
			"double precision": "double",
		},
		sized: map[string]bool{"varchar": true, "char": true, "binary": true, "varbinary": true, "tinyint": true},
	},
	dialect.SQLite: {
		natives: map[Semantic]Spec{
			ID:        {Name: "integer"},
			String:    {Name: "varchar", Size: 255, Sized: true},
			Text:      {Name: "text"},
			Integer:   {Name: "integer"},
			Double:    {Name: "double"},
			Boolean:   {Name: "boolean"},
			Date:      {Name: "date"},
			Time:      {Name: "time"},
			Timestamp: {Name: "timestamp"},
			Datetime:  {Name: "datetime"},
			Created:   {Name: "timestamp"},
			Modified:  {Name: "timestamp"},
			Binary:    {Name: "blob"},
			Hex:       {Name: "binary", Size: 16, Sized: true},
			IP4:       {Name: "integer"},
			Object:    {Name: "integer"},
			Serialize: {Name: "blob"},
			JSON:      {Name: "text"},
		},
		reverse: map[string]Semantic{
			"integer": Integer, "int": Integer, "bigint": Integer, "smallint": Integer, "tinyint": Integer,
			"boolean": Boolean,
			"varchar": String, "char": String, "character": String,
			"text": Text, "clob": Text,
			"double": Double, "real": Double, "float": Double, "numeric": Double, "decimal": Double,
			"date": Date, "time": Time, "datetime": Datetime, "timestamp": Timestamp,
			"blob": Binary, "binary": Hex,
			"json": JSON,
		},
		aliases: map[string]string{},
		sized:   map[string]bool{"varchar": true, "char": true, "character": true, "binary": true},
	},
	dialect.Postgres: {
		natives: map[Semantic]Spec{
			ID:        {Name: "integer"},
			String:    {Name: "character varying", Size: 255, Sized: true},
			Text:      {Name: "text"},
			Integer:   {Name: "integer"},
			Double:    {Name: "double precision"},
			Boolean:   {Name: "boolean"},
			Date:      {Name: "date"},
			Time:      {Name: "time without time zone"},
			Timestamp: {Name: "timestamp without time zone"},
			Datetime:  {Name: "timestamp without time zone"},
			Created:   {Name: "timestamp without time zone"},
			Modified:  {Name: "timestamp without time zone"},
			Binary:    {Name: "bytea"},
			Hex:       {Name: "bytea"},
			IP4:       {Name: "bigint"},
			Object:    {Name: "integer"},
			Serialize: {Name: "bytea"},
			JSON:      {Name: "jsonb"},
		},
		reverse: map[string]Semantic{
			"integer": Integer, "bigint": Integer, "smallint": Integer,
			"boolean":           Boolean,
			"character varying": String, "character": String,
			"text":             Text,
			"double precision": Double, "real": Double, "numeric": Double,
			"date":                        Date,
			"time without time zone":      Time,
			"timestamp without time zone": Timestamp,
			"timestamp with time zone":    Timestamp,
			"bytea":                       Binary,
			"jsonb":                       JSON, "json": JSON,
		},
		aliases: map[string]string{
			"int":         "integer",
			"int4":        "integer",
			"int8":        "bigint",
			"int2":        "smallint",
			"varchar":     "character varying",
			"char":        "character",
			"bool":        "boolean",
			"float8":      "double precision",
			"float4":      "real",
			"time":        "time without time zone",
			"timestamp":   "timestamp without time zone",
			"timestamptz": "timestamp with time zone",
		},
		sized: map[string]bool{"character varying": true, "character": true},
	},
}

func tablesFor(d string) *dialectTypes {
	dt, ok := registry[d]
	if !ok {
		panic("types: no native type table for dialect " + strconv.Quote(d))
	}
	return dt
}

// Lookup returns the native descriptor of t on dialect d. Unknown semantic
// types and dialects are programmer errors and panic.
func Lookup(d string, t Semantic) Spec {
	mustValid(t)
	return tablesFor(d).natives[t]
}

// Resolve returns the native type of a declared column.
func Resolve(d string, t Semantic, size int, unsigned bool) Native {
	spec := Lookup(d, t)
	n := Native{Name: spec.Name}
	if spec.Sized {
		n.Size = spec.Size
		if size > 0 {
			n.Size = size
		}
	}
	if spec.Unsigned && (unsigned || forceUnsigned[t]) {
		n.Unsigned = true
	}
	return n
}

var nativePattern = regexp.MustCompile(`^([a-z][a-z0-9_ ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*\d+\s*)?\))?\s*(unsigned)?\s*(?:zerofill)?$`)

// Parse parses a catalog type spelling such as "int(10) unsigned" or
// "character varying". Names are normalized through the dialect's aliases.
func Parse(d string, raw string) Native {
	s := strings.ToLower(strings.TrimSpace(raw))
	m := nativePattern.FindStringSubmatch(s)
	if m == nil {
		name := s
		if i := strings.IndexByte(s, '('); i > 0 {
			name = strings.TrimSpace(s[:i])
		}
		return Native{Name: normalize(d, name), Raw: raw}
	}
	n := Native{Name: normalize(d, m[1]), Unsigned: m[3] != ""}
	if m[2] != "" {
		n.Size, _ = strconv.Atoi(m[2])
	}
	return n
}

func normalize(d, name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if a, ok := tablesFor(d).aliases[name]; ok {
		return a
	}
	return name
}

// SemanticOf maps a native type back to the closest semantic type.
func SemanticOf(d string, n Native) (Semantic, bool) {
	dt := tablesFor(d)
	name := normalize(d, n.Name)
	if d == dialect.MySQL && name == "tinyint" && n.Size == 1 {
		return Boolean, true
	}
	t, ok := dt.reverse[name]
	return t, ok
}

// Equal reports whether two native types are the same column type. Sizes
// are compared only for types whose size matters (integer display widths
// are ignored).
func Equal(d string, a, b Native) bool {
	if a.Raw != "" && b.Raw != "" {
		return strings.EqualFold(a.Raw, b.Raw)
	}
	na, nb := normalize(d, a.Name), normalize(d, b.Name)
	if na != nb || a.Unsigned != b.Unsigned {
		return false
	}
	if tablesFor(d).sized[na] {
		return a.Size == b.Size
	}
	return true
}
