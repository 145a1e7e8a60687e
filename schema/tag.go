package schema

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// FieldTag is a parsed `schemasync:"..."` struct tag, e.g.
// `schemasync:"column:name;type:string;size:64;null;default:anon;unique"`.
type FieldTag struct {
	Ignore     bool
	Column     string
	Type       string
	Size       int
	Nullable   bool
	Unsigned   bool
	Primary    bool
	Unique     bool
	Index      string // index name, "" when the field is not indexed
	Default    *string
	Previous   string
	References string // entity name of a has-one reference
	Find       bool
}

// ParseFieldTag parses the tag grammar used for struct based declarations.
func ParseFieldTag(tag string) (FieldTag, error) {
	var ft FieldTag
	if tag == "-" {
		ft.Ignore = true
		return ft, nil
	}

	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		// Handle key-value pairs
		if key, value, ok := strings.Cut(part, ":"); ok {
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			switch key {
			case "column":
				ft.Column = value
			case "type":
				ft.Type = value
			case "size":
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return ft, fmt.Errorf("invalid size %q", value)
				}
				ft.Size = n
			case "default":
				ft.Default = &value
			case "previous":
				ft.Previous = value
			case "ref":
				ft.References = value
			case "index":
				ft.Index = value
			default:
				return ft, fmt.Errorf("unknown tag key %q", key)
			}
			continue
		}

		// Handle boolean flags
		switch part {
		case "primary":
			ft.Primary = true
		case "unique":
			ft.Unique = true
		case "null":
			ft.Nullable = true
		case "unsigned":
			ft.Unsigned = true
		case "find":
			ft.Find = true
		case "index":
			ft.Index = "-"
		default:
			return ft, fmt.Errorf("unknown tag flag %q", part)
		}
	}
	return ft, nil
}

// ToSnakeCase converts PascalCase to snake_case.
func ToSnakeCase(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return b.String()
}

// TableName derives the default table name of an entity.
func TableName(entity string) string {
	name := ToSnakeCase(entity)

	// Simple pluralization rules
	switch {
	case strings.HasSuffix(name, "y") && !strings.HasSuffix(name, "ey"):
		return strings.TrimSuffix(name, "y") + "ies"
	case strings.HasSuffix(name, "s"):
		return name
	}
	return name + "s"
}

// IndexName derives the default name of an index over cols.
func IndexName(table string, cols ...string) string {
	return fmt.Sprintf("idx_%s_%s", table, strings.Join(cols, "_"))
}
