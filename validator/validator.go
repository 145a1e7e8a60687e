// Package validator checks entity declarations before they are planned.
package validator

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/loader"
	"github.com/ridoystarlord/schemasync/types"
)

// Severity levels of a finding.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// maxIdentifierLength is the MySQL limit; PostgreSQL truncates past 63.
const maxIdentifierLength = 64

// ValidationError represents a validation error with details
type ValidationError struct {
	Type     string `json:"type"`
	Entity   string `json:"entity,omitempty"`
	Table    string `json:"table,omitempty"`
	Column   string `json:"column,omitempty"`
	Index    string `json:"index,omitempty"`
	Source   string `json:"source,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error", "warning", "info"
}

func (e ValidationError) String() string {
	pos := e.Source
	if e.Line > 0 {
		pos = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	if pos == "" {
		return fmt.Sprintf("%s: %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", pos, e.Severity, e.Message)
}

// ValidationResult contains all validation results
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
	Info     []ValidationError `json:"info"`
}

func (r *ValidationResult) add(v ValidationError) {
	switch v.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, v)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, v)
	default:
		r.Info = append(r.Info, v)
	}
}

// Err joins the errors of the result, or returns nil when it is valid.
func (r *ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = errors.New(e.String())
	}
	return errors.Join(errs...)
}

var reservedKeywords = map[string]bool{
	"user": true, "order": true, "group": true, "table": true, "index": true,
	"view": true, "schema": true, "select": true, "from": true, "where": true,
	"key": true, "primary": true, "references": true, "default": true,
}

// Validate checks every entity of doc. It never touches a database.
func Validate(doc *loader.Document) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
		Info:     []ValidationError{},
	}

	entities := make(map[string]*loader.EntityDef, len(doc.Entities))
	tables := make(map[string]string, len(doc.Entities))
	for i := range doc.Entities {
		e := &doc.Entities[i]
		if _, dup := entities[e.Name]; dup {
			result.add(finding(e, e.Line, "duplicate_entity", SeverityError, "Entity '%s' is declared more than once", e.Name))
			continue
		}
		entities[e.Name] = e

		table := e.TableName()
		if other, dup := tables[table]; dup {
			result.add(finding(e, e.Line, "duplicate_table", SeverityError, "Entities '%s' and '%s' share table '%s'", other, e.Name, table))
		}
		tables[table] = e.Name
	}

	for i := range doc.Entities {
		validateEntity(&doc.Entities[i], entities, result)
	}

	if len(result.Errors) == 0 {
		validateCycles(doc, result)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func finding(e *loader.EntityDef, line int, kind, severity, format string, args ...any) ValidationError {
	return ValidationError{
		Type:     kind,
		Entity:   e.Name,
		Table:    e.TableName(),
		Source:   e.Source,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
	}
}

// validateEntity validates a single entity
func validateEntity(e *loader.EntityDef, entities map[string]*loader.EntityDef, result *ValidationResult) {
	table := e.TableName()
	if err := validateIdentifier("table", table); err != nil {
		result.add(finding(e, e.Line, "table_name", SeverityError, "%v", err))
	} else if reservedKeywords[strings.ToLower(table)] {
		result.add(finding(e, e.Line, "reserved_keyword", SeverityInfo, "Table name '%s' is a reserved keyword and will always be quoted", table))
	}

	idColumn := e.IDColumn
	if idColumn == "" {
		idColumn = "id"
	}
	columns := map[string]types.Semantic{idColumn: types.ID}
	seen := map[string]bool{}

	for _, c := range e.Columns {
		if seen[c.Name] {
			v := finding(e, c.Line, "duplicate_column", SeverityError, "Duplicate column name '%s' in table '%s'", c.Name, table)
			v.Column = c.Name
			result.add(v)
			continue
		}
		seen[c.Name] = true

		if err := validateIdentifier("column", c.Name); err != nil {
			v := finding(e, c.Line, "column_name", SeverityError, "%v", err)
			v.Column = c.Name
			result.add(v)
		}

		t, err := types.ParseSemantic(c.Type)
		if err != nil {
			v := finding(e, c.Line, "data_type", SeverityError, "Column '%s' has unknown type '%s'", c.Name, c.Type)
			v.Column = c.Name
			result.add(v)
			continue
		}
		columns[c.Name] = t

		if t == types.ID && c.Name != idColumn {
			v := finding(e, c.Line, "data_type", SeverityError, "Column '%s' uses type id but is not the identifier column", c.Name)
			v.Column = c.Name
			result.add(v)
		}
		if c.Default != nil {
			validateDefault(e, c.Name, c.Line, t, *c.Default, result)
		}
		if c.Previous != "" && c.Previous == c.Name {
			v := finding(e, c.Line, "rename", SeverityWarning, "Column '%s' names itself as its previous name", c.Name)
			v.Column = c.Name
			result.add(v)
		}

		if c.References != "" {
			if t != types.Object {
				v := finding(e, c.Line, "foreign_key", SeverityError, "Column '%s' references '%s' but is of type %s, not object", c.Name, c.References, t)
				v.Column = c.Name
				result.add(v)
			}
			if _, ok := entities[c.References]; !ok {
				v := finding(e, c.Line, "foreign_key_entity_not_found", SeverityError, "Column '%s' references non-existent entity '%s'", c.Name, c.References)
				v.Column = c.Name
				result.add(v)
			}
		} else if t == types.Object {
			v := finding(e, c.Line, "foreign_key", SeverityWarning, "Column '%s' is of type object but references no entity", c.Name)
			v.Column = c.Name
			result.add(v)
		}
	}

	for _, col := range slices.Sorted(maps.Keys(e.ColumnDefaults)) {
		value := e.ColumnDefaults[col]
		t, ok := columns[col]
		if !ok {
			v := finding(e, e.Line, "default_column_not_found", SeverityError, "Default given for non-existent column '%s'", col)
			v.Column = col
			result.add(v)
			continue
		}
		validateDefault(e, col, e.Line, t, value, result)
	}

	for _, k := range e.FindKeys {
		if _, ok := columns[k]; !ok {
			v := finding(e, e.Line, "find_key_not_found", SeverityError, "Find key references non-existent column '%s'", k)
			v.Column = k
			result.add(v)
		}
	}

	validateIndexes(e, columns, result)

	for _, rel := range e.HasMany {
		target, ok := entities[rel.Entity]
		if rel.Entity == "" || !ok {
			result.add(finding(e, rel.Line, "has_many_entity_not_found", SeverityError, "Relation '%s' targets non-existent entity '%s'", rel.Alias, rel.Entity))
			continue
		}
		if rel.Link == "" {
			fk := rel.ForeignKey
			if fk == "" {
				continue
			}
			if _, ok := target.Column(fk); !ok {
				result.add(finding(e, rel.Line, "has_many_key_not_found", SeverityError, "Relation '%s' uses non-existent column '%s' of '%s'", rel.Alias, fk, rel.Entity))
			}
			continue
		}
		if err := validateIdentifier("link table", rel.Link); err != nil {
			result.add(finding(e, rel.Line, "table_name", SeverityError, "%v", err))
		}
	}
}

// validateIndexes validates indexes in an entity
func validateIndexes(e *loader.EntityDef, columns map[string]types.Semantic, result *ValidationResult) {
	names := make(map[string]bool)
	for _, idx := range e.Indexes {
		if idx.Name != "" {
			if names[idx.Name] {
				v := finding(e, idx.Line, "duplicate_index", SeverityError, "Duplicate index name '%s' in table '%s'", idx.Name, e.TableName())
				v.Index = idx.Name
				result.add(v)
				continue
			}
			names[idx.Name] = true
			if err := validateIdentifier("index", idx.Name); err != nil {
				v := finding(e, idx.Line, "index_name", SeverityError, "%v", err)
				v.Index = idx.Name
				result.add(v)
			}
		}
		if len(idx.Columns) == 0 {
			v := finding(e, idx.Line, "index_columns", SeverityError, "Index '%s' has no columns", idx.Name)
			v.Index = idx.Name
			result.add(v)
		}
		for _, col := range idx.Columns {
			if _, ok := columns[col]; !ok {
				v := finding(e, idx.Line, "index_column_not_found", SeverityError, "Index '%s' references non-existent column '%s' in table '%s'", idx.Name, col, e.TableName())
				v.Index = idx.Name
				v.Column = col
				result.add(v)
			}
		}
	}
}

// validateDefault checks that a default is representable in its column type.
func validateDefault(e *loader.EntityDef, column string, line int, t types.Semantic, value string, result *ValidationResult) {
	switch t {
	case types.ID:
		v := finding(e, line, "default_value", SeverityWarning, "Identifier column '%s' ignores its default", column)
		v.Column = column
		result.add(v)
		return
	case types.Serialize, types.JSON, types.Binary:
		return
	case types.Timestamp, types.Datetime, types.Created, types.Modified:
		if strings.EqualFold(value, "CURRENT_TIMESTAMP") || strings.EqualFold(value, "now()") {
			return
		}
	}
	if _, err := types.ToStorage(t, value); err != nil {
		v := finding(e, line, "default_value", SeverityWarning, "Default '%s' of column '%s' is not a valid %s: %v", value, column, t, err)
		v.Column = column
		result.add(v)
	}
}

// validateCycles builds the catalog and reports foreign key cycles. Tables
// on a cycle cannot be created in the same run.
func validateCycles(doc *loader.Document, result *ValidationResult) {
	c, err := doc.Catalog()
	if err != nil {
		v := ValidationError{Type: "declaration", Source: doc.Source, Message: err.Error(), Severity: SeverityError}
		var le *loader.Error
		if errors.As(err, &le) {
			v.Source, v.Line, v.Message = le.Source, le.Line, le.Msg
		}
		result.add(v)
		return
	}
	tables, err := c.Tables()
	if err != nil {
		result.add(ValidationError{Type: "declaration", Source: doc.Source, Message: err.Error(), Severity: SeverityError})
		return
	}
	result.Info = append(result.Info, ValidationError{
		Type:     "tables",
		Source:   doc.Source,
		Message:  fmt.Sprintf("%d entities declare %d tables", len(doc.Entities), len(tables)),
		Severity: SeverityInfo,
	})
	if cyclic, path := diff.DependencyGraph(tables).HasCycle(); cyclic {
		result.add(ValidationError{
			Type:     "foreign_key_cycle",
			Table:    path[0],
			Source:   doc.Source,
			Message:  (&diff.CycleError{Path: path}).Error(),
			Severity: SeverityWarning,
		})
	}
}

// validateIdentifier validates identifier format
func validateIdentifier(what, name string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", what)
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%s name '%s' is too long (max %d characters)", what, name, maxIdentifierLength)
	}
	for i, char := range name {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9' && i > 0) || char == '_') {
			return fmt.Errorf("%s name '%s' contains invalid character '%c'", what, name, char)
		}
	}
	return nil
}
