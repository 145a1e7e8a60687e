package loader

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a declarations file.
func LoadYAML(filename string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return ParseYAML(filename, data)
}

// ParseYAML parses declarations, keeping column order as written:
//
//	entities:
//	  - name: User
//	    table: users
//	    columns:
//	      name: {type: string, size: 64}
//	      group: {type: object, references: Group}
//	    column_defaults: {name: anon}
//	    find_keys: [name]
//	    indexes: {users_name: [name]}
//	    unique_keys: {users_email: [email]}
//	    has_many:
//	      tags: {entity: Tag, link: user_tags, foreign_key: user, far_key: tag}
func ParseYAML(source string, data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("unmarshalling YAML: %w", err)
	}
	p := yamlParser{source: source}
	doc := &Document{Source: source}
	if len(root.Content) == 0 {
		return doc, nil
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, p.errorf(top, "expected a mapping with an entities list")
	}
	err := p.each(top, func(key string, v *yaml.Node) error {
		if key != "entities" {
			return p.errorf(v, "unknown key %q", key)
		}
		if v.Kind != yaml.SequenceNode {
			return p.errorf(v, "entities must be a list")
		}
		for _, n := range v.Content {
			e, err := p.entity(n)
			if err != nil {
				return err
			}
			doc.Entities = append(doc.Entities, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type yamlParser struct{ source string }

func (p yamlParser) errorf(n *yaml.Node, format string, args ...any) error {
	return &Error{Source: p.source, Line: n.Line, Msg: fmt.Sprintf(format, args...)}
}

// each visits the pairs of a mapping node in document order.
func (p yamlParser) each(n *yaml.Node, fn func(key string, v *yaml.Node) error) error {
	if n.Kind != yaml.MappingNode {
		return p.errorf(n, "expected a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i].Value, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func (p yamlParser) scalar(n *yaml.Node, what string) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", p.errorf(n, "%s must be a scalar", what)
	}
	return n.Value, nil
}

func (p yamlParser) list(n *yaml.Node, what string) ([]string, error) {
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, p.errorf(n, "%s must be a list", what)
	}
	out := make([]string, 0, len(n.Content))
	for _, c := range n.Content {
		s, err := p.scalar(c, what)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p yamlParser) boolean(n *yaml.Node, what string) (bool, error) {
	var b bool
	if err := n.Decode(&b); err != nil {
		return false, p.errorf(n, "%s must be a boolean", what)
	}
	return b, nil
}

func (p yamlParser) entity(n *yaml.Node) (EntityDef, error) {
	e := EntityDef{Source: p.source, Line: n.Line}
	err := p.each(n, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "name":
			e.Name, err = p.scalar(v, key)
		case "table":
			e.Table, err = p.scalar(v, key)
		case "id_column":
			e.IDColumn, err = p.scalar(v, key)
		case "columns":
			err = p.each(v, func(name string, cv *yaml.Node) error {
				c, err := p.column(name, cv)
				e.Columns = append(e.Columns, c)
				return err
			})
		case "column_defaults":
			e.ColumnDefaults = map[string]string{}
			err = p.each(v, func(col string, dv *yaml.Node) error {
				s, err := p.scalar(dv, "default")
				e.ColumnDefaults[col] = s
				return err
			})
		case "find_keys":
			e.FindKeys, err = p.list(v, key)
		case "indexes", "unique_keys":
			err = p.each(v, func(name string, iv *yaml.Node) error {
				cols, err := p.list(iv, "index columns")
				e.Indexes = append(e.Indexes, IndexDef{Name: name, Columns: cols, Unique: key == "unique_keys", Line: iv.Line})
				return err
			})
		case "has_many":
			err = p.each(v, func(alias string, rv *yaml.Node) error {
				rel, err := p.hasMany(alias, rv)
				e.HasMany = append(e.HasMany, rel)
				return err
			})
		default:
			err = p.errorf(v, "unknown entity key %q", key)
		}
		return err
	})
	if err != nil {
		return e, err
	}
	if e.Name == "" {
		return e, p.errorf(n, "entity has no name")
	}
	return e, nil
}

// column accepts the short form `name: string` or a mapping.
func (p yamlParser) column(name string, n *yaml.Node) (ColumnDef, error) {
	c := ColumnDef{Name: name, Line: n.Line}
	if n.Kind == yaml.ScalarNode {
		c.Type = n.Value
		return c, nil
	}
	err := p.each(n, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "type":
			c.Type, err = p.scalar(v, key)
		case "size":
			var s string
			if s, err = p.scalar(v, key); err == nil {
				if c.Size, err = strconv.Atoi(s); err != nil || c.Size <= 0 {
					err = p.errorf(v, "column %s: invalid size %q", name, s)
				}
			}
		case "null", "nullable":
			c.Nullable, err = p.boolean(v, key)
		case "unsigned":
			c.Unsigned, err = p.boolean(v, key)
		case "default":
			var s string
			if s, err = p.scalar(v, key); err == nil {
				c.Default = &s
			}
		case "previous":
			c.Previous, err = p.scalar(v, key)
		case "references":
			c.References, err = p.scalar(v, key)
		default:
			err = p.errorf(v, "column %s: unknown key %q", name, key)
		}
		return err
	})
	if err == nil && c.Type == "" {
		err = p.errorf(n, "column %s has no type", name)
	}
	return c, err
}

func (p yamlParser) hasMany(alias string, n *yaml.Node) (HasManyDef, error) {
	rel := HasManyDef{Alias: alias, Line: n.Line}
	if n.Kind == yaml.ScalarNode {
		rel.Entity = n.Value
		return rel, nil
	}
	err := p.each(n, func(key string, v *yaml.Node) error {
		var err error
		switch key {
		case "entity":
			rel.Entity, err = p.scalar(v, key)
		case "link":
			rel.Link, err = p.scalar(v, key)
		case "foreign_key":
			rel.ForeignKey, err = p.scalar(v, key)
		case "far_key":
			rel.FarKey, err = p.scalar(v, key)
		default:
			err = p.errorf(v, "has-many %s: unknown key %q", alias, key)
		}
		return err
	})
	return rel, err
}
