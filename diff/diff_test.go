package diff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
)

var mysqlOpts = Options{Dialect: dialect.MySQL}

// live turns a declared table into what introspection reports once it has
// been created.
func live(d string, t *schema.TableSpec) *schema.TableSpec {
	out := t.Clone()
	out.ForeignKeys = nil
	for i := range out.Columns {
		c := &out.Columns[i]
		c.Native = types.Parse(d, c.NativeType(d).String())
		c.Type, _ = types.SemanticOf(d, c.Native)
		c.PreviousName = ""
	}
	return out
}

func liveAll(d string, tables ...*schema.TableSpec) map[string]*schema.TableSpec {
	out := map[string]*schema.TableSpec{}
	for _, t := range tables {
		out[t.Name] = live(d, t)
	}
	return out
}

func tables(t *testing.T, decls ...*schema.EntityDeclaration) []*schema.TableSpec {
	c, err := schema.NewCatalog(decls...)
	require.NoError(t, err)
	ts, err := c.Tables()
	require.NoError(t, err)
	return ts
}

func opTypes(ops []Operation) []OperationType {
	out := make([]OperationType, len(ops))
	for i, op := range ops {
		out[i] = op.Type
	}
	return out
}

func TestCreateThenAlter(t *testing.T) {
	user := func(size int) *schema.EntityDeclaration {
		return schema.NewEntity("User").Column("name", types.String, schema.Size(size)).MustBuild()
	}

	declared := tables(t, user(64))
	ops, err := Plan(declared, map[string]*schema.TableSpec{}, mysqlOpts)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, CreateTable, ops[0].Type)
	assert.Equal(t, "users", ops[0].Table)
	assert.Equal(t, []string{"id", "name"}, ops[0].Spec.ColumnNames())

	actual := liveAll(dialect.MySQL, declared...)
	ops, err = Plan(declared, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Empty(t, ops)

	ops, err = Plan(tables(t, user(128)), actual, mysqlOpts)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, AlterColumn, ops[0].Type)
	assert.Equal(t, "name", ops[0].Column.Name)
	assert.Equal(t, 128, ops[0].Column.Size)
	assert.Equal(t, 64, ops[0].Previous.Native.Size)
}

func TestIdempotentAcrossDialects(t *testing.T) {
	group := schema.NewEntity("Group").Column("title", types.String).MustBuild()
	user := schema.NewEntity("User").
		Column("name", types.String, schema.Size(64), schema.Default("anon")).
		Column("active", types.Boolean, schema.Default("1")).
		Column("score", types.Double, schema.Nullable()).
		Column("ip", types.IP4).
		Column("seen", types.Timestamp, schema.Nullable()).
		Column("payload", types.Serialize, schema.Nullable()).
		Column("token", types.Hex).
		HasOne("group", "Group").
		HasMany("tags", schema.HasMany{Entity: "Tag", Link: "user_tags"}).
		Unique("", "name").
		MustBuild()
	tag := schema.NewEntity("Tag").MustBuild()
	declared := tables(t, user, group, tag)

	for _, d := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres} {
		ops, err := Plan(declared, liveAll(d, declared...), Options{Dialect: d, DropExtraColumns: true, DropExtraIndexes: true})
		require.NoError(t, err, d)
		assert.Empty(t, ops, d)
	}
}

func TestCreateOrderFollowsForeignKeys(t *testing.T) {
	post := schema.NewEntity("Post").HasOne("author", "User").MustBuild()
	user := schema.NewEntity("User").HasOne("group", "Group").MustBuild()
	group := schema.NewEntity("Group").MustBuild()
	misc := schema.NewEntity("Misc").MustBuild()

	ops, err := Plan(tables(t, post, misc, user, group), nil, mysqlOpts)
	require.NoError(t, err)

	var order []string
	for _, op := range ops {
		order = append(order, op.Table)
	}
	assert.Equal(t, []string{"misc", "groups", "users", "posts"}, order)
}

func TestCreateOrderWithExistingDependency(t *testing.T) {
	group := schema.NewEntity("Group").MustBuild()
	user := schema.NewEntity("User").HasOne("group", "Group").MustBuild()
	declared := tables(t, user, group)

	ops, err := Plan(declared, liveAll(dialect.MySQL, declared[1]), mysqlOpts)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "users", ops[0].Table)
}

func TestSelfReferenceIsNotACycle(t *testing.T) {
	node := schema.NewEntity("Node").HasOne("parent", "Node").MustBuild()
	ops, err := Plan(tables(t, node), nil, mysqlOpts)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestCycleIsFatal(t *testing.T) {
	a := schema.NewEntity("A").HasOne("b", "B").MustBuild()
	b := schema.NewEntity("B").HasOne("a", "A").MustBuild()

	ops, err := Plan(tables(t, a, b), nil, mysqlOpts)
	assert.Nil(t, ops)
	require.ErrorIs(t, err, ErrSchemaCycle)
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ce.Path[0], ce.Path[len(ce.Path)-1])

	// the same cycle is harmless once both tables exist
	declared := tables(t, a, b)
	ops, err = Plan(declared, liveAll(dialect.MySQL, declared...), mysqlOpts)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestRenameDetection(t *testing.T) {
	before := tables(t, schema.NewEntity("User").Column("login", types.String).MustBuild())
	actual := liveAll(dialect.MySQL, before...)

	after := tables(t, schema.NewEntity("User").Column("username", types.String, schema.PreviousName("login")).MustBuild())
	ops, err := Plan(after, actual, Options{Dialect: dialect.MySQL, DropExtraColumns: true})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, RenameColumn, ops[0].Type)
	assert.Equal(t, "login", ops[0].Previous.Name)
	assert.Equal(t, "username", ops[0].Column.Name)
	assert.Equal(t, "RENAME_COLUMN users.login -> username", ops[0].String())

	// the hint is stale once applied
	ops, err = Plan(after, liveAll(dialect.MySQL, after...), Options{Dialect: dialect.MySQL, DropExtraColumns: true})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestRenameWithTypeChange(t *testing.T) {
	before := tables(t, schema.NewEntity("User").Column("login", types.String, schema.Size(32)).Index("", "login").MustBuild())
	actual := liveAll(dialect.MySQL, before...)

	after := tables(t, schema.NewEntity("User").
		Column("username", types.String, schema.Size(64), schema.PreviousName("login")).
		Index("idx_users_login", "username").
		MustBuild())
	ops, err := Plan(after, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Equal(t, []OperationType{RenameColumn, AlterColumn}, opTypes(ops))
	assert.Equal(t, "username", ops[1].Previous.Name)
}

func TestRenameHintConsumedOnce(t *testing.T) {
	actual := liveAll(dialect.MySQL, tables(t, schema.NewEntity("User").Column("old", types.String).MustBuild())...)
	after := tables(t, schema.NewEntity("User").
		Column("first", types.String, schema.PreviousName("old")).
		Column("second", types.String, schema.PreviousName("old")).
		MustBuild())

	ops, err := Plan(after, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Equal(t, []OperationType{RenameColumn, AddColumn}, opTypes(ops))
	assert.Equal(t, "second", ops[1].Column.Name)
}

func TestRenameSkippedWhenNewNameExists(t *testing.T) {
	actual := liveAll(dialect.MySQL, tables(t, schema.NewEntity("User").
		Column("old", types.String).Column("new", types.String).MustBuild())...)
	after := tables(t, schema.NewEntity("User").Column("new", types.String, schema.PreviousName("old")).MustBuild())

	ops, err := Plan(after, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDropExtraColumnsIsOptIn(t *testing.T) {
	actual := liveAll(dialect.MySQL, tables(t, schema.NewEntity("User").
		Column("name", types.String).Column("legacy", types.Text).Index("", "legacy").MustBuild())...)
	declared := tables(t, schema.NewEntity("User").Column("name", types.String).MustBuild())

	ops, err := Plan(declared, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Empty(t, ops)

	ops, err = Plan(declared, actual, Options{Dialect: dialect.MySQL, DropExtraColumns: true})
	require.NoError(t, err)
	assert.Equal(t, []OperationType{DropIndex, DropColumn}, opTypes(ops))
	assert.Equal(t, "legacy", ops[1].Column.Name)
}

func TestIndexChanges(t *testing.T) {
	actual := liveAll(dialect.MySQL, tables(t, schema.NewEntity("User").
		Column("a", types.Integer).Column("b", types.Integer).
		Index("by_a", "a").Index("stale", "b").Unique("u", "a", "b").MustBuild())...)
	declared := tables(t, schema.NewEntity("User").
		Column("a", types.Integer).Column("b", types.Integer).
		Index("by_a", "a").Unique("u", "b", "a").Index("by_b", "b").MustBuild())

	ops, err := Plan(declared, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Equal(t, []OperationType{DropIndex, AddIndex, AddIndex}, opTypes(ops))
	assert.Equal(t, "u", ops[0].Index.Name)
	assert.Equal(t, []string{"b", "a"}, ops[1].Index.Columns)
	assert.Equal(t, "by_b", ops[2].Index.Name)

	ops, err = Plan(declared, actual, Options{Dialect: dialect.MySQL, DropExtraIndexes: true})
	require.NoError(t, err)
	assert.Equal(t, []OperationType{DropIndex, DropIndex, AddIndex, AddIndex}, opTypes(ops))
	assert.Equal(t, "stale", ops[1].Index.Name)
}

func TestPrimaryKeyMatchedByKind(t *testing.T) {
	declared := tables(t, schema.NewEntity("User").MustBuild())
	actual := liveAll(dialect.SQLite, declared...)
	actual["users"].Indexes[0].Name = "sqlite_autoindex_users_1"

	ops, err := Plan(declared, actual, Options{Dialect: dialect.SQLite, DropExtraIndexes: true})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestUnmappedColumnsAreSkipped(t *testing.T) {
	declared := tables(t, schema.NewEntity("Place").Column("name", types.String).MustBuild())
	actual := liveAll(dialect.MySQL, declared...)
	actual["places"].Columns = append(actual["places"].Columns, schema.ColumnSpec{
		Name: "shape", Type: types.Unknown, Native: types.Parse(dialect.MySQL, "geometry"),
	})
	actual["places"].Columns[1].Type = types.Unknown

	ops, err := Plan(declared, actual, Options{Dialect: dialect.MySQL, DropExtraColumns: true})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDefaultsComparedOnlyWhenDeclared(t *testing.T) {
	declared := tables(t, schema.NewEntity("User").Column("n", types.Integer).Column("b", types.Boolean).MustBuild())
	actual := liveAll(dialect.MySQL, declared...)
	zero, one := "0", "1"
	actual["users"].Columns[1].Default = &zero

	ops, err := Plan(declared, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Empty(t, ops)

	declared = tables(t, schema.NewEntity("User").
		Column("n", types.Integer, schema.Default("0.0")).
		Column("b", types.Boolean, schema.Default("true")).MustBuild())
	actual["users"].Columns[2].Default = &one
	ops, err = Plan(declared, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Empty(t, ops)

	declared = tables(t, schema.NewEntity("User").
		Column("n", types.Integer, schema.Default("5")).
		Column("b", types.Boolean).MustBuild())
	ops, err = Plan(declared, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Equal(t, []OperationType{AlterColumn}, opTypes(ops))
}

func TestNullabilityChange(t *testing.T) {
	actual := liveAll(dialect.Postgres, tables(t, schema.NewEntity("User").Column("bio", types.Text).MustBuild())...)
	declared := tables(t, schema.NewEntity("User").Column("bio", types.Text, schema.Nullable()).MustBuild())

	ops, err := Plan(declared, actual, Options{Dialect: dialect.Postgres})
	require.NoError(t, err)
	assert.Equal(t, []OperationType{AlterColumn}, opTypes(ops))
}

func TestOperationOrderPerTable(t *testing.T) {
	actual := liveAll(dialect.SQLite, tables(t, schema.NewEntity("User").
		Column("old", types.String).Column("size", types.String, schema.Size(10)).
		Column("gone", types.Text).Index("ix", "size").MustBuild())...)
	declared := tables(t, schema.NewEntity("User").
		Column("new", types.String, schema.PreviousName("old")).
		Column("size", types.String, schema.Size(20)).
		Column("added", types.Integer, schema.Nullable()).
		Index("ix", "size", "new").MustBuild())

	ops, err := Plan(declared, actual, Options{Dialect: dialect.SQLite, DropExtraColumns: true})
	require.NoError(t, err)
	assert.Equal(t, []OperationType{RenameColumn, DropIndex, AddColumn, AlterColumn, DropColumn, AddIndex}, opTypes(ops))

	alter := ops[3]
	require.Len(t, alter.Extra, 1)
	assert.Equal(t, "gone", alter.Extra[0].Name)
}

func TestMissingDialect(t *testing.T) {
	_, err := Plan(nil, nil, Options{})
	assert.ErrorIs(t, err, ErrNoDialect)
}

func TestInvert(t *testing.T) {
	actual := liveAll(dialect.MySQL, tables(t, schema.NewEntity("User").
		Column("old", types.String).Column("size", types.String, schema.Size(10)).MustBuild())...)
	declared := tables(t,
		schema.NewEntity("User").
			Column("new", types.String, schema.PreviousName("old")).
			Column("size", types.String, schema.Size(20)).
			Column("added", types.Integer).
			Index("", "added").MustBuild(),
		schema.NewEntity("Tag").MustBuild(),
	)

	ops, err := Plan(declared, actual, mysqlOpts)
	require.NoError(t, err)
	assert.Equal(t, []OperationType{CreateTable, RenameColumn, AddColumn, AlterColumn, AddIndex}, opTypes(ops))

	inv := Invert(ops)
	assert.Equal(t, []OperationType{DropIndex, AlterColumn, DropColumn, RenameColumn, DropTable}, opTypes(inv))
	assert.Equal(t, 10, inv[1].Column.Native.Size)
	assert.Equal(t, 20, inv[1].Previous.Size)
	assert.Equal(t, "old", inv[3].Column.Name)
	assert.Equal(t, "new", inv[3].Previous.Name)
	assert.Equal(t, "tags", inv[4].Table)
	assert.Equal(t, []OperationType{CreateTable, RenameColumn, AddColumn, AlterColumn, AddIndex}, opTypes(Invert(inv)))
}

func TestDefaultsEqual(t *testing.T) {
	assert.True(t, DefaultsEqual(types.Boolean, "TRUE", "1"))
	assert.False(t, DefaultsEqual(types.Boolean, "0", "1"))
	assert.True(t, DefaultsEqual(types.Double, "1.50", "1.5"))
	assert.True(t, DefaultsEqual(types.Timestamp, "CURRENT_TIMESTAMP", "current_timestamp()"))
	assert.False(t, DefaultsEqual(types.String, "a", "A"))
}

func TestGraph(t *testing.T) {
	g := NewGraph()
	g.AddNode("c")
	g.AddNode("b")
	g.AddNode("a")
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "b"))
	assert.Error(t, g.AddEdge("a", "missing"))
	assert.Equal(t, []string{"a"}, g.Parents("b"))

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)

	require.NoError(t, g.AddEdge("b", "a"))
	cyclic, path := g.HasCycle()
	assert.True(t, cyclic)
	assert.Len(t, path, 3)
}
