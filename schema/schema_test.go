package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemasync/types"
)

func userEntity() *EntityBuilder {
	return NewEntity("User").
		Column("name", types.String, Size(64)).
		Column("email", types.String, Nullable()).
		Column("created", types.Created).
		Default("name", "anon").
		FindKeys("name").
		Unique("", "email")
}

func TestBuildAddsIdentifierAndPrimaryKey(t *testing.T) {
	u, err := userEntity().Build()
	require.NoError(t, err)

	assert.Equal(t, "User", u.Name())
	assert.Equal(t, "users", u.Table())
	assert.Equal(t, "id", u.IDColumn())

	spec := u.Spec()
	assert.Equal(t, []string{"id", "name", "email", "created"}, spec.ColumnNames())

	id, ok := spec.Column("id")
	require.True(t, ok)
	assert.Equal(t, types.ID, id.Type)
	assert.True(t, id.AutoIncrement)

	pk, ok := spec.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, pk.Columns)

	idx, ok := spec.Index("idx_users_email")
	require.True(t, ok)
	assert.Equal(t, IndexUnique, idx.Kind)

	name, _ := spec.Column("name")
	require.NotNil(t, name.Default)
	assert.Equal(t, "anon", *name.Default)
	assert.Equal(t, []string{"name"}, u.FindKeys())
}

func TestDeclarationIsImmutable(t *testing.T) {
	u := userEntity().MustBuild()

	spec := u.Spec()
	spec.Columns[1].Size = 999
	*spec.Columns[1].Default = "changed"
	spec.Indexes[0].Columns[0] = "x"

	again := u.Spec()
	name, _ := again.Column("name")
	assert.Equal(t, 64, name.Size)
	assert.Equal(t, "anon", *name.Default)
	pk, _ := again.PrimaryKey()
	assert.Equal(t, []string{"id"}, pk.Columns)

	keys := u.FindKeys()
	keys[0] = "x"
	assert.Equal(t, []string{"name"}, u.FindKeys())
}

func TestBuildRejectsBadDeclarations(t *testing.T) {
	cases := map[string]*EntityBuilder{
		"duplicate column": NewEntity("A").Column("x", types.String).Column("x", types.Text),
		"unknown type":     NewEntity("A").Column("x", types.Semantic("money")),
		"bad find key":     NewEntity("A").FindKeys("missing"),
		"bad index column": NewEntity("A").Index("", "missing"),
		"bad default":      NewEntity("A").Default("missing", "1"),
		"second id":        NewEntity("A").Column("other", types.ID),
		"bad name":         NewEntity("1A"),
		"has-one type":     NewEntity("A").Column("owner", types.String).HasOne("owner", "User"),
	}
	for name, b := range cases {
		_, err := b.Build()
		assert.ErrorIs(t, err, ErrInvalidDeclaration, name)
	}
}

func TestMinimalEntity(t *testing.T) {
	e, err := NewEntity("Tag").Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, e.Spec().ColumnNames())
	require.NoError(t, e.Spec().Validate())
}

func TestNaturalKeyIdentifier(t *testing.T) {
	e, err := NewEntity("Setting").ID("code").Column("code", types.String, Size(32)).Build()
	require.NoError(t, err)
	c, _ := e.Column("code")
	assert.False(t, c.AutoIncrement)
	pk, _ := e.Spec().PrimaryKey()
	assert.Equal(t, []string{"code"}, pk.Columns)
}

func TestCatalogTables(t *testing.T) {
	group := NewEntity("Group").Column("title", types.String).MustBuild()
	tag := NewEntity("Tag").Column("label", types.String).MustBuild()
	user := NewEntity("User").
		HasOne("group", "Group").
		HasMany("tags", HasMany{Entity: "Tag", Link: "user_tags"}).
		MustBuild()
	tagBack := NewEntity("Badge").
		HasMany("users", HasMany{Entity: "User", Link: "user_tags", ForeignKey: "tag", FarKey: "user"}).
		MustBuild()

	c, err := NewCatalog(user, group, tag, tagBack)
	require.NoError(t, err)

	tables, err := c.Tables()
	require.NoError(t, err)

	names := make([]string, len(tables))
	for i, tb := range tables {
		names[i] = tb.Name
	}
	assert.Equal(t, []string{"users", "groups", "tags", "badges", "user_tags"}, names)

	users := tables[0]
	assert.Equal(t, []ForeignKeyRef{{Column: "group", Table: "groups", RefColumn: "id"}}, users.ForeignKeys)
	groupCol, _ := users.Column("group")
	assert.Equal(t, types.Object, groupCol.Type)
	assert.True(t, groupCol.Nullable)

	link := tables[4]
	assert.Equal(t, []string{"user", "tag"}, link.ColumnNames())
	pk, ok := link.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, []string{"user", "tag"}, pk.Columns)
	assert.ElementsMatch(t, []ForeignKeyRef{
		{Column: "user", Table: "users", RefColumn: "id"},
		{Column: "tag", Table: "tags", RefColumn: "id"},
	}, link.ForeignKeys)
}

func TestCatalogErrors(t *testing.T) {
	a := NewEntity("A").MustBuild()
	_, err := NewCatalog(a, a)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	b := NewEntity("B").HasOne("a", "Missing").MustBuild()
	c, err := NewCatalog(a, b)
	require.NoError(t, err)
	_, err = c.Tables()
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestValidate(t *testing.T) {
	good := &TableSpec{
		Name:    "t",
		Columns: []ColumnSpec{{Name: "a", Type: types.Integer}},
		Indexes: []IndexSpec{{Name: PrimaryIndexName, Columns: []string{"a"}, Kind: IndexPrimary}},
	}
	require.NoError(t, good.Validate())

	noPK := good.Clone()
	noPK.Indexes = nil
	assert.ErrorIs(t, noPK.Validate(), ErrInvalidSpec)

	autoPK := noPK.Clone()
	autoPK.Columns[0].AutoIncrement = true
	assert.NoError(t, autoPK.Validate())

	twoPK := good.Clone()
	twoPK.Indexes = append(twoPK.Indexes, twoPK.Indexes[0])
	assert.ErrorIs(t, twoPK.Validate(), ErrInvalidSpec)
}

func TestHydration(t *testing.T) {
	e := NewEntity("Visit").
		Column("ip", types.IP4).
		Column("at", types.Timestamp).
		Column("active", types.Boolean).
		FindKeys("ip").
		MustBuild()

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	stored, err := e.ToStorage(map[string]any{"ip": "10.0.0.1", "at": at, "active": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ip": int64(167772161), "at": "2024-05-06 07:08:09", "active": int64(1)}, stored)

	row, err := e.FromStorage(map[string]any{"ip": int64(167772161), "at": []byte("2024-05-06 07:08:09"), "active": int64(1), "extra": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ip": "10.0.0.1", "at": at, "active": true, "extra": "x"}, row)

	_, err = e.ToStorage(map[string]any{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	where, err := e.FindWhere(map[string]any{"ip": "10.0.0.1", "active": false})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ip": int64(167772161)}, where)

	_, err = e.FindWhere(map[string]any{})
	assert.Error(t, err)
}

func TestParseFieldTag(t *testing.T) {
	ft, err := ParseFieldTag("column:full_name;type:string;size:64;null;default:anon;previous:name;index")
	require.NoError(t, err)
	assert.Equal(t, "full_name", ft.Column)
	assert.Equal(t, "string", ft.Type)
	assert.Equal(t, 64, ft.Size)
	assert.True(t, ft.Nullable)
	require.NotNil(t, ft.Default)
	assert.Equal(t, "anon", *ft.Default)
	assert.Equal(t, "name", ft.Previous)
	assert.Equal(t, "-", ft.Index)

	ft, err = ParseFieldTag("-")
	require.NoError(t, err)
	assert.True(t, ft.Ignore)

	_, err = ParseFieldTag("size:abc")
	assert.Error(t, err)
	_, err = ParseFieldTag("sparkly")
	assert.Error(t, err)
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "user_group", ToSnakeCase("UserGroup"))
	assert.Equal(t, "ip4_address", ToSnakeCase("IP4Address"))
	assert.Equal(t, "categories", TableName("Category"))
	assert.Equal(t, "keys", TableName("Key"))
	assert.Equal(t, "address", TableName("Address"))
	assert.Equal(t, "user_groups", TableName("UserGroup"))
	assert.Equal(t, "idx_users_a_b", IndexName("users", "a", "b"))
}
