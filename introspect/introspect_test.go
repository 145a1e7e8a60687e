package introspect

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/generator"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/types"
)

func ptr(s string) *string { return &s }

func TestNormalizeDefault(t *testing.T) {
	tests := []struct {
		dialect string
		in      *string
		want    *string
	}{
		{dialect.MySQL, nil, nil},
		{dialect.MySQL, ptr("anon"), ptr("anon")},
		{dialect.MySQL, ptr("NULL"), nil},
		{dialect.MySQL, ptr("current_timestamp()"), ptr("CURRENT_TIMESTAMP")},
		{dialect.MySQL, ptr("'it''s'"), ptr("it's")},
		{dialect.SQLite, ptr("'anon'"), ptr("anon")},
		{dialect.SQLite, ptr("CURRENT_TIMESTAMP"), ptr("CURRENT_TIMESTAMP")},
		{dialect.SQLite, ptr("0"), ptr("0")},
		{dialect.Postgres, ptr("'anon'::character varying"), ptr("anon")},
		{dialect.Postgres, ptr("'0000-00-00'::date"), ptr("0000-00-00")},
		{dialect.Postgres, ptr("true"), ptr("1")},
		{dialect.Postgres, ptr("false"), ptr("0")},
		{dialect.Postgres, ptr("now()"), ptr("CURRENT_TIMESTAMP")},
		{dialect.Postgres, ptr("'-1'::integer"), ptr("-1")},
		{dialect.Postgres, ptr("nextval('users_id_seq'::regclass)"), nil},
		{dialect.Postgres, ptr("NULL::character varying"), nil},
	}
	for _, tt := range tests {
		got := normalizeDefault(tt.dialect, tt.in)
		if tt.want == nil {
			assert.Nil(t, got, "%s %v", tt.dialect, tt.in)
			continue
		}
		require.NotNil(t, got, "%s %s", tt.dialect, *tt.in)
		assert.Equal(t, *tt.want, *got)
	}
}

func TestMapColumn(t *testing.T) {
	col, ok := mapColumn(dialect.MySQL, rawColumn{name: "id", native: "int(10) unsigned", autoIncrement: true, def: ptr("0")})
	require.True(t, ok)
	assert.Equal(t, types.ID, col.Type)
	assert.True(t, col.Unsigned)
	assert.Nil(t, col.Default)

	col, ok = mapColumn(dialect.MySQL, rawColumn{name: "active", native: "tinyint(1)", def: ptr("1")})
	require.True(t, ok)
	assert.Equal(t, types.Boolean, col.Type)
	assert.Equal(t, "1", *col.Default)

	col, ok = mapColumn(dialect.MySQL, rawColumn{name: "mood", native: "enum('a','b')", nullable: true})
	assert.False(t, ok)
	assert.Equal(t, types.Unknown, col.Type)
	assert.Equal(t, "enum('a','b')", col.Native.Raw)
	assert.True(t, col.Nullable)
}

func TestIntrospectMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM information_schema.TABLES`).WithArgs("%").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("users"))
	mock.ExpectQuery(`FROM information_schema.COLUMNS`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA"}).
			AddRow("id", "int unsigned", "NO", nil, "auto_increment").
			AddRow("name", "varchar(64)", "NO", "anon", "").
			AddRow("mood", "set('a','b')", "YES", nil, "").
			AddRow("group_id", "int", "YES", nil, ""))
	mock.ExpectQuery(`FROM information_schema.STATISTICS`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE"}).
			AddRow("PRIMARY", "id", 0).
			AddRow("idx_name", "name", 0).
			AddRow("idx_name", "group_id", 0).
			AddRow("idx_mood", "mood", 1))
	mock.ExpectQuery(`FROM information_schema.KEY_COLUMN_USAGE`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}).
			AddRow("group_id", "groups", "id"))

	res, err := Introspect(context.Background(), db, dialect.MustGet(dialect.MySQL), "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	users := res.Tables["users"]
	require.NotNil(t, users)
	assert.Equal(t, []string{"id", "name", "mood", "group_id"}, users.ColumnNames())

	id, _ := users.Column("id")
	assert.True(t, id.AutoIncrement)
	assert.Equal(t, types.ID, id.Type)

	name, _ := users.Column("name")
	assert.Equal(t, 64, name.Size)
	assert.False(t, name.Nullable)
	assert.Equal(t, "anon", *name.Default)

	assert.Equal(t, []schema.IndexSpec{
		{Name: "PRIMARY", Columns: []string{"id"}, Kind: schema.IndexPrimary},
		{Name: "idx_name", Columns: []string{"name", "group_id"}, Kind: schema.IndexUnique},
		{Name: "idx_mood", Columns: []string{"mood"}, Kind: schema.IndexPlain},
	}, users.Indexes)
	assert.Equal(t, []schema.ForeignKeyRef{{Column: "group_id", Table: "groups", RefColumn: "id"}}, users.ForeignKeys)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "mood", res.Warnings[0].Column)
	assert.Equal(t, "set('a','b')", res.Warnings[0].Native)
}

func TestIntrospectPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM information_schema.tables`).WithArgs("user%").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("users"))
	mock.ExpectQuery(`FROM information_schema.columns`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "character_maximum_length", "is_nullable", "column_default", "is_identity"}).
			AddRow("id", "integer", nil, "NO", nil, "YES").
			AddRow("legacy_id", "integer", nil, "NO", "nextval('users_legacy_id_seq'::regclass)", "NO").
			AddRow("name", "character varying", 64, "NO", "'anon'::character varying", "NO").
			AddRow("active", "boolean", nil, "NO", "true", "NO"))
	mock.ExpectQuery(`FROM pg_index`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"relname", "attname", "indisunique", "indisprimary"}).
			AddRow("users_pkey", "id", true, true))
	mock.ExpectQuery(`FROM information_schema.table_constraints`).WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "column_name"}))

	res, err := Introspect(context.Background(), db, dialect.MustGet(dialect.Postgres), "user%")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, res.Warnings)

	users := res.Tables["users"]
	id, _ := users.Column("id")
	assert.True(t, id.AutoIncrement)
	legacy, _ := users.Column("legacy_id")
	assert.True(t, legacy.AutoIncrement)
	assert.Nil(t, legacy.Default)

	name, _ := users.Column("name")
	assert.Equal(t, types.String, name.Type)
	assert.Equal(t, 64, name.Size)
	assert.Equal(t, "anon", *name.Default)

	active, _ := users.Column("active")
	assert.Equal(t, "1", *active.Default)

	pk, ok := users.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, "users_pkey", pk.Name)
}

func TestIntrospectConnectionFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("server has gone away")
	mock.ExpectQuery(`FROM information_schema.TABLES`).WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("users"))
	mock.ExpectQuery(`FROM information_schema.COLUMNS`).WillReturnError(boom)

	_, err = Introspect(context.Background(), db, dialect.MustGet(dialect.MySQL), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailure)
	assert.ErrorIs(t, err, boom)

	var cf *ConnectionFailure
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, "users", cf.Table)
	assert.Contains(t, err.Error(), "columns")
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestIntrospectSQLite(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	d := dialect.MustGet(dialect.SQLite)

	users := &schema.TableSpec{
		Name: "users",
		Columns: []schema.ColumnSpec{
			{Name: "id", Type: types.ID, AutoIncrement: true},
			{Name: "name", Type: types.String, Size: 64, Default: ptr("anon")},
			{Name: "email", Type: types.String, Nullable: true},
			{Name: "active", Type: types.Boolean, Default: ptr("1")},
			{Name: "created", Type: types.Created, Default: ptr("CURRENT_TIMESTAMP")},
		},
		Indexes: []schema.IndexSpec{
			{Name: schema.PrimaryIndexName, Columns: []string{"id"}, Kind: schema.IndexPrimary},
			{Name: "idx_users_email", Columns: []string{"email"}, Kind: schema.IndexUnique},
			{Name: "idx_users_name_active", Columns: []string{"name", "active"}, Kind: schema.IndexPlain},
		},
	}
	memberships := &schema.TableSpec{
		Name: "memberships",
		Columns: []schema.ColumnSpec{
			{Name: "user", Type: types.Integer},
			{Name: "grp", Type: types.Integer},
		},
		Indexes: []schema.IndexSpec{
			{Name: schema.PrimaryIndexName, Columns: []string{"user", "grp"}, Kind: schema.IndexPrimary},
		},
	}

	stmts, err := generator.GenerateSQL(d, []diff.Operation{
		{Type: diff.CreateTable, Table: "users", Spec: users},
		{Type: diff.CreateTable, Table: "memberships", Spec: memberships},
	})
	require.NoError(t, err)
	for _, s := range stmts {
		_, err := db.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}

	res, err := Introspect(ctx, db, d, "")
	require.NoError(t, err)
	assert.Len(t, res.Tables, 2)
	assert.Empty(t, res.Warnings)

	live := res.Tables["users"]
	id, _ := live.Column("id")
	assert.True(t, id.AutoIncrement)
	email, _ := live.Column("email")
	assert.True(t, email.Nullable)
	assert.Nil(t, email.Default)
	name, _ := live.Column("name")
	assert.Equal(t, "anon", *name.Default)

	idx, ok := live.Index("idx_users_name_active")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "active"}, idx.Columns)
	assert.Equal(t, schema.IndexPlain, idx.Kind)

	pk, ok := res.Tables["memberships"].PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, []string{"user", "grp"}, pk.Columns)
	user, _ := res.Tables["memberships"].Column("user")
	assert.False(t, user.AutoIncrement)

	// a freshly created schema has nothing left to do
	ops, err := diff.Plan([]*schema.TableSpec{users, memberships}, res.Tables, diff.Options{Dialect: dialect.SQLite})
	require.NoError(t, err)
	assert.Empty(t, ops)

	res, err = Introspect(ctx, db, d, "mem%")
	require.NoError(t, err)
	assert.Len(t, res.Tables, 1)
	assert.Contains(t, res.Tables, "memberships")
}

func TestIntrospectSQLiteForeignKeys(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `CREATE TABLE teams (id integer PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE users (id integer PRIMARY KEY, group_id integer REFERENCES teams(id), tag integer REFERENCES teams)`)
	require.NoError(t, err)

	res, err := Introspect(ctx, db, dialect.MustGet(dialect.SQLite), "users")
	require.NoError(t, err)
	fks := res.Tables["users"].ForeignKeys
	assert.ElementsMatch(t, []schema.ForeignKeyRef{
		{Column: "group_id", Table: "teams", RefColumn: "id"},
		{Column: "tag", Table: "teams"},
	}, fks)

	// no AUTOINCREMENT keyword, so the rowid alias is a plain key
	id, _ := res.Tables["users"].Column("id")
	assert.False(t, id.AutoIncrement)
}
