package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridoystarlord/schemasync/database"
	"github.com/ridoystarlord/schemasync/dialect"
	"github.com/ridoystarlord/schemasync/loader"
)

const peopleYAML = `entities:
  - name: Group
    columns:
      title: {type: string, size: 32}
      created: {type: created, default: CURRENT_TIMESTAMP}

  - name: User
    table: people
    columns:
      name: {type: string, size: 64}
      email: {type: string, null: true}
      group: {type: object, null: true, references: Group}
      last_ip: ip4
      settings: {type: json, null: true}
      avatar: binary
      nick: {type: string, previous: handle}
    column_defaults: {name: anon}
    find_keys: [email]
    indexes: {people_name_nick: [name, nick]}
    unique_keys: {people_email: email}
    has_many:
      tags: {entity: Tag, link: user_tags}

  - name: Tag
    columns:
      label: string
`

// workspace moves the test into an empty directory holding schema.yaml
// and returns the database url of a sqlite file in it.
func workspace(t *testing.T, schemaYAML string) string {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte(schemaYAML), 0o644))
	return "sqlite://" + filepath.Join(dir, "app.db")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	if errOut.Len() > 0 {
		t.Log(errOut.String())
	}
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	workspace(t, peopleYAML)

	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema validation passed")

	out, err = run(t, "validate", "--format", "json")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["valid"])

	require.NoError(t, os.WriteFile("broken.yaml", []byte("entities:\n  - name: A\n    columns:\n      x: money\n"), 0o644))
	out, err = run(t, "validate", "-s", "broken.yaml")
	assert.ErrorIs(t, err, errInvalidSchema)
	assert.Contains(t, out, "Schema validation failed")
}

func TestPlanSyncQueryHistory(t *testing.T) {
	url := workspace(t, peopleYAML)

	_, err := run(t, "plan")
	assert.ErrorContains(t, err, "DATABASE_URL not set")

	out, err := run(t, "plan", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "-- Up SQL --")
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "people"`)
	assert.Contains(t, out, `DROP TABLE IF EXISTS "people";`)

	out, err = run(t, "plan", "--database-url", url, "--write")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan written:")
	files, err := os.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	out, err = run(t, "sync", "--database-url", url, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run only")

	out, err = run(t, "sync", "--database-url", url, "--history")
	require.NoError(t, err)
	// history table, groups, people, tags, user_tags
	assert.Contains(t, out, "Applied 5 operation(s), skipped 0")

	out, err = run(t, "plan", "--database-url", url, "--history")
	require.NoError(t, err)
	assert.Contains(t, out, "No changes detected.")

	out, err = run(t, "diff", "--database-url", url, "--history")
	require.NoError(t, err)
	assert.Contains(t, out, "No differences found")

	name, dsn, err := database.ParseURL(url)
	require.NoError(t, err)
	require.Equal(t, dialect.SQLite, name)
	db, err := database.Open(context.Background(), name, dsn)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO people (name, nick, last_ip, avatar) VALUES ('ann', 'a', '10.0.0.1', x'00'), ('bob', 'b', '10.0.0.2', x'00')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err = run(t, "query", "people", "--database-url", url, "--where", `{"name": "ann"}`, "-c", "id,name", "-f", "json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "ann", rows[0]["name"])

	out, err = run(t, "query", "people", "--database-url", url, "--order", "name DESC", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "bob")
	assert.NotContains(t, out, "ann")
	assert.Contains(t, out, "(1 rows)")

	_, err = run(t, "query", "people", "--database-url", url, "--where", `{"name|~": "a"}`)
	assert.Error(t, err)

	out, err = run(t, "history", "--database-url", url, "--table", "people")
	require.NoError(t, err)
	assert.Contains(t, out, "people")
	assert.NotContains(t, out, "user_tags")

	out, err = run(t, "check", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to sqlite database")
	assert.Contains(t, out, "Found 5 recorded operations")
}

func TestHistoryWithoutTable(t *testing.T) {
	url := workspace(t, peopleYAML)

	out, err := run(t, "history", "--database-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "No sync history found")
}

func TestInitCommand(t *testing.T) {
	color.NoColor = true
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")

	out, err := run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created schema.yaml")

	out, err = run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema validation passed")

	_, err = run(t, "init")
	assert.ErrorContains(t, err, "already exists")

	// the generated config points at sqlite://app.db
	out, err = run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied")
}

func TestInitStructs(t *testing.T) {
	color.NoColor = true
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")

	_, err := run(t, "init", "--structs")
	require.NoError(t, err)

	out, err := run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema validation passed")
}

func TestDocsCommand(t *testing.T) {
	workspace(t, peopleYAML)

	out, err := run(t, "docs")
	require.NoError(t, err)
	assert.Contains(t, out, "erDiagram")
	assert.Contains(t, out, "    groups ||--o{ people : group\n")
	assert.Contains(t, out, "varchar_64 name")

	out, err = run(t, "docs", "--format", "plantuml", "--dialect", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "@startuml")
	assert.Contains(t, out, `entity "user_tags" {`)

	_, err = run(t, "docs", "--format", "graphviz")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestGenerateStructsRoundTrip(t *testing.T) {
	doc, err := loader.ParseYAML("schema.yaml", []byte(peopleYAML))
	require.NoError(t, err)

	files, warnings, err := generateStructs(doc, "models")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"User: unique key people_email is renamed to idx_people_email",
		"User: has-many tags has no tag form",
	}, warnings)
	require.Contains(t, files, "user.go")
	assert.Contains(t, string(files["user.go"]), `func (User) TableName() string { return "people" }`)
	assert.NotContains(t, string(files["group.go"]), "TableName")

	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), src, 0o644))
	}
	generated, err := loader.LoadTags(dir)
	require.NoError(t, err)

	want, err := doc.Catalog()
	require.NoError(t, err)
	got, err := generated.Catalog()
	require.NoError(t, err)

	for _, name := range []string{"Group", "User", "Tag"} {
		w, ok := want.Entity(name)
		require.True(t, ok)
		g, ok := got.Entity(name)
		require.True(t, ok, name)
		assert.Equal(t, w.Table(), g.Table())
		assert.Equal(t, w.FindKeys(), g.FindKeys())
		assert.Equal(t, w.HasOne(), g.HasOne())

		ws, gs := w.Spec(), g.Spec()
		assert.Equal(t, ws.Columns, gs.Columns, name)
		assert.Len(t, gs.Indexes, len(ws.Indexes), name)
	}
}

func TestToPascalCase(t *testing.T) {
	tests := map[string]string{
		"name":      "Name",
		"user_id":   "UserID",
		"last_ip":   "LastIP",
		"site_url":  "SiteURL",
		"raw_json":  "RawJSON",
		"CamelCase": "Camelcase",
	}
	for in, want := range tests {
		assert.Equal(t, want, toPascalCase(in), in)
	}
}
