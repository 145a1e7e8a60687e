package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDefaults(t *testing.T) {
	q, args, err := Select("users").ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users`", q)
	assert.Empty(t, args)
}

func TestSelectFull(t *testing.T) {
	s := Select("users").As("u").
		Distinct().
		What("u.id").
		WhatAs("posts", "*COUNT(p.id)").
		LeftJoin("posts", "p", AllOf(Eq("p.user", Col("u.id")))).
		WhereMap(map[string]any{"u.active": true}).
		GroupBy("u.id").
		OrderBy("posts DESC", "u.id").
		Limit(10).
		Offset(20)

	q, args, err := s.ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT `u`.`id`, COUNT(p.id) AS `posts` FROM `users` AS `u` LEFT OUTER JOIN `posts` AS `p` ON `p`.`user` = `u`.`id` WHERE `u`.`active` = ? GROUP BY `u`.`id` ORDER BY `posts` DESC, `u`.`id` LIMIT 10 OFFSET 20", q)
	assert.Equal(t, []any{true}, args)
}

func TestSelectWhatAsReplaces(t *testing.T) {
	q, _, err := Select("t").WhatAs("n", "a").WhatAs("n", "b").What("u.*").ToSQL(sqlite)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "b" AS "n", "u".* FROM "t"`, q)
}

func TestSelectAliasConflict(t *testing.T) {
	_, _, err := Select("users").As("u").InnerJoin("posts", "u", nil).ToSQL(mysql)
	assert.ErrorIs(t, err, ErrAliasConflict)

	_, _, err = Select("users").InnerJoin("users", "", nil).ToSQL(mysql)
	assert.ErrorIs(t, err, ErrAliasConflict)

	_, _, err = Select("users").
		InnerJoin("posts", "p", nil).
		LeftJoin("photos", "p", nil).
		ToSQL(mysql)
	assert.ErrorIs(t, err, ErrAliasConflict)

	_, _, err = Select("users").InnerJoin("posts", "p", nil).As("p").ToSQL(mysql)
	assert.ErrorIs(t, err, ErrAliasConflict)

	_, _, err = Select("users").Join("CROSS", "posts", "p", nil).ToSQL(mysql)
	assert.ErrorIs(t, err, ErrSemantics)
}

func TestSelectOffsetWithoutLimit(t *testing.T) {
	q, _, err := Select("t").Offset(5).ToSQL(sqlite)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" LIMIT -1 OFFSET 5`, q)

	q, _, err = Select("t").Offset(5).ToSQL(postgres)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "t" OFFSET 5`, q)

	q, _, err = Select("t").Offset(5).ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `t` LIMIT 18446744073709551615 OFFSET 5", q)
}

func TestSelectBadOrder(t *testing.T) {
	_, _, err := Select("t").OrderBy("a; DROP").ToSQL(mysql)
	assert.ErrorIs(t, err, ErrSemantics)
}

func TestInsert(t *testing.T) {
	q, args, err := Insert("users").Values(map[string]any{"name": "bob", "age": 3}).LowPriority().ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "INSERT LOW_PRIORITY INTO `users` (`age`, `name`) VALUES (?, ?)", q)
	assert.Equal(t, []any{3, "bob"}, args)

	q, _, err = Insert("users").Set("name", "bob").Set("age", 3).Replace().LowPriority().ToSQL(sqlite)
	require.NoError(t, err)
	assert.Equal(t, `REPLACE INTO "users" ("name", "age") VALUES (?, ?)`, q)

	q, args, err = Insert("users").Set("name", "bob").Set("created", Expr("CURRENT_TIMESTAMP")).ToSQL(postgres)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("name", "created") VALUES ($1, CURRENT_TIMESTAMP)`, q)
	assert.Equal(t, []any{"bob"}, args)
}

func TestInsertReplaceUnsupported(t *testing.T) {
	_, _, err := Insert("users").Set("a", 1).Replace().ToSQL(postgres)
	assert.ErrorIs(t, err, ErrSemantics)
}

func TestInsertNeedsValues(t *testing.T) {
	_, _, err := Insert("users").ToSQL(mysql)
	assert.ErrorIs(t, err, ErrSemantics)
}

func TestInsertSelectGuard(t *testing.T) {
	b := InsertSelect("archive", Select("users")).Set("name", "x")
	q, args, err := b.ToSQL(mysql)
	assert.ErrorIs(t, err, ErrSemantics)
	assert.Empty(t, q)
	assert.Nil(t, args)

	b = Insert("archive").Set("name", "x").From(Select("users"))
	_, _, err = b.ToSQL(mysql)
	assert.ErrorIs(t, err, ErrSemantics)
}

func TestInsertSelectPlaceholders(t *testing.T) {
	sel := Select("users").What("id", "name").
		WhereMap(map[string]any{"age|>": 30, "name|LIKE": "a%"}).
		Limit(5)
	q, args, err := InsertSelect("archive", sel).Columns("id", "name").ToSQL(postgres)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "archive" ("id", "name") SELECT "id", "name" FROM "users" WHERE "age" > $1 AND "name" LIKE $2 LIMIT 5`, q)
	assert.Equal(t, []any{30, "a%"}, args)

	q, _, err = InsertSelect("archive", Select("users")).Replace().ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "REPLACE INTO `archive` SELECT * FROM `users`", q)
}

func TestInsertSelectPropagatesSelectErrors(t *testing.T) {
	sel := Select("users").As("u").InnerJoin("posts", "u", nil)
	_, _, err := InsertSelect("archive", sel).ToSQL(mysql)
	assert.ErrorIs(t, err, ErrAliasConflict)
}

func TestUpdate(t *testing.T) {
	q, args, err := Update("users").
		Set("flag", true).
		Where(Cond("id", "IN", Select("bans").What("user").WhereMap(map[string]any{"kind": "spam"}))).
		Where(Eq("org", 7)).
		ToSQL(postgres)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "users" SET "flag" = $1 WHERE "id" IN (SELECT "user" FROM "bans" WHERE "kind" = $2) AND "org" = $3`, q)
	assert.Equal(t, []any{true, "spam", 7}, args)

	q, args, err = Update("users").Values(map[string]any{"b": 2, "a": Col("b")}).LowPriority().WhereMap(map[string]any{"id": 1}).ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE LOW_PRIORITY `users` SET `a` = `b`, `b` = ? WHERE `id` = ?", q)
	assert.Equal(t, []any{2, 1}, args)

	_, _, err = Update("users").ToSQL(mysql)
	assert.ErrorIs(t, err, ErrSemantics)

	_, _, err = Update("users").Set("a", 1).WhereMap(map[string]any{"x|??": 1}).ToSQL(mysql)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestDelete(t *testing.T) {
	q, args, err := Delete("sessions").WhereMap(map[string]any{"expires|<": 100}).ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `sessions` WHERE `expires` < ?", q)
	assert.Equal(t, []any{100}, args)

	q, args, err = Delete("sessions").LowPriority().ToSQL(mysql)
	require.NoError(t, err)
	assert.Equal(t, "DELETE LOW_PRIORITY FROM `sessions`", q)
	assert.Empty(t, args)

	q, _, err = Delete("sessions").LowPriority().ToSQL(sqlite)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "sessions"`, q)
}
