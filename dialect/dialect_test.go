package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"mysql", MySQL},
		{"MariaDB", MySQL},
		{"sqlite", SQLite},
		{"sqlite3", SQLite},
		{"postgres", Postgres},
		{"postgresql", Postgres},
		{"pgx", Postgres},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Get(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}

	_, err := Get("oracle")
	assert.ErrorContains(t, err, `unsupported dialect "oracle"`)
	assert.Panics(t, func() { MustGet("oracle") })
}

func TestQuote(t *testing.T) {
	tests := []struct {
		dialect string
		ident   string
		want    string
	}{
		{MySQL, "users", "`users`"},
		{MySQL, "we`ird", "`we``ird`"},
		{SQLite, "users", `"users"`},
		{SQLite, `we"ird`, `"we""ird"`},
		{Postgres, `we"ird`, `"we""ird"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MustGet(tt.dialect).Quote(tt.ident), "%s %s", tt.dialect, tt.ident)
	}
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, "`u`.`name`", QuoteQualified(MustGet(MySQL), "u.name"))
	assert.Equal(t, "`u`.*", QuoteQualified(MustGet(MySQL), "u.*"))
	assert.Equal(t, "*", QuoteQualified(MustGet(SQLite), "*"))
	assert.Equal(t, `"s"."t"."c"`, QuoteQualified(MustGet(Postgres), "s.t.c"))
}

func TestPlaceholdersAndFeatures(t *testing.T) {
	my, lite, pg := MustGet(MySQL), MustGet(SQLite), MustGet(Postgres)

	assert.Equal(t, "?", my.Placeholder(3))
	assert.Equal(t, "?", lite.Placeholder(3))
	assert.Equal(t, "$3", pg.Placeholder(3))

	assert.True(t, my.SupportsReplace())
	assert.True(t, lite.SupportsReplace())
	assert.False(t, pg.SupportsReplace())

	assert.True(t, my.SupportsLowPriority())
	assert.False(t, lite.SupportsLowPriority())
	assert.False(t, pg.SupportsLowPriority())
}
