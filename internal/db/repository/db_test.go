package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestLikePrefixEscapesWildcards(t *testing.T) {
	cases := map[string]string{
		"user:1:quest:":     "user:1:quest:%",
		"user:1:daily:a_b:": `user:1:daily:a\_b:%`,
		"100%":              `100\%%`,
		`back\slash`:        `back\\slash%`,
		"":                  "%",
	}
	for in, want := range cases {
		assert.Equal(t, want, likePrefix(in), in)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}
