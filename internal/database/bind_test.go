package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/chkit/internal/database"
)

func TestBindQuotesArguments(t *testing.T) {
	query, err := database.Bind("SELECT * FROM t WHERE a = ? AND b = '?' AND c = ?", "it's", 5)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM t WHERE a = 'it\'s' AND b = '?' AND c = 5`, query)
}

func TestBindTimeAndNull(t *testing.T) {
	at := time.Date(2024, 1, 31, 12, 0, 0, 123456000, time.UTC)
	query, err := database.Bind("INSERT INTO m VALUES (?, ?)", at, nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO m VALUES ('2024-01-31 12:00:00.123456', NULL)", query)
}

func TestBindArgumentCountMismatch(t *testing.T) {
	_, err := database.Bind("SELECT ?", 1, 2)
	assert.Error(t, err)

	_, err = database.Bind("SELECT ?, ?", 1)
	assert.Error(t, err)

	_, err = database.Bind("SELECT ?", struct{}{})
	assert.Error(t, err)
}
