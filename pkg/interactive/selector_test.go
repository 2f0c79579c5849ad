package interactive_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/chkit/internal/backup"
	"github.com/kadirbelkuyu/chkit/pkg/interactive"
)

func TestSelectDatabaseRetriesInvalidInput(t *testing.T) {
	var out bytes.Buffer
	selector := interactive.NewDatabaseSelectorWith(strings.NewReader("\nabc\n7\n2\n"), &out)

	selected, err := selector.SelectDatabase([]backup.DatabaseInfo{
		{Name: "default", Engine: "Atomic"},
		{Name: "shop", Engine: "Replicated", Tables: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, "shop", selected.Name)
	assert.Contains(t, out.String(), "Please enter a number.")
	assert.Contains(t, out.String(), "Please enter a valid number.")
	assert.Contains(t, out.String(), "between 1 and 2")
}

func TestSelectDatabaseEmpty(t *testing.T) {
	_, err := interactive.NewDatabaseSelectorWith(strings.NewReader(""), &bytes.Buffer{}).SelectDatabase(nil)
	assert.Error(t, err)
}

func TestConfirmAction(t *testing.T) {
	assert.True(t, interactive.NewDatabaseSelectorWith(strings.NewReader("yes\n"), &bytes.Buffer{}).ConfirmAction("drop", "shop"))
	assert.True(t, interactive.NewDatabaseSelectorWith(strings.NewReader("Y"), &bytes.Buffer{}).ConfirmAction("drop", "shop"))
	assert.False(t, interactive.NewDatabaseSelectorWith(strings.NewReader("\n"), &bytes.Buffer{}).ConfirmAction("drop", "shop"))
	assert.False(t, interactive.NewDatabaseSelectorWith(strings.NewReader(""), &bytes.Buffer{}).ConfirmAction("drop", "shop"))
}
