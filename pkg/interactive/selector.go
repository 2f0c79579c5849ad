package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kadirbelkuyu/chkit/internal/backup"
)

type DatabaseSelector struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewDatabaseSelector() *DatabaseSelector {
	return NewDatabaseSelectorWith(os.Stdin, os.Stdout)
}

func NewDatabaseSelectorWith(in io.Reader, out io.Writer) *DatabaseSelector {
	return &DatabaseSelector{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// PrintDatabases renders the numbered database table.
func (ds *DatabaseSelector) PrintDatabases(databases []backup.DatabaseInfo) {
	fmt.Fprintln(ds.out)
	fmt.Fprintln(ds.out, "Available databases:")
	fmt.Fprintln(ds.out, strings.Repeat("=", 64))
	fmt.Fprintf(ds.out, "%-4s %-30s %-15s %-10s\n", "No", "Database", "Engine", "Tables")
	fmt.Fprintln(ds.out, strings.Repeat("-", 64))
	for i, db := range databases {
		fmt.Fprintf(ds.out, "%-4d %-30s %-15s %-10d\n", i+1, db.Name, safeValue(db.Engine, "n/a"), db.Tables)
	}
	fmt.Fprintln(ds.out, strings.Repeat("=", 64))
}

func (ds *DatabaseSelector) SelectDatabase(databases []backup.DatabaseInfo) (*backup.DatabaseInfo, error) {
	if len(databases) == 0 {
		return nil, fmt.Errorf("no databases found")
	}

	ds.PrintDatabases(databases)

	for {
		fmt.Fprintf(ds.out, "\nSelect the database number (1-%d): ", len(databases))

		input, err := ds.reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(input) == "") {
			return nil, fmt.Errorf("unable to read input: %w", err)
		}

		input = strings.TrimSpace(input)

		if input == "" {
			fmt.Fprintln(ds.out, "Please enter a number.")
			continue
		}

		choice, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintln(ds.out, "Please enter a valid number.")
			continue
		}

		if choice < 1 || choice > len(databases) {
			fmt.Fprintf(ds.out, "Please select a number between 1 and %d.\n", len(databases))
			continue
		}

		selected := &databases[choice-1]
		fmt.Fprintf(ds.out, "\nSelected database: %s\n", selected.Name)
		return selected, nil
	}
}

func (ds *DatabaseSelector) ConfirmAction(action, target string) bool {
	fmt.Fprintf(ds.out, "\nConfirm running %s for %s (y/N): ", action, target)

	input, err := ds.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}

	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}

func safeValue(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
