package database

import (
	"fmt"
	"regexp"
)

// AllowedTables is the whitelist of table names that may appear in
// dynamically built statements.
var AllowedTables = map[string]bool{
	"runs":      true,
	"failures":  true,
	"sequences": true,
}

// AllowedColumns is the whitelist of run columns usable for filtering and
// ordering.
var AllowedColumns = map[string]bool{
	"run_accession":        true,
	"experiment_accession": true,
	"study_accession":      true,
	"bioproject":           true,
	"sample_accession":     true,
	"biosample":            true,
	"organism":             true,
	"platform":             true,
	"library_layout":       true,
	"library_strategy":     true,
	"updated_at":           true,
}

// ErrInvalidTableName is returned when a table name is not in the whitelist.
var ErrInvalidTableName = fmt.Errorf("invalid table name")

// ErrInvalidColumnName is returned when a column name is not in the whitelist.
var ErrInvalidColumnName = fmt.Errorf("invalid column name")

var validIdentifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTableName checks if a table name is in the allowed list.
func ValidateTableName(table string) error {
	if !AllowedTables[table] {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	return nil
}

// ValidateColumnName checks if a column name is in the allowed list.
func ValidateColumnName(column string) error {
	if !AllowedColumns[column] {
		return fmt.Errorf("%w: %q", ErrInvalidColumnName, column)
	}
	return nil
}

// ValidateIdentifier checks that s has the shape of a bare SQL identifier.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("empty identifier")
	}
	if !validIdentifierPattern.MatchString(s) {
		return fmt.Errorf("invalid identifier format: %q", s)
	}
	return nil
}

// SafeColumnName returns column if it is whitelisted.
func SafeColumnName(column string) (string, error) {
	if err := ValidateColumnName(column); err != nil {
		return "", err
	}
	return column, nil
}

// SafeTableName returns table if it is whitelisted.
func SafeTableName(table string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	return table, nil
}
