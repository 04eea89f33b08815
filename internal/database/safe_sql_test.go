package database

import (
	"errors"
	"testing"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		wantErr bool
	}{
		{"valid runs", "runs", false},
		{"valid failures", "failures", false},
		{"valid sequences", "sequences", false},
		{"invalid table", "studies", true},
		{"SQL injection attempt", "runs; DROP TABLE runs;--", true},
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.table)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTableName(%q) error = %v, wantErr %v", tt.table, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidTableName) {
				t.Errorf("expected ErrInvalidTableName, got %v", err)
			}
		})
	}
}

func TestValidateColumnName(t *testing.T) {
	tests := []struct {
		name    string
		column  string
		wantErr bool
	}{
		{"run accession", "run_accession", false},
		{"organism", "organism", false},
		{"layout", "library_layout", false},
		{"metadata blob", "metadata", true},
		{"injection", "organism OR 1=1", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeColumnName(tt.column)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SafeColumnName(%q) error = %v, wantErr %v", tt.column, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidColumnName) {
					t.Errorf("expected ErrInvalidColumnName, got %v", err)
				}
				return
			}
			if got != tt.column {
				t.Errorf("SafeColumnName(%q) = %q", tt.column, got)
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		wantErr    bool
	}{
		{"runs", false},
		{"_private", false},
		{"col2", false},
		{"2col", true},
		{"a-b", true},
		{"", true},
	}
	for _, tt := range tests {
		if err := ValidateIdentifier(tt.identifier); (err != nil) != tt.wantErr {
			t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.identifier, err, tt.wantErr)
		}
	}
}

func TestAllowedColumnsAreIdentifiers(t *testing.T) {
	for col := range AllowedColumns {
		if err := ValidateIdentifier(col); err != nil {
			t.Errorf("whitelisted column %q: %v", col, err)
		}
	}
	for _, rc := range runColumns {
		if !AllowedColumns[rc.column] {
			t.Errorf("indexed column %q missing from whitelist", rc.column)
		}
	}
}
