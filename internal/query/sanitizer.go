// Package query builds parameterized SQL fragments for the report
// executor: column predicates, multi-key ORDER BY clauses, and identifier
// validation that keeps user-controlled names out of the query structure.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRegex validates SQL identifiers (column names, table names).
// Must start with a letter or underscore, followed by alphanumeric or underscore.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// sqlReservedWords contains SQL keywords that cannot be used as identifiers.
// Parameterization handles value injection; rejecting reserved words as
// names prevents query structure attacks.
var sqlReservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"EXEC": true, "EXECUTE": true, "UNION": true, "INTO": true,
	"FROM": true, "WHERE": true, "TABLE": true, "DATABASE": true,
	"GRANT": true, "REVOKE": true, "INDEX": true, "VIEW": true,
	"PROCEDURE": true, "FUNCTION": true, "TRIGGER": true, "SCHEMA": true,
}

// ValidateIdentifier ensures a SQL identifier (column name, table name) is
// safe. It rejects empty strings, strings over 128 characters, strings that
// don't match the identifier pattern, and SQL reserved words.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("identifier too long (max 128 chars): %q", name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	if sqlReservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// ValidateColumnEntry validates a column selection entry, which is either a
// bare column name like "first_name" or a one-hop relation path like
// "cities.name". Each component is validated independently.
func ValidateColumnEntry(entry string) error {
	if entry == "" {
		return fmt.Errorf("column entry cannot be empty")
	}
	parts := strings.Split(entry, ".")
	if len(parts) > 2 {
		return fmt.Errorf("column entry %q has too many parts (max: table.column)", entry)
	}
	for _, part := range parts {
		if err := ValidateIdentifier(part); err != nil {
			return fmt.Errorf("in column entry %q: %w", entry, err)
		}
	}
	return nil
}
