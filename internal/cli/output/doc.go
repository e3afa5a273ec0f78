// Package output renders savevault-cli results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: key/value and list tables
//   - json.go: JSON output
//   - yaml.go: YAML output
//
// Struct fields are named by their json tag. A `table:"bytes"` tag renders
// an integer as a human readable size; `table:"-"` hides the field from
// tables while json and yaml still carry it.
package output
