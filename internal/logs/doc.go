// Package logs reads tipflow's JSON log file for `tipflow logs`.
//
// Last returns the newest lines with bounded memory; Follow polls from an
// offset until new lines arrive or the wait expires. ParseEntry decodes one
// JSON line so the CLI can filter by component or level and print a compact
// form.
package logs
