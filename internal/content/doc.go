// Package content produces, renders and records the daily content items.
//
// Generator drafts an item either from the model endpoint or from the static
// fallback pool, deduplicating by shortname against the HistoryLog and the
// content directory. Save writes the rendered notebook and appends to the
// history file that lives next to the published items.
package content
