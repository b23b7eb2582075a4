// Package textutil derives filesystem-safe identifiers from display text.
//
// Shortname is the single source of truth for turning a headline into the
// identifier used for filenames and history deduplication. Truncate shortens
// display strings for tables and notification titles. MarkdownHTML renders
// item explanations for email and approval pages.
package textutil
