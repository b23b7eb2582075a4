// Package llm wraps the chat-completion endpoint used to draft content items.
//
// Client is the narrow seam the generator depends on. OpenAI talks to any
// OpenAI-compatible endpoint through openai-go; Static returns canned
// responses for tests and offline runs.
package llm
