// Package publish commits approved items into the git working tree and pushes
// them to the configured remote.
//
// Git shells out to the git binary through an injectable CommandRunner so
// tests can script results. Every failure is returned as a *PublishError
// naming the step that failed.
package publish
