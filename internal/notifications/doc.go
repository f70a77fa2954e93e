// Package notifications delivers conversion closeout events over ntfy.
//
// NewService returns a no-op when no topic is configured, so callers publish
// unconditionally. Messages are plain text; title, tags and priority travel
// as ntfy headers.
package notifications
