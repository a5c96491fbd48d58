// Package source supplies the text to narrate: articles read from
// Markdown or plain-text documents, and selections taken from the
// clipboard.
package source
