// Package store persists settings and bookmarks in a SQLite database.
package store
