// Package control is the command surface of a narration: it turns
// transport commands from a UI or a line-oriented client into coordinator
// and bookmark calls, and reports the outcome as a Response.
package control
