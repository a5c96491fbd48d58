// Package segment turns normalized long-form text into an ordered queue of
// speakable chunks grouped into chapters. It performs no I/O.
package segment
