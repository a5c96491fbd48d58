// Package bookmark saves where a narration is and turns a saved position
// back into a live seek, restarting the narration when it is no longer
// loaded.
package bookmark
