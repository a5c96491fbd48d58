// Package cache holds synthesized audio. AudioCache keeps the chunks of the
// live session in memory under a byte budget; DiskCache persists finished
// chunk audio across runs so a resumed document is not synthesized twice.
package cache
