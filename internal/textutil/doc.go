// Package textutil provides file name sanitizing and width folding helpers
// shared by the archive, blocklist, and auto-start code.
package textutil
