// Package mebuki implements feed.Accessor for mebuki.moe thread pages by
// polling the page and diffing successive snapshots.
package mebuki
