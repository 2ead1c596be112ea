// Package feed watches a thread for new posts and for the closed notice.
//
// An Accessor knows how to read one source site; the Watcher applies the
// shared rules on top of it: the posts present at start are a baseline and
// are never emitted, each reply number is emitted once in ascending order,
// and a status containing ClosedMarker ends the watch with one ThreadClosed
// event.
package feed
