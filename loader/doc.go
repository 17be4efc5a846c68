// Package loader reads documents produced by the crawlers from disk.
//
// Two on-disk formats are understood: markdown pages with a "# Title"
// line and an "**Original URL**:" line, and Discourse topic JSON as
// returned by the /t/{id}.json endpoint.
package loader
