// Package crawler implements the crawl engine: the listing state machine
// that searches a record source, pages through its candidates by scrolling,
// de-duplicates them by canonical URL, applies skip and limit accounting and
// yields one extracted place per pull.
package crawler
