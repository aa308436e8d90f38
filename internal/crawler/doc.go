// Package crawler walks the paginated archive listing, extracts source
// document links from each rendered page and hands them to the fetcher
// workers through a bounded queue.
package crawler
