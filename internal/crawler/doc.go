// Package crawler implements the single-site crawl: URL classification, the
// priority frontier, seed discovery, and the orchestrator that renders pages,
// runs the extractors and aggregates a site summary.
package crawler
