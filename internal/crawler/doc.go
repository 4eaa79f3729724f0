// Package crawler implements the batch crawl loop that drains the crawl queue,
// fetches each URL from the live site, rewrites markup for the deployment
// target, and writes the result into the current archive.
package crawler
