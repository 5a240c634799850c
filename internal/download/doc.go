// Package download fetches the dataset archives into a local cache directory.
// It manages the task lifecycle, bounds the number of parallel transfers,
// retries failed attempts and propagates progress to an optional callback.
// HTTP transfers go through fasthttp with a streamed body; file:// URLs and
// plain local paths are copied, so a local mirror can stand in for the
// public bucket.
package download
