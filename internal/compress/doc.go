// Package compress gives lazy, forward-only access to the gzip-compressed tar
// archives the dataset is published as, and packs archives in the same layout.
package compress
