// Package model defines the domain data structures shared across the loader:
// splits and resource kinds, litter labels and boxes, decoded pixel arrays,
// dataset records, and the download task/batch state kept by the download
// manager.
package model
