package platform

// Package platform contains OS integration: the per-user cache location,
// filesystem helpers and revealing exported files in the system file manager.
