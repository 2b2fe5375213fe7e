package types

// Version is the canonical project version.
// The CLI, the DataLink client identification string and the archive
// records all report this value.
const Version = "0.3.0"
