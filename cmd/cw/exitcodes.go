package main

// Exit codes.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing repository, invalid paths)
	ExitDataError   = 3 // Data error (malformed input, validation failure)
	ExitBusy        = 4 // A build is already running for the collection
	ExitUpstream    = 5 // Bibliographic or embedding service unavailable
)
