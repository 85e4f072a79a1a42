package dfi

// Version of the client library, sent in the User-Agent of every request.
// Filled in by ldflags when building the CLI.
var Version = "v0.1.0"
