// Package adoftp implements an anonymous download-only FTP server.
package adoftp

// FTP reply codes used by the server
const (
	StatusFileStatusOK             = 150
	StatusOK                       = 200
	StatusSystemType               = 215
	StatusServiceReady             = 220
	StatusClosingControlConn       = 221
	StatusClosingDataConn          = 226
	StatusEnteringPASV             = 227
	StatusUserLoggedIn             = 230
	StatusFileOK                   = 250
	StatusPathCreated              = 257
	StatusUserOK                   = 331
	StatusSyntaxErrorNotRecognised = 500
	StatusActionNotTaken           = 550
)

// Canned reply texts. Replies are always a single line; the numeric code and
// this table are the only things a client ever sees about an error.
var defaultMessages = map[int]string{ //nolint:gochecknoglobals
	StatusFileStatusOK:             "Opening connection",
	StatusOK:                       "Okay",
	StatusServiceReady:             "Service ready",
	StatusClosingControlConn:       "Goodbye",
	StatusClosingDataConn:          "Transfer complete",
	StatusUserLoggedIn:             "User logged in",
	StatusFileOK:                   "Command successful",
	StatusUserOK:                   "User name ok, need password",
	StatusSyntaxErrorNotRecognised: "Syntax error, command unrecognized",
	StatusActionNotTaken:           "Requested action not taken.",
}
