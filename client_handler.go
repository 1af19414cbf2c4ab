package adoftp

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/fclairamb/go-log"
)

// TransferType is the enumerable that represents the supported transfer types
type TransferType int

// Supported transfer types. The type is recorded but the data channel always
// carries raw bytes: there is no end-of-line translation.
const (
	TransferTypeASCII TransferType = iota
	TransferTypeBinary
)

// errSessionEnd is the sentinel a command handler returns to end the session
// after its reply went out (QUIT).
var errSessionEnd = errors.New("session ended")

// paramPolicy is the argument shape a command accepts. It reproduces the
// original wire parser's length rules: "verb + space + argument" for
// commands taking one, exactly "verb" for the argumentless ones.
type paramPolicy int

const (
	paramForbidden paramPolicy = iota // the verb stands alone
	paramRequired                     // separator and a non-empty argument
	paramSeparator                    // separator required, argument may be empty
	paramFree                         // the handler parses whatever follows
)

// CommandDescription defines the argument shape of a command and the function handling it
type CommandDescription struct {
	Param paramPolicy                        // Accepted argument shape
	Fn    func(*clientHandler, string) error // Function to handle it
}

// This is shared between FtpServer instances as there's no point in making
// the FTP commands behave differently between them. Lookup is
// case-sensitive: the original server only understood upper-case verbs.
var commandsMap = map[string]*CommandDescription{ //nolint:gochecknoglobals
	// Authentication (any user/password pair is accepted)
	"USER": {Fn: (*clientHandler).handleUSER, Param: paramRequired},
	"PASS": {Fn: (*clientHandler).handlePASS, Param: paramSeparator},

	// Misc
	"NOOP": {Fn: (*clientHandler).handleNOOP, Param: paramForbidden},
	"SYST": {Fn: (*clientHandler).handleSYST, Param: paramForbidden},
	"TYPE": {Fn: (*clientHandler).handleTYPE, Param: paramRequired},
	"QUIT": {Fn: (*clientHandler).handleQUIT, Param: paramFree},

	// Directory handling
	"CWD":  {Fn: (*clientHandler).handleCWD, Param: paramRequired},
	"PWD":  {Fn: (*clientHandler).handlePWD, Param: paramForbidden},
	"LIST": {Fn: (*clientHandler).handleLIST, Param: paramFree},

	// File download
	"RETR": {Fn: (*clientHandler).handleRETR, Param: paramRequired},

	// Connection handling
	"PORT": {Fn: (*clientHandler).handlePORT, Param: paramRequired},
	"PASV": {Fn: (*clientHandler).handlePASV, Param: paramForbidden},
}

type clientHandler struct {
	id                  uint32          // ID of the client
	server              *FtpServer      // Server on which the connection was accepted
	conn                net.Conn        // TCP connection
	writer              *bufio.Writer   // Writer on the TCP connection
	reader              *lineBuffer     // Bounded line reader on the TCP connection
	user                string          // Declared user, never checked
	path                string          // Current virtual directory, always "/"-wrapped
	command             string          // Command received on the connection
	connectedAt         time.Time       // Date of connection
	currentTransferType TransferType    // Current transfer type
	transfer            transferHandler // Prepared transfer connection (passive or active), nil when none
	logger              log.Logger      // Client handler logging
}

// newClientHandler initializes a client handler when someone connects
func (server *FtpServer) newClientHandler(connection net.Conn, id uint32) *clientHandler {
	return &clientHandler{
		server:      server,
		conn:        connection,
		id:          id,
		writer:      bufio.NewWriter(connection),
		reader:      newLineBuffer(connection),
		connectedAt: time.Now().UTC(),
		path:        "/",
		logger:      server.Logger.With("clientId", id),
	}
}

// Path provides the current working directory of the client
func (c *clientHandler) Path() string {
	return c.path
}

// ID provides the client's ID
func (c *clientHandler) ID() uint32 {
	return c.id
}

// RemoteAddr returns the remote network address.
func (c *clientHandler) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address.
func (c *clientHandler) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *clientHandler) end() {
	if err := c.closeTransfer(); err != nil {
		c.logger.Warn(
			"Problem closing a transfer",
			"err", err,
		)
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Warn(
			"Problem disconnecting a client",
			"err", err,
		)
	}

	c.server.clientDeparture(c)
}

// HandleCommands reads the stream of commands
func (c *clientHandler) HandleCommands() {
	defer c.end()

	if err := c.writeReply(StatusServiceReady); err != nil {
		return
	}

	for {
		if c.server.settings.IdleTimeout > 0 {
			if err := c.conn.SetDeadline(
				time.Now().Add(time.Duration(c.server.settings.IdleTimeout) * time.Second)); err != nil {
				c.logger.Error("Network error", "err", err)
			}
		}

		line, err := c.reader.ReadLine()
		if err != nil {
			c.handleCommandsStreamError(err)

			return
		}

		if err := c.handleCommand(line); err != nil {
			if !errors.Is(err, errSessionEnd) {
				c.logger.Error("Could not send reply", "err", err)
			}

			return
		}
	}
}

func (c *clientHandler) handleCommandsStreamError(err error) {
	switch {
	case errors.Is(err, errLineTooLong):
		c.logger.Warn("Closing session after buffer overflow")
	case errors.Is(err, io.EOF):
		c.logger.Debug("Client disconnected", "clean", false)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.logger.Info("Client IDLE timeout", "err", err)

			return
		}

		c.logger.Error("Read error", "err", err)
	}
}

// handleCommand takes care of executing the received line
func (c *clientHandler) handleCommand(line string) error {
	command, param, hasSeparator := parseLine(line)
	c.command = command

	cmdDesc := commandsMap[command]
	if cmdDesc == nil {
		return c.writeReply(StatusSyntaxErrorNotRecognised)
	}

	if !checkParam(cmdDesc.Param, param, hasSeparator) {
		return c.writeReply(StatusSyntaxErrorNotRecognised)
	}

	return c.executeCommandFn(cmdDesc, command, param)
}

func checkParam(policy paramPolicy, param string, hasSeparator bool) bool {
	switch policy {
	case paramForbidden:
		return !hasSeparator && param == ""
	case paramRequired:
		return hasSeparator && param != ""
	case paramSeparator:
		return hasSeparator
	case paramFree:
		return true
	}

	return false
}

func (c *clientHandler) executeCommandFn(cmdDesc *CommandDescription, command, param string) (err error) {
	// Let's prepare to recover in case there's a command error
	defer func() {
		if r := recover(); r != nil {
			err = c.writeReply(StatusSyntaxErrorNotRecognised)
			c.logger.Warn(
				"Internal command handling error",
				"err", r,
				"command", command,
				"param", param,
			)
		}
	}()

	return cmdDesc.Fn(c, param)
}

func (c *clientHandler) writeLine(line string) error {
	c.logger.Debug("Sending answer", "line", line)

	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		return newNetworkError("couldn't send line", err)
	}

	if err := c.writer.Flush(); err != nil {
		return newNetworkError("couldn't flush line", err)
	}

	return nil
}

// writeMessage sends a code and its message as a single reply line
func (c *clientHandler) writeMessage(code int, message string) error {
	return c.writeLine(strconv.Itoa(code) + " " + message)
}

// writeReply sends a code with its canned message. Whatever failed on the
// server side, the client only ever sees the table text.
func (c *clientHandler) writeReply(code int) error {
	return c.writeMessage(code, defaultMessages[code])
}

// closeTransfer releases the prepared data connection, if any: the accepted
// or dialed socket and, for a passive transfer that never got consumed, its
// listener.
func (c *clientHandler) closeTransfer() error {
	if c.transfer == nil {
		return nil
	}

	err := c.transfer.Close()
	c.transfer = nil

	return err
}

// transferStream runs one data transfer. The 150 reply is sent before the
// data connection is opened, the 226 after the data socket is closed. The
// prepared PORT/PASV endpoint is consumed whatever the outcome: the next
// transfer command needs a fresh one.
func (c *clientHandler) transferStream(payload func(conn net.Conn) error) error {
	if c.transfer == nil {
		return c.writeReply(StatusActionNotTaken)
	}

	if err := c.writeReply(StatusFileStatusOK); err != nil {
		if errClose := c.closeTransfer(); errClose != nil {
			c.logger.Warn("Problem closing a transfer", "err", errClose)
		}

		return err
	}

	conn, err := c.transfer.Open()
	if err != nil {
		c.logger.Warn("Unable to open transfer", "err", err)

		if errClose := c.closeTransfer(); errClose != nil {
			c.logger.Warn("Problem closing a transfer", "err", errClose)
		}

		return c.writeReply(StatusActionNotTaken)
	}

	c.logger.Debug(
		"Transfer connection opened",
		"remoteAddr", conn.RemoteAddr().String(),
		"localAddr", conn.LocalAddr().String())

	err = payload(conn)

	if errClose := c.closeTransfer(); errClose != nil && err == nil {
		err = errClose
	}

	if err != nil {
		c.logger.Warn("Transfer failed", "err", err)

		return c.writeReply(StatusActionNotTaken)
	}

	return c.writeReply(StatusClosingDataConn)
}

// parseLine splits a command line on the first space. A verb glued to its
// argument is not recognized.
func parseLine(line string) (command string, param string, hasSeparator bool) {
	if space := strings.IndexByte(line, ' '); space != -1 {
		return line[:space], line[space+1:], true
	}

	return line, "", false
}
