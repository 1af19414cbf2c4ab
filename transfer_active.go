package adoftp

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Active/Passive transfer connection handler. Callers never branch on the
// mode: the session holds one of these and asks it to open and close.
type transferHandler interface {
	// Get the connection to transfer data on
	Open() (net.Conn, error)

	// Close the connection (and any associated resource)
	Close() error
}

func (c *clientHandler) handlePORT(param string) error {
	raddr, err := parseRemoteAddr(param)
	if err != nil {
		c.logger.Warn("Problem parsing PORT", "err", err)

		return c.writeReply(StatusSyntaxErrorNotRecognised)
	}

	// A previously prepared endpoint, passive listener included, is replaced
	if err := c.closeTransfer(); err != nil {
		c.logger.Warn("Problem closing the previous transfer", "err", err)
	}

	c.transfer = &activeTransferHandler{
		raddr:    raddr,
		settings: c.server.settings,
	}

	return c.writeReply(StatusOK)
}

// Active connection
type activeTransferHandler struct {
	raddr    *net.TCPAddr // Remote address of the client
	conn     net.Conn     // Connection used to connect to him
	settings *Settings    // Settings
}

func (a *activeTransferHandler) Open() (net.Conn, error) {
	timeout := time.Duration(a.settings.ConnectionTimeout) * time.Second
	dialer := &net.Dialer{
		Timeout: timeout,
		Control: Control,
	}

	conn, err := dialer.Dial("tcp", a.raddr.String())
	if err != nil {
		return nil, newNetworkError("could not establish active connection", err)
	}

	// keep the connection as it will be closed by Close()
	a.conn = conn

	return a.conn, nil
}

// Close closes only if a connection was established
func (a *activeTransferHandler) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}

	return nil
}

var remoteAddrRegex = regexp.MustCompile(`^([0-9]{1,3},){5}[0-9]{1,3}$`)

// ErrRemoteAddrFormat is returned when the remote address has a bad format
var ErrRemoteAddrFormat = errors.New("remote address has a bad format")

// parseRemoteAddr parses the remote address of the client from param. This
// address is used for establishing a connection with the client.
//
// Param Format: 192,168,150,80,14,178
// Host: 192.168.150.80
// Port: (14 * 256) + 178
func parseRemoteAddr(param string) (*net.TCPAddr, error) {
	if !remoteAddrRegex.MatchString(param) {
		return nil, fmt.Errorf("could not parse %s: %w", param, ErrRemoteAddrFormat)
	}

	params := strings.Split(param, ",")

	ip := strings.Join(params[0:4], ".")

	p1, err := strconv.Atoi(params[4])
	if err != nil {
		return nil, err
	}

	p2, err := strconv.Atoi(params[5])
	if err != nil {
		return nil, err
	}

	port := p1<<8 + p2

	return net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", ip, port))
}
