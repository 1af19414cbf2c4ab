package adoftp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/fclairamb/go-log"
)

var errControlNotIPv4 = errors.New("control connection is not IPv4")

// controlLocalIPv4 reads the local IP of the control connection, the address
// announced in the 227 reply.
func controlLocalIPv4(conn net.Conn) (string, error) {
	addr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return "", errControlNotIPv4
	}

	ip := addr.IP.To4()
	if ip == nil {
		return "", errControlNotIPv4
	}

	return ip.String(), nil
}

func (c *clientHandler) handlePASV(_ string) error {
	// A previously prepared endpoint, passive listener included, is replaced
	if err := c.closeTransfer(); err != nil {
		c.logger.Warn("Problem closing the previous transfer", "err", err)
	}

	ip, err := controlLocalIPv4(c.conn)
	if err != nil {
		c.logger.Error("Could not read the control connection address", "err", err)

		return c.writeReply(StatusActionNotTaken)
	}

	listenConfig := net.ListenConfig{Control: Control}

	listener, err := listenConfig.Listen(context.Background(), "tcp4", net.JoinHostPort(ip, "0"))
	if err != nil {
		c.logger.Error("Could not listen for passive connection", "err", err)

		return c.writeReply(StatusActionNotTaken)
	}

	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		if errClose := listener.Close(); errClose != nil {
			c.logger.Warn("Problem closing passive listener", "err", errClose)
		}

		return c.writeReply(StatusActionNotTaken)
	}

	port := tcpListener.Addr().(*net.TCPAddr).Port

	c.transfer = &passiveTransferHandler{
		listener: tcpListener,
		port:     port,
		settings: c.server.settings,
		logger:   c.logger,
	}

	quads := strings.Split(ip, ".")

	return c.writeMessage(
		StatusEnteringPASV,
		fmt.Sprintf("Entering Passive Mode (%s,%s,%s,%s,%d,%d).",
			quads[0], quads[1], quads[2], quads[3], port>>8, port&0xff))
}

// Passive connection
type passiveTransferHandler struct {
	listener   *net.TCPListener // TCP listener awaiting the client, nil once consumed
	port       int              // TCP port we are listening on
	connection net.Conn         // TCP connection established
	settings   *Settings        // Settings
	logger     log.Logger       // Logger
}

// Open accepts exactly one connection. The listener is released as soon as
// its connection is obtained.
func (p *passiveTransferHandler) Open() (net.Conn, error) {
	if p.connection == nil {
		timeout := time.Duration(p.settings.ConnectionTimeout) * time.Second

		if err := p.listener.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}

		connection, err := p.listener.Accept()

		p.releaseListener()

		if err != nil {
			return nil, err
		}

		p.connection = connection
	}

	return p.connection, nil
}

func (p *passiveTransferHandler) releaseListener() {
	if p.listener == nil {
		return
	}

	if err := p.listener.Close(); err != nil {
		p.logger.Warn(
			"Problem closing passive listener",
			"err", err,
		)
	}

	p.listener = nil
}

func (p *passiveTransferHandler) Close() error {
	p.releaseListener()

	if p.connection != nil {
		connection := p.connection
		p.connection = nil

		return connection.Close()
	}

	return nil
}
