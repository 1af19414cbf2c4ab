package adoftp

import (
	"io"
	"net"
)

// Handle the "RETR" command. The download happens in order: jail check, open,
// 150, data connection, copy, teardown, final reply.
func (c *clientHandler) handleRETR(param string) error {
	hostPath, err := c.server.jail.resolve(c.path, param)
	if err != nil {
		return c.writeReply(StatusActionNotTaken)
	}

	info, err := c.server.fs.Stat(hostPath)
	if err != nil || !info.Mode().IsRegular() {
		return c.writeReply(StatusActionNotTaken)
	}

	file, err := c.server.fs.Open(hostPath)
	if err != nil {
		return c.writeReply(StatusActionNotTaken)
	}

	err = c.transferStream(func(conn net.Conn) error {
		_, errCopy := io.Copy(conn, file)

		return errCopy
	})

	// we ignore the close error for reads
	if errClose := file.Close(); errClose != nil {
		c.logger.Warn("Problem closing a file", "err", errClose, "file", hostPath)
	}

	return err
}
