package adoftp

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LIST date formatting, abbreviated month, space-padded day, four-digit year
const dateFormatListYear = "Jan _2  2006"

func (c *clientHandler) handleCWD(param string) error {
	resolved, err := c.server.jail.resolve(c.path, param)
	if err != nil {
		return c.writeReply(StatusActionNotTaken)
	}

	info, err := c.server.fs.Stat(resolved)
	if err != nil || !info.IsDir() {
		return c.writeReply(StatusActionNotTaken)
	}

	c.path = c.server.jail.projectIntoCwd(resolved)

	return c.writeReply(StatusFileOK)
}

func (c *clientHandler) handlePWD(_ string) error {
	// "quote-doubling", https://tools.ietf.org/html/rfc959 , page 63
	return c.writeMessage(StatusPathCreated, `"`+quoteDoubling(c.path)+`"`)
}

func (c *clientHandler) handleLIST(param string) error {
	hostDir, err := c.server.jail.resolve(c.path, parseListParam(param))
	if err != nil {
		return c.writeReply(StatusActionNotTaken)
	}

	info, err := c.server.fs.Stat(hostDir)
	if err != nil || !info.IsDir() {
		return c.writeReply(StatusActionNotTaken)
	}

	entries, err := c.listEntries(hostDir, info)
	if err != nil {
		return c.writeReply(StatusActionNotTaken)
	}

	return c.transferStream(func(conn net.Conn) error {
		return c.dirTransferLIST(conn, entries)
	})
}

// parseListParam drops a single leading "-flags" token; whatever follows is
// the path. Quoted paths are not supported.
func parseListParam(param string) string {
	if strings.HasPrefix(param, "-") {
		if space := strings.IndexByte(param, ' '); space != -1 {
			param = param[space+1:]
		} else {
			param = ""
		}
	}

	return strings.TrimLeft(param, " ")
}

type listEntry struct {
	name string
	info os.FileInfo
}

// listEntries gathers the directory content, with the "." and ".." entries
// the classic readdir would have produced. The parent of the virtual root is
// the root itself. Entries that cannot be stat'ed are silently skipped.
func (c *clientHandler) listEntries(hostDir string, dirInfo os.FileInfo) ([]listEntry, error) {
	entries := []listEntry{{name: ".", info: dirInfo}}

	parent := filepath.Dir(hostDir)
	if !c.server.jail.contains(parent) {
		parent = hostDir
	}

	if parentInfo, err := c.server.fs.Stat(parent); err == nil {
		entries = append(entries, listEntry{name: "..", info: parentInfo})
	}

	directory, err := c.server.fs.Open(hostDir)
	if err != nil {
		return nil, err
	}

	defer c.closeDirectory(hostDir, directory)

	names, err := directory.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		info, errStat := c.server.fs.Stat(filepath.Join(hostDir, name))
		if errStat != nil {
			continue
		}

		entries = append(entries, listEntry{name: name, info: info})
	}

	return entries, nil
}

func (c *clientHandler) closeDirectory(directoryPath string, directory afero.File) {
	if errClose := directory.Close(); errClose != nil {
		c.logger.Error("Couldn't close directory", "err", errClose, "directory", directoryPath)
	}
}

func (c *clientHandler) dirTransferLIST(w io.Writer, entries []listEntry) error {
	if len(entries) == 0 {
		_, err := w.Write([]byte(""))

		return err
	}

	for _, entry := range entries {
		if _, err := fmt.Fprintf(w, "%s\r\n", fileStat(entry)); err != nil {
			return err
		}
	}

	return nil
}

// fileStat renders one "ls -l" style line
func fileStat(entry listEntry) string {
	nlink, uid, gid := statOwnership(entry.info)

	return fmt.Sprintf(
		"%s %3d %-8d %-8d %8d %s %s",
		strmode(entry.info.Mode()),
		nlink,
		uid,
		gid,
		entry.info.Size(),
		entry.info.ModTime().Format(dateFormatListYear),
		entry.name,
	)
}

// strmode renders the canonical ten-character UNIX mode string
func strmode(mode os.FileMode) string {
	var b [10]byte

	b[0] = ftypelet(mode)

	const chars = "rwxrwxrwx"

	perm := mode.Perm()
	for i := 0; i < 9; i++ {
		if perm&(1<<uint(8-i)) != 0 {
			b[i+1] = chars[i]
		} else {
			b[i+1] = '-'
		}
	}

	return string(b[:])
}

// ftypelet returns the letter representing the file type
func ftypelet(mode os.FileMode) byte {
	switch {
	case mode.IsRegular():
		return '-'
	case mode.IsDir():
		return 'd'
	case mode&os.ModeSymlink != 0:
		return 'l'
	case mode&os.ModeCharDevice != 0:
		return 'c'
	case mode&os.ModeDevice != 0:
		return 'b'
	case mode&os.ModeNamedPipe != 0:
		return 'p'
	case mode&os.ModeSocket != 0:
		return 's'
	}

	return '?'
}

func quoteDoubling(s string) string {
	if !strings.Contains(s, "\"") {
		return s
	}

	return strings.ReplaceAll(s, "\"", `""`)
}
