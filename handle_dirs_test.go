package adoftp

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCWDAndPWD(t *testing.T) {
	server := NewTestServer(t, false)
	require.NoError(t, os.MkdirAll(filepath.Join(server.settings.BaseDir, "sub", "deeper"), 0750))

	raw := newRawConn(t, server)

	code, response, err := raw.SendCommand("PWD")
	require.NoError(t, err)
	require.Equal(t, StatusPathCreated, code)
	require.Equal(t, `"/"`, response)

	sendAndCheck(t, raw, "CWD sub", StatusFileOK)

	code, response, err = raw.SendCommand("PWD")
	require.NoError(t, err)
	require.Equal(t, StatusPathCreated, code)
	require.Equal(t, `"/sub/"`, response)

	sendAndCheck(t, raw, "CWD deeper", StatusFileOK)

	code, response, err = raw.SendCommand("PWD")
	require.NoError(t, err)
	require.Equal(t, StatusPathCreated, code)
	require.Equal(t, `"/sub/deeper/"`, response)

	// absolute form from anywhere
	sendAndCheck(t, raw, "CWD /sub", StatusFileOK)
	sendAndCheck(t, raw, "CWD /", StatusFileOK)

	code, response, err = raw.SendCommand("PWD")
	require.NoError(t, err)
	require.Equal(t, StatusPathCreated, code)
	require.Equal(t, `"/"`, response)
}

func TestCWDFailures(t *testing.T) {
	server := NewTestServer(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(server.settings.BaseDir, "plain.txt"), []byte("x"), 0600))

	raw := newRawConn(t, server)

	// missing directory
	sendAndCheck(t, raw, "CWD missing", StatusActionNotTaken)

	// a file is not a directory
	sendAndCheck(t, raw, "CWD plain.txt", StatusActionNotTaken)

	// a rejected CWD leaves the working directory untouched
	code, response, err := raw.SendCommand("PWD")
	require.NoError(t, err)
	require.Equal(t, StatusPathCreated, code)
	require.Equal(t, `"/"`, response)
}

func TestCWDJailEscapeBlocked(t *testing.T) {
	server := NewTestServer(t, false)
	conn, reader := dialScript(t, server)

	sendCommandLine(t, conn, "CWD /../../etc")
	require.Equal(t, "550 Requested action not taken.", readReplyLine(t, reader))

	sendCommandLine(t, conn, "PWD")
	require.Equal(t, `257 "/"`, readReplyLine(t, reader))

	sendCommandLine(t, conn, "CWD ..")
	require.Equal(t, "550 Requested action not taken.", readReplyLine(t, reader))

	sendCommandLine(t, conn, "PWD")
	require.Equal(t, `257 "/"`, readReplyLine(t, reader))
}

var listLineRegexp = regexp.MustCompile(
	`^[?pcsbdl-][rwx-]{9} +\d+ \d+ +\d+ +\d+ [A-Z][a-z]{2} [ \d]\d  \d{4} .+$`)

func TestLIST(t *testing.T) {
	server := NewTestServer(t, false)
	base := server.settings.BaseDir
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sub"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(base, "hello.txt"), []byte("Hi\n"), 0600))

	raw := newRawConn(t, server)

	lines := listWithRawConn(t, raw, "")
	require.Len(t, lines, 4)

	names := make(map[string]string)

	for _, line := range lines {
		require.Regexp(t, listLineRegexp, line)

		fields := regexp.MustCompile(` +`).Split(line, 9)
		require.Len(t, fields, 9)
		names[fields[8]] = line
	}

	require.Contains(t, names, ".")
	require.Contains(t, names, "..")
	require.Contains(t, names, "sub")
	require.Contains(t, names, "hello.txt")

	// type letters and sizes
	require.Equal(t, byte('d'), names["."][0])
	require.Equal(t, byte('d'), names["sub"][0])
	require.Equal(t, byte('-'), names["hello.txt"][0])
	require.Contains(t, names["hello.txt"], " 3 ")

	// the year of a freshly created file is the current one
	require.Contains(t, names["hello.txt"], fmt.Sprintf(" %d ", time.Now().Year()))
}

func TestLISTSubdirectoryAndFlags(t *testing.T) {
	server := NewTestServer(t, false)
	base := server.settings.BaseDir
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sub"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(base, "sub", "inner.txt"), []byte("inner"), 0600))

	raw := newRawConn(t, server)

	lines := listWithRawConn(t, raw, "sub")
	require.Len(t, lines, 3)

	// a single "-flags" token is skipped
	lines = listWithRawConn(t, raw, "-l sub")
	require.Len(t, lines, 3)

	lines = listWithRawConn(t, raw, "-al")
	require.Len(t, lines, 3) // ".", "..", "sub"
}

func TestLISTEmptyDirectory(t *testing.T) {
	server := NewTestServer(t, false)
	raw := newRawConn(t, server)

	// an empty directory still has its "." and ".." entries
	lines := listWithRawConn(t, raw, "")
	require.Len(t, lines, 2)
}

func TestLISTFailures(t *testing.T) {
	server := NewTestServer(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(server.settings.BaseDir, "plain.txt"), []byte("x"), 0600))

	raw := newRawConn(t, server)

	// without a prepared data connection there is no 150, only a 550
	sendAndCheck(t, raw, "LIST", StatusActionNotTaken)

	// unresolvable targets fail before any data connection is involved
	sendAndCheck(t, raw, "LIST missing", StatusActionNotTaken)
	sendAndCheck(t, raw, "LIST ../", StatusActionNotTaken)

	// a file is not listable
	sendAndCheck(t, raw, "LIST plain.txt", StatusActionNotTaken)
}

func TestParseListParam(t *testing.T) {
	tests := []struct {
		param string
		path  string
	}{
		{"", ""},
		{"sub", "sub"},
		{"-l", ""},
		{"-al", ""},
		{"-l sub", "sub"},
		{"-l  sub", "sub"},
		{"/sub/deeper", "/sub/deeper"},
	}

	for _, test := range tests {
		require.Equal(t, test.path, parseListParam(test.param), "%#v", test.param)
	}
}

type fakeFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() os.FileMode  { return f.mode }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeFileInfo) Sys() interface{}   { return nil }

func TestFileStatFormat(t *testing.T) {
	info := fakeFileInfo{
		name:    "hello.txt",
		size:    1234,
		mode:    0644,
		modTime: time.Date(2020, time.March, 5, 12, 0, 0, 0, time.Local),
	}

	line := fileStat(listEntry{name: info.name, info: info})
	require.Equal(t, "-rw-r--r--   1 0        0            1234 Mar  5  2020 hello.txt", line)
}

func TestStrmode(t *testing.T) {
	tests := []struct {
		mode     os.FileMode
		expected string
	}{
		{0644, "-rw-r--r--"},
		{0640, "-rw-r-----"},
		{os.ModeDir | 0755, "drwxr-xr-x"},
		{os.ModeDir | 0700, "drwx------"},
		{os.ModeSymlink | 0777, "lrwxrwxrwx"},
		{os.ModeDevice | 0660, "brw-rw----"},
		{os.ModeDevice | os.ModeCharDevice | 0660, "crw-rw----"},
		{os.ModeNamedPipe | 0600, "prw-------"},
		{os.ModeSocket | 0600, "srw-------"},
		{os.ModeIrregular, "?---------"},
	}

	for _, test := range tests {
		require.Equal(t, test.expected, strmode(test.mode), "%v", test.mode)
	}
}

func TestQuoteDoubling(t *testing.T) {
	require.Equal(t, "/plain/", quoteDoubling("/plain/"))
	require.Equal(t, `/has""quote/`, quoteDoubling(`/has"quote/`))
}
