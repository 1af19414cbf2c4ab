package adoftp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fclairamb/go-log/gokit"
	gklog "github.com/go-kit/kit/log"
	"github.com/secsy/goftp"
	"github.com/stretchr/testify/require"
)

const (
	authUser = "anonymous"
	authPass = "anonymous@example.com"
)

func panicOnError(err error) {
	if err != nil {
		panic(err)
	}
}

// NewTestServer provides a server rooted at a fresh temporary directory
func NewTestServer(t *testing.T, debug bool) *FtpServer {
	t.Helper()

	return NewTestServerWithSettings(t, &Settings{}, debug)
}

// NewTestServerWithSettings provides a server instantiated with some settings
func NewTestServerWithSettings(t *testing.T, settings *Settings, debug bool) *FtpServer {
	t.Helper()
	t.Parallel()

	if settings.ListenAddr == "" {
		settings.ListenAddr = "127.0.0.1:0"
	}

	if settings.BaseDir == "" {
		settings.BaseDir = t.TempDir()
	}

	if settings.ConnectionTimeout == 0 {
		settings.ConnectionTimeout = 5
	}

	server := NewFtpServer(settings)

	// If we are in debug mode, we should log things
	if debug {
		server.Logger = gokit.NewGKLogger(gklog.NewLogfmtLogger(gklog.NewSyncWriter(os.Stdout))).With(
			"ts", gokit.GKDefaultTimestampUTC,
			"caller", gokit.GKDefaultCaller,
		)
	}

	require.NoError(t, server.Listen())

	go func() { panicOnError(server.Serve()) }()

	t.Cleanup(func() { mustStopServer(server) })

	return server
}

func mustStopServer(server *FtpServer) {
	if err := server.Stop(); err != nil && !errors.Is(err, ErrNotListening) {
		panic(err)
	}
}

func newFtpClient(t *testing.T, server *FtpServer) *goftp.Client {
	t.Helper()

	conf := goftp.Config{
		User:     authUser,
		Password: authPass,
	}

	client, err := goftp.DialConfig(conf, server.Addr())
	require.NoError(t, err, "Couldn't connect")

	t.Cleanup(func() { panicOnError(client.Close()) })

	return client
}

func newRawConn(t *testing.T, server *FtpServer) goftp.RawConn {
	t.Helper()

	raw, err := newFtpClient(t, server).OpenRawConn()
	require.NoError(t, err, "Couldn't open raw connection")

	t.Cleanup(func() { require.NoError(t, raw.Close()) })

	return raw
}

func sendAndCheck(t *testing.T, raw goftp.RawConn, cmd string, expected int) {
	t.Helper()

	code, response, err := raw.SendCommand(cmd)
	require.NoError(t, err)
	require.Equal(t, expected, code, response)
}

// downloadWithRawConn fetches a file over a prepared passive data connection
func downloadWithRawConn(t *testing.T, raw goftp.RawConn, fileName string) string {
	t.Helper()

	dcGetter, err := raw.PrepareDataConn()
	require.NoError(t, err)

	rc, response, err := raw.SendCommand(fmt.Sprintf("RETR %v", fileName))
	require.NoError(t, err)
	require.Equal(t, StatusFileStatusOK, rc, response)

	dc, err := dcGetter()
	require.NoError(t, err)

	content, err := io.ReadAll(dc)
	require.NoError(t, err)
	require.NoError(t, dc.Close())

	rc, response, err = raw.ReadResponse()
	require.NoError(t, err)
	require.Equal(t, StatusClosingDataConn, rc, response)

	return string(content)
}

// listWithRawConn runs LIST over a prepared passive data connection and
// returns the listing lines
func listWithRawConn(t *testing.T, raw goftp.RawConn, param string) []string {
	t.Helper()

	dcGetter, err := raw.PrepareDataConn()
	require.NoError(t, err)

	cmd := "LIST"
	if param != "" {
		cmd += " " + param
	}

	rc, response, err := raw.SendCommand(cmd)
	require.NoError(t, err)
	require.Equal(t, StatusFileStatusOK, rc, response)

	dc, err := dcGetter()
	require.NoError(t, err)

	content, err := io.ReadAll(dc)
	require.NoError(t, err)
	require.NoError(t, dc.Close())

	rc, response, err = raw.ReadResponse()
	require.NoError(t, err)
	require.Equal(t, StatusClosingDataConn, rc, response)

	if len(content) == 0 {
		return nil
	}

	return strings.Split(strings.TrimRight(string(content), "\r\n"), "\r\n")
}

// dialScript opens a raw control connection and consumes the greeting, for
// tests asserting exact reply lines
func dialScript(t *testing.T, server *FtpServer) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", server.Addr(), 5*time.Second)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	reader := bufio.NewReader(conn)
	require.Equal(t, "220 Service ready", readReplyLine(t, reader))

	return conn, reader
}

func sendCommandLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()

	_, err := fmt.Fprintf(conn, "%s\r\n", line)
	require.NoError(t, err)
}

func readReplyLine(t *testing.T, reader *bufio.Reader) string {
	t.Helper()

	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	return strings.TrimRight(line, "\r\n")
}
