// adoftp is an anonymous download-only FTP server
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fclairamb/go-log/gokit"
	gklog "github.com/go-kit/kit/log"

	"github.com/adoftp/adoftp"
)

var ftpServer *adoftp.FtpServer

func main() {
	flags := flag.NewFlagSet("adoftp", flag.ContinueOnError)
	bindAddr := flags.String("s", "0.0.0.0", "listen on the specified IP `address`")
	bindPort := flags.Int("p", 21, "start listening on the specified `port`")
	baseDir := flags.String("d", "/", "use the specified `dir` as the base directory")
	flags.Usage = func() {
		out := flags.Output()
		fmt.Fprintln(out, "adoftp - anonymous download-only FTP server")
		fmt.Fprintln(out, "option:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}

		os.Exit(1)
	}

	logger := gokit.NewGKLogger(gklog.NewLogfmtLogger(gklog.NewSyncWriter(os.Stdout))).With(
		"ts", gokit.GKDefaultTimestampUTC,
		"caller", gokit.GKDefaultCaller,
	)

	ftpServer = adoftp.NewFtpServer(&adoftp.Settings{
		ListenAddr: fmt.Sprintf("%s:%d", *bindAddr, *bindPort),
		BaseDir:    *baseDir,
	})
	ftpServer.Logger = logger

	go signalHandler()

	if err := ftpServer.ListenAndServe(); err != nil {
		logger.Error("Problem listening", "err", err)
		os.Exit(1)
	}
}

func signalHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)

	<-ch

	if err := ftpServer.Stop(); err != nil {
		os.Exit(1)
	}
}
