// Command trdpd runs one TRDP session as a standalone daemon: load a
// config file, optionally enable the directory-service clients against
// a controller address, and block until interrupted. Flag-driven in
// the same style as the teacher's cmd/canopen, generalized from one
// fixed CANopen node to a configurable TRDP session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	trdp "github.com/tallowtrack/gotrdp"
	"github.com/tallowtrack/gotrdp/pkg/config"
	"github.com/tallowtrack/gotrdp/pkg/session"
)

func main() {
	cfgPath := flag.String("c", "", "session config file (INI); defaults built in if empty")
	controllerIp := flag.String("controller", "", "train directory controller IP; enables DNR/SRM/TTDB when set")
	hostName := flag.String("host", "", "override HostName from the config file")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.LoadFile(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trdpd: loading %s: %v\n", *cfgPath, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *hostName != "" {
		cfg.HostName = *hostName
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s := session.New(cfg, logger)

	if *controllerIp != "" {
		ip := net.ParseIP(*controllerIp)
		if ip == nil || ip.To4() == nil {
			fmt.Fprintf(os.Stderr, "trdpd: invalid -controller address %q\n", *controllerIp)
			os.Exit(1)
		}
		controller := trdp.Addr{DstIp: trdp.IPToUint32(ip.To4())}
		if err := s.EnableDirectoryServices(controller); err != nil {
			fmt.Fprintf(os.Stderr, "trdpd: enabling directory services: %v\n", err)
			os.Exit(1)
		}
		logger.Info("directory services enabled", "controller", *controllerIp)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("trdpd starting", "host", cfg.HostName, "cycle", cfg.CycleTime)
	s.Run(ctx)
	logger.Info("trdpd stopped")
}
