// Command netio-echo is a small demonstration server wiring config,
// logging, and the netio runtime together: it listens on every address in
// its config and echoes back whatever each client sends, per the teacher
// repo's overall main.go shape (flags → construct → run → signal-driven
// shutdown) combined with the pack's cobra-based CLI entrypoints.
package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streamkit/netio/config"
	"github.com/streamkit/netio/internal/logging"
	"github.com/streamkit/netio/netio"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "netio-echo",
		Short: "Echo server demonstrating the netio runtime",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a netio.yaml config file")

	if err := root.Execute(); err != nil {
		logging.Base.WithError(err).Fatal("netio-echo: fatal error")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := logging.Configure(cfg.Logging.Level, cfg.Logging.JSON); err != nil {
		return err
	}
	log := logging.For("netio-echo")

	if len(cfg.Listen) == 0 {
		cfg.Listen = []config.ListenSpec{{Network: "tcp", Address: "127.0.0.1:9000"}}
	}

	rt := netio.Default()
	var servers []*netio.Server
	for _, spec := range cfg.Listen {
		srv, err := bind(rt, cfg, spec, log)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	for _, srv := range servers {
		if err := srv.Close(); err != nil {
			log.WithError(err).Warn("error closing listener")
		}
	}
	return nil
}

// bind constructs one Server for spec, wiring an echoing handler set onto
// each accepted Stream.
func bind(rt *netio.Runtime, cfg *config.Config, spec config.ListenSpec, log *logrus.Entry) (*netio.Server, error) {
	onConnection := func(srv *netio.Server, s *netio.Stream) {
		remote := s.RemoteAddr()
		log.WithField("remote", remote).Info("connection accepted")

		s.SetHandlers(netio.Handlers{
			OnData: func(s *netio.Stream, data []byte) {
				if _, err := s.Write(data); err != nil {
					log.WithError(err).Warn("echo write failed")
				}
			},
			OnEnd: func(s *netio.Stream) {
				s.Close()
			},
			OnTimeout: func(s *netio.Stream) {
				log.WithField("remote", remote).Info("idle timeout")
			},
			OnError: func(s *netio.Stream, err error) {
				log.WithError(err).Warn("stream error")
			},
			OnClose: func(s *netio.Stream, hadError bool) {
				log.WithField("hadError", hadError).Info("connection closed")
			},
		})

		if cfg.NoDelay {
			_ = s.SetNoDelay(true)
		}
		if cfg.IdleTimeout > 0 {
			s.SetTimeout(cfg.IdleTimeout)
		}
	}

	handlers := netio.ServerHandlers{
		OnListening: func(srv *netio.Server) {
			addr, _ := srv.Address()
			log.WithField("address", addr).Info("listening")
		},
		OnConnection: onConnection,
		OnClose: func(srv *netio.Server) {
			log.Info("listener closed")
		},
	}

	if spec.Network == "unix" {
		return rt.ListenUnix(spec.Address, handlers)
	}

	host, port, err := splitHostPort(spec.Address)
	if err != nil {
		return nil, err
	}
	return rt.ListenTCP(host, port, handlers)
}

func splitHostPort(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
