package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"groundctl/board"
	"groundctl/command"
	"groundctl/dashboard"
	"groundctl/datalog"
	"groundctl/hotfire"
	"groundctl/hwconfig"
	"groundctl/procconfig"
	"groundctl/scheduler"
	"groundctl/statemachine"
	"groundctl/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := procconfig.Load(os.Args[1:], "./groundctl.yaml")
	if err != nil {
		return fmt.Errorf("loading process config: %w", err)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hwCfg, err := hwconfig.Load(cfg.HardwareConfigPath)
	if err != nil {
		return fmt.Errorf("loading hardware config: %w", err)
	}
	boards, err := board.BuildAll(hwCfg)
	if err != nil {
		return fmt.Errorf("building boards: %w", err)
	}

	seq, err := loadSequence(cfg.HotfireSequencePath)
	if err != nil {
		return fmt.Errorf("loading hotfire sequence: %w", err)
	}

	transports := make(map[string]transport.Manager, len(boards.All()))
	schedulers := make([]*scheduler.Scheduler, 0, len(boards.All()))
	for _, b := range boards.All() {
		tm, err := newTransport(b)
		if err != nil {
			return fmt.Errorf("wiring transport for board %q: %w", b.Name, err)
		}
		transports[b.Name] = tm
		schedulers = append(schedulers, scheduler.New(b, tm))
	}
	schedSet := scheduler.NewSet(schedulers...)

	recorder := datalog.NewCSVWriter(cfg.DatalogDir, cfg.Calibration)
	machine := statemachine.New(boards, hotfire.NewController(seq), schedSet, recorder)
	router := command.New(machine, cfg.HardwareConfigPath, hwCfg)
	dash := dashboard.New(cfg.DashboardAddr, machine)

	g, ctx := errgroup.WithContext(ctx)
	for name, tm := range transports {
		tm := tm
		name := name
		g.Go(func() error {
			if err := tm.Run(ctx); err != nil {
				log.Error().Err(err).Str("board", name).Msg("transport stopped")
			}
			return nil
		})
	}
	g.Go(func() error { return schedSet.Run(ctx) })
	g.Go(func() error { return machine.Run(ctx) })
	g.Go(func() error { return dash.Run(ctx) })
	g.Go(func() error { return serveCommands(ctx, cfg.CommandAddr, router) })

	log.Info().Str("command_addr", cfg.CommandAddr).Str("dashboard_addr", cfg.DashboardAddr).Msg("groundctl starting")
	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func loadSequence(path string) (*hotfire.Sequence, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".yaml" || filepath.Ext(path) == ".yml" {
		return hotfire.ParseYAML(raw)
	}
	return hotfire.ParseJSON(raw)
}

func newTransport(b *board.Board) (transport.Manager, error) {
	switch {
	case b.Config.Serial != nil:
		return transport.NewSerial(b, b.Config.Serial.Port, b.Config.Serial.BaudRate)
	case b.Config.UDP != nil:
		return transport.NewUDP(b, fmt.Sprintf("%s:%d", b.Config.UDP.IP, b.Config.UDP.Port))
	default:
		return nil, fmt.Errorf("board %q configures neither a serial nor a UDP transport", b.Name)
	}
}

// serveCommands is the thin UDP socket loop that feeds datagrams to the
// CommandRouter and writes its reply back to the sender. The router's
// dispatch logic is the tested unit; this loop is deliberately minimal,
// since the operator console on the other end of the wire is an external
// collaborator.
func serveCommands(ctx context.Context, addr string, router *command.Router) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolving command address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listening on command address %q: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading command datagram: %w", err)
		}
		reply := router.Handle(buf[:n])
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := conn.WriteToUDP(reply, from); err != nil {
			continue
		}
	}
}
