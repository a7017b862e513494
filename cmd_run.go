package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/TotallyMonica/swinit/common"
	"github.com/TotallyMonica/swinit/config"
	"github.com/TotallyMonica/swinit/events"
	"github.com/TotallyMonica/swinit/swinit"
	"github.com/TotallyMonica/swinit/swlogging"
	"github.com/TotallyMonica/swinit/tftpd"
	"github.com/TotallyMonica/swinit/transcript"
	"github.com/TotallyMonica/swinit/web"
)

var runFlags struct {
	serial       string
	baud         int
	timeout      time.Duration
	breakCount   int
	versionQuery bool
	debug        bool
	logFile      string
	transcript   string
	web          string
	tftp         string
	tftpRoot     string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Bootstrap switches until interrupted",
	Long: `Watch the console for switches entering their bootloader and take each one
through model detection, stack numbering, config erasure and first boot. Sounds
are played when a switch is detected, when it is not supported and when the
console is ready for the next one.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.serial, "serial", "s", "", "serial device to manage")
	f.IntVarP(&runFlags.baud, "baud", "b", 0, "serial baud rate")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "device timeout before resetting state")
	f.IntVar(&runFlags.breakCount, "break-count", 0, "breaks sent to get into the bootloader")
	f.BoolVar(&runFlags.versionQuery, "version-query", true, "ask the bootloader for its version while learning the model")
	f.BoolVar(&runFlags.debug, "debug", false, "show console traffic")
	f.StringVar(&runFlags.logFile, "log-file", "", "also log to this file")
	f.StringVar(&runFlags.transcript, "transcript", "", "record console traffic to this file")
	f.StringVar(&runFlags.web, "web", "", "serve the status page on this address")
	f.StringVar(&runFlags.tftp, "tftp", "", "serve auto install files over TFTP on this address")
	f.StringVar(&runFlags.tftpRoot, "tftp-root", "", "directory served over TFTP")

	rootCmd.AddCommand(runCmd)
}

// loadRunConfig reads the config file and applies the flags given explicitly.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("serial") {
		cfg.Serial.Device = runFlags.serial
	}
	if f.Changed("baud") {
		cfg.Serial.Baud = runFlags.baud
	}
	if f.Changed("timeout") {
		cfg.Serial.Timeout = runFlags.timeout
	}
	if f.Changed("break-count") {
		cfg.BreakCount = runFlags.breakCount
	}
	if f.Changed("version-query") {
		cfg.VersionQuery = runFlags.versionQuery
	}
	if runFlags.debug {
		cfg.Log.Level = "debug"
	}
	if f.Changed("log-file") {
		cfg.Log.File = runFlags.logFile
	}
	if f.Changed("transcript") {
		cfg.Transcript = runFlags.transcript
	}
	if f.Changed("web") {
		cfg.Web.Listen = runFlags.web
	}
	if f.Changed("tftp") {
		cfg.TFTP.Listen = runFlags.tftp
	}
	if f.Changed("tftp-root") {
		cfg.TFTP.Root = runFlags.tftpRoot
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*swlogging.Logger, error) {
	log := swlogging.New("swinit")
	level, err := swlogging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log.SetLogLevel(level)

	if cfg.Log.File != "" {
		if err := log.NewLogTarget("file", cfg.Log.File, true); err != nil {
			return nil, err
		}
	}
	return log, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	log.Infof("The application was built with the Go version: %s", runtime.Version())
	log.Infof("Using device %s at %d baud", cfg.Serial.Device, cfg.Serial.Baud)

	port, err := serial.Open(cfg.Serial.Device, &serial.Mode{
		BaudRate: cfg.Serial.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Serial.Device, err)
	}
	defer port.Close()

	var console common.Port = port
	var sessionOpts []swinit.Option
	if cfg.Transcript != "" {
		recorder, err := transcript.OpenRecorder(port, cfg.Transcript)
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Warnf("Transcript %s is incomplete: %v", cfg.Transcript, err)
			}
		}()
		console = recorder
		sessionOpts = append(sessionOpts, swinit.WithSessionHook(recorder.SetSession))
		log.Infof("Recording console traffic to %s", cfg.Transcript)
	}

	c, err := common.NewConsole(console, cfg.Serial.Timeout, log)
	if err != nil {
		return err
	}

	notify := events.New(events.AplayPlayer{Dir: cfg.Sounds.Dir}, events.Sounds{
		Detected:          cfg.Sounds.Detected,
		Unsupported:       cfg.Sounds.Unsupported,
		Reset:             cfg.Sounds.Reset,
		UnsupportedRepeat: cfg.Sounds.UnsupportedRepeat,
	}, log)

	opts := append([]swinit.Option{
		swinit.WithBreakCount(cfg.BreakCount),
		swinit.WithVersionQuery(cfg.VersionQuery),
	}, sessionOpts...)
	o := swinit.New(c, notify, log, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Web.Listen != "" {
		ws := web.New(o, cfg.Serial.Device, log)
		go func() {
			if err := ws.ListenAndServe(cfg.Web.Listen); err != nil {
				log.Errorf("Status page stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ws.Shutdown(shutdownCtx)
		}()
	}

	if cfg.TFTP.Listen != "" {
		ts := tftpd.New(cfg.TFTP.Root, log)
		if err := ts.Listen(cfg.TFTP.Listen); err != nil {
			return err
		}
		go func() {
			if err := ts.Serve(); err != nil {
				log.Errorf("TFTP server stopped: %v", err)
			}
		}()
		defer ts.Shutdown()
	}

	// A read blocked on a silent console only returns once the port is closed
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	err = o.Run(ctx)
	if ctx.Err() != nil {
		log.Noticef("Interrupted, shutting down")
		return nil
	}
	return err
}
