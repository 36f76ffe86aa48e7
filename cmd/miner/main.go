package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vcu_miner/api"
	"vcu_miner/config"
	"vcu_miner/device"
	"vcu_miner/job"
	"vcu_miner/jsonrpc"
	"vcu_miner/log"
	"vcu_miner/metrics"
	"vcu_miner/version"
)

type flags struct {
	config    string
	debug     bool
	devices   string
	options   string
	timing    string
	clock     string
	apiListen string
	noAPI     bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:     "vcu_miner",
		Short:   "Drive FPGA hash accelerators over serial",
		Version: version.Version + " (" + version.GitHash + ")",
		Long: `Drive FPGA hash accelerators over serial.

Examples:
  vcu_miner --config miner.yaml
  vcu_miner --devices /dev/ttyUSB0,/dev/ttyUSB1 --fpga-timing short --fpga-clock 500`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML configuration file")
	fl.BoolVar(&f.debug, "debug", false, "debug logging")
	fl.StringVar(&f.devices, "devices", "", "comma separated serial device paths")
	fl.StringVar(&f.options, "fpga-options", "", "per device baud:work_division:fpga_count, comma separated")
	fl.StringVar(&f.timing, "fpga-timing", "", "per device timing mode (default, short, long or ns per hash[=read_count]), comma separated")
	fl.StringVar(&f.clock, "fpga-clock", "", "per device clock in MHz, comma separated")
	fl.StringVar(&f.apiListen, "api-listen", "", "API listen address, overrides the config file")
	fl.BoolVar(&f.noAPI, "no-api", false, "do not start the API server")

	cmd.AddCommand(newQueryCmd())
	return cmd
}

func newQueryCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "query <command> [parameter]",
		Short: "Send a command (version, summary, devs, dev, restart) to a running miner",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var param interface{}
			if len(args) > 1 {
				param = args[1]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			resp, err := jsonrpc.Query(ctx, addr, args[0], param)
			if err != nil {
				return err
			}
			if !resp.OK() {
				return fmt.Errorf("%s: %s", args[0], resp.Msg)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(resp.Data))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4028", "command port address")
	return cmd
}

func loadConfig(f flags) (config.MinerConfig, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return cfg, err
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
	if f.apiListen != "" {
		cfg.API.Listen = f.apiListen
	}
	if f.noAPI {
		cfg.API.Enabled = false
	}
	return cfg, cfg.ApplyOverrides(f.devices, f.options, f.timing, f.clock)
}

func newSource(cfg config.WorkConfig) (*job.Generator, error) {
	if cfg.Template == "" {
		log.Infof("no work template configured, using a zero template")
		return job.NewGenerator("bench", make([]byte, job.WorkDataSize), cfg.PrefixStart)
	}
	return job.NewGeneratorHex("work", cfg.Template, cfg.PrefixStart)
}

func run(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return err
	}
	defer log.Sync()

	// invalid devices are skipped; only a config without devices is fatal
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrNoDevices) {
			return err
		}
		log.Errorf("config: %v", err)
	}

	log.Infof("=============== vcu_miner %s start ===============", version.Version)

	gen, err := newSource(cfg.Work)
	if err != nil {
		return err
	}
	queue := &job.JobQ{Fallback: gen}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := device.NewDeviceManager()
	defer mgr.Close()
	if n := mgr.RegisterAll(ctx, cfg.Devices); n == 0 {
		return fmt.Errorf("%w: none of %d configured devices detected", device.ErrNoDevices, len(cfg.Devices))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mgr.Run(gctx, queue)
	})

	// SIGHUP drops queued and current work on every device.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				n := queue.ClearQ()
				log.Infof("SIGHUP: %d queued works dropped", n)
				mgr.Restart()
			}
		}
	})

	if cfg.API.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(mgr), collectors.NewGoCollector())
		srv := api.NewServer(mgr, reg)
		g.Go(func() error {
			return srv.Start(cfg.API.Listen)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(sctx)
		})
	}

	if cfg.API.Enabled && cfg.API.CommandListen != "" {
		cmdSrv, err := jsonrpc.NewServer(cfg.API.CommandListen, api.Commands(mgr))
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("command port: %w", err)
		}
		log.Infof("command port listening on %s", cmdSrv.Addr())
		g.Go(func() error {
			cmdSrv.Serve()
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return cmdSrv.Shutdown(sctx)
		})
	}

	err = g.Wait()
	accepted, dupes := mgr.ResultCounts()
	log.Infof("=============== vcu_miner stop: %d results, %d duplicates ===============", accepted, dupes)
	return err
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
