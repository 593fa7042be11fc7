package subcommands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgecore/edged/ipc"
	"github.com/edgecore/edged/metrics"
	"github.com/edgecore/edged/orchestrator"
	"github.com/edgecore/edged/statussink"
)

var (
	startTargets []string
	startWatch   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	Long: "Start the daemon in the foreground.\n\n" +
		"Resolves the target components (and everything they transitively " +
		"depend on) from --recipes-dir, drives them through install/startup/" +
		"run, and keeps watching the config file until interrupted; a config " +
		"change reloads both the config and the recipes and rebuilds the " +
		"graph. Recipe files themselves are not watched. Use standard " +
		"backgrounding ('&', nohup, " +
		"or a systemd unit) to run it outside the foreground.",
	Example: `  # Run the daemon against the "main" component
  edged daemon start --target main

  # Run under systemd, with journal mirroring and a notify-ready handshake
  edged daemon start --target main --log-journal`,
	PreRunE: validateStart,
	RunE:    runStart,
}

func init() {
	startCmd.Flags().StringSliceVar(&startTargets, "target", []string{"main"}, "root component name(s) to run")
	startCmd.Flags().StringVar(&startWatch, "watch", "main", "component whose Running/Finished state triggers systemd readiness")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "/run/edged.pid", "where to record the daemon's process id")
}

func validateStart(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Info("edged shutting down")

	src, err := newRecipeSource()
	if err != nil {
		return fmt.Errorf("load recipes: %w", err)
	}
	cfg, err := newConfigStore()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg := newRegistry(src, cfg)

	deps := buildDeps(log)
	deps.Metrics = metrics.New()

	var sup *orchestrator.Supervisor
	var overall *statussink.OverallTracker

	ipcServer := ipc.NewServer(SocketPath, func() ipc.Snapshot { return snapshotOf(sup, overall) })

	multi := statussink.NewMultiSink(statussink.NewLogSink(log), statussink.NewReadyNotifier(startWatch), ipcServer)
	overall = statussink.NewOverallTracker(multi)

	sup = orchestrator.New(reg, src, cfg, deps, overall, log)

	if err := writePIDFile(pidFile); err != nil {
		log.Warnf("failed to write pid file %s: %v", pidFile, err)
	} else {
		defer os.Remove(pidFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	go func() {
		if err := ipcServer.Serve(ctx); err != nil {
			log.Warnf("status socket stopped: %v", err)
		}
	}()

	cfg.Watch(func(changed []string) {
		log.Infof("config changed, reloading: %v", changed)
		if err := sup.Reload(ctx); err != nil {
			log.Errorf("reload after config change failed: %v", err)
		}
	})

	log.Infof("starting edged, targets=%v recipes=%s", startTargets, RecipesDir)
	if err := sup.Start(ctx, startTargets); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, stopping components")
	sup.Stop()
	return nil
}

// snapshotOf builds the ipc.Snapshot the status socket publishes.
func snapshotOf(sup *orchestrator.Supervisor, overall *statussink.OverallTracker) ipc.Snapshot {
	if sup == nil {
		return ipc.Snapshot{}
	}
	snap := ipc.Snapshot{Generation: sup.Generation().String()}
	if overall != nil {
		snap.Overall = overall.Overall().String()
	}
	for _, c := range sup.Components() {
		snap.Components = append(snap.Components, ipc.ComponentStatus{
			Name:          c.Name,
			State:         c.State().String(),
			StatusMessage: c.StatusMessage(),
		})
	}
	return snap
}
