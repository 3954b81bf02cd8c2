package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"twine.work/common"
	"twine.work/config"
	"twine.work/dispatch"
	"twine.work/history"
	"twine.work/queue"
)

var (
	daemonConfigFile  string
	daemonForeground  bool
	daemonDebug       bool
	daemonOverrides   []string
)

// DaemonCmd is the entry point for the twined binary: consumes the
// configured broker queue and runs every message through the compiled
// pipeline, per §6's daemon flag set (`-f` foreground, `-d` debug, `-c`
// config file, `-D` section:key override). Cobra supplies `-h` usage
// for free.
var DaemonCmd = &cobra.Command{
	Use:   "twined",
	Short: "consume graph messages from the broker and run the processor pipeline",
	RunE:  runDaemon,
}

func init() {
	DaemonCmd.Flags().StringVarP(&daemonConfigFile, "config", "c", "", "configuration file")
	DaemonCmd.Flags().BoolVarP(&daemonForeground, "foreground", "f", false, "run in the foreground (accepted for compatibility; the process never daemonises)")
	DaemonCmd.Flags().BoolVarP(&daemonDebug, "debug", "d", false, "enable debug logging")
	DaemonCmd.Flags().StringArrayVarP(&daemonOverrides, "define", "D", nil, "configuration override section:key[=value], repeatable")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	v := newViper()
	if err := loadConfigFile(v, daemonConfigFile); err != nil {
		return err
	}
	cfg := config.New(v)
	if err := applyOverrides(cfg, daemonOverrides); err != nil {
		return err
	}
	if daemonDebug {
		common.Logger.SetLevel(logrus.DebugLevel)
	}
	// -f is accepted for compatibility; this process never forks into the
	// background regardless, so foreground is the only mode.

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	broker, err := queue.Dial(queue.Config{
		URL:       cfg.GetString("mq", "uri", cfg.GetString(appSection, "mq", "")),
		QueueName: cfg.GetString(appSection, "queue", "twine"),
		Prefetch:  cfg.GetInt(appSection, "prefetch", 1),
	}, nil)
	if err != nil {
		return err
	}
	defer broker.Close()
	if err := broker.Listen(""); err != nil {
		return err
	}

	cancelCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		app.Ctx.RequestShutdown()
		close(cancelCh)
	}()

	loop := dispatch.New(app.Ctx, broker)
	if historyDB := cfg.GetString(appSection, "history-db", ""); historyDB != "" {
		sink, err := history.NewSink(context.Background(), cfg.GetString(appSection, "history-url", ""), historyDB)
		if err != nil {
			return err
		}
		loop.SetHistory(historySink{sink: sink})
	}
	return loop.RunParallel(cfg.GetInt(appSection, "worker-count", 1), cancelCh)
}
