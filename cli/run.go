package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Nistp/SerialTerminalGUI/config"
	"github.com/Nistp/SerialTerminalGUI/mqttpub"
	"github.com/Nistp/SerialTerminalGUI/serialio"
	"github.com/Nistp/SerialTerminalGUI/sessionlog"
	"github.com/Nistp/SerialTerminalGUI/testsuite"
	"github.com/Nistp/SerialTerminalGUI/wsstream"
)

func (a *App) runSuite(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if p := ctx.String("port"); p != "" {
		cfg.Port = p
	}
	if l := ctx.String("listen"); l != "" {
		cfg.Listen = l
	}
	if cfg.Port == "" {
		return errors.New("no serial port configured (use --port or config.json)")
	}

	selected, err := selectTests(cfg.Tests, ctx.StringSlice("test"))
	if err != nil {
		return err
	}

	delayMS := cfg.TestDelayMS
	if d := ctx.Int("delay"); d >= 0 {
		delayMS = d
	}

	reader, err := serialio.Open(cfg.PortConfig())
	if err != nil {
		return err
	}
	defer reader.Close()
	a.logger.Info().Str("port", cfg.Port).Int("baud", cfg.Baud).Msg("connected")

	var trigger *serialio.Reader
	if cfg.TriggerPort != "" {
		trigger, err = serialio.Open(cfg.TriggerPortConfig())
		if err != nil {
			return fmt.Errorf("trigger port: %w", err)
		}
		defer trigger.Close()
		a.logger.Info().Str("port", cfg.TriggerPort).Msg("trigger port connected")
	}

	slog, err := sessionlog.Open(a.logger, cfg.EffectiveLogDir())
	if err != nil {
		return err
	}
	defer slog.Close()

	agg, err := testsuite.NewAggregator(a.logger, cfg.EffectiveLogDir(), cfg.Tests)
	if err != nil {
		return err
	}

	var ws *wsstream.Server
	var srv *http.Server
	if cfg.Listen != "" {
		ws = wsstream.New(a.logger)
		srv = &http.Server{Addr: cfg.Listen, Handler: ws.Handler()}
	}

	var pub *mqttpub.Publisher
	if cfg.MQTT != nil {
		pub, err = mqttpub.Connect(a.logger, *cfg.MQTT)
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	g, gctx := errgroup.WithContext(context.Background())
	if srv != nil {
		a.logger.Info().Str("addr", cfg.Listen).Msg("serving live stream")
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	pollInterval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	// The poller is deliberately not lifecycle-managed: an empty poll
	// is a no-op, and the goroutine ends with the process.
	go a.pollTerminal(reader, pollInterval, slog, ws, pub)

	runner := testsuite.NewRunner(a.logger, reader)
	if trigger != nil {
		runner.UseTrigger(trigger)
	}

	obs := &runObserver{
		log:  a.logger,
		agg:  agg,
		ws:   ws,
		pub:  pub,
		done: make(chan struct{}),
	}

	opts := testsuite.RunOptions{
		Delay:     time.Duration(delayMS) * time.Millisecond,
		Loop:      ctx.Bool("loop"),
		LoopDelay: time.Duration(delayMS) * time.Millisecond,
	}
	a.logger.Info().Int("tests", len(selected)).Bool("loop", opts.Loop).Msg("starting run")
	if err := runner.Run(selected, opts, obs); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		a.logger.Info().Msg("stop requested, finishing current test")
		runner.Stop()
		<-obs.done
	case <-obs.done:
	case <-gctx.Done():
		runner.Stop()
		<-obs.done
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.Info().
		Int("passed", obs.passed).
		Int("total", obs.total).
		Str("run_file", agg.WidePath()).
		Str("suite_log", agg.NarrowPath()).
		Msg("run complete")
	if obs.passed != obs.total {
		return fmt.Errorf("%d of %d tests did not pass", obs.total-obs.passed, obs.total)
	}
	return nil
}

// selectTests picks the run subset: the named tests when names are
// given, otherwise every enabled test.
func selectTests(suite []testsuite.TestCase, names []string) ([]testsuite.TestCase, error) {
	if len(names) == 0 {
		var out []testsuite.TestCase
		for _, tc := range suite {
			if tc.Enabled {
				out = append(out, tc)
			}
		}
		if len(out) == 0 {
			return nil, errors.New("no enabled tests in the suite")
		}
		return out, nil
	}

	byName := make(map[string]testsuite.TestCase, len(suite))
	for _, tc := range suite {
		byName[tc.Name] = tc
	}
	var out []testsuite.TestCase
	for _, name := range names {
		tc, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no test named %q", name)
		}
		out = append(out, tc)
	}
	return out, nil
}

// pollTerminal drains the terminal channel on a fixed short interval
// and fans each message out to stdout, the session log and the
// optional live sinks.
func (a *App) pollTerminal(reader *serialio.Reader, interval time.Duration, slog *sessionlog.Logger, ws *wsstream.Server, pub *mqttpub.Publisher) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
	drain:
		for {
			select {
			case msg := <-reader.Terminal():
				fmt.Printf("%s [%-5s] %s\n", msg.At.Format("15:04:05.000"), msg.Direction, msg.Text)
				slog.Write(msg)
				if ws != nil {
					ws.BroadcastMessage(msg)
				}
				if pub != nil {
					pub.PublishMessage(msg)
				}
			default:
				break drain
			}
		}
	}
}

// runObserver fans runner events out to the aggregator and the live
// sinks. The runner invokes it sequentially from the run goroutine.
type runObserver struct {
	log  zerolog.Logger
	agg  *testsuite.Aggregator
	ws   *wsstream.Server
	pub  *mqttpub.Publisher
	done chan struct{}

	passed int
	total  int
}

func (o *runObserver) TestCompleted(tc testsuite.TestCase, result testsuite.TestResult) {
	o.agg.TestCompleted(tc, result)
	if o.ws != nil {
		o.ws.BroadcastResult(tc, result)
	}
	if o.pub != nil {
		o.pub.PublishResult(tc, result)
	}

	o.total++
	ev := o.log.Warn()
	if result.Status == testsuite.StatusPass {
		o.passed++
		ev = o.log.Info()
	}
	ev.Str("test", tc.Name).
		Str("status", string(result.Status)).
		Dur("took", result.Duration()).
		Str("actual", preview(result.Actual)).
		Msg("test finished")
}

func (o *runObserver) IterationFinished(started, ended time.Time) {
	o.agg.IterationFinished(started, ended)
	o.log.Debug().Time("started", started).Time("ended", ended).Msg("iteration finished")
}

func (o *runObserver) RunFinished() {
	o.agg.RunFinished()
	if o.pub != nil {
		o.pub.PublishSummary(o.passed, o.total)
	}
	close(o.done)
}

func preview(s string) string {
	flat := strings.ReplaceAll(s, "\n", " | ")
	if len(flat) > 50 {
		flat = flat[:50]
	}
	return flat
}
