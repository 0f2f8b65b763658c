package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plantguard/internal/articulation"
	"plantguard/internal/classifier"
	"plantguard/internal/config"
	"plantguard/internal/feedback"
	"plantguard/internal/logging"
	"plantguard/internal/pipeline"
	"plantguard/internal/watch"
)

var noWatch bool

// sessionCmd runs an interactive loop sharing one orchestrator
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Interactive assessment session",
	Long: `Reads commands from stdin. All runs share one policy, so feedback
given with "correct" and "wrong" affects later assessments.

Commands:
  assess <species> <confidence>   evaluate a classification
  image <path>                    classify an image with the configured backend
  correct | wrong                 feedback on the last assessment
  status                          show threshold, score and sighting count
  help                            show this help
  quit                            leave the session

The config file is watched; feedback weights, set-points and logging
settings are applied without restarting.`,
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the config file for changes")
}

const sessionHelp = `assess <species> <confidence> | image <path> | correct | wrong | status | help | quit`

// syncWriter serializes writes from the loop and background tagging.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type session struct {
	app      *app
	out      *syncWriter
	renderer *articulation.Renderer
	pending  sync.WaitGroup
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws, err := resolveWorkspace()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ws)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, ws, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s := &session{app: a, out: &syncWriter{w: cmd.OutOrStdout()}, renderer: renderer()}

	if !noWatch {
		w, err := watch.NewConfigWatcher(resolveConfigPath(ws), s.applyConfig)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
		defer w.Stop()
	}

	err = s.loop(ctx, cmd.InOrStdin())
	s.pending.Wait()
	return err
}

// applyConfig takes effect on the next feedback signal; the threshold itself
// is only ever written by the controller.
func (s *session) applyConfig(cfg *config.Config) {
	s.app.orch.Controller().SetSettings(settingsFromConfig(cfg))
	logging.Configure(cfg.Logging.Options())
	logger.Info("config reloaded")
	fmt.Fprintln(s.out, "(config reloaded)")
}

func (s *session) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(s.out, sessionHelp)
	for {
		fmt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			if quit := s.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle executes one command line and reports whether the session should end.
func (s *session) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true

	case "help":
		fmt.Fprintln(s.out, sessionHelp)

	case "assess":
		if len(fields) != 3 {
			fmt.Fprintln(s.out, "usage: assess <species> <confidence>")
			return false
		}
		conf, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			fmt.Fprintf(s.out, "invalid confidence %q\n", fields[2])
			return false
		}
		out, err := s.app.orch.RunWith(ctx, classifier.NewStatic(fields[1], conf), classifier.Image{})
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		s.show(ctx, out)

	case "image":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: image <path>")
			return false
		}
		img, err := classifier.LoadImage(fields[1])
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		out, err := s.app.orch.Run(ctx, img)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		s.show(ctx, out)

	case "correct", "wrong":
		sig, err := feedback.ParseSignal(fields[0])
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		u := s.app.orch.Feedback(ctx, sig == feedback.SignalCorrect)
		fmt.Fprintln(s.out, s.renderer.Feedback(u))

	case "status":
		n, err := s.app.store.Count(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(s.out, "threshold %.2f, score %d, sightings %d\n",
			s.app.orch.State().Threshold(), s.app.orch.Controller().Score(), n)

	default:
		fmt.Fprintf(s.out, "unknown command %q (try help)\n", fields[0])
	}
	return false
}

// show prints the report now and the location addendum when tagging resolves.
func (s *session) show(ctx context.Context, out pipeline.Outcome) {
	fmt.Fprintln(s.out, s.renderer.Outcome(out))
	if out.Tagging == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		var sb strings.Builder
		writeTagging(ctx, &sb, s.renderer, out.Tagging, s.app.cfg.GetLocationTimeout()+time.Second)
		fmt.Fprintln(s.out, strings.TrimPrefix(sb.String(), "\n"))
	}()
}
