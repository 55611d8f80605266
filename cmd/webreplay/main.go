package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"webreplay/internal/browser"
	"webreplay/internal/codegen"
	"webreplay/internal/config"
	"webreplay/internal/recording"
	"webreplay/internal/replay"
	srv "webreplay/internal/server/http"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var (
	flagHeadless      bool
	flagStopOnFailure bool
	flagSecrets       []string
	flagOutput        string
)

func main() {
	root := &cobra.Command{
		Use:   "webreplay",
		Short: "Capture/replay automation for recorded browser sessions",
		Long: "webreplay replays browser sessions captured by an exploration agent,\n" +
			"deterministically and without any model inference.",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd(), sessionsCmd(), infoCmd(), replayCmd(), importCmd(), codegenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(1)
	}
}

func loadStack() (*config.Config, *recording.FileStore, *browser.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	store := recording.NewFileStore(cfg.RecordingsDir)
	acquirer := browser.New(browser.Options{
		Headless:       cfg.Headless,
		CDPURL:         cfg.CDPURL,
		ChromePath:     cfg.ChromePath,
		UserDataDir:    cfg.UserDataDir,
		StartupTimeout: cfg.StartupTimeout,
	})
	pool := browser.NewPool(acquirer, cfg.MaxSessions, cfg.QueueTimeout)
	return cfg, store, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the replay HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, pool, err := loadStack()
			if err != nil {
				return err
			}
			svc := codegen.NewService(codegen.NewGenerator(cfg.Headless), codegen.NewVerifier())
			server := srv.New(cfg, store, pool, svc)

			go func() {
				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			}()

			fmt.Printf("%s listening on %s\n", bold("webreplay"), cyan(cfg.Addr()))
			return server.Start()
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored session recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, err := loadStack()
			if err != nil {
				return err
			}
			summaries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println(gray("no recordings"))
				return nil
			}
			for _, s := range summaries {
				task := s.Task
				if task == "" {
					task = gray("(no task)")
				}
				fmt.Printf("%s  %s  %s\n", bold(s.SessionID),
					gray(fmt.Sprintf("%d actions", s.ActionCount)), task)
			}
			return nil
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <session_id>",
		Short: "Show a recording's steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, err := loadStack()
			if err != nil {
				return err
			}
			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", bold(rec.SessionID), gray(rec.InitialURL))
			if rec.Task != "" {
				fmt.Printf("task: %s\n", rec.Task)
			}
			for _, a := range rec.Actions {
				detail := ""
				switch a.Type {
				case recording.ActionNavigate:
					detail = a.Params.URL
				case recording.ActionFill:
					detail = fmt.Sprintf("%d chars", len(a.Params.Text))
				}
				fmt.Printf("  %2d %-9s %s %s\n", a.Step, a.Type, detail,
					gray(fmt.Sprintf("%d candidates", len(a.SelectorCandidates))))
			}
			return nil
		},
	}
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <session_id>",
		Short: "Replay a recorded session against a fresh browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, pool, err := loadStack()
			if err != nil {
				return err
			}
			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			secrets, err := parseSecrets(flagSecrets)
			if err != nil {
				return err
			}
			executor := replay.NewExecutor()
			executor.ResolveTimeout = cfg.ResolveTimeout
			executor.ActionTimeout = cfg.ActionTimeout
			executor.Secrets = mergeSecrets(cfg.Secrets, secrets)

			opts := browser.Options{
				Headless:       flagHeadless,
				CDPURL:         cfg.CDPURL,
				ChromePath:     cfg.ChromePath,
				UserDataDir:    cfg.UserDataDir,
				StartupTimeout: cfg.StartupTimeout,
			}
			engine := replay.NewEngine(func(ctx context.Context) (replay.Session, error) {
				return pool.AcquireWith(ctx, opts)
			}, executor)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			events := make(chan replay.Event, 256)
			printed := make(chan struct{})
			go func() {
				printEvents(events)
				close(printed)
			}()

			result, err := engine.Replay(ctx, replay.Request{
				Recording:     rec,
				StopOnFailure: flagStopOnFailure || cfg.StopOnFailure,
				Events:        events,
			})
			close(events)
			<-printed
			if err != nil {
				return err
			}

			printResult(result)
			if !result.Success {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagHeadless, "headless", true, "run the browser headless")
	cmd.Flags().BoolVar(&flagStopOnFailure, "stop-on-failure", false, "abort on the first failed step")
	cmd.Flags().StringArrayVar(&flagSecrets, "secret", nil, "secret as key=value, repeatable")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a recording JSON file into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, err := loadStack()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var rec recording.SessionRecording
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			if err := store.Put(cmd.Context(), &rec); err != nil {
				return err
			}
			fmt.Printf("%s imported %s (%d actions)\n", green("ok"), bold(rec.SessionID), len(rec.Actions))
			return nil
		},
	}
}

func codegenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codegen <session_id>",
		Short: "Generate and verify a standalone replay program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, _, err := loadStack()
			if err != nil {
				return err
			}
			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			svc := codegen.NewService(codegen.NewGenerator(cfg.Headless), codegen.NewVerifier())
			report, err := svc.GenerateVerified(cmd.Context(), rec)
			if err != nil {
				return err
			}

			for _, attempt := range report.Attempts {
				mark := red("fail")
				if attempt.Passed {
					mark = green("pass")
				}
				fmt.Printf("iteration %d: %s\n", attempt.Iteration, mark)
			}
			if report.Verified {
				fmt.Println(green("verified"))
			} else {
				fmt.Println(yellow("unverified after maximum iterations"))
			}

			if flagOutput != "" {
				if err := os.WriteFile(flagOutput, []byte(report.Source.Code), 0644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", bold(flagOutput))
			} else {
				fmt.Print(report.Source.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write generated source to file")
	return cmd
}

func printEvents(events <-chan replay.Event) {
	for ev := range events {
		switch ev.Type {
		case replay.EventStarted:
			fmt.Printf("%s %d actions\n", cyan("replaying"), ev.TotalActions)
		case replay.EventStepComplete:
			if ev.Success != nil && *ev.Success {
				fmt.Printf("  step %d %s\n", ev.Step, green("ok"))
			} else {
				fmt.Printf("  step %d %s %s\n", ev.Step, red("failed"), gray(ev.Error))
			}
		case replay.EventError:
			fmt.Printf("%s %s\n", red("fatal:"), ev.Message)
		}
	}
}

func printResult(r *replay.Result) {
	verdict := green("PASS")
	if !r.Success {
		verdict = red("FAIL")
	}
	fmt.Printf("\n%s %d/%d succeeded in %.1fs\n", verdict, r.ActionsSucceeded, r.ActionsTotal, r.DurationSeconds)
	for _, e := range r.Errors {
		fmt.Printf("  %s\n", gray(e))
	}
}

func parseSecrets(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	secrets := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --secret %q, want key=value", pair)
		}
		secrets[k] = v
	}
	return secrets, nil
}

func mergeSecrets(base, override map[string]string) map[string]string {
	if len(base) == 0 {
		return override
	}
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
