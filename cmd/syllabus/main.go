package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/stefanpenner/syllabus/pkg/config"
	"github.com/stefanpenner/syllabus/pkg/content"
	"github.com/stefanpenner/syllabus/pkg/controller"
	"github.com/stefanpenner/syllabus/pkg/course"
	"github.com/stefanpenner/syllabus/pkg/logging"
	"github.com/stefanpenner/syllabus/pkg/progress"
	"github.com/stefanpenner/syllabus/pkg/serve"
	gsync "github.com/stefanpenner/syllabus/pkg/sync"
	"github.com/stefanpenner/syllabus/pkg/tui"
)

const usage = "Usage: syllabus [flags] [list|status|open <n>|next|prev|reset|index <dir>|serve|fetch <git-url> [name]]"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func run() error {
	cfg, args, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the TUI owns the terminal, so it logs to a file by default
	logFile := cfg.LogFile("")
	if len(args) == 0 {
		logFile = cfg.LogFile(filepath.Join(cfg.DataDir, "syllabus.log"))
	}
	logger, err := logging.New(logging.Config{FilePath: logFile, Level: cfg.Log.Level, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer logger.Sync()

	a := &app{cfg: cfg, logger: logger}

	if len(args) == 0 {
		return a.runTUI(ctx)
	}

	switch args[0] {
	case "list":
		return a.withController(ctx, a.cmdList)
	case "status":
		return a.withController(ctx, a.cmdStatus)
	case "open":
		if len(args) < 2 {
			return fmt.Errorf("usage: syllabus open <lesson-number>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid lesson number %q", args[1])
		}
		return a.withController(ctx, func(ctx context.Context, c *controller.Controller) error {
			return a.cmdOpen(ctx, c, n)
		})
	case "next":
		return a.withController(ctx, a.cmdNext)
	case "prev":
		return a.withController(ctx, a.cmdPrev)
	case "reset":
		return a.cmdReset(ctx)
	case "index":
		if len(args) < 2 {
			return fmt.Errorf("usage: syllabus index <course-dir>")
		}
		return a.cmdIndex(args[1])
	case "serve":
		return a.cmdServe(ctx)
	case "fetch":
		if len(args) < 2 {
			return fmt.Errorf("usage: syllabus fetch <git-url> [name]")
		}
		name := ""
		if len(args) >= 3 {
			name = args[2]
		}
		return a.cmdFetch(ctx, args[1], name)
	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

func (a *app) source() (string, error) {
	if a.cfg.Source == "" {
		return "", fmt.Errorf("no course source: pass --source <url-or-path> or set SYLLABUS_SOURCE")
	}
	return a.cfg.Source, nil
}

// newController wires the content and progress stores. The caller closes the
// returned store.
func (a *app) newController(ctx context.Context) (*controller.Controller, progress.Store, error) {
	store, err := progress.Open(ctx, a.cfg.ProgressOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("opening progress store: %w", err)
	}
	cwd, _ := os.Getwd()
	c := controller.New(content.NewMux(cwd, a.cfg.HTTP.Timeout), store, controller.Options{
		ContentRoot: a.cfg.ContentRoot,
		Logger:      a.logger.Named("controller"),
	})
	return c, store, nil
}

// withController loads the course, restoring saved progress, and runs fn.
func (a *app) withController(ctx context.Context, fn func(context.Context, *controller.Controller) error) error {
	src, err := a.source()
	if err != nil {
		return err
	}
	c, store, err := a.newController(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := c.Initialize(ctx, src); err != nil {
		// a restored lesson that fails to load still leaves a usable listing
		if !errors.Is(err, controller.ErrContentFetchFailed) {
			return err
		}
		a.logger.Warn("restoring lesson failed", zap.Error(err))
	}
	return fn(ctx, c)
}

func (a *app) runTUI(ctx context.Context) error {
	src, err := a.source()
	if err != nil {
		return err
	}
	c, store, err := a.newController(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	m := tui.NewModel(ctx, c, src, a.logger.Named("tui"))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Start file watcher
	if isLocal(src) {
		cleanup, err := tui.StartWatcher(strings.TrimPrefix(src, "file://"), p, a.logger.Named("watcher"))
		if err != nil {
			a.logger.Warn("file watcher failed", zap.Error(err))
		} else {
			defer cleanup()
		}
	}

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func isLocal(source string) bool {
	return !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://")
}

// CLI Commands

func (a *app) cmdList(_ context.Context, c *controller.Controller) error {
	v := c.CurrentView()
	if a.cfg.JSON {
		return outputJSON(v)
	}

	for i, lesson := range v.Listing {
		marker := "○"
		switch {
		case i == v.ActiveIndex:
			marker = "▶"
		case v.Reached(i):
			marker = "✓"
		}
		timecode := ""
		if lesson.Timecode != "" {
			timecode = " (" + lesson.Timecode + ")"
		}
		fmt.Printf("%2d. %s %s%s\n", i+1, marker, lesson.Title, timecode)
	}
	return nil
}

func (a *app) cmdStatus(_ context.Context, c *controller.Controller) error {
	v := c.CurrentView()
	if a.cfg.JSON {
		return outputJSON(statusToMap(v))
	}

	fmt.Printf("Course: %s (%d lessons)\n", v.Source, len(v.Listing))
	lesson, ok := v.Active()
	if !ok {
		fmt.Println("Not started.")
		return nil
	}
	fmt.Printf("Current: %d. %s", v.ActiveIndex+1, lesson.Title)
	if v.Timecode != "" {
		fmt.Printf(" (%s)", v.Timecode)
	}
	fmt.Println()
	fmt.Printf("Furthest: %d of %d\n", v.FarthestIndex+1, len(v.Listing))
	return nil
}

func (a *app) cmdOpen(ctx context.Context, c *controller.Controller, n int) error {
	if err := c.SelectLesson(ctx, n-1); err != nil {
		return err
	}
	return a.printLesson(c.CurrentView())
}

func (a *app) cmdNext(ctx context.Context, c *controller.Controller) error {
	v := c.CurrentView()
	if !v.Selected() {
		return fmt.Errorf("no lesson open yet: use 'syllabus open 1'")
	}
	if !v.CanAdvance() {
		return fmt.Errorf("already at the last lesson")
	}
	if err := c.Advance(ctx); err != nil {
		return err
	}
	return a.printLesson(c.CurrentView())
}

func (a *app) cmdPrev(ctx context.Context, c *controller.Controller) error {
	v := c.CurrentView()
	if !v.Selected() {
		return fmt.Errorf("no lesson open yet: use 'syllabus open 1'")
	}
	if !v.CanRetreat() {
		return fmt.Errorf("already at the first lesson")
	}
	if err := c.Retreat(ctx); err != nil {
		return err
	}
	return a.printLesson(c.CurrentView())
}

func (a *app) cmdReset(ctx context.Context) error {
	c, store, err := a.newController(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := c.Reset(ctx); err != nil {
		return err
	}
	if a.cfg.JSON {
		return outputJSON(map[string]bool{"reset": true})
	}
	fmt.Println("Progress reset.")
	return nil
}

func (a *app) cmdIndex(dir string) error {
	stamped := 0
	if a.cfg.Index.Stamp {
		n, err := course.StampDir(dir)
		if err != nil {
			return err
		}
		stamped = n
	}

	listing, err := course.ScanDir(dir)
	if err != nil {
		return err
	}
	data, err := course.EncodeListing(listing, course.FormatJSON)
	if err != nil {
		return err
	}
	out := filepath.Join(dir, "channels.json")
	if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
		return err
	}

	if a.cfg.JSON {
		return outputJSON(map[string]interface{}{"path": out, "lessons": len(listing), "stamped": stamped})
	}
	if stamped > 0 {
		fmt.Printf("Stamped headers into %d lesson files\n", stamped)
	}
	fmt.Printf("Wrote %s (%d lessons)\n", out, len(listing))
	return nil
}

func (a *app) cmdServe(ctx context.Context) error {
	dir := a.cfg.Serve.Dir
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	fmt.Printf("Serving %s at http://%s%s\n", dir, a.cfg.Serve.Addr, serve.ListingPath)
	return serve.ListenAndServe(ctx, a.cfg.Serve.Addr, serve.NewRouter(dir, a.logger.Named("serve")), a.logger)
}

func (a *app) cmdFetch(ctx context.Context, remote, name string) error {
	if name == "" {
		name = gsync.CourseName(remote)
	}
	dir := filepath.Join(a.cfg.DataDir, "courses", name)

	out := os.Stderr
	f := gsync.NewFetcher(out, a.logger.Named("fetch"))
	res, err := f.FetchCourse(ctx, remote, dir)
	if err != nil {
		return err
	}

	if a.cfg.JSON {
		return outputJSON(res)
	}
	if res.Cloned {
		fmt.Printf("Cloned %s into %s\n", remote, res.Dir)
	} else {
		fmt.Printf("Updated %s\n", res.Dir)
	}
	if res.Listing != "" {
		fmt.Printf("Open with: syllabus --source %s\n", res.Listing)
	} else {
		fmt.Printf("No listing found; create one with: syllabus index %s\n", res.Dir)
	}
	return nil
}

func (a *app) printLesson(v controller.View) error {
	lesson, _ := v.Active()
	if a.cfg.JSON {
		m := statusToMap(v)
		m["content"] = v.Content
		return outputJSON(m)
	}

	fmt.Printf("%d/%d  %s", v.ActiveIndex+1, len(v.Listing), lesson.Title)
	if v.Timecode != "" {
		fmt.Printf("  (%s)", v.Timecode)
	}
	fmt.Println()
	fmt.Println()
	fmt.Print(tui.LessonMarkdown(v.Content))
	return nil
}

// JSON helpers

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusToMap(v controller.View) map[string]interface{} {
	m := map[string]interface{}{
		"source":        v.Source,
		"lessons":       len(v.Listing),
		"activeIndex":   v.ActiveIndex,
		"farthestIndex": v.FarthestIndex,
		"completed":     v.Completed(),
	}
	if lesson, ok := v.Active(); ok {
		m["lesson"] = lesson
		m["timecode"] = v.Timecode
	}
	return m
}
