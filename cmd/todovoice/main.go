package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"todovoice/internal/audio"
	"todovoice/internal/config"
	"todovoice/internal/httpapi"
	"todovoice/internal/observability"
	"todovoice/internal/todo"
	"todovoice/internal/transport"
	"todovoice/internal/voicesession"
)

const usage = `usage: todovoice <command> [flags]

commands:
  login <email> <password>     log in and cache the token
  register <email> <password>  create an account and cache the token
  list                         print the task list
  add <title>                  create a task (--desc, --priority, --due)
  edit <id|search>             update a task (--title, --desc, --priority, --due)
  rm <id|search>               delete a task
  voice                        run the voice session until interrupted
  logout                       forget the cached token
`

func main() {
	envFile := cli.StringP("env", "e", ".env", "env file path")
	title := cli.String("title", "", "new title for edit")
	desc := cli.String("desc", "", "task description")
	priority := cli.String("priority", "", "task priority (low|medium|high)")
	due := cli.String("due", "", "due date, RFC3339 or a duration from now (e.g. 48h)")
	cli.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cli.PrintDefaults()
	}
	cli.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	creds, err := credentialStore(cfg)
	if err != nil {
		log.Fatalf("credential store init failed: %v", err)
	}
	client := todo.NewClient(cfg.BaseURL, creds)

	ctx := context.Background()
	cmd := cli.Arg(0)
	switch cmd {
	case "login":
		requireArgs(2, "login <email> <password>")
		fatalOn(client.Login(ctx, cli.Arg(1), cli.Arg(2)))
		fmt.Println("logged in")
	case "register":
		requireArgs(2, "register <email> <password>")
		fatalOn(client.Register(ctx, cli.Arg(1), cli.Arg(2)))
		fmt.Println("registered and logged in")
	case "logout":
		fatalOn(creds.Clear())
		fmt.Println("logged out")
	case "list":
		tasks, err := client.Todos(ctx)
		fatalOn(err)
		printTasks(tasks)
	case "add":
		requireArgs(1, "add <title>")
		task, err := client.Create(ctx, todo.CreateRequest{
			Title:       cli.Arg(1),
			Description: *desc,
			Priority:    todo.NormalizePriority(*priority),
			DueAt:       parseDue(*due, time.Now().Add(24*time.Hour)),
		})
		fatalOn(err)
		fmt.Printf("created %s: %s\n", task.ID, task.Title)
	case "edit":
		requireArgs(1, "edit <id|search>")
		prev := resolveTask(ctx, client, cli.Arg(1))
		req := todo.UpdateRequest{
			Title:       prev.Title,
			Description: prev.Description,
			Priority:    prev.Priority,
			DueAt:       prev.DueAt,
		}
		if *title != "" {
			req.Title = *title
		}
		if *desc != "" {
			req.Description = *desc
		}
		if *priority != "" {
			req.Priority = todo.NormalizePriority(*priority)
		}
		if *due != "" {
			req.DueAt = parseDue(*due, prev.DueAt)
		}
		task, err := client.Update(ctx, prev.ID, req)
		fatalOn(err)
		fmt.Printf("updated %s: %s\n", task.ID, task.Title)
	case "rm":
		requireArgs(1, "rm <id|search>")
		prev := resolveTask(ctx, client, cli.Arg(1))
		fatalOn(client.Delete(ctx, prev.ID))
		fmt.Printf("deleted %s: %s\n", prev.ID, prev.Title)
	case "voice":
		runVoice(cfg, client, creds)
	default:
		cli.Usage()
		os.Exit(2)
	}
}

func credentialStore(cfg config.Config) (todo.CredentialStore, error) {
	path := cfg.TokenPath
	if path == "" {
		var err error
		path, err = todo.DefaultTokenPath()
		if err != nil {
			return nil, err
		}
	}
	return todo.NewFileStore(path), nil
}

func requireArgs(n int, form string) {
	if cli.NArg() < n+1 {
		log.Fatalf("usage: todovoice %s", form)
	}
}

func fatalOn(err error) {
	if err != nil {
		log.Fatalf("%v", err)
	}
}

// parseDue accepts an absolute RFC3339 timestamp or a duration offset from
// now; empty input keeps the fallback.
func parseDue(v string, fallback time.Time) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if d, err := time.ParseDuration(v); err == nil {
		return time.Now().Add(d)
	}
	log.Fatalf("cannot parse due date %q (want RFC3339 or a duration like 48h)", v)
	return fallback
}

// resolveTask matches an exact task ID first, then falls back to a unique
// case-insensitive substring match on titles.
func resolveTask(ctx context.Context, client *todo.Client, needle string) todo.Task {
	tasks, err := client.Todos(ctx)
	fatalOn(err)

	for _, t := range tasks {
		if t.ID == needle {
			return t
		}
	}

	lowered := strings.ToLower(needle)
	var matches []todo.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), lowered) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		log.Fatalf("no task found matching %q", needle)
	default:
		titles := make([]string, len(matches))
		for i, t := range matches {
			titles[i] = t.Title
		}
		log.Fatalf("multiple tasks match %q: %s", needle, strings.Join(titles, ", "))
	}
	return todo.Task{}
}

func printTasks(tasks []todo.Task) {
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRIORITY\tDUE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Priority, t.DueAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func runVoice(cfg config.Config, client *todo.Client, creds todo.CredentialStore) {
	if err := audio.Initialize(); err != nil {
		log.Fatalf("audio subsystem init failed: %v", err)
	}
	defer audio.Terminate()

	endpoint, err := transport.EndpointFromBase(cfg.BaseURL)
	if err != nil {
		log.Fatalf("derive realtime endpoint: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctrl := voicesession.New(
		voicesession.Config{
			CaptureSampleRate:  cfg.CaptureSampleRate,
			PlaybackSampleRate: cfg.PlaybackSampleRate,
			ActionTimeout:      cfg.ActionTimeout,
			DumpDir:            cfg.DumpDir,
		},
		client,
		creds,
		metrics,
		func(h transport.Handler) voicesession.Transport {
			return transport.New(endpoint, cfg.HandshakeTimeout, h)
		},
		func(forward func(string), onError func(error)) voicesession.CapturePipeline {
			return audio.NewCapture(audio.OpenPortAudioInput, cfg.CaptureSampleRate, cfg.ChunkFrames, forward, onError)
		},
		func(onError func(error)) (voicesession.PlaybackPipeline, error) {
			sink, err := audio.NewPortAudioSink(cfg.PlaybackSampleRate, 1, cfg.ChunkFrames)
			if err != nil {
				return nil, err
			}
			return audio.NewScheduler(sink, cfg.PlaybackSampleRate, 1, onError), nil
		},
		func(tasks []todo.Task) {
			log.Printf("task list updated (%d tasks)", len(tasks))
		},
	)

	if cfg.StatusEnabled {
		status := httpapi.New(cfg.StatusAddr, ctrl)
		if err := status.Start(); err != nil {
			log.Fatalf("status server listen error: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = status.Shutdown(shutdownCtx)
		}()
		log.Printf("status server listening on %s", cfg.StatusAddr)
	}

	if err := ctrl.Start(context.Background()); err != nil {
		log.Fatalf("voice session start failed: %v", err)
	}
	log.Printf("voice session active, press Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	ctrl.Stop()
	log.Printf("shutdown complete")
}
