// Tubedigest turns YouTube videos into Markdown transcript notes with
// model-written summaries.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); without one the
// built-in defaults are used.
//
// Usage:
//
//	tubedigest process <url|id>...       Summarize videos now
//	tubedigest batch                     Poll channel feeds and work the backlog
//	tubedigest backlog list|failed       Show the backlog
//	tubedigest backlog add <url|id>...   Queue videos
//	tubedigest backlog retry-failed      Requeue failed videos
//	tubedigest backlog import            Poll feeds into the backlog only
//	tubedigest channels list|resolve     Inspect the channel registry
//	tubedigest models                    List configured models
//	tubedigest clean <note.md>           Write the cleaned transcript text
//	tubedigest compare <url> <model>...  Compare models on one video
//	tubedigest usage                     Token usage and cost
//	tubedigest init [dir]                Write an example config
//	tubedigest version                   Print version information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/tubedigest/internal/buildinfo"
	"github.com/nugget/tubedigest/internal/channels"
	"github.com/nugget/tubedigest/internal/config"
	"github.com/nugget/tubedigest/internal/httpkit"
	"github.com/nugget/tubedigest/internal/llm"
	"github.com/nugget/tubedigest/internal/mqtt"
	"github.com/nugget/tubedigest/internal/pipeline"
	"github.com/nugget/tubedigest/internal/publish"
	"github.com/nugget/tubedigest/internal/state"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/usage"
	"github.com/nugget/tubedigest/internal/youtube"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run].
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1)
	}
}

// globals are the flags accepted before the command name.
type globals struct {
	configPath string
	outputFmt  string
}

// run is the real entry point. Global flags are parsed by hand so run
// can be called concurrently from tests; each command parses its own
// flags with a private flag.FlagSet.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var g globals
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			g.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			g.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			g.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			g.outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			g.outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if g.outputFmt == "" {
		g.outputFmt = "text"
	}
	if g.outputFmt != "text" && g.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", g.outputFmt)
	}

	switch command {
	case "process":
		return runProcess(ctx, stdout, stderr, g, cmdArgs)
	case "batch":
		return runBatch(ctx, stdout, stderr, g, cmdArgs)
	case "backlog":
		return runBacklog(ctx, stdout, stderr, g, cmdArgs)
	case "channels":
		return runChannels(ctx, stdout, stderr, g, cmdArgs)
	case "models":
		return runModels(ctx, stdout, stderr, g, cmdArgs)
	case "clean":
		return runClean(stdout, stderr, cmdArgs)
	case "compare":
		return runCompare(ctx, stdout, stderr, g, cmdArgs)
	case "usage":
		return runUsage(ctx, stdout, stderr, g, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, g.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "tubedigest - YouTube transcript notes and summaries")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: tubedigest [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  process <url|id>...        Fetch, write and summarize videos")
	fmt.Fprintln(w, "  batch                      Poll channel feeds and process the backlog")
	fmt.Fprintln(w, "  backlog <subcommand>       list, failed, add, retry-failed, import")
	fmt.Fprintln(w, "  channels <subcommand>      list, resolve <url|@handle>")
	fmt.Fprintln(w, "  models                     List configured models (-ping checks providers)")
	fmt.Fprintln(w, "  clean <note.md>            Write <note>_cleaned.txt")
	fmt.Fprintln(w, "  compare <url> <model>...   Summarize one video with several models")
	fmt.Fprintln(w, "  usage                      Token usage and cost (-days N)")
	fmt.Fprintln(w, "  init [dir]                 Write an example config (default: .)")
	fmt.Fprintln(w, "  version                    Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// loadConfig locates and parses the configuration. With no explicit
// path and no file on the search path, the built-in defaults are used
// and the returned path is empty.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if errors.Is(err, config.ErrNoConfig) {
		return config.Default(), "", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// app holds what every command needs. Heavier components are built on
// demand by the helpers below.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Client
	out    string
}

// newApp loads configuration and builds the configured logger. Logs go
// to stderr so command output on stdout stays machine readable.
func newApp(stderr io.Writer, g globals) (*app, error) {
	cfg, cfgPath, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(stderr, level, cfg.LogFormat)
	if cfgPath == "" {
		logger.Debug("no config file found, using defaults")
	} else {
		logger.Debug("config loaded", "path", cfgPath)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	client := httpkit.NewClient(
		httpkit.WithUserAgent(buildinfo.UserAgent()),
		httpkit.WithRetry(2, 2*time.Second),
		httpkit.WithLogger(logger),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		http:   client,
		out:    g.outputFmt,
	}, nil
}

func (a *app) openState() (*state.Store, error) {
	st, err := state.Open(filepath.Join(a.cfg.DataDir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return st, nil
}

func (a *app) openUsage() (*usage.Store, error) {
	st, err := usage.NewStore(filepath.Join(a.cfg.DataDir, "usage.db"), a.cfg.Pricing())
	if err != nil {
		return nil, fmt.Errorf("open usage ledger: %w", err)
	}
	return st, nil
}

func (a *app) metadata(ctx context.Context) (*youtube.MetadataClient, error) {
	return youtube.NewMetadataClient(ctx, a.cfg.YouTube.APIKey, a.http, a.logger)
}

// invokerClient routes model names to their configured providers.
func (a *app) invokerClient() *llm.MultiClient {
	return llm.FromConfig(a.cfg, a.logger)
}

// invoker builds the model invoker with usage recording. tokens may be
// nil.
func (a *app) invoker(ledger *usage.Store, tokens *mqtt.RunTokens) *summary.Invoker {
	inv := summary.NewInvoker(a.invokerClient(), a.cfg, a.cfg.Summary.MaxRetries, a.logger)
	inv.SetRecorder(pipeline.TokenRecorder(ledger, tokens))
	return inv
}

// publisher builds a Publisher over every configured sink.
func (a *app) publisher() (*publish.Publisher, error) {
	var sinks []publish.Sink
	pc := a.cfg.Publish
	if pc.WebDAV.Configured() {
		s, err := publish.NewWebDAVSink(pc.WebDAV, a.http)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if pc.GitHub.Configured() {
		s, err := publish.NewGitHubSink(pc.GitHub, a.http, a.logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if pc.Mail.Configured() {
		sinks = append(sinks, publish.NewMailSink(pc.Mail))
	}
	return publish.NewPublisher(a.logger, sinks...), nil
}

// events starts the MQTT publisher when configured. The returned stop
// function is always safe to call.
func (a *app) events(ctx context.Context) (pipeline.Events, func()) {
	if !a.cfg.MQTT.Configured() {
		return nil, func() {}
	}
	pub := mqtt.New(a.cfg.MQTT, a.logger)
	if err := pub.Start(ctx, 10*time.Second); err != nil {
		a.logger.Warn("mqtt disabled", "error", err)
		return nil, func() {}
	}
	return pub, func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := pub.Stop(stopCtx); err != nil {
			a.logger.Debug("mqtt disconnect", "error", err)
		}
	}
}

func (a *app) channels() ([]channels.Channel, error) {
	chs, err := channels.Load(a.cfg.YouTube.ChannelsFile)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	return chs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
