package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/tubedigest/internal/mqtt"
	"github.com/nugget/tubedigest/internal/pipeline"
	"github.com/nugget/tubedigest/internal/prompts"
	"github.com/nugget/tubedigest/internal/publish"
	"github.com/nugget/tubedigest/internal/state"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/transcript"
	"github.com/nugget/tubedigest/internal/usage"
	"github.com/nugget/tubedigest/internal/youtube"
)

// newFlags returns a flag set that reports errors instead of exiting.
func newFlags(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// splitList turns "ja,en" into its non-empty parts.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runProcess fetches and summarizes each video given on the command
// line, then publishes the notes as one changeset.
func runProcess(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlags("process", stderr)
	template := fs.String("template", "", "prompt template or dual family (default: summary.template)")
	model := fs.String("model", "", "model for single summaries and the insight part")
	chrono := fs.String("chrono-model", "", "model for the timeline part of a dual summary")
	lang := fs.String("lang", "", "comma-separated caption languages, in order of preference")
	noPublish := fs.Bool("no-publish", false, "write notes locally only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: tubedigest process [flags] <url|id>...")
	}

	a, err := newApp(stderr, g)
	if err != nil {
		return err
	}
	if err := checkTemplate(a, *template); err != nil {
		return err
	}

	st, err := a.openState()
	if err != nil {
		return err
	}
	defer st.Close()
	ledger, err := a.openUsage()
	if err != nil {
		return err
	}
	defer ledger.Close()
	meta, err := a.metadata(ctx)
	if err != nil {
		return err
	}
	pub, err := a.publisher()
	if err != nil {
		return err
	}
	events, stopEvents := a.events(ctx)
	defer stopEvents()

	tokens := &mqtt.RunTokens{}
	synth := summary.NewSynthesizer(a.invoker(ledger, tokens), a.cfg, summary.Options{Parallel: a.cfg.Summary.Parallel}, a.logger)
	proc := pipeline.NewProcessor(a.cfg, meta, youtube.NewCaptionClient(a.http, a.logger), synth, publish.NewNotes(a.cfg.NotesDir), st, a.logger)

	runID := uuid.NewString()
	var (
		files    []publish.File
		outcomes []processResult
		failed   int
	)
	for _, ref := range fs.Args() {
		out, err := proc.Process(ctx, pipeline.Job{
			Ref:                ref,
			Languages:          splitList(*lang),
			Template:           *template,
			Model:              *model,
			ChronologicalModel: *chrono,
			RunID:              runID,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			a.logger.Error("video failed", "ref", ref, "error", err)
			outcomes = append(outcomes, processResult{Ref: ref, Error: err.Error()})
			if events != nil {
				events.Emit(ctx, mqtt.Event{Type: mqtt.EventVideoFailed, RunID: runID, VideoID: ref, Error: err.Error()})
			}
			continue
		}
		files = append(files, out.Files...)
		outcomes = append(outcomes, newProcessResult(ref, out))
		if events != nil {
			events.Emit(ctx, mqtt.Event{
				Type:    mqtt.EventVideoProcessed,
				RunID:   runID,
				VideoID: out.Video.ID,
				Title:   out.Video.Title,
				Channel: out.Video.Channel,
				Status:  out.Status.String(),
			})
		}
	}

	var publishErr error
	if !*noPublish && len(files) > 0 {
		publishErr = pub.Publish(ctx, publish.Changeset{
			Message: publish.CommitMessage(len(outcomes) - failed),
			Files:   files,
		})
	}

	if a.out == "json" {
		if err := writeJSON(stdout, outcomes); err != nil {
			return err
		}
	} else {
		for _, r := range outcomes {
			r.print(stdout)
		}
	}

	if publishErr != nil {
		return fmt.Errorf("publish: %w", publishErr)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(outcomes))
	}
	return nil
}

// checkTemplate rejects an unknown template before any video is fetched.
// A dual family is checked through its two part templates.
func checkTemplate(a *app, name string) error {
	if name == "" {
		return nil
	}
	names := []string{name}
	if prompts.IsDualFamily(name) {
		names = []string{prompts.InsightTemplate(name), prompts.ChronologicalTemplate(name)}
	}
	for _, n := range names {
		if _, err := a.cfg.Template(n); err != nil {
			return err
		}
	}
	return nil
}

// processResult is the printable outcome of one process argument.
type processResult struct {
	Ref            string `json:"ref"`
	VideoID        string `json:"video_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Captions       string `json:"captions,omitempty"`
	Status         string `json:"status,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	CleanedPath    string `json:"cleaned_path,omitempty"`
	SummaryPath    string `json:"summary_path,omitempty"`
	SummaryError   string `json:"summary_error,omitempty"`
	Error          string `json:"error,omitempty"`
}

func newProcessResult(ref string, out *pipeline.Outcome) processResult {
	r := processResult{
		Ref:            ref,
		VideoID:        out.Video.ID,
		Title:          out.Video.Title,
		Captions:       out.Track.LanguageCode,
		Status:         out.Status.String(),
		TranscriptPath: out.TranscriptPath,
		CleanedPath:    out.CleanedPath,
		SummaryPath:    out.SummaryPath,
	}
	if out.Track.Generated() {
		r.Captions += " (auto)"
	}
	if out.SummaryErr != nil {
		r.SummaryError = out.SummaryErr.Error()
	}
	return r
}

func (r processResult) print(w io.Writer) {
	if r.Error != "" {
		fmt.Fprintf(w, "✗ %s: %s\n", r.Ref, r.Error)
		return
	}
	fmt.Fprintf(w, "✓ %s [%s] %s\n", r.VideoID, r.Status, r.Title)
	fmt.Fprintf(w, "  captions:   %s\n", r.Captions)
	fmt.Fprintf(w, "  transcript: %s\n", r.TranscriptPath)
	if r.CleanedPath != "" {
		fmt.Fprintf(w, "  cleaned:    %s\n", r.CleanedPath)
	}
	fmt.Fprintf(w, "  summary:    %s\n", r.SummaryPath)
	if r.SummaryError != "" {
		fmt.Fprintf(w, "  error:      %s\n", r.SummaryError)
	}
}

// newBatch wires a batch runner. The caller closes the returned stores
// through cleanup.
func newBatch(ctx context.Context, a *app) (*pipeline.Batch, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	chs, err := a.channels()
	if err != nil {
		return nil, cleanup, err
	}
	st, err := a.openState()
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() { st.Close() })
	ledger, err := a.openUsage()
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, func() { ledger.Close() })
	meta, err := a.metadata(ctx)
	if err != nil {
		return nil, cleanup, err
	}
	pub, err := a.publisher()
	if err != nil {
		return nil, cleanup, err
	}
	events, stopEvents := a.events(ctx)
	closers = append(closers, stopEvents)

	tokens := &mqtt.RunTokens{}
	synth := summary.NewSynthesizer(a.invoker(ledger, tokens), a.cfg, summary.Options{Parallel: a.cfg.Summary.Parallel}, a.logger)
	proc := pipeline.NewProcessor(a.cfg, meta, youtube.NewCaptionClient(a.http, a.logger), synth, publish.NewNotes(a.cfg.NotesDir), st, a.logger)
	b := pipeline.NewBatch(a.cfg, proc, st, youtube.NewFeedClient(a.http, a.logger), chs, pub, events, tokens, a.logger)
	return b, cleanup, nil
}

// runBatch polls channel feeds into the backlog and processes the front
// of the backlog.
func runBatch(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlags("batch", stderr)
	noPoll := fs.Bool("no-poll", false, "skip the feed check and only work the backlog")
	count := fs.Int("count", 0, "videos to process (default: batch.process_count)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(stderr, g)
	if err != nil {
		return err
	}
	b, cleanup, err := newBatch(ctx, a)
	defer cleanup()
	if err != nil {
		return err
	}

	rep, err := b.Run(ctx, pipeline.BatchOptions{Poll: !*noPoll, Count: *count})
	if errors.Is(err, pipeline.ErrLocked) {
		fmt.Fprintln(stdout, "another batch run is in progress, nothing to do")
		return nil
	}
	if rep != nil {
		printReport(stdout, a.out, rep)
	}
	if err != nil {
		return err
	}
	if rep.PublishErr != nil {
		return fmt.Errorf("publish: %w", rep.PublishErr)
	}
	return nil
}

func printReport(w io.Writer, format string, rep *pipeline.BatchReport) {
	if format == "json" {
		out := map[string]any{
			"run_id":    rep.RunID,
			"queued":    rep.Queued,
			"processed": rep.Processed,
			"failed":    rep.Failed,
			"skipped":   rep.Skipped,
		}
		if rep.PublishErr != nil {
			out["publish_error"] = rep.PublishErr.Error()
		}
		_ = writeJSON(w, out)
		return
	}
	fmt.Fprintf(w, "run %s: queued %d, processed %d, failed %d, skipped %d\n",
		rep.RunID, rep.Queued, rep.Processed, rep.Failed, rep.Skipped)
}

// runBacklog inspects and edits the backlog.
func runBacklog(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tubedigest backlog list|failed|add|retry-failed|import")
	}
	sub, rest := args[0], args[1:]

	a, err := newApp(stderr, g)
	if err != nil {
		return err
	}

	if sub == "import" {
		b, cleanup, err := newBatch(ctx, a)
		defer cleanup()
		if err != nil {
			return err
		}
		rep, err := b.Run(ctx, pipeline.BatchOptions{Poll: true, Count: -1})
		if err != nil {
			return err
		}
		printReport(stdout, a.out, rep)
		return nil
	}

	st, err := a.openState()
	if err != nil {
		return err
	}
	defer st.Close()

	switch sub {
	case "list":
		items, err := st.Queue(ctx)
		if err != nil {
			return err
		}
		return printItems(stdout, a.out, items)
	case "failed":
		items, err := st.Failed(ctx)
		if err != nil {
			return err
		}
		return printItems(stdout, a.out, items)
	case "retry-failed":
		n, err := st.RetryFailed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "requeued %d videos\n", n)
		return nil
	case "add":
		return backlogAdd(ctx, stdout, a, st, rest)
	default:
		return fmt.Errorf("unknown backlog command: %s", sub)
	}
}

// backlogAdd queues videos by URL or id. Titles are looked up when a
// Data API key is configured.
func backlogAdd(ctx context.Context, w io.Writer, a *app, st *state.Store, refs []string) error {
	if len(refs) == 0 {
		return errors.New("usage: tubedigest backlog add <url|id>...")
	}
	var meta *youtube.MetadataClient
	if a.cfg.YouTube.APIKey != "" {
		m, err := a.metadata(ctx)
		if err != nil {
			return err
		}
		meta = m
	}

	for _, ref := range refs {
		id, err := youtube.ResolveVideoID(ref)
		if err != nil {
			return err
		}
		item := state.Item{VideoID: id}
		if meta != nil {
			if v, err := meta.Video(ctx, id); err == nil {
				item.Title, item.Channel, item.PublishedAt = v.Title, v.Channel, v.PublishedAt
			} else {
				a.logger.Warn("metadata lookup failed", "video_id", id, "error", err)
			}
		}
		added, err := st.Enqueue(ctx, item)
		if err != nil {
			return err
		}
		if added {
			fmt.Fprintf(w, "queued %s\n", id)
		} else {
			fmt.Fprintf(w, "%s is already queued\n", id)
		}
	}
	return nil
}

func printItems(w io.Writer, format string, items []state.Item) error {
	if format == "json" {
		if items == nil {
			items = []state.Item{}
		}
		return writeJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "(empty)")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s  %-20s  %s\n", it.VideoID, it.Channel, it.Title)
		if it.Error != "" {
			fmt.Fprintf(w, "             error: %s\n", it.Error)
		}
	}
	return nil
}

// runChannels lists the registry or resolves a channel reference to its
// id.
func runChannels(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: tubedigest channels list|resolve <url|@handle>")
	}
	a, err := newApp(stderr, g)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		chs, err := a.channels()
		if err != nil {
			return err
		}
		if a.out == "json" {
			return writeJSON(stdout, chs)
		}
		if len(chs) == 0 {
			fmt.Fprintf(stdout, "no channels in %s\n", a.cfg.YouTube.ChannelsFile)
			return nil
		}
		for _, ch := range chs {
			fmt.Fprintf(stdout, "%s  %-24s %-5s %s\n", ch.ID, ch.DisplayName(), ch.Lang, ch.Notes)
		}
		return nil
	case "resolve":
		if len(args) < 2 {
			return errors.New("usage: tubedigest channels resolve <url|@handle>")
		}
		feeds := youtube.NewFeedClient(a.http, a.logger)
		for _, ref := range args[1:] {
			id, err := feeds.ResolveChannelID(ctx, ref)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s\t%s\n", id, youtube.FeedURL(id))
		}
		return nil
	default:
		return fmt.Errorf("unknown channels command: %s", args[0])
	}
}

// runModels lists the configured models and, with -ping, checks that
// each provider answers.
func runModels(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlags("models", stderr)
	ping := fs.Bool("ping", false, "check that each provider is reachable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(stderr, g)
	if err != nil {
		return err
	}

	type modelRow struct {
		Name        string `json:"name"`
		Provider    string `json:"provider"`
		MaxTokens   int    `json:"max_tokens,omitempty"`
		Description string `json:"description,omitempty"`
	}
	var rows []modelRow
	for _, name := range a.cfg.ModelNames() {
		p := a.cfg.ModelParams(name)
		rows = append(rows, modelRow{Name: name, Provider: a.cfg.ProviderFor(name), MaxTokens: p.MaxTokens, Description: p.Description})
	}

	if a.out == "json" {
		if err := writeJSON(stdout, rows); err != nil {
			return err
		}
	} else {
		for _, r := range rows {
			fmt.Fprintf(stdout, "%-32s %-12s %s\n", r.Name, r.Provider, r.Description)
		}
		fmt.Fprintf(stdout, "\ntemplates: %s\n", strings.Join(a.cfg.TemplateNames(), ", "))
	}

	if !*ping {
		return nil
	}
	client := a.invokerClient()
	var failed int
	for _, name := range client.Providers() {
		pctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := client.PingProvider(pctx, name)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "✗ %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(stdout, "✓ %s\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d providers unreachable", failed)
	}
	return nil
}

// runClean writes the cleaned text of a transcript note next to it.
// It needs no configuration.
func runClean(stdout, stderr io.Writer, args []string) error {
	fs := newFlags("clean", stderr)
	keep := fs.Bool("timestamps", false, "keep timestamp markup")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: tubedigest clean [-timestamps] <note.md>...")
	}

	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		cleaned := transcript.Normalize(string(data), *keep)
		if strings.TrimSpace(cleaned) == "" {
			return fmt.Errorf("%s: %w", path, summary.ErrEmptyTranscript)
		}
		out := transcript.CleanedPath(path)
		if err := os.WriteFile(out, []byte(cleaned), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(stdout, "%s (%d → %d chars)\n", out, len([]rune(string(data))), len([]rune(cleaned)))
	}
	return nil
}

// runCompare summarizes one video with each named model and writes a
// side-by-side report.
func runCompare(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlags("compare", stderr)
	template := fs.String("template", "", "prompt template (default: summary.template)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: tubedigest compare [-template name] <url|id> <model>...")
	}

	a, err := newApp(stderr, g)
	if err != nil {
		return err
	}
	ledger, err := a.openUsage()
	if err != nil {
		return err
	}
	defer ledger.Close()
	meta, err := a.metadata(ctx)
	if err != nil {
		return err
	}

	c := pipeline.NewComparer(a.cfg, meta, youtube.NewCaptionClient(a.http, a.logger), a.invoker(ledger, nil), a.cfg.NotesDir, a.logger)
	cmp, err := c.Compare(ctx, fs.Arg(0), fs.Args()[1:], *template, uuid.NewString())
	if err != nil {
		return err
	}

	if a.out == "json" {
		type run struct {
			Model        string  `json:"model"`
			Status       string  `json:"status"`
			Reason       string  `json:"reason,omitempty"`
			InputTokens  int     `json:"input_tokens"`
			OutputTokens int     `json:"output_tokens"`
			Seconds      float64 `json:"seconds"`
		}
		runs := make([]run, len(cmp.Runs))
		for i, r := range cmp.Runs {
			runs[i] = run{r.Model, r.Result.Status.String(), r.Result.Reason, r.Result.InputTokens, r.Result.OutputTokens, r.Elapsed.Seconds()}
		}
		return writeJSON(stdout, map[string]any{
			"video_id": cmp.Video.ID,
			"template": cmp.Template,
			"report":   cmp.ReportPath,
			"runs":     runs,
		})
	}
	for _, r := range cmp.Runs {
		fmt.Fprintf(stdout, "%-32s %-9s in=%d out=%d %s\n", r.Model, r.Result.Status, r.Result.InputTokens, r.Result.OutputTokens, r.Elapsed.Round(100*time.Millisecond))
	}
	fmt.Fprintf(stdout, "report: %s\n", cmp.ReportPath)
	return nil
}

// runUsage reports token usage and cost for the last -days days.
func runUsage(ctx context.Context, stdout, stderr io.Writer, g globals, args []string) error {
	fs := newFlags("usage", stderr)
	days := fs.Int("days", 30, "days to report")
	by := fs.String("by", "model", "breakdown: model, part or video")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(stderr, g)
	if err != nil {
		return err
	}
	ledger, err := a.openUsage()
	if err != nil {
		return err
	}
	defer ledger.Close()

	end := time.Now()
	start := end.AddDate(0, 0, -*days)
	total, err := ledger.Summary(ctx, start, end)
	if err != nil {
		return err
	}

	var groups map[string]*usage.Summary
	switch *by {
	case "model":
		groups, err = ledger.SummaryByModel(ctx, start, end)
	case "part":
		groups, err = ledger.SummaryByPart(ctx, start, end)
	case "video":
		groups, err = ledger.SummaryByVideo(ctx, start, end)
	default:
		return fmt.Errorf("unknown breakdown %q (expected model, part or video)", *by)
	}
	if err != nil {
		return err
	}

	if a.out == "json" {
		return writeJSON(stdout, map[string]any{
			"days":  *days,
			"total": total,
			"by":    *by,
			"group": groups,
		})
	}

	fmt.Fprintf(stdout, "Last %d days: %d calls, %d in / %d out tokens, $%.4f\n",
		*days, total.TotalRecords, total.TotalInputTokens, total.TotalOutputTokens, total.TotalCostUSD)
	for _, k := range slices.Sorted(maps.Keys(groups)) {
		s := groups[k]
		fmt.Fprintf(stdout, "  %-32s %5d calls %10d in %10d out  $%.4f\n",
			k, s.TotalRecords, s.TotalInputTokens, s.TotalOutputTokens, s.TotalCostUSD)
	}
	return nil
}
