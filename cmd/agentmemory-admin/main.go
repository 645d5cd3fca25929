// Command agentmemory-admin is the operator CLI for the agent memory store.
//
// Usage:
//
//	agentmemory-admin <command> [flags]
//
// Commands:
//
//	status     store health, schema version and active issue count
//	issues     list unresolved email/task findings and urgent items
//	context    print the digest agents receive
//	resolve    resolve by --topic, --email-id, --task-id, --delegation-id, --event-id or --say
//	annotate   attach a note (and optional --status) to events by key
//	search     search event summaries
//	related    list every event referencing a key
//	migrate    apply pending migrations and print the schema version
//	backup     write a verified copy of the SQLite database
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/scrypster/agentmemory/internal/bootstrap"
	"github.com/scrypster/agentmemory/internal/config"
	"github.com/scrypster/agentmemory/internal/engine"
	"github.com/scrypster/agentmemory/internal/notify"
	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/internal/storage/sqlite"
	"github.com/scrypster/agentmemory/pkg/types"
)

const usage = `usage: agentmemory-admin <command> [flags]

commands:
  status     store health, schema version and active issue count
  issues     list unresolved email/task findings and urgent items
  context    print the digest agents receive
  resolve    resolve events by topic, key or operator utterance
  annotate   attach a note to events by key
  search     search event summaries
  related    list every event referencing a key
  migrate    apply pending migrations and print the schema version
  backup     write a verified copy of the SQLite database
`

// errUsage is returned for bad invocations; main exits 2 on it.
var errUsage = errors.New("usage error")

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "agentmemory-admin: %v\n", err)
		os.Exit(1)
	}
}

// schemaMigrator is implemented by stores with versioned migrations.
type schemaMigrator interface {
	Migrate(ctx context.Context) (int, error)
	SchemaVersion(ctx context.Context) (uint, error)
}

// backupper is implemented by stores that can snapshot themselves.
type backupper interface {
	Backup(ctx context.Context, destPath string) error
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	store  storage.Store
	svc    *engine.Service
	out    io.Writer
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	commands := map[string]func(*app, context.Context, []string) error{
		"status":   (*app).status,
		"issues":   (*app).issues,
		"context":  (*app).showContext,
		"resolve":  (*app).resolve,
		"annotate": (*app).annotate,
		"search":   (*app).search,
		"related":  (*app).related,
		"migrate":  (*app).migrate,
		"backup":   (*app).backup,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Operator output goes to stdout; keep logs quiet unless asked.
	logCfg := cfg.Logging
	if os.Getenv("AGENTMEMORY_LOG_LEVEL") == "" {
		logCfg.Level = "warn"
	}
	logger := config.NewLogger(logCfg, stderr)

	store, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	writer := notify.NewWriter(cfg.Storage.DataPath, logger)
	svc, err := bootstrap.NewService(cfg, store, logger, engine.WithNotifier(writer.Notify))
	if err != nil {
		return err
	}

	a := &app{cfg: cfg, store: store, svc: svc, out: stdout, logger: logger}
	return cmd(a, ctx, args[1:])
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	if err := parseFlags(newFlagSet("status"), args); err != nil {
		return err
	}

	health := "ok"
	if err := a.svc.Ping(ctx); err != nil {
		health = "unavailable: " + err.Error()
	}
	fmt.Fprintf(a.out, "Storage:  %s (%s)\n", a.cfg.Storage.StorageEngine, health)
	if m, ok := a.store.(schemaMigrator); ok {
		if v, err := m.SchemaVersion(ctx); err == nil {
			fmt.Fprintf(a.out, "Schema:   v%d\n", v)
		}
	}
	fmt.Fprintf(a.out, "LLM:      %s (%s)\n", a.cfg.LLM.Provider, a.svc.LLMState())

	issues, err := a.svc.ActiveIssues(ctx, 1000)
	if err != nil {
		return err
	}
	digest := a.svc.BuildContext(ctx, engine.ContextOptions{})
	fmt.Fprintf(a.out, "Active:   %d events in the last %dh, %d open issues\n",
		digest.Len(), digest.WindowHours, len(issues))
	return nil
}

func (a *app) issues(ctx context.Context, args []string) error {
	fs := newFlagSet("issues")
	limit := fs.Int("limit", engine.DefaultIssueLimit, "maximum issues to list")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	events, err := a.svc.ActiveIssues(ctx, *limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.out, "No active issues")
		return nil
	}
	a.printEvents(events)
	return nil
}

func (a *app) showContext(ctx context.Context, args []string) error {
	fs := newFlagSet("context")
	hours := fs.Int("hours", 0, "look-back window in hours (default from config)")
	all := fs.Bool("all", false, "include resolved events")
	flat := fs.Bool("flat", false, "one chronological list instead of per-agent sections")
	agent := fs.String("agent", "", "restrict to one agent type")
	digest := fs.Bool("digest", false, "print the daily-digest context instead")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := engine.CheckWindowHours(*hours); err != nil {
		return err
	}

	if *digest {
		fmt.Fprintln(a.out, a.svc.DigestContext(ctx, *hours))
		return nil
	}

	d := a.svc.BuildContext(ctx, engine.ContextOptions{
		WindowHours:     *hours,
		IncludeResolved: *all,
		Flat:            *flat,
		AgentType:       types.AgentType(*agent),
	})
	if d.Degraded {
		fmt.Fprintln(a.out, "warning: store unavailable, digest is empty")
	}
	fmt.Fprintln(a.out, d.Text())
	return nil
}

func (a *app) resolve(ctx context.Context, args []string) error {
	fs := newFlagSet("resolve")
	var req engine.ResolveRequest
	fs.StringVar(&req.Topic, "topic", "", "resolve active events whose summary mentions this topic")
	fs.StringVar(&req.EmailID, "email-id", "", "resolve events for this email")
	fs.StringVar(&req.TaskID, "task-id", "", "resolve events for this task")
	fs.StringVar(&req.DelegationID, "delegation-id", "", "resolve events for this delegation")
	fs.StringVar(&req.EventID, "event-id", "", "resolve one event")
	fs.StringVar(&req.Utterance, "say", "", "run an operator utterance through intent classification")
	fs.StringVar(&req.Note, "note", "", "resolution note")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	res, err := a.svc.Resolve(ctx, req)
	if err != nil {
		return err
	}
	switch {
	case res.Ambiguous:
		fmt.Fprintf(a.out, "Nothing resolved: %s\n", res.Reason)
	case res.Resolved == 0 && res.Matched == 0:
		fmt.Fprintln(a.out, "No matching active events")
	default:
		fmt.Fprintf(a.out, "Resolved %d of %d matching events\n", res.Resolved, res.Matched)
		for _, id := range res.ResolvedIDs {
			fmt.Fprintf(a.out, "  %s\n", id)
		}
		if res.Resolved == 0 && res.Reason != "" {
			fmt.Fprintf(a.out, "Reason: %s\n", res.Reason)
		}
	}
	return nil
}

func (a *app) annotate(ctx context.Context, args []string) error {
	fs := newFlagSet("annotate")
	var req engine.AnnotateRequest
	var status string
	fs.StringVar(&req.EventID, "event-id", "", "annotate one event")
	fs.StringVar(&req.EmailID, "email-id", "", "annotate events for this email")
	fs.StringVar(&req.TaskID, "task-id", "", "annotate events for this task")
	fs.StringVar(&req.DelegationID, "delegation-id", "", "annotate events for this delegation")
	fs.StringVar(&req.Note, "note", "", "the note (required)")
	fs.StringVar(&status, "status", string(types.AnnotationNote), "note, resolved, incorrect or outdated")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	req.Status = types.AnnotationStatus(status)

	n, err := a.svc.Annotate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Annotated %d events\n", n)
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := newFlagSet("search")
	agent := fs.String("agent", "", "restrict to one agent type")
	limit := fs.Int("limit", engine.DefaultSearchLimit, "maximum results")
	active := fs.Bool("active", false, "only unresolved events")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	events, err := a.svc.Search(ctx, engine.SearchRequest{
		Query:      strings.Join(fs.Args(), " "),
		AgentType:  types.AgentType(*agent),
		ActiveOnly: *active,
		Limit:      *limit,
	})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.out, "No matches")
		return nil
	}
	a.printEvents(events)
	return nil
}

func (a *app) related(ctx context.Context, args []string) error {
	fs := newFlagSet("related")
	var key engine.RelatedKey
	fs.StringVar(&key.EmailID, "email-id", "", "email reference")
	fs.StringVar(&key.TaskID, "task-id", "", "task reference")
	fs.StringVar(&key.DelegationID, "delegation-id", "", "delegation reference")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	events, err := a.svc.RelatedEvents(ctx, key)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.out, "No related events")
		return nil
	}
	a.printEvents(events)
	return nil
}

func (a *app) migrate(ctx context.Context, args []string) error {
	if err := parseFlags(newFlagSet("migrate"), args); err != nil {
		return err
	}

	m, ok := a.store.(schemaMigrator)
	if !ok {
		fmt.Fprintf(a.out, "%s schema is applied when the store opens\n", a.cfg.Storage.StorageEngine)
		return nil
	}
	n, err := m.Migrate(ctx)
	if err != nil {
		return err
	}
	v, err := m.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Applied %d migrations, schema at v%d\n", n, v)
	return nil
}

func (a *app) backup(ctx context.Context, args []string) error {
	fs := newFlagSet("backup")
	out := fs.String("out", "", "backup file path (default: <data path>/backups/agentmemory-<timestamp>.db)")
	keep := fs.Int("keep", 0, "after a default-location backup, keep only the newest N backups (0 keeps all)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	b, ok := a.store.(backupper)
	if !ok {
		return fmt.Errorf("backup is not supported for the %s engine; use the database's own tooling", a.cfg.Storage.StorageEngine)
	}

	dir := filepath.Join(a.cfg.Storage.DataPath, "backups")
	dest := *out
	if dest == "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
		dest = filepath.Join(dir, fmt.Sprintf("agentmemory-%s.db", time.Now().UTC().Format("20060102-150405")))
	}

	start := time.Now()
	if err := b.Backup(ctx, dest); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Backup written to %s (%v, verified)\n", dest, time.Since(start).Round(time.Millisecond))

	if *out == "" && *keep > 0 {
		removed, err := sqlite.PruneBackups(dir, *keep)
		for _, path := range removed {
			fmt.Fprintf(a.out, "Pruned %s\n", path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) printEvents(events []*types.MemoryEvent) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tAGENT\tSTATUS\tSUMMARY\tID")
	for _, evt := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			evt.CreatedAt.Local().Format("Jan 02 15:04"),
			evt.AgentType,
			evt.Status,
			truncate(evt.Summary, 70),
			evt.ID)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
