package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// contextPreamble follows the header of every text digest.
const contextPreamble = "Other agents recorded the items below. Reference them naturally when relevant " +
	"and do not re-analyze work that is already listed."

// MaxWindowHours bounds a requested look-back window to one year.
const MaxWindowHours = 24 * 365

// CheckWindowHours rejects a negative or oversized look-back window. Zero
// means the configured default.
func CheckWindowHours(hours int) error {
	if hours < 0 || hours > MaxWindowHours {
		return fmt.Errorf("%w: hours must be between 0 and %d", ErrInvalidRequest, MaxWindowHours)
	}
	return nil
}

// windowFor returns the look-back window for hours, clamped to
// MaxWindowHours.
func (a *Assembler) windowFor(hours int) time.Duration {
	if hours <= 0 {
		return a.cfg.ContextWindow
	}
	return time.Duration(min(hours, MaxWindowHours)) * time.Hour
}

// ContextOptions controls BuildContext. Zero values use the engine config.
type ContextOptions struct {
	// WindowHours is the look-back window (default: Config.ContextWindow).
	WindowHours int

	// IncludeResolved includes resolved events, rendered with the resolved marker.
	IncludeResolved bool

	// Flat renders one chronological list instead of per-agent sections.
	Flat bool

	// AgentType restricts the digest to one agent.
	AgentType types.AgentType

	// MaxItems caps the digest (default: Config.MaxContextItems).
	MaxItems int

	// PerAgentLimit caps each agent section of the text rendering
	// (default: Config.PerAgentLimit).
	PerAgentLimit int
}

// AgentGroup is the slice of a digest produced by one agent, newest first.
type AgentGroup struct {
	AgentType types.AgentType      `json:"agent_type"`
	Events    []*types.MemoryEvent `json:"events"`
}

// Digest is one fresh read of recent memory. Events, Groups, Text and JSON
// are all views over the same rows.
type Digest struct {
	WindowHours     int
	IncludeResolved bool
	Flat            bool
	GeneratedAt     time.Time

	// Degraded is set when the store could not be read; the digest is empty.
	Degraded bool

	// Truncated is set when older items were dropped to respect MaxItems.
	Truncated bool

	events        []*types.MemoryEvent
	groups        []AgentGroup
	perAgentLimit int
}

// Events returns the digest as a typed list, newest first.
func (d *Digest) Events() []*types.MemoryEvent {
	return d.events
}

// Groups returns the events grouped by agent. Groups are ordered by their
// newest event.
func (d *Digest) Groups() []AgentGroup {
	return d.groups
}

// Len returns the number of events in the digest.
func (d *Digest) Len() int {
	return len(d.events)
}

// Text renders the digest for verbatim inclusion in an LLM prompt.
func (d *Digest) Text() string {
	var b strings.Builder

	scope := "Active items only"
	if d.IncludeResolved {
		scope = "All items"
	}
	fmt.Fprintf(&b, "AGENT MEMORY (Last %dh - %s):\n", d.WindowHours, scope)
	b.WriteString(contextPreamble)
	b.WriteString("\n")

	if len(d.events) == 0 {
		b.WriteString("\n  (no recent agent activity)")
		return b.String()
	}

	if d.Flat {
		b.WriteString("\n")
		for _, evt := range d.events {
			writeDigestLine(&b, evt, true)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	for _, g := range d.groups {
		fmt.Fprintf(&b, "\n%s Agent:\n", strings.ToUpper(string(g.AgentType)))
		for i, evt := range g.Events {
			if i >= d.perAgentLimit {
				fmt.Fprintf(&b, "  ... %d more\n", len(g.Events)-i)
				break
			}
			writeDigestLine(&b, evt, false)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeDigestLine(b *strings.Builder, evt *types.MemoryEvent, withAgent bool) {
	stamp := evt.CreatedAt.Local().Format("Jan 02, 03:04 PM")
	note := ""
	if a := evt.LatestAnnotation(); a != nil && a.Note != "" {
		note = fmt.Sprintf(" (User note: %s)", a.Note)
	}
	agent := ""
	if withAgent {
		agent = strings.ToUpper(string(evt.AgentType)) + ": "
	}
	fmt.Fprintf(b, "  - [%s] %s%s%s\n", stamp, agent, evt.DisplaySummary(), note)

	if urgent := evt.UrgentItems(); len(urgent) > 0 {
		if len(urgent) > 2 {
			urgent = urgent[:2]
		}
		fmt.Fprintf(b, "    🚨 Urgent: %s\n", strings.Join(urgent, ", "))
	}
	if n := evt.DeadlineCount(); n > 0 {
		fmt.Fprintf(b, "    📅 Deadlines: %d identified\n", n)
	}
}

type digestItemJSON struct {
	ID          string                 `json:"id"`
	Agent       types.AgentType        `json:"agent"`
	Event       types.EventType        `json:"event"`
	Summary     string                 `json:"summary"`
	Time        time.Time              `json:"time"`
	Findings    map[string]interface{} `json:"findings,omitempty"`
	Resolved    bool                   `json:"resolved"`
	LatestNote  string                 `json:"latest_note,omitempty"`
	EmailID     string                 `json:"email_id,omitempty"`
	TaskID      string                 `json:"task_id,omitempty"`
	DelegatedID string                 `json:"delegation_id,omitempty"`
}

type digestGroupJSON struct {
	AgentType types.AgentType  `json:"agent_type"`
	Items     []digestItemJSON `json:"items"`
}

type digestJSON struct {
	WindowHours     int               `json:"window_hours"`
	IncludeResolved bool              `json:"include_resolved"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Degraded        bool              `json:"degraded"`
	Truncated       bool              `json:"truncated"`
	Count           int               `json:"count"`
	Groups          []digestGroupJSON `json:"groups"`
}

// JSON renders the digest as a JSON document grouped by agent.
func (d *Digest) JSON() ([]byte, error) {
	doc := digestJSON{
		WindowHours:     d.WindowHours,
		IncludeResolved: d.IncludeResolved,
		GeneratedAt:     d.GeneratedAt,
		Degraded:        d.Degraded,
		Truncated:       d.Truncated,
		Count:           len(d.events),
		Groups:          make([]digestGroupJSON, 0, len(d.groups)),
	}
	for _, g := range d.groups {
		group := digestGroupJSON{AgentType: g.AgentType, Items: make([]digestItemJSON, 0, len(g.Events))}
		for _, evt := range g.Events {
			item := digestItemJSON{
				ID:          evt.ID,
				Agent:       evt.AgentType,
				Event:       evt.EventType,
				Summary:     evt.DisplaySummary(),
				Time:        evt.CreatedAt,
				Findings:    evt.KeyFindings,
				Resolved:    evt.IsResolved(),
				EmailID:     evt.RelatedEntities.EmailID,
				TaskID:      evt.RelatedEntities.TaskID,
				DelegatedID: evt.RelatedEntities.DelegationID,
			}
			if a := evt.LatestAnnotation(); a != nil {
				item.LatestNote = a.Note
			}
			group.Items = append(group.Items, item)
		}
		doc.Groups = append(doc.Groups, group)
	}
	return json.Marshal(doc)
}

// Assembler builds bounded, agent-grouped digests of recent memory.
// It never writes.
type Assembler struct {
	store  storage.EventStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewAssembler creates an assembler over store.
func NewAssembler(store storage.EventStore, cfg Config, opts ...Option) *Assembler {
	o := buildOptions(cfg, opts)
	return &Assembler{store: store, cfg: cfg, logger: o.logger, now: o.now}
}

// BuildContext reads events created within the window, excluding resolved
// events unless requested, and assembles a digest.
//
// The request scope is expired before the read so that commits from other
// units of work are visible. A store failure yields an empty digest with
// Degraded set; BuildContext never fails.
func (a *Assembler) BuildContext(ctx context.Context, opts ContextOptions) *Digest {
	window := a.windowFor(opts.WindowHours)
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = a.cfg.MaxContextItems
	}
	// The extra row below must fit under the store limit.
	maxItems = min(maxItems, storage.MaxQueryLimit-1)
	perAgent := opts.PerAgentLimit
	if perAgent <= 0 {
		perAgent = a.cfg.PerAgentLimit
	}

	now := a.now()
	d := &Digest{
		WindowHours:     int(window / time.Hour),
		IncludeResolved: opts.IncludeResolved,
		Flat:            opts.Flat,
		GeneratedAt:     now.UTC(),
		perAgentLimit:   perAgent,
	}

	scope := scopeFor(ctx, a.store)
	scope.Expire()

	// One extra row tells us whether the cap dropped anything.
	events, err := scope.Query(ctx, storage.EventQuery{
		Since:           now.Add(-window),
		AgentType:       opts.AgentType,
		IncludeResolved: opts.IncludeResolved,
		Limit:           maxItems + 1,
	})
	if err != nil {
		a.logger.Warn("engine: context read failed, returning empty digest", "error", err)
		d.Degraded = true
		return d
	}

	if len(events) > maxItems {
		events = events[:maxItems]
		d.Truncated = true
	}
	d.events = events
	d.groups = groupByAgent(events)
	return d
}

// groupByAgent partitions newest-first events by agent, keeping each
// group's order and ordering groups by their newest event.
func groupByAgent(events []*types.MemoryEvent) []AgentGroup {
	index := make(map[types.AgentType]int)
	var groups []AgentGroup
	for _, evt := range events {
		i, ok := index[evt.AgentType]
		if !ok {
			i = len(groups)
			index[evt.AgentType] = i
			groups = append(groups, AgentGroup{AgentType: evt.AgentType})
		}
		groups[i].Events = append(groups[i].Events, evt)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Events[0].CreatedAt.After(groups[j].Events[0].CreatedAt)
	})
	return groups
}

// DigestContext builds the preamble for daily-digest generation: urgent
// triage findings, deadline counts and the questions the chat agent
// answered recently. Like BuildContext it never fails.
func (a *Assembler) DigestContext(ctx context.Context, hours int) string {
	since := a.now().Add(-a.windowFor(hours))

	scope := scopeFor(ctx, a.store)
	scope.Expire()

	var b strings.Builder
	b.WriteString("CONTEXT FROM OTHER AGENTS:\n")

	triage, err := scope.Query(ctx, storage.EventQuery{Since: since, AgentType: types.AgentTriage, Limit: 30})
	if err != nil {
		a.logger.Warn("engine: digest context read failed", "agent_type", types.AgentTriage, "error", err)
	}
	if len(triage) > 0 {
		fmt.Fprintf(&b, "\nEmail Triage Agent (analyzed %d emails):\n", len(triage))
		urgent, deadlines := 0, 0
		for _, evt := range triage {
			if evt.IsUrgent() {
				urgent++
				fmt.Fprintf(&b, "  🚨 %s\n", evt.Summary)
			}
			if evt.DeadlineCount() > 0 {
				deadlines++
			}
		}
		if urgent > 0 {
			fmt.Fprintf(&b, "\n  Total urgent items flagged: %d\n", urgent)
		}
		if deadlines > 0 {
			fmt.Fprintf(&b, "  Total deadlines identified: %d\n", deadlines)
		}
	}

	chat, err := scope.Query(ctx, storage.EventQuery{
		Since:      since,
		AgentType:  types.AgentOperationsChat,
		EventTypes: []types.EventType{types.EventQuestionAnswered},
		Limit:      5,
	})
	if err != nil {
		a.logger.Warn("engine: digest context read failed", "agent_type", types.AgentOperationsChat, "error", err)
	}
	if len(chat) > 0 {
		b.WriteString("\nRecent Questions Answered:\n")
		for _, evt := range chat {
			fmt.Fprintf(&b, "  - %s\n", evt.Summary)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
