package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

// ResolveRequest names what to resolve. Exactly one path is taken, in this
// order of precedence: EventID, related-entity keys, Topic, Utterance.
type ResolveRequest struct {
	// EventID resolves a single event.
	EventID string `json:"event_id,omitempty"`

	// EmailID, TaskID and DelegationID match related-entity references (OR).
	EmailID      string `json:"email_id,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	DelegationID string `json:"delegation_id,omitempty"`

	// Topic is trusted operator input matched against summaries.
	Topic string `json:"topic,omitempty"`

	// Utterance is raw chat text. It is resolved only when it passes the
	// keyword pre-filter, yields a topic and is classified as a completion
	// statement.
	Utterance string `json:"utterance,omitempty"`

	// Note is recorded on the resolution annotation.
	Note string `json:"note,omitempty"`
}

func (r ResolveRequest) hasKey() bool {
	return r.EmailID != "" || r.TaskID != "" || r.DelegationID != ""
}

// ResolveResult reports the outcome of a resolution. Resolved counts only
// events this call transitioned; zero is a valid outcome.
type ResolveResult struct {
	Resolved    int      `json:"resolved"`
	Matched     int      `json:"matched"`
	ResolvedIDs []string `json:"resolved_ids,omitempty"`
	Candidates  []string `json:"candidates,omitempty"` // Topics considered
	Ambiguous   bool     `json:"ambiguous"`
	Reason      string   `json:"reason,omitempty"`
}

// AnnotateRequest attaches an operator note to matching events.
type AnnotateRequest struct {
	EventID      string                 `json:"event_id,omitempty"`
	EmailID      string                 `json:"email_id,omitempty"`
	TaskID       string                 `json:"task_id,omitempty"`
	DelegationID string                 `json:"delegation_id,omitempty"`
	Note         string                 `json:"note"`
	Status       types.AnnotationStatus `json:"status"`
}

// Resolver marks events resolved in response to operator corrections.
type Resolver struct {
	store    storage.EventStore
	cfg      Config
	keywords []string
	topics   TopicExtractor
	intents  IntentClassifier
	logger   *slog.Logger
	now      func() time.Time
	notify   func(Notification)
}

// NewResolver creates a resolver over store.
func NewResolver(store storage.EventStore, cfg Config, opts ...Option) *Resolver {
	o := buildOptions(cfg, opts)
	keywords := make([]string, 0, len(cfg.ResolutionKeywords))
	for _, k := range cfg.ResolutionKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Resolver{
		store:    store,
		cfg:      cfg,
		keywords: keywords,
		topics:   o.topics,
		intents:  o.intents,
		logger:   o.logger,
		now:      o.now,
		notify:   o.notify,
	}
}

// LooksLikeCorrection reports whether utterance contains a completion
// keyword. It is the cheap pre-filter the chat surface runs on every
// message; a true result does not mean anything will be resolved.
func (r *Resolver) LooksLikeCorrection(utterance string) bool {
	padded := " " + strings.Join(splitWords(strings.ToLower(utterance)), " ") + " "
	for _, k := range r.keywords {
		if strings.Contains(padded, " "+strings.Join(splitWords(k), " ")+" ") {
			return true
		}
	}
	return false
}

// Resolve resolves the events named by req. Each event transitions in its
// own committed transaction, conditional on still being active, and the
// request scope is expired afterwards.
//
// Free-text input that yields no topic, is a question or negation, or whose
// classification fails resolves nothing. Only malformed requests and store
// failures return an error; a store failure is wrapped in ErrStorage and the
// result still counts what was committed before it.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	scope := scopeFor(ctx, r.store)
	since := r.now().Add(-r.cfg.ResolutionWindow)

	switch {
	case req.EventID != "":
		return r.resolveByID(ctx, scope, req)

	case req.hasKey():
		scope.Expire()
		events, err := scope.Query(ctx, storage.EventQuery{
			Since:        since,
			EmailID:      req.EmailID,
			TaskID:       req.TaskID,
			DelegationID: req.DelegationID,
			Limit:        storage.MaxQueryLimit,
		})
		if err != nil {
			return ResolveResult{}, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		note := req.Note
		if note == "" {
			note = "Marked resolved by operator"
		}
		res := ResolveResult{Matched: len(events)}
		return res, r.commit(ctx, scope, events, note, &res)

	case strings.TrimSpace(req.Topic) != "":
		topic := strings.TrimSpace(req.Topic)
		events, err := r.candidates(ctx, scope, since, topic)
		if err != nil {
			return ResolveResult{}, err
		}
		note := req.Note
		if note == "" {
			note = fmt.Sprintf("Resolved: %s", topic)
		}
		res := ResolveResult{Matched: len(events), Candidates: []string{topic}}
		return res, r.commit(ctx, scope, events, note, &res)

	case strings.TrimSpace(req.Utterance) != "":
		return r.resolveUtterance(ctx, scope, since, req)
	}

	return ResolveResult{}, fmt.Errorf("%w: one of event_id, email_id, task_id, delegation_id, topic or utterance is required", ErrInvalidRequest)
}

func (r *Resolver) resolveByID(ctx context.Context, scope *storage.Scope, req ResolveRequest) (ResolveResult, error) {
	scope.Expire()
	evt, err := scope.Get(ctx, req.EventID)
	if errors.Is(err, storage.ErrNotFound) {
		return ResolveResult{Reason: "event not found"}, nil
	}
	if err != nil {
		return ResolveResult{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	note := req.Note
	if note == "" {
		note = "Marked resolved by operator"
	}
	res := ResolveResult{Matched: 1}
	return res, r.commit(ctx, scope, []*types.MemoryEvent{evt}, note, &res)
}

// resolveUtterance runs the two-stage path: candidates per extracted topic,
// then intent confirmation before any mutation.
func (r *Resolver) resolveUtterance(ctx context.Context, scope *storage.Scope, since time.Time, req ResolveRequest) (ResolveResult, error) {
	utterance := strings.TrimSpace(req.Utterance)
	if !r.LooksLikeCorrection(utterance) {
		return ResolveResult{Reason: "no completion keyword"}, nil
	}

	topics, err := r.topics.Extract(ctx, utterance)
	if err != nil {
		r.logger.Warn("engine: topic extraction failed, resolving nothing", "error", err)
		return ResolveResult{Ambiguous: true, Reason: "topic extraction failed"}, nil
	}
	if len(topics) == 0 {
		return ResolveResult{Ambiguous: true, Reason: ErrAmbiguousCorrection.Error()}, nil
	}

	note := req.Note
	if note == "" {
		note = utterance
	}

	res := ResolveResult{Candidates: topics}
	var reasons []string
	seen := make(map[string]bool)
	for _, topic := range topics {
		events, err := r.candidates(ctx, scope, since, topic)
		if err != nil {
			return res, err
		}
		var fresh []*types.MemoryEvent
		for _, evt := range events {
			// Extracted topics match whole words only; the store
			// matches substrings.
			if !mentionsWords(evt.Summary, topic) {
				continue
			}
			if !seen[evt.ID] {
				seen[evt.ID] = true
				fresh = append(fresh, evt)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		res.Matched += len(fresh)

		summaries := make([]string, len(fresh))
		for i, evt := range fresh {
			summaries[i] = evt.Summary
		}
		intent, err := r.intents.Classify(ctx, utterance, topic, summaries)
		if err != nil {
			r.logger.Warn("engine: intent classification failed, resolving nothing", "topic", topic, "error", err)
			reasons = append(reasons, fmt.Sprintf("%s: classification failed", topic))
			continue
		}
		if !intent.Confirms(r.cfg.IntentThreshold) {
			r.logger.Debug("engine: correction not confirmed",
				"topic", topic, "intent", intent.Kind, "resolved", intent.Resolved, "confidence", intent.Confidence)
			reasons = append(reasons, fmt.Sprintf("%s: %s (%s)", topic, intent.Kind, intent.Reason))
			continue
		}

		if err := r.commit(ctx, scope, fresh, note, &res); err != nil {
			return res, err
		}
	}

	if res.Matched == 0 {
		res.Reason = "no active events mention " + strings.Join(topics, ", ")
	} else if len(reasons) > 0 {
		res.Reason = strings.Join(reasons, "; ")
	}
	return res, nil
}

// candidates returns active events within the window whose summary
// mentions topic.
func (r *Resolver) candidates(ctx context.Context, scope *storage.Scope, since time.Time, topic string) ([]*types.MemoryEvent, error) {
	scope.Expire()
	events, err := scope.Query(ctx, storage.EventQuery{
		Since:           since,
		SummaryContains: topic,
		Limit:           storage.MaxQueryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return events, nil
}

func (r *Resolver) commit(ctx context.Context, scope *storage.Scope, events []*types.MemoryEvent, note string, res *ResolveResult) error {
	for _, evt := range events {
		if evt.IsResolved() {
			continue
		}
		now := r.now().UTC()
		ok, err := scope.Resolve(ctx, evt.ID, types.Annotation{
			Timestamp: now,
			Note:      note,
			Status:    types.AnnotationResolved,
		})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
		if !ok {
			continue
		}
		res.Resolved++
		res.ResolvedIDs = append(res.ResolvedIDs, evt.ID)
		r.logger.Info("engine: event resolved", "id", evt.ID, "agent_type", evt.AgentType)
		r.notify(Notification{
			Type:      NotifyEventResolved,
			EventID:   evt.ID,
			AgentType: evt.AgentType,
			Summary:   evt.Summary,
			Note:      note,
			Timestamp: now,
		})
	}
	return nil
}

// Annotate appends an operator note to the events matched by key within the
// resolution window, resolved or not, without changing their status. An
// annotation with status resolved is routed through Resolve. Returns the
// number of events annotated.
func (r *Resolver) Annotate(ctx context.Context, req AnnotateRequest) (int, error) {
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return 0, fmt.Errorf("%w: note is required", ErrInvalidRequest)
	}
	status := req.Status
	if status == "" {
		status = types.AnnotationNote
	}
	if !types.IsValidAnnotationStatus(status) {
		return 0, fmt.Errorf("%w: unknown annotation status %q", ErrInvalidRequest, status)
	}
	if req.EventID == "" && req.EmailID == "" && req.TaskID == "" && req.DelegationID == "" {
		return 0, fmt.Errorf("%w: event_id, email_id, task_id or delegation_id is required", ErrInvalidRequest)
	}

	if status == types.AnnotationResolved {
		res, err := r.Resolve(ctx, ResolveRequest{
			EventID: req.EventID, EmailID: req.EmailID, TaskID: req.TaskID, DelegationID: req.DelegationID, Note: note,
		})
		return res.Resolved, err
	}

	scope := scopeFor(ctx, r.store)
	scope.Expire()

	var events []*types.MemoryEvent
	if req.EventID != "" {
		evt, err := scope.Get(ctx, req.EventID)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		events = []*types.MemoryEvent{evt}
	} else {
		var err error
		events, err = scope.Query(ctx, storage.EventQuery{
			Since:           r.now().Add(-r.cfg.ResolutionWindow),
			EmailID:         req.EmailID,
			TaskID:          req.TaskID,
			DelegationID:    req.DelegationID,
			IncludeResolved: true,
			Limit:           storage.MaxQueryLimit,
		})
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrStorage, err)
		}
	}

	count := 0
	for _, evt := range events {
		now := r.now().UTC()
		err := scope.Annotate(ctx, evt.ID, types.Annotation{Timestamp: now, Note: note, Status: status})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return count, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		count++
		r.notify(Notification{
			Type:      NotifyEventAnnotated,
			EventID:   evt.ID,
			AgentType: evt.AgentType,
			Summary:   evt.Summary,
			Note:      note,
			Timestamp: now,
		})
	}
	return count, nil
}
