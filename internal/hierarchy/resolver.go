// Package hierarchy integrates flat chart-of-accounts feeds into the
// registry: pass 1 creates missing accounts, pass 2 links them to parents.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/storage"
)

// Registry is the subset of the account registry the resolver writes through.
type Registry interface {
	FindByCode(ctx context.Context, code string) (model.Account, bool, error)
	Create(ctx context.Context, draft model.AccountDraft) (model.Account, error)
	SetParent(ctx context.Context, accountID, parentID string) error
}

// Action is what pass 1 did with a record.
type Action string

const (
	ActionCreated Action = "created"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// Outcome is the per-record result of a resolve run.
type Outcome struct {
	Row       int    `json:"row"`
	Code      string `json:"code"`
	AccountID string `json:"account_id,omitempty"`
	Action    Action `json:"action"`
	Reason    string `json:"reason,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	Linked    bool   `json:"linked"` // parent assigned by this run
	Err       error  `json:"-"`
}

// Severity grades a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Stage names the pass that produced a diagnostic.
type Stage string

const (
	StageCreate Stage = "create"
	StageLink   Stage = "link"
)

// Diagnostic kinds.
const (
	KindCategoryFallback = "category-fallback"
	KindUnknownCategory  = "unknown-category"
	KindDuplicateInFeed  = "duplicate-in-feed"
	KindCreateFailed     = "create-failed"
	KindParentNotFound   = "parent-not-found"
	KindAmbiguousParent  = "ambiguous-parent"
	KindLinkFailed       = "link-failed"
)

// Diagnostic is one problem found while resolving a record.
type Diagnostic struct {
	Row      int      `json:"row"`
	Code     string   `json:"code"`
	Stage    Stage    `json:"stage"`
	Severity Severity `json:"severity"`
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
}

// Report collects outcomes (aligned with the input records) and diagnostics.
type Report struct {
	Outcomes    []Outcome
	Diagnostics []Diagnostic
}

// Resolver runs the two-pass create-then-link algorithm.
type Resolver struct {
	registry   Registry
	classifier *Classifier
	logger     *zap.Logger
}

// NewResolver creates a Resolver. A nil classifier uses the built-in table
// with the asset fallback.
func NewResolver(registry Registry, classifier *Classifier, logger *zap.Logger) *Resolver {
	if classifier == nil {
		classifier, _ = NewClassifier(nil, false)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{registry: registry, classifier: classifier, logger: logger.Named("hierarchy")}
}

// run carries the state shared by both passes.
type run struct {
	*Resolver
	snapshot []model.Account
	records  []model.ImportRecord
	codeToID map[string]string
	parentOf map[string]string // account id -> current parent id
	linkable []bool
	report   Report
}

// Resolve integrates records into the registry given a snapshot taken before
// the run. Per-record failures are reported as diagnostics, not logged or
// returned. The error is non-nil only when ctx is done, with the report
// covering the records processed so far. Text fields of each record are
// trimmed before use.
func (r *Resolver) Resolve(ctx context.Context, snapshot []model.Account, records []model.ImportRecord) (Report, error) {
	trimmed := make([]model.ImportRecord, len(records))
	for i, rec := range records {
		trimmed[i] = rec.Trimmed()
	}
	records = trimmed

	st := &run{
		Resolver: r,
		snapshot: snapshot,
		records:  records,
		codeToID: make(map[string]string, len(snapshot)+len(records)),
		parentOf: make(map[string]string, len(snapshot)+len(records)),
		linkable: make([]bool, len(records)),
		report:   Report{Outcomes: make([]Outcome, len(records))},
	}
	for _, a := range snapshot {
		st.codeToID[a.Code] = a.ID
		st.parentOf[a.ID] = a.ParentID
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return st.report, err
		}
		st.materialize(ctx, i)
	}
	for i := range records {
		if err := ctx.Err(); err != nil {
			return st.report, err
		}
		if st.linkable[i] && records[i].HasParent() {
			st.link(ctx, i)
		}
	}
	return st.report, nil
}

// materialize is pass 1 for record i.
func (st *run) materialize(ctx context.Context, i int) {
	rec := st.records[i]
	out := &st.report.Outcomes[i]
	out.Row = rowOf(rec, i)
	out.Code = rec.Code

	if existing, ok := st.codeToID[rec.Code]; ok && rec.Code != "" {
		out.AccountID = existing
		out.Action = ActionSkipped
		if st.seenEarlierInFeed(i) {
			out.Reason = "duplicate code in feed"
			st.diag(out, StageCreate, SeverityWarning, KindDuplicateInFeed,
				fmt.Sprintf("code %s already appears earlier in the feed; row ignored", rec.Code))
			return
		}
		out.Reason = "already exists"
		st.linkable[i] = true
		return
	}

	typ, known, err := st.classifier.Classify(rec.Category)
	if err != nil {
		st.fail(out, KindUnknownCategory, err)
		return
	}
	if !known {
		st.diag(out, StageCreate, SeverityWarning, KindCategoryFallback,
			fmt.Sprintf("category %q not recognized, classified as %s", rec.Category, typ))
	}

	acct, err := st.registry.Create(ctx, model.AccountDraft{
		Code:        rec.Code,
		Name:        rec.Name,
		Type:        typ,
		Description: rec.CashFlowRelevance,
	})
	switch {
	case err == nil:
		out.AccountID = acct.ID
		out.Action = ActionCreated
		st.codeToID[acct.Code] = acct.ID
		st.parentOf[acct.ID] = ""
		st.linkable[i] = true
	case errors.Is(err, storage.ErrDuplicateCode):
		// Another writer created the code after the snapshot was taken.
		winner, found, ferr := st.registry.FindByCode(ctx, rec.Code)
		if ferr != nil || !found {
			if ferr == nil {
				ferr = err
			}
			st.fail(out, KindCreateFailed, ferr)
			return
		}
		out.AccountID = winner.ID
		out.Action = ActionSkipped
		out.Reason = "created concurrently"
		st.codeToID[winner.Code] = winner.ID
		st.parentOf[winner.ID] = winner.ParentID
		st.linkable[i] = true
		st.logger.Debug("code created by a concurrent writer", zap.String("code", rec.Code))
	default:
		st.fail(out, KindCreateFailed, err)
	}
}

// link is pass 2 for record i.
func (st *run) link(ctx context.Context, i int) {
	out := &st.report.Outcomes[i]
	childID := out.AccountID

	parentID, ok := st.findParent(ctx, i, out)
	if !ok {
		return
	}
	if st.parentOf[childID] == parentID {
		out.ParentID = parentID
		return
	}
	if err := st.registry.SetParent(ctx, childID, parentID); err != nil {
		out.Err = err
		st.diag(out, StageLink, SeverityError, KindLinkFailed, err.Error())
		return
	}
	st.parentOf[childID] = parentID
	out.ParentID = parentID
	out.Linked = true
}

// findParent resolves the parent of record i, preferring the parent code
// over the subcategory name.
func (st *run) findParent(ctx context.Context, i int, out *Outcome) (string, bool) {
	rec := st.records[i]
	childID := out.AccountID

	if rec.ParentCode != "" {
		if pid, ok := st.codeToID[rec.ParentCode]; ok && pid != childID {
			return pid, true
		}
		acct, found, err := st.registry.FindByCode(ctx, rec.ParentCode)
		if err != nil {
			out.Err = err
			st.diag(out, StageLink, SeverityError, KindLinkFailed, err.Error())
			return "", false
		}
		if found && acct.ID != childID {
			st.parentOf[acct.ID] = acct.ParentID
			return acct.ID, true
		}
		st.diag(out, StageLink, SeverityWarning, KindParentNotFound,
			fmt.Sprintf("parent code %s not found", rec.ParentCode))
		return "", false
	}

	name := rec.Subcategory
	var matches []string
	for _, a := range st.snapshot {
		if a.Name == name && a.ID != childID {
			matches = append(matches, a.ID)
		}
	}
	if len(matches) == 0 {
		seen := make(map[string]bool)
		for j, other := range st.records {
			pid := st.report.Outcomes[j].AccountID
			if other.Name != name || pid == "" || pid == childID || seen[pid] {
				continue
			}
			seen[pid] = true
			matches = append(matches, pid)
		}
	}

	switch len(matches) {
	case 0:
		st.diag(out, StageLink, SeverityWarning, KindParentNotFound,
			fmt.Sprintf("no account named %q", name))
		return "", false
	case 1:
		return matches[0], true
	default:
		st.diag(out, StageLink, SeverityWarning, KindAmbiguousParent,
			fmt.Sprintf("%d accounts named %q, linked to the first", len(matches), name))
		return matches[0], true
	}
}

// seenEarlierInFeed reports whether a previous record in this run carries
// the same code.
func (st *run) seenEarlierInFeed(i int) bool {
	for j := 0; j < i; j++ {
		if st.records[j].Code == st.records[i].Code {
			return true
		}
	}
	return false
}

func (st *run) fail(out *Outcome, kind string, err error) {
	out.Action = ActionFailed
	out.Err = err
	st.diag(out, StageCreate, SeverityError, kind, err.Error())
}

func (st *run) diag(out *Outcome, stage Stage, sev Severity, kind, msg string) {
	st.report.Diagnostics = append(st.report.Diagnostics, Diagnostic{
		Row:      out.Row,
		Code:     out.Code,
		Stage:    stage,
		Severity: sev,
		Kind:     kind,
		Message:  msg,
	})
}

func rowOf(rec model.ImportRecord, i int) int {
	if rec.Row > 0 {
		return rec.Row
	}
	return i + 1
}
