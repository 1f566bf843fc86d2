package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/hierarchy"
	"github.com/cleared-dev/ledger/internal/model"
)

// AccountRegistry is the account registry surface an import needs.
type AccountRegistry interface {
	hierarchy.Registry
	List(ctx context.Context) ([]model.Account, error)
}

// Result is the outcome of one import run.
type Result struct {
	Success     bool                   `json:"success"` // no record failed in pass 1
	Created     int                    `json:"created"`
	Skipped     int                    `json:"skipped"`
	Linked      int                    `json:"linked"`
	Failed      int                    `json:"failed"`
	Outcomes    []hierarchy.Outcome    `json:"outcomes"`
	Diagnostics []hierarchy.Diagnostic `json:"diagnostics"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
}

// Errors returns the diagnostics of error severity.
func (r Result) Errors() []hierarchy.Diagnostic {
	var out []hierarchy.Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == hierarchy.SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// runMu serializes import runs within the process.
var runMu sync.Mutex

// Orchestrator drives the hierarchy resolver against live storage.
type Orchestrator struct {
	registry AccountRegistry
	resolver *hierarchy.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. A nil classifier uses the
// built-in category table.
func NewOrchestrator(registry AccountRegistry, classifier *hierarchy.Classifier, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry: registry,
		resolver: hierarchy.NewResolver(registry, classifier, logger),
		logger:   logger.Named("importer"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run imports records. Per-record problems are reported in the Result and
// logged; the error is reserved for run-level failures such as an
// unreadable snapshot or a canceled context.
func (o *Orchestrator) Run(ctx context.Context, records []model.ImportRecord) (Result, error) {
	runMu.Lock()
	defer runMu.Unlock()

	started := o.now()
	snapshot, err := o.registry.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("taking registry snapshot: %w", err)
	}

	report, err := o.resolver.Resolve(ctx, snapshot, records)
	res := summarize(report)
	res.StartedAt = started
	res.FinishedAt = o.now()
	o.logDiagnostics(res.Diagnostics)
	if err != nil {
		res.Success = false
		return res, fmt.Errorf("import interrupted: %w", err)
	}

	o.logger.Info("import finished",
		zap.Int("records", len(records)),
		zap.Int("existing", len(snapshot)),
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("linked", res.Linked),
		zap.Int("failed", res.Failed),
		zap.Bool("success", res.Success),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func summarize(report hierarchy.Report) Result {
	res := Result{Outcomes: report.Outcomes, Diagnostics: report.Diagnostics}
	for _, o := range report.Outcomes {
		switch o.Action {
		case hierarchy.ActionCreated:
			res.Created++
		case hierarchy.ActionSkipped:
			res.Skipped++
		case hierarchy.ActionFailed:
			res.Failed++
		}
		if o.Linked {
			res.Linked++
		}
	}
	res.Success = res.Failed == 0
	return res
}

func (o *Orchestrator) logDiagnostics(diags []hierarchy.Diagnostic) {
	for _, d := range diags {
		fields := []zap.Field{
			zap.Int("row", d.Row),
			zap.String("code", d.Code),
			zap.String("stage", string(d.Stage)),
			zap.String("kind", d.Kind),
			zap.String("detail", d.Message),
		}
		if d.Severity == hierarchy.SeverityError {
			o.logger.Error("import record failed", fields...)
		} else {
			o.logger.Warn("import record warning", fields...)
		}
	}
}
