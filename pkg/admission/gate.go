package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Mindburn-Labs/decision-schema/pkg/compat"
	"github.com/Mindburn-Labs/decision-schema/pkg/contracts"
	"github.com/Mindburn-Labs/decision-schema/pkg/registry"
	"github.com/Mindburn-Labs/decision-schema/pkg/version"
)

// VerdictsMetric counts admission verdicts by verdict and reason.
const VerdictsMetric = "decision_schema.admission.verdicts"

const instrumentationName = "github.com/Mindburn-Labs/decision-schema/pkg/admission"

// ErrIncompatibleVersion is carried by results rejected at the version gate.
var ErrIncompatibleVersion = errors.New("incompatible schema version")

// Verdict is the outcome of admitting one record.
type Verdict string

const (
	VerdictAccept     Verdict = "accept"
	VerdictWarn       Verdict = "warn"
	VerdictQuarantine Verdict = "quarantine"
	VerdictReject     Verdict = "reject"
)

// Reason explains a non-accept verdict.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonMalformed    Reason = "malformed"
	ReasonIncompatible Reason = "incompatible_version"
	ReasonKeyIssues    Reason = "key_issues"
)

// Result is the admission outcome for one record.
type Result struct {
	Verdict       Verdict                `json:"verdict"`
	Reason        Reason                 `json:"reason,omitempty"`
	RunID         string                 `json:"runId,omitempty"`
	Step          int64                  `json:"step"`
	SchemaVersion string                 `json:"schemaVersion,omitempty"`
	Issues        []string               `json:"issues,omitempty"`
	Diagnostics   []contracts.Diagnostic `json:"diagnostics,omitempty"`
	Error         string                 `json:"error,omitempty"`

	// Record is set whenever the record could be decoded.
	Record *contracts.Record `json:"-"`
	Err    error             `json:"-"`
}

// Accepted reports whether the record may be interpreted (accept or warn).
func (r Result) Accepted() bool {
	return r.Verdict == VerdictAccept || r.Verdict == VerdictWarn
}

// Gate applies a Policy to records. It is safe for concurrent use.
type Gate struct {
	policy   Policy
	rng      compat.Range
	reg      *registry.Registry
	logger   *slog.Logger
	verdicts metric.Int64Counter
}

// Option configures a Gate.
type Option func(*gateOptions)

type gateOptions struct {
	reg    *registry.Registry
	logger *slog.Logger
	mp     metric.MeterProvider
}

// WithRegistry validates keys against reg instead of the default registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *gateOptions) { o.reg = reg }
}

// WithLogger sets the logger verdicts are written to.
func WithLogger(l *slog.Logger) Option {
	return func(o *gateOptions) { o.logger = l }
}

// WithMeterProvider sets the provider for the verdict counter. The global
// provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *gateOptions) { o.mp = mp }
}

// New builds a Gate enforcing p.
func New(p Policy, opts ...Option) (*Gate, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := gateOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reg == nil {
		o.reg = registry.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.mp == nil {
		o.mp = otel.GetMeterProvider()
	}

	meter := o.mp.Meter(instrumentationName, metric.WithInstrumentationVersion(version.Current()))
	verdicts, err := meter.Int64Counter(VerdictsMetric,
		metric.WithDescription("Trace records admitted, by verdict"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("admission: verdict counter: %w", err)
	}

	return &Gate{
		policy:   p,
		rng:      p.Range(),
		reg:      o.reg,
		logger:   o.logger.With("component", "admission"),
		verdicts: verdicts,
	}, nil
}

// Policy returns the policy the gate enforces.
func (g *Gate) Policy() Policy { return g.policy }

// Admit decides whether r is accepted. Version incompatibility always
// rejects; key issues map to the policy's OnKeyIssues; lint diagnostics are
// reported but never change the verdict.
func (g *Gate) Admit(ctx context.Context, r contracts.Record) Result {
	res := Result{
		Verdict:       VerdictAccept,
		RunID:         r.RunID(),
		Step:          r.Step(),
		SchemaVersion: r.SchemaVersion(),
		Record:        &r,
	}

	if !g.rng.Admits(r.SchemaVersion()) {
		res.Verdict = VerdictReject
		res.Reason = ReasonIncompatible
		res.Err = fmt.Errorf("%w: %q not in %s", ErrIncompatibleVersion, r.SchemaVersion(), g.rng)
		res.Error = res.Err.Error()
		g.observe(ctx, res)
		return res
	}

	if issues := g.reg.Validate(r.Context(), g.policy.Mode, g.policy.StrictNamespaces...); len(issues) > 0 {
		res.Issues = registry.Strings(issues)
		res.Reason = ReasonKeyIssues
		switch g.policy.OnKeyIssues {
		case OnKeyIssuesReject:
			res.Verdict = VerdictReject
		case OnKeyIssuesQuarantine:
			res.Verdict = VerdictQuarantine
		default:
			res.Verdict = VerdictWarn
		}
	}
	res.Diagnostics = contracts.Lint(r)

	g.observe(ctx, res)
	return res
}

// AdmitLine decodes one JSON line and admits it. A malformed line is rejected.
func (g *Gate) AdmitLine(ctx context.Context, line []byte) Result {
	r, err := contracts.ParseLine(line)
	if err != nil {
		res := Result{
			Verdict: VerdictReject,
			Reason:  ReasonMalformed,
			Err:     err,
			Error:   err.Error(),
		}
		g.observe(ctx, res)
		return res
	}
	return g.Admit(ctx, r)
}

func (g *Gate) observe(ctx context.Context, res Result) {
	g.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", string(res.Verdict)),
		attribute.String("reason", string(res.Reason)),
	))

	level := slog.LevelDebug
	switch res.Verdict {
	case VerdictWarn, VerdictQuarantine:
		level = slog.LevelWarn
	case VerdictReject:
		level = slog.LevelError
	}
	attrs := []any{
		"verdict", res.Verdict,
		"run_id", res.RunID,
		"step", res.Step,
		"schema_version", res.SchemaVersion,
	}
	if res.Reason != ReasonNone {
		attrs = append(attrs, "reason", res.Reason)
	}
	if len(res.Issues) > 0 {
		attrs = append(attrs, "issues", res.Issues)
	}
	if len(res.Diagnostics) > 0 {
		attrs = append(attrs, "deprecations", len(res.Diagnostics))
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}
	g.logger.Log(ctx, level, "record admission", attrs...)
}
