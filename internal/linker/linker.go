// Package linker writes reciprocal relation lines into the status blocks of
// two records.
package linker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/decisionrecords/internal/apperr"
	"github.com/starford/decisionrecords/internal/metrics"
	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/record"
	"github.com/starford/decisionrecords/internal/statusblock"
	"github.com/starford/decisionrecords/internal/storage"
	"github.com/starford/decisionrecords/internal/translate"
)

// Linker cross-links records stored in one record directory.
type Linker struct {
	store   storage.Provider
	format  models.Format
	tr      translate.Table
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Linker.
type Option func(*Linker)

// WithLogger sets the logger used to report rewrites.
func WithLogger(l *slog.Logger) Option {
	return func(k *Linker) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithMetrics counts rewrites and relations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Linker) { k.metrics = m }
}

// New creates a Linker. format selects the link syntax and tr translates
// every phrase before placeholders are substituted.
func New(store storage.Provider, format models.Format, tr translate.Table, opts ...Option) *Linker {
	k := &Linker{
		store:  store,
		format: format,
		tr:     tr,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Supersede marks every record in from as superseded by to.
func (k *Linker) Supersede(ctx context.Context, to int, from ...int) error {
	return k.Relate(ctx, models.RelationSupersedes, to, from, "")
}

// Deprecate marks every record in from as deprecated by to.
func (k *Linker) Deprecate(ctx context.Context, to int, from ...int) error {
	return k.Relate(ctx, models.RelationDeprecates, to, from, "")
}

// Amend marks every record in from as amended by to.
func (k *Linker) Amend(ctx context.Context, to int, from ...int) error {
	return k.Relate(ctx, models.RelationAmends, to, from, "")
}

// Link links every record in from with to. A non-empty reason is appended to
// both lines.
func (k *Linker) Link(ctx context.Context, to int, from []int, reason string) error {
	return k.Relate(ctx, models.RelationLinks, to, from, reason)
}

// Relate takes the record directory lock and writes kind between to and each
// record of from, in order.
//
// The first failure stops the loop and is returned as an *apperr.TargetError
// naming the identifier that failed. Records rewritten before the failure keep
// their new lines.
func (k *Linker) Relate(ctx context.Context, kind models.RelationKind, to int, from []int, reason string) error {
	if err := Validate(kind, to, from); err != nil {
		return err
	}
	unlock, err := k.store.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()
	return k.RelateLocked(kind, to, from, reason)
}

// RelateLocked is Relate for callers that already hold the directory lock.
func (k *Linker) RelateLocked(kind models.RelationKind, to int, from []int, reason string) error {
	if err := Validate(kind, to, from); err != nil {
		return err
	}
	rel, _ := models.RelationFor(kind)
	e := statusblock.Edit{Heading: k.tr.Lookup("Status")}

	toName, err := record.Find(k.store, to)
	if err != nil {
		return apperr.Target(to, err)
	}
	toLabel := record.FormatLink(k.store, toName, k.format)

	var prune []string
	if rel.PruneStatus {
		prune = []string{models.StatusApproved.Label(k.tr), models.StatusProposed.Label(k.tr)}
	}

	for _, id := range from {
		fromName, err := record.Find(k.store, id)
		if err != nil {
			return apperr.Target(id, err)
		}
		fromLabel := record.FormatLink(k.store, fromName, k.format)

		fromEdit := e
		fromEdit.Inject = k.Phrase(rel, models.DirectionFrom, toLabel, reason)
		fromEdit.Prune = prune
		if err := k.rewrite(fromName, fromEdit); err != nil {
			return apperr.Target(id, err)
		}

		toEdit := e
		toEdit.Inject = k.Phrase(rel, models.DirectionTo, fromLabel, reason)
		if err := k.rewrite(toName, toEdit); err != nil {
			return apperr.Target(to, err)
		}

		k.metrics.Relation(string(kind))
		k.logger.Info("linker: related",
			slog.String("kind", string(kind)),
			slog.Int("from", id),
			slog.Int("to", to))
	}
	return nil
}

// Phrase renders the line written on side d of rel. The canonical phrase is
// translated first and both placeholders are then substituted in one pass,
// so a label containing '#' or '%' is kept verbatim.
func (k *Linker) Phrase(rel models.Relation, d models.Direction, label, reason string) string {
	p := k.tr.Lookup(rel.Phrase(d))
	if rel.Kind == models.RelationLinks && reason != "" {
		p += " " + k.tr.Lookup(models.ReasonSuffix)
	}
	return strings.NewReplacer(
		models.LabelPlaceholder, label,
		models.ReasonPlaceholder, reason,
	).Replace(p)
}

func (k *Linker) rewrite(name string, e statusblock.Edit) error {
	res, err := statusblock.Apply(k.store, name, e)
	switch {
	case err != nil:
		k.metrics.Rewrite(metrics.ResultError)
		return err
	case !res.Injected:
		k.metrics.Rewrite(metrics.ResultNoop)
		k.logger.Warn("linker: status block not rewritten",
			slog.String("record", name),
			slog.String("heading", e.Heading),
			slog.Bool("heading_found", res.Found))
	default:
		k.metrics.Rewrite(metrics.ResultInjected)
	}
	return nil
}

// Validate checks the arguments of a relation. Failures wrap
// apperr.ErrInvalidArgument.
func Validate(kind models.RelationKind, to int, from []int) error {
	if _, err := models.RelationFor(kind); err != nil {
		return fmt.Errorf("linker: %w: %v", apperr.ErrInvalidArgument, err)
	}
	err := validation.Errors{
		"to": validation.Validate(to, validation.Required, validation.Min(1)),
		"from": validation.Validate(from,
			validation.Required,
			validation.Each(validation.Required, validation.Min(1)),
			validation.By(distinctFrom(to)),
		),
	}.Filter()
	if err != nil {
		return fmt.Errorf("linker: %w: %v", apperr.ErrInvalidArgument, err)
	}
	return nil
}

func distinctFrom(to int) validation.RuleFunc {
	return func(value interface{}) error {
		ids, _ := value.([]int)
		seen := make(map[int]bool, len(ids))
		for _, id := range ids {
			if id == to {
				return errors.New("must not contain the target record")
			}
			if seen[id] {
				return fmt.Errorf("lists record %d twice", id)
			}
			seen[id] = true
		}
		return nil
	}
}
