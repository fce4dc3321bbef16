// Package dedup reconciles transient recipients against persisted records
// so dispatch never causes duplicate recipient rows downstream.
package dedup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mailgate/internal/models"
	"mailgate/internal/validate"
)

// RecipientFinder is the slice of the repository the deduplicator needs.
type RecipientFinder interface {
	FindByAddress(ctx context.Context, addresses []string) ([]models.Recipient, error)
}

type Deduplicator struct {
	finder RecipientFinder
	log    *zap.Logger
}

func New(finder RecipientFinder, log *zap.Logger) *Deduplicator {
	return &Deduplicator{finder: finder, log: log}
}

// Reconcile looks up every candidate address in one query and substitutes
// persisted records in place over transient ones; the persisted identity
// always wins. Absence of a match is not an error. A failed lookup is.
func (d *Deduplicator) Reconcile(ctx context.Context, recipients []models.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}

	addresses := make([]string, len(recipients))
	for i, r := range recipients {
		addresses[i] = validate.Normalize(r.Address)
	}

	existing, err := d.finder.FindByAddress(ctx, addresses)
	if err != nil {
		return fmt.Errorf("recipient lookup failed: %w", err)
	}

	byAddress := make(map[string]models.Recipient, len(existing))
	for _, r := range existing {
		byAddress[validate.Normalize(r.Address)] = r
	}

	substituted := 0
	for i := range recipients {
		if known, ok := byAddress[validate.Normalize(recipients[i].Address)]; ok {
			recipients[i] = known
			substituted++
		}
	}

	if substituted > 0 {
		d.log.Info("recipients reconciled",
			zap.Int("candidates", len(recipients)),
			zap.Int("substituted", substituted),
		)
	}

	return nil
}
