package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	audit "transferdesk/pkg/platform/audit"
)

// Store is the authoritative case store. Commit applies a change only when
// the case is still at expectedVersion and returns the updated case; a stale
// version yields sentinel.ErrConflict, a missing case sentinel.ErrNotFound.
type Store interface {
	CreateCase(ctx context.Context, c *models.Case) error
	LoadSnapshot(ctx context.Context, caseID id.CaseID) (*models.Snapshot, error)
	Commit(ctx context.Context, caseID id.CaseID, expectedVersion int64, change models.Change) (*models.Case, error)
}

// DocumentIssuer turns a decision into a signed document held by external
// storage and returns its reference. Only the reference is kept.
type DocumentIssuer interface {
	IssueClearance(ctx context.Context, c models.Clearance) (string, error)
	IssueDeed(ctx context.Context, d models.TransferDeed) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Tx groups the store commit and the audit write.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
