//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"transferdesk/internal/workflow/accounts"
	"transferdesk/internal/workflow/models"
	"transferdesk/internal/workflow/store/postgres"
	id "transferdesk/pkg/domain"
	audit "transferdesk/pkg/platform/audit"
	auditpg "transferdesk/pkg/platform/audit/store/postgres"
	"transferdesk/pkg/platform/sentinel"
	txcontext "transferdesk/pkg/platform/tx"
	"transferdesk/pkg/testutil/containers"
)

type PostgresCaseStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.PostgresCaseStore
	c     *models.Case
}

func TestPostgresCaseStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCaseStoreSuite))
}

func (s *PostgresCaseStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.pg.DB))
	s.store = postgres.New(s.pg.DB)
}

func (s *PostgresCaseStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.pg.TruncateTables(ctx, "outbox", "audit_log", "transfer_deeds", "accounts_breakdowns", "attachments", "clearances", "cases")
	s.Require().NoError(err)

	c, err := models.NewCase(id.NewCaseID(), "SUBMITTED", "PLOT-17", "seller", "buyer", "clerk", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateCase(ctx, c))
	s.c = c
}

func (s *PostgresCaseStoreSuite) TestCreateAndLoad() {
	ctx := context.Background()

	snap, err := s.store.LoadSnapshot(ctx, s.c.ID)
	s.Require().NoError(err)
	s.Equal(s.c.ID, snap.Case.ID)
	s.Equal(models.StageCode("SUBMITTED"), snap.Case.CurrentStage)
	s.Equal(int64(1), snap.Case.Version)
	s.Empty(snap.Clearances)
	s.Nil(snap.Accounts)
	s.Nil(snap.Deed)

	err = s.store.CreateCase(ctx, s.c)
	s.True(errors.Is(err, sentinel.ErrAlreadyExists))

	_, err = s.store.LoadSnapshot(ctx, id.NewCaseID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresCaseStoreSuite) TestCommitWritesEveryPart() {
	ctx := context.Background()
	to := models.StageCode("UNDER_SCRUTINY")
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	change := models.Change{
		At:       at,
		NewStage: &to,
		Audit:    &models.AuditEntry{ID: id.NewAuditEntryID(), CaseID: s.c.ID, FromStage: "SUBMITTED", ToStage: to, ActingUser: "clerk", Timestamp: at, Remarks: "complete"},
		Clearance: &models.Clearance{
			ID: id.NewClearanceID(), CaseID: s.c.ID, Section: models.SectionHousing,
			Status: models.ClearanceObjection, Remarks: "dues outstanding", CreatedAt: at,
		},
		Attachment: &models.Attachment{ID: id.NewAttachmentID(), CaseID: s.c.ID, Type: "SALE_AGREEMENT", DocumentRef: "files://sa", UploadedAt: at},
		Accounts: &models.AccountsBreakdown{
			ID: id.NewBreakdownID(), CaseID: s.c.ID,
			FeeHeads: map[string]decimal.Decimal{"transfer_fee": decimal.RequireFromString("2500.75")},
			Total:    decimal.RequireFromString("2500.75"), CalculatedAt: at,
		},
		Deed: &models.TransferDeed{ID: id.NewDeedID(), CaseID: s.c.ID, Witness1: "W1", Witness2: "W2", Status: models.DeedDraft, CreatedAt: at, UpdatedAt: at},
	}

	updated, err := s.store.Commit(ctx, s.c.ID, 1, change)
	s.Require().NoError(err)
	s.Equal(int64(2), updated.Version)
	s.Equal(to, updated.CurrentStage)
	s.True(updated.UpdatedAt.Equal(at))

	snap, err := s.store.LoadSnapshot(ctx, s.c.ID)
	s.Require().NoError(err)
	s.Require().Len(snap.AuditLog, 1)
	s.Equal("complete", snap.AuditLog[0].Remarks)
	s.Require().Len(snap.Clearances, 1)
	s.Equal(models.ClearanceObjection, snap.Clearances[0].Status)
	s.Require().Len(snap.Attachments, 1)
	s.Require().NotNil(snap.Accounts)
	s.True(snap.Accounts.Total.Equal(decimal.RequireFromString("2500.75")))
	s.True(snap.Accounts.FeeHeads["transfer_fee"].Equal(decimal.RequireFromString("2500.75")))
	s.Nil(snap.Accounts.PaidAt)
	s.Require().NotNil(snap.Deed)
	s.Equal("W2", snap.Deed.Witness2)
	s.Nil(snap.Deed.FinalizedAt)
}

func (s *PostgresCaseStoreSuite) TestAccountsAndDeedUpsertKeepOneRow() {
	ctx := context.Background()
	at := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	breakdown := &models.AccountsBreakdown{
		ID: id.NewBreakdownID(), CaseID: s.c.ID,
		FeeHeads: map[string]decimal.Decimal{"a": decimal.NewFromInt(10)},
		Total:    decimal.NewFromInt(10), CalculatedAt: at,
	}
	_, err := s.store.Commit(ctx, s.c.ID, 1, models.Change{At: at, Accounts: breakdown})
	s.Require().NoError(err)

	paid := breakdown.Clone()
	paid.PaidAmount = decimal.NewFromInt(10)
	paid.ChallanRef = "CH-1"
	paidAt := at.Add(time.Hour)
	paid.PaidAt = &paidAt
	_, err = s.store.Commit(ctx, s.c.ID, 2, models.Change{At: paidAt, Accounts: paid})
	s.Require().NoError(err)

	var rows int
	s.Require().NoError(s.pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts_breakdowns WHERE case_id = $1`, s.c.ID.String()).Scan(&rows))
	s.Equal(1, rows)

	snap, err := s.store.LoadSnapshot(ctx, s.c.ID)
	s.Require().NoError(err)
	s.Equal("CH-1", snap.Accounts.ChallanRef)
	s.Require().NotNil(snap.Accounts.PaidAt)
	s.True(snap.Accounts.PaidAt.Equal(paidAt))
}

func (s *PostgresCaseStoreSuite) TestLargestAmountRoundTripsExactly() {
	ctx := context.Background()
	heads, err := accounts.ParseFeeHeads(map[string]string{"arrears": "999999999999.99"})
	s.Require().NoError(err)
	b, err := accounts.Compute(s.c.ID, nil, heads, time.Now())
	s.Require().NoError(err)
	_, err = s.store.Commit(ctx, s.c.ID, 1, models.Change{Accounts: b})
	s.Require().NoError(err)

	snap, err := s.store.LoadSnapshot(ctx, s.c.ID)
	s.Require().NoError(err)
	s.True(snap.Accounts.Total.Equal(b.Total), snap.Accounts.Total.String())
	s.True(snap.Accounts.FeeHeads["arrears"].Equal(b.Total))
}

func (s *PostgresCaseStoreSuite) TestStaleVersionConflicts() {
	ctx := context.Background()
	to := models.StageCode("UNDER_SCRUTINY")

	_, err := s.store.Commit(ctx, s.c.ID, 1, models.Change{NewStage: &to})
	s.Require().NoError(err)

	_, err = s.store.Commit(ctx, s.c.ID, 1, models.Change{NewStage: &to})
	s.True(errors.Is(err, sentinel.ErrConflict))

	_, err = s.store.Commit(ctx, id.NewCaseID(), 1, models.Change{NewStage: &to})
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresCaseStoreSuite) TestConcurrentCommitsOnlyOneWins() {
	ctx := context.Background()
	const goroutines = 20

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			to := models.StageCode("UNDER_SCRUTINY")
			entry := &models.AuditEntry{ID: id.NewAuditEntryID(), CaseID: s.c.ID, FromStage: "SUBMITTED", ToStage: to, Timestamp: time.Now()}
			_, err := s.store.Commit(ctx, s.c.ID, 1, models.Change{NewStage: &to, Audit: entry})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())

	snap, err := s.store.LoadSnapshot(ctx, s.c.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), snap.Case.Version)
	s.Len(snap.AuditLog, 1)
}

func (s *PostgresCaseStoreSuite) TestRollbackDiscardsCaseAndOutboxWrites() {
	ctx := context.Background()
	runner := txcontext.NewSQLRunner(s.pg.DB, 0)
	outbox := auditpg.New(s.pg.DB)
	to := models.StageCode("UNDER_SCRUTINY")
	boom := errors.New("audit sink refused")

	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.Commit(txCtx, s.c.ID, 1, models.Change{NewStage: &to}); err != nil {
			return err
		}
		if err := outbox.Append(txCtx, audit.Event{Action: audit.ActionTransitionCommitted, CaseID: s.c.ID, Timestamp: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	snap, err := s.store.LoadSnapshot(ctx, s.c.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), snap.Case.Version)
	pending, err := outbox.FetchPending(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	err = runner.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.Commit(txCtx, s.c.ID, 1, models.Change{NewStage: &to}); err != nil {
			return err
		}
		return outbox.Append(txCtx, audit.Event{Action: audit.ActionTransitionCommitted, CaseID: s.c.ID, Timestamp: time.Now()})
	})
	s.Require().NoError(err)

	pending, err = outbox.FetchPending(ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1)
	s.Equal(s.c.ID.String(), pending[0].AggregateID)
}

func (s *PostgresCaseStoreSuite) TestArchiveOnlyOutboxLeavesNothingPending() {
	ctx := context.Background()
	archive := auditpg.New(s.pg.DB, auditpg.WithArchiveOnly())
	at := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	s.Require().NoError(archive.Append(ctx, audit.Event{Action: audit.ActionClearanceRecorded, CaseID: s.c.ID, Timestamp: at}))

	pending, err := archive.FetchPending(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	var publishedAt time.Time
	s.Require().NoError(s.pg.DB.QueryRowContext(ctx,
		`SELECT published_at FROM outbox WHERE aggregate_id = $1`, s.c.ID.String()).Scan(&publishedAt))
	s.True(publishedAt.Equal(at))
}
