package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	"transferdesk/pkg/platform/sentinel"
	txcontext "transferdesk/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Migrate creates the case, child and outbox tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresCaseStore persists cases in PostgreSQL. Commit is an optimistic
// compare-and-set on cases.version; child rows are written in the same
// transaction so a lost race leaves nothing behind.
type PostgresCaseStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresCaseStore {
	return &PostgresCaseStore{db: db}
}

func (s *PostgresCaseStore) CreateCase(ctx context.Context, c *models.Case) error {
	query := `
		INSERT INTO cases (id, current_stage, version, property_ref, seller_ref, buyer_ref, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		string(c.CurrentStage),
		c.Version,
		c.PropertyRef,
		c.SellerRef,
		c.BuyerRef,
		c.CreatedBy,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

// LoadSnapshot reads the case row, then fans out over the child tables.
func (s *PostgresCaseStore) LoadSnapshot(ctx context.Context, caseID id.CaseID) (*models.Snapshot, error) {
	q := s.querier(ctx)
	c, err := scanCase(q.QueryRowContext(ctx, `
		SELECT id, current_stage, version, property_ref, seller_ref, buyer_ref, created_by, created_at, updated_at
		FROM cases WHERE id = $1
	`, uuid.UUID(caseID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}

	snap := &models.Snapshot{Case: *c}
	// A *sql.Tx is not safe for concurrent queries; only fan out on the pool.
	if _, inTx := txcontext.From(ctx); inTx {
		for _, load := range s.loaders(snap) {
			if err := load(ctx, q); err != nil {
				return nil, err
			}
		}
		return snap, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, load := range s.loaders(snap) {
		g.Go(func() error { return load(gctx, q) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

type loader func(ctx context.Context, q txcontext.Querier) error

// loaders each fill a distinct snapshot field.
func (s *PostgresCaseStore) loaders(snap *models.Snapshot) []loader {
	caseID := uuid.UUID(snap.Case.ID)
	return []loader{
		func(ctx context.Context, q txcontext.Querier) error {
			out, err := loadClearances(ctx, q, caseID)
			snap.Clearances = out
			return err
		},
		func(ctx context.Context, q txcontext.Querier) error {
			out, err := loadAttachments(ctx, q, caseID)
			snap.Attachments = out
			return err
		},
		func(ctx context.Context, q txcontext.Querier) error {
			out, err := loadAuditLog(ctx, q, caseID)
			snap.AuditLog = out
			return err
		},
		func(ctx context.Context, q txcontext.Querier) error {
			out, err := loadAccounts(ctx, q, caseID)
			snap.Accounts = out
			return err
		},
		func(ctx context.Context, q txcontext.Querier) error {
			out, err := loadDeed(ctx, q, caseID)
			snap.Deed = out
			return err
		},
	}
}

// Commit applies change if the case is still at expectedVersion. It joins the
// transaction in ctx when there is one, otherwise it opens its own.
func (s *PostgresCaseStore) Commit(ctx context.Context, caseID id.CaseID, expectedVersion int64, change models.Change) (*models.Case, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.commit(ctx, tx, caseID, expectedVersion, change)
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit: %w", err)
	}
	c, err := s.commit(ctx, sqlTx, caseID, expectedVersion, change)
	if err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit case change: %w", err)
	}
	return c, nil
}

func (s *PostgresCaseStore) commit(ctx context.Context, q txcontext.Querier, caseID id.CaseID, expectedVersion int64, change models.Change) (*models.Case, error) {
	var stage sql.NullString
	if change.NewStage != nil {
		stage = sql.NullString{String: string(*change.NewStage), Valid: true}
	}
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	c, err := scanCase(q.QueryRowContext(ctx, `
		UPDATE cases
		SET version = version + 1,
			current_stage = COALESCE($3, current_stage),
			updated_at = $4
		WHERE id = $1 AND version = $2
		RETURNING id, current_stage, version, property_ref, seller_ref, buyer_ref, created_by, created_at, updated_at
	`, uuid.UUID(caseID), expectedVersion, stage, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, q, caseID, expectedVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("update case: %w", err)
	}

	if a := change.Audit; a != nil {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO audit_log (id, case_id, from_stage, to_stage, acting_user, timestamp, remarks)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.UUID(a.ID), uuid.UUID(caseID), string(a.FromStage), string(a.ToStage), a.ActingUser, a.Timestamp, a.Remarks); err != nil {
			return nil, fmt.Errorf("insert audit entry: %w", err)
		}
	}
	if cl := change.Clearance; cl != nil {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO clearances (id, case_id, section, status, remarks, signed_document_ref, recorded_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.UUID(cl.ID), uuid.UUID(caseID), string(cl.Section), string(cl.Status), cl.Remarks, cl.SignedDocumentRef, cl.RecordedBy, cl.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert clearance: %w", err)
		}
	}
	if att := change.Attachment; att != nil {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO attachments (id, case_id, type, document_ref, uploaded_by, uploaded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(att.ID), uuid.UUID(caseID), att.Type, att.DocumentRef, att.UploadedBy, att.UploadedAt); err != nil {
			return nil, fmt.Errorf("insert attachment: %w", err)
		}
	}
	if b := change.Accounts; b != nil {
		if err := upsertAccounts(ctx, q, caseID, b); err != nil {
			return nil, err
		}
	}
	if d := change.Deed; d != nil {
		if err := upsertDeed(ctx, q, caseID, d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *PostgresCaseStore) missOrConflict(ctx context.Context, q txcontext.Querier, caseID id.CaseID, expected int64) error {
	var current int64
	err := q.QueryRowContext(ctx, `SELECT version FROM cases WHERE id = $1`, uuid.UUID(caseID)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check case version: %w", err)
	}
	return fmt.Errorf("case %s at version %d, expected %d: %w", caseID, current, expected, sentinel.ErrConflict)
}

func (s *PostgresCaseStore) querier(ctx context.Context) txcontext.Querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c     models.Case
		cid   uuid.UUID
		stage string
	)
	if err := row.Scan(&cid, &stage, &c.Version, &c.PropertyRef, &c.SellerRef, &c.BuyerRef, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.CaseID(cid)
	c.CurrentStage = models.StageCode(stage)
	return &c, nil
}

func loadClearances(ctx context.Context, q txcontext.Querier, caseID uuid.UUID) ([]models.Clearance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, section, status, remarks, signed_document_ref, recorded_by, created_at
		FROM clearances WHERE case_id = $1 ORDER BY seq
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("query clearances: %w", err)
	}
	defer rows.Close()

	var out []models.Clearance
	for rows.Next() {
		var (
			cl              models.Clearance
			rid             uuid.UUID
			section, status string
		)
		if err := rows.Scan(&rid, &section, &status, &cl.Remarks, &cl.SignedDocumentRef, &cl.RecordedBy, &cl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan clearance: %w", err)
		}
		cl.ID = id.ClearanceID(rid)
		cl.CaseID = id.CaseID(caseID)
		cl.Section = models.Section(section)
		cl.Status = models.ClearanceStatus(status)
		out = append(out, cl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clearances: %w", err)
	}
	return out, nil
}

func loadAttachments(ctx context.Context, q txcontext.Querier, caseID uuid.UUID) ([]models.Attachment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, document_ref, uploaded_by, uploaded_at
		FROM attachments WHERE case_id = $1 ORDER BY seq
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var (
			a   models.Attachment
			rid uuid.UUID
		)
		if err := rows.Scan(&rid, &a.Type, &a.DocumentRef, &a.UploadedBy, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.ID = id.AttachmentID(rid)
		a.CaseID = id.CaseID(caseID)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return out, nil
}

func loadAuditLog(ctx context.Context, q txcontext.Querier, caseID uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, from_stage, to_stage, acting_user, timestamp, remarks
		FROM audit_log WHERE case_id = $1 ORDER BY seq
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e        models.AuditEntry
			rid      uuid.UUID
			from, to string
		)
		if err := rows.Scan(&rid, &from, &to, &e.ActingUser, &e.Timestamp, &e.Remarks); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(rid)
		e.CaseID = id.CaseID(caseID)
		e.FromStage = models.StageCode(from)
		e.ToStage = models.StageCode(to)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return out, nil
}

func loadAccounts(ctx context.Context, q txcontext.Querier, caseID uuid.UUID) (*models.AccountsBreakdown, error) {
	var (
		b     models.AccountsBreakdown
		rid   uuid.UUID
		heads []byte
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, fee_heads, total, paid_amount, challan_ref, calculated_at, paid_at
		FROM accounts_breakdowns WHERE case_id = $1
	`, caseID).Scan(&rid, &heads, &b.Total, &b.PaidAmount, &b.ChallanRef, &b.CalculatedAt, &b.PaidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if err := json.Unmarshal(heads, &b.FeeHeads); err != nil {
		return nil, fmt.Errorf("decode fee heads: %w", err)
	}
	b.ID = id.BreakdownID(rid)
	b.CaseID = id.CaseID(caseID)
	return &b, nil
}

func upsertAccounts(ctx context.Context, q txcontext.Querier, caseID id.CaseID, b *models.AccountsBreakdown) error {
	heads := b.FeeHeads
	if heads == nil {
		heads = map[string]decimal.Decimal{}
	}
	payload, err := json.Marshal(heads)
	if err != nil {
		return fmt.Errorf("encode fee heads: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO accounts_breakdowns (id, case_id, fee_heads, total, paid_amount, challan_ref, calculated_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (case_id) DO UPDATE SET
			id = EXCLUDED.id,
			fee_heads = EXCLUDED.fee_heads,
			total = EXCLUDED.total,
			paid_amount = EXCLUDED.paid_amount,
			challan_ref = EXCLUDED.challan_ref,
			calculated_at = EXCLUDED.calculated_at,
			paid_at = EXCLUDED.paid_at
	`, uuid.UUID(b.ID), uuid.UUID(caseID), payload, b.Total, b.PaidAmount, b.ChallanRef, b.CalculatedAt, b.PaidAt)
	if err != nil {
		return fmt.Errorf("upsert accounts: %w", err)
	}
	return nil
}

func loadDeed(ctx context.Context, q txcontext.Querier, caseID uuid.UUID) (*models.TransferDeed, error) {
	var (
		d      models.TransferDeed
		rid    uuid.UUID
		status string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, witness1, witness2, content, status, signature1, signature2, document_ref, created_at, updated_at, finalized_at
		FROM transfer_deeds WHERE case_id = $1
	`, caseID).Scan(&rid, &d.Witness1, &d.Witness2, &d.Content, &status, &d.Signature1, &d.Signature2, &d.DocumentRef, &d.CreatedAt, &d.UpdatedAt, &d.FinalizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load deed: %w", err)
	}
	d.ID = id.DeedID(rid)
	d.CaseID = id.CaseID(caseID)
	d.Status = models.DeedStatus(status)
	return &d, nil
}

func upsertDeed(ctx context.Context, q txcontext.Querier, caseID id.CaseID, d *models.TransferDeed) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transfer_deeds (id, case_id, witness1, witness2, content, status, signature1, signature2, document_ref, created_at, updated_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (case_id) DO UPDATE SET
			witness1 = EXCLUDED.witness1,
			witness2 = EXCLUDED.witness2,
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			signature1 = EXCLUDED.signature1,
			signature2 = EXCLUDED.signature2,
			document_ref = EXCLUDED.document_ref,
			updated_at = EXCLUDED.updated_at,
			finalized_at = EXCLUDED.finalized_at
	`, uuid.UUID(d.ID), uuid.UUID(caseID), d.Witness1, d.Witness2, d.Content, string(d.Status),
		d.Signature1, d.Signature2, d.DocumentRef, d.CreatedAt, d.UpdatedAt, d.FinalizedAt)
	if err != nil {
		return fmt.Errorf("upsert deed: %w", err)
	}
	return nil
}
