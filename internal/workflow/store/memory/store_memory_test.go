package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	"transferdesk/pkg/platform/sentinel"
)

type InMemoryCaseStoreSuite struct {
	suite.Suite
	store *InMemoryCaseStore
	ctx   context.Context
	c     *models.Case
}

func TestInMemoryCaseStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryCaseStoreSuite))
}

func (s *InMemoryCaseStoreSuite) SetupTest() {
	s.store = NewInMemoryCaseStore()
	s.ctx = context.Background()
	c, err := models.NewCase(id.NewCaseID(), "SUBMITTED", "PLOT-1", "S", "B", "clerk", time.Now())
	s.Require().NoError(err)
	s.c = c
	s.Require().NoError(s.store.CreateCase(s.ctx, c))
}

func (s *InMemoryCaseStoreSuite) TestCreateDuplicate() {
	err := s.store.CreateCase(s.ctx, s.c)
	s.True(errors.Is(err, sentinel.ErrAlreadyExists))
}

func (s *InMemoryCaseStoreSuite) TestLoadMissing() {
	_, err := s.store.LoadSnapshot(s.ctx, id.NewCaseID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *InMemoryCaseStoreSuite) TestCommitAppliesChangeAndBumpsVersion() {
	to := models.StageCode("UNDER_SCRUTINY")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := models.AuditEntry{ID: id.NewAuditEntryID(), CaseID: s.c.ID, FromStage: "SUBMITTED", ToStage: to}

	updated, err := s.store.Commit(s.ctx, s.c.ID, 1, models.Change{At: at, NewStage: &to, Audit: &entry})
	s.Require().NoError(err)
	s.Equal(int64(2), updated.Version)
	s.Equal(to, updated.CurrentStage)
	s.Equal(at, updated.UpdatedAt)

	snap, err := s.store.LoadSnapshot(s.ctx, s.c.ID)
	s.Require().NoError(err)
	s.Require().Len(snap.AuditLog, 1)
	s.Equal(entry.ID, snap.AuditLog[0].ID)
}

func (s *InMemoryCaseStoreSuite) TestStaleVersionConflicts() {
	_, err := s.store.Commit(s.ctx, s.c.ID, 1, models.Change{Clearance: &models.Clearance{Section: models.SectionBCA}})
	s.Require().NoError(err)

	_, err = s.store.Commit(s.ctx, s.c.ID, 1, models.Change{Clearance: &models.Clearance{Section: models.SectionHousing}})
	s.True(errors.Is(err, sentinel.ErrConflict))

	snap, err := s.store.LoadSnapshot(s.ctx, s.c.ID)
	s.Require().NoError(err)
	s.Len(snap.Clearances, 1)
}

func (s *InMemoryCaseStoreSuite) TestSnapshotsAreCopies() {
	snap, err := s.store.LoadSnapshot(s.ctx, s.c.ID)
	s.Require().NoError(err)
	snap.Case.CurrentStage = "CLOSED"
	snap.Clearances = append(snap.Clearances, models.Clearance{})

	again, err := s.store.LoadSnapshot(s.ctx, s.c.ID)
	s.Require().NoError(err)
	s.Equal(models.StageCode("SUBMITTED"), again.Case.CurrentStage)
	s.Empty(again.Clearances)
}

func (s *InMemoryCaseStoreSuite) TestConcurrentCommitsOnlyOneWins() {
	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Commit(s.ctx, s.c.ID, 1, models.Change{Clearance: &models.Clearance{Section: models.SectionWater}})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		s.True(errors.Is(err, sentinel.ErrConflict))
	}
	s.Equal(1, wins)
}
