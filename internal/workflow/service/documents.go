package service

import (
	"context"
	"fmt"

	"transferdesk/internal/workflow/models"
)

// ReferenceIssuer mints document references without rendering anything.
// Used when no document service is configured.
type ReferenceIssuer struct {
	Prefix string
}

func (r ReferenceIssuer) IssueClearance(_ context.Context, c models.Clearance) (string, error) {
	return fmt.Sprintf("%s/cases/%s/clearances/%s", r.prefix(), c.CaseID, c.ID), nil
}

func (r ReferenceIssuer) IssueDeed(_ context.Context, d models.TransferDeed) (string, error) {
	return fmt.Sprintf("%s/cases/%s/deed/%s", r.prefix(), d.CaseID, d.ID), nil
}

func (r ReferenceIssuer) prefix() string {
	if r.Prefix == "" {
		return "doc:"
	}
	return r.Prefix
}
