// Package accounts computes the fee breakdown of a case and checks payments
// against it. Amounts are decimals with at most two fractional digits and
// stay below MaxAmount; anything else is rejected rather than rounded, so
// every store keeps the exact value.
package accounts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"transferdesk/internal/workflow/models"
	id "transferdesk/pkg/domain"
	dErrors "transferdesk/pkg/domain-errors"
)

// MaxAmount is the exclusive upper bound of any fee head, total or payment.
var MaxAmount = decimal.New(1, 12)

// amountProblem describes why amount cannot be stored exactly, or "".
func amountProblem(amount decimal.Decimal) string {
	switch {
	case amount.IsNegative():
		return fmt.Sprintf("%s is negative", amount.String())
	case !amount.Equal(amount.Truncate(2)):
		return fmt.Sprintf("%s has more than two decimal places", amount.String())
	case amount.GreaterThanOrEqual(MaxAmount):
		return fmt.Sprintf("%s exceeds the maximum of %s", amount.String(), MaxAmount.String())
	}
	return ""
}

// ParseFeeHeads converts raw fee head amounts into decimals. Unnamed,
// non-numeric or out-of-range heads are rejected with an InvalidFeeHead validation
// error naming every offending head.
func ParseFeeHeads(raw map[string]string) (map[string]decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "InvalidFeeHead: at least one fee head is required")
	}

	heads := make(map[string]decimal.Decimal, len(raw))
	var problems []string
	for name, value := range raw {
		key := strings.TrimSpace(name)
		if key == "" {
			problems = append(problems, "unnamed fee head")
			continue
		}
		if _, dup := heads[key]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate fee head", key))
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %q is not a number", key, value))
			continue
		}
		if problem := amountProblem(amount); problem != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", key, problem))
			continue
		}
		heads[key] = amount
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, dErrors.Newf(dErrors.CodeValidation, "InvalidFeeHead: %s", strings.Join(problems, "; "))
	}
	return heads, nil
}

// Total sums the fee heads.
func Total(heads map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range heads {
		total = total.Add(v)
	}
	return total
}

// Compute builds the breakdown for a case. An existing breakdown keeps its ID;
// recomputing once a payment is on record is refused since the payment was
// checked against the old total.
func Compute(caseID id.CaseID, existing *models.AccountsBreakdown, heads map[string]decimal.Decimal, now time.Time) (*models.AccountsBreakdown, error) {
	if existing != nil && existing.ChallanRef != "" {
		return nil, dErrors.New(dErrors.CodeValidation, "accounts cannot be recomputed after a payment has been recorded")
	}
	for name, v := range heads {
		if problem := amountProblem(v); problem != "" {
			return nil, dErrors.Newf(dErrors.CodeValidation, "InvalidFeeHead: %s: %s", name, problem)
		}
	}
	if total := Total(heads); total.GreaterThanOrEqual(MaxAmount) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "InvalidFeeHead: total %s exceeds the maximum of %s", total.String(), MaxAmount.String())
	}

	out := &models.AccountsBreakdown{
		ID:           id.NewBreakdownID(),
		CaseID:       caseID,
		FeeHeads:     make(map[string]decimal.Decimal, len(heads)),
		PaidAmount:   decimal.Zero,
		CalculatedAt: now,
	}
	if existing != nil {
		out.ID = existing.ID
	}
	for k, v := range heads {
		out.FeeHeads[k] = v
	}
	out.Total = Total(out.FeeHeads)
	return out, nil
}

// Payment is the outcome of comparing a payment to the computed total.
type Payment struct {
	Total      decimal.Decimal
	Paid       decimal.Decimal
	Shortfall  decimal.Decimal
	ChallanRef string
	Sufficient bool
	Reason     string
}

// Check compares what is on record for a breakdown without changing it.
func Check(b *models.AccountsBreakdown) Payment {
	if !b.IsCalculated() {
		return Payment{Reason: "Accounts have not been calculated"}
	}
	p := Payment{
		Total:      b.Total,
		Paid:       b.PaidAmount,
		ChallanRef: b.ChallanRef,
		Shortfall:  decimal.Zero,
	}
	switch {
	case b.ChallanRef == "":
		p.Shortfall = b.Total
		p.Reason = "No payment challan recorded"
	case b.PaidAmount.LessThan(b.Total):
		p.Shortfall = b.Total.Sub(b.PaidAmount)
		p.Reason = fmt.Sprintf("Payment short by %s (paid %s of %s)",
			p.Shortfall.StringFixed(2), b.PaidAmount.StringFixed(2), b.Total.StringFixed(2))
	default:
		p.Sufficient = true
	}
	return p
}

// VerifyPayment records a payment against the breakdown and reports whether
// it covers the total. The returned breakdown is a copy; the input is
// untouched.
func VerifyPayment(b *models.AccountsBreakdown, paid, challanRef string, now time.Time) (*models.AccountsBreakdown, Payment, error) {
	if !b.IsCalculated() {
		return nil, Payment{}, dErrors.New(dErrors.CodeValidation, "accounts have not been calculated")
	}
	challan := strings.TrimSpace(challanRef)
	if challan == "" {
		return nil, Payment{}, dErrors.New(dErrors.CodeValidation, "challan reference is required")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(paid))
	if err != nil {
		return nil, Payment{}, dErrors.Newf(dErrors.CodeValidation, "paid amount %q is not a number", paid)
	}
	if problem := amountProblem(amount); problem != "" {
		return nil, Payment{}, dErrors.Newf(dErrors.CodeValidation, "paid amount %s", problem)
	}

	out := b.Clone()
	out.PaidAmount = amount
	out.ChallanRef = challan
	out.PaidAt = &now
	return out, Check(out), nil
}
