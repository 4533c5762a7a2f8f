package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/internal/domain/profile"
	"github.com/FACorreiaa/money-diary/pkg/money"
)

const fieldAmount = "amount"

var (
	incomeTokens = map[string]bool{
		"C": true, "CR": true, "CREDIT": true, "INCOME": true, "INGRESO": true, "ABONO": true, "DEPOSIT": true, "+": true,
	}
	expenseTokens = map[string]bool{
		"D": true, "DR": true, "DEBIT": true, "EXPENSE": true, "GASTO": true, "CARGO": true, "WITHDRAWAL": true, "-": true,
	}
)

// amountCell is one parsed money column.
type amountCell struct {
	mapping *profile.ColumnMapping
	raw     string
	value   decimal.Decimal
	present bool
}

func (c amountCell) nonZero() bool { return c.present && !c.value.IsZero() }

// parseAmountCell reads the mapped money column. Workbook cells holding a
// plain machine number always use '.' as the decimal separator.
func (n *Normalizer) parseAmountCell(target profile.TargetField, cells map[profile.TargetField]string, native bool, errs *[]FieldError) amountCell {
	m := n.profile.Mapping(target)
	if m == nil {
		return amountCell{}
	}
	raw := cells[target]
	c := amountCell{mapping: m, raw: raw}
	if raw == "" {
		return c
	}

	sep := n.profile.DecimalSeparator
	if native && money.IsCanonical(raw) {
		sep = "."
	}
	v, err := money.Parse(raw, sep)
	if err != nil {
		if !errors.Is(err, money.ErrEmpty) {
			*errs = append(*errs, FieldError{Field: fieldAmount, Message: fmt.Sprintf("invalid amount: %s", raw)})
		}
		return c
	}
	if msg := checkBounds(m, v, n.profile.DecimalSeparator); msg != "" {
		*errs = append(*errs, FieldError{Field: fieldAmount, Message: msg})
	}
	c.value, c.present = v, true
	return c
}

// resolveAmount derives the signed amount from the profile's amount schema.
// It returns the winning column so its transformation rule can be applied.
func (n *Normalizer) resolveAmount(cells map[profile.TargetField]string, native bool, errs *[]FieldError) (decimal.Decimal, *profile.ColumnMapping, bool) {
	p := n.profile
	before := len(*errs)

	var (
		amount decimal.Decimal
		winner amountCell
		sawAny bool
	)

	switch {
	case p.AmountSchema == profile.SingleColumn || p.Has(profile.TargetAmount):
		c := n.parseAmountCell(profile.TargetAmount, cells, native, errs)
		sawAny = c.raw != ""
		if c.present {
			winner, amount = c, c.value
			if !p.PositiveIsIncome {
				amount = amount.Neg()
			}
		}

	case p.Has(profile.TargetIncomeAmount, profile.TargetExpenseAmount):
		expense := n.parseAmountCell(profile.TargetExpenseAmount, cells, native, errs)
		income := n.parseAmountCell(profile.TargetIncomeAmount, cells, native, errs)
		sawAny = expense.raw != "" || income.raw != ""
		switch {
		case expense.nonZero():
			winner, amount = expense, expense.value.Abs().Neg()
		case income.nonZero():
			winner, amount = income, income.value.Abs()
		}

	default:
		debit := n.parseAmountCell(profile.TargetDebitAmount, cells, native, errs)
		credit := n.parseAmountCell(profile.TargetCreditAmount, cells, native, errs)
		sawAny = debit.raw != "" || credit.raw != ""
		debitSign, creditSign := -1, 1
		if !p.DebitIsExpense {
			debitSign, creditSign = 1, -1
		}
		switch {
		case credit.nonZero():
			winner, amount = credit, signed(credit.value, creditSign)
		case debit.nonZero():
			winner, amount = debit, signed(debit.value, debitSign)
		}
	}

	if len(*errs) > before {
		return decimal.Zero, nil, false
	}
	if !sawAny {
		*errs = append(*errs, FieldError{Field: fieldAmount, Message: "amount required"})
		return decimal.Zero, nil, false
	}

	if p.TypeDetection == profile.ByExplicitField {
		v, ok := n.explicitSign(amount, cells[profile.TargetTransactionType], errs)
		if !ok {
			return decimal.Zero, nil, false
		}
		amount = v
	}

	if winner.mapping != nil {
		amount = applySignRule(winner.mapping, amount)
	}
	if amount.IsZero() {
		*errs = append(*errs, FieldError{Field: fieldAmount, Message: "amount must not be zero"})
		return decimal.Zero, nil, false
	}
	return amount, winner.mapping, true
}

func (n *Normalizer) explicitSign(amount decimal.Decimal, token string, errs *[]FieldError) (decimal.Decimal, bool) {
	t := strings.ToUpper(strings.TrimSpace(token))
	switch {
	case incomeTokens[t]:
		return amount.Abs(), true
	case expenseTokens[t]:
		return amount.Abs().Neg(), true
	default:
		*errs = append(*errs, FieldError{
			Field:   string(profile.TargetTransactionType),
			Message: fmt.Sprintf("transaction_type: unrecognized value '%s'", token),
		})
		return decimal.Zero, false
	}
}

func signed(v decimal.Decimal, sign int) decimal.Decimal {
	if sign < 0 {
		return v.Abs().Neg()
	}
	return v.Abs()
}

// applySignRule forces the sign according to the mapping's rule token.
func applySignRule(m *profile.ColumnMapping, v decimal.Decimal) decimal.Decimal {
	if m.TransformationRule == nil {
		return v
	}
	switch *m.TransformationRule {
	case profile.RulePositive, profile.RuleAbs:
		return v.Abs()
	case profile.RuleNegative:
		return v.Abs().Neg()
	case profile.RuleInvert:
		return v.Neg()
	}
	return v
}

// checkBounds validates a parsed money value against min_value/max_value.
func checkBounds(m *profile.ColumnMapping, v decimal.Decimal, sep string) string {
	if m.MinValue != nil && *m.MinValue != "" {
		if lo, err := money.Parse(*m.MinValue, boundSeparator(*m.MinValue, sep)); err == nil && v.LessThan(lo) {
			return fmt.Sprintf("%s: %s is below minimum %s", m.TargetField, money.Format(v), money.Format(lo))
		}
	}
	if m.MaxValue != nil && *m.MaxValue != "" {
		if hi, err := money.Parse(*m.MaxValue, boundSeparator(*m.MaxValue, sep)); err == nil && v.GreaterThan(hi) {
			return fmt.Sprintf("%s: %s is above maximum %s", m.TargetField, money.Format(v), money.Format(hi))
		}
	}
	return ""
}

func boundSeparator(bound, sep string) string {
	if money.IsCanonical(bound) {
		return "."
	}
	return sep
}
