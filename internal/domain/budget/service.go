// Package budget builds the monthly roll-up of classified transactions:
// budget, category, subcategory, pattern and transaction.
package budget

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/money-diary/internal/apperr"
	"github.com/FACorreiaa/money-diary/pkg/money"
)

var tracer = otel.Tracer("moneydiary/budget")

const (
	// SalaryCategory and SalarySubcategory name the salary inflow carried
	// into the following month.
	SalaryCategory    = "Income"
	SalarySubcategory = "Zweicom"

	UnmatchedPattern      = "Unmatched"
	PreviousSalaryPattern = "Previous month salary"
	UncategorizedName     = "Uncategorized"

	monthLayout = "2006-01"
)

var ErrBadMonth = apperr.New(apperr.KindValidation, "BAD_YEAR_MONTH", "year_month must be formatted YYYY-MM")

// Store is the data the roll-up reads.
type Store interface {
	Budget(ctx context.Context, userID uuid.UUID, yearMonth string) (*Budget, []Item, error)
	Entries(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Entry, error)
	LatestSalary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*Entry, error)
}

// Service computes budget summaries.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new budget service
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Summary is the month roll-up.
type Summary struct {
	YearMonth          string            `json:"year_month"`
	Currency           string            `json:"currency"`
	Budget             *BudgetOut        `json:"budget,omitempty"`
	TotalIncome        string            `json:"total_income"`
	TotalExpense       string            `json:"total_expense"`
	Net                string            `json:"net"`
	NetDisplay         string            `json:"net_display"`
	Categories         []CategorySummary `json:"categories"`
	CurrentMonthSalary *TransactionOut   `json:"current_month_salary,omitempty"`
}

type BudgetOut struct {
	ID    uuid.UUID `json:"id"`
	Total string    `json:"total"`
}

type CategorySummary struct {
	ID            *uuid.UUID           `json:"id"`
	Name          string               `json:"name"`
	IsIncome      bool                 `json:"is_income"`
	Total         string               `json:"total"`
	Budgeted      string               `json:"budgeted"`
	Subcategories []SubcategorySummary `json:"subcategories"`

	order int
	total decimal.Decimal
}

type SubcategorySummary struct {
	ID        *uuid.UUID       `json:"id"`
	Name      string           `json:"name"`
	Total     string           `json:"total"`
	Budgeted  string           `json:"budgeted"`
	Remaining string           `json:"remaining"`
	Patterns  []PatternSummary `json:"patterns"`

	order    int
	total    decimal.Decimal
	budgeted decimal.Decimal
}

type PatternSummary struct {
	PatternID    *uuid.UUID       `json:"pattern_id,omitempty"`
	PatternName  string           `json:"pattern_name"`
	Total        string           `json:"total"`
	Transactions []TransactionOut `json:"transactions"`

	total decimal.Decimal
}

type TransactionOut struct {
	ID                uuid.UUID `json:"id"`
	Date              string    `json:"date"`
	Amount            string    `json:"amount"`
	Description       string    `json:"description"`
	FromPreviousMonth bool      `json:"from_previous_month,omitempty"`
}

func transactionOut(e Entry) TransactionOut {
	return TransactionOut{
		ID:          e.TransactionID,
		Date:        e.Date.Format(time.DateOnly),
		Amount:      money.Format(e.Amount),
		Description: e.Description,
	}
}

// ParseMonth parses YYYY-MM. Blank means the month of now.
func ParseMonth(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	if len(raw) != len(monthLayout) {
		return time.Time{}, ErrBadMonth
	}
	t, err := time.Parse(monthLayout, raw)
	if err != nil {
		return time.Time{}, ErrBadMonth
	}
	return t, nil
}

// Summary rolls up the user's transactions for yearMonth. The latest salary
// of the previous month is carried in as a synthetic entry; a salary dated
// in the month itself is returned apart and left out of the totals.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID, yearMonth string) (*Summary, error) {
	month, err := ParseMonth(yearMonth, s.now())
	if err != nil {
		return nil, err
	}
	ym := month.Format(monthLayout)

	ctx, span := tracer.Start(ctx, "budget.summary")
	defer span.End()
	span.SetAttributes(attribute.String("year_month", ym))

	next := month.AddDate(0, 1, 0)
	prev := month.AddDate(0, -1, 0)

	b, items, err := s.store.Budget(ctx, userID, ym)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.Entries(ctx, userID, month, next)
	if err != nil {
		return nil, err
	}
	current, err := s.store.LatestSalary(ctx, userID, month, next)
	if err != nil {
		return nil, err
	}
	carried, err := s.store.LatestSalary(ctx, userID, prev, month)
	if err != nil {
		return nil, err
	}

	out := &Summary{YearMonth: ym, Currency: money.EUR, Categories: []CategorySummary{}}
	if b != nil {
		out.Budget = &BudgetOut{ID: b.ID, Total: money.Format(b.Total)}
	}
	if current != nil {
		t := transactionOut(*current)
		out.CurrentMonthSalary = &t
	}

	r := newRollup()
	for _, it := range items {
		r.budget(it)
	}
	for _, e := range entries {
		if current != nil && e.TransactionID == current.TransactionID {
			continue
		}
		if len(r.amounts) == 0 && e.Currency != "" {
			out.Currency = strings.TrimSpace(e.Currency)
		}
		r.add(e, patternKey(e), false)
	}
	if carried != nil {
		r.add(*carried, PreviousSalaryPattern, true)
	}

	income, expense := decimal.Zero, decimal.Zero
	for _, e := range r.amounts {
		if e.IsPositive() {
			income = income.Add(e)
		} else {
			expense = expense.Add(e)
		}
	}
	net := income.Add(expense)
	out.TotalIncome = money.Format(income)
	out.TotalExpense = money.Format(expense)
	out.Net = money.Format(net)
	out.NetDisplay = money.Display(net, out.Currency)
	out.Categories = r.categories()

	s.logger.Debug("budget summary computed",
		"user_id", userID,
		"year_month", ym,
		"transactions", len(r.amounts),
		"carried_salary", carried != nil,
	)
	return out, nil
}

func patternKey(e Entry) string {
	if e.PatternName == nil {
		return UnmatchedPattern
	}
	return *e.PatternName
}

// rollup accumulates entries into the category tree.
type rollup struct {
	cats    map[uuid.UUID]*CategorySummary
	subs    map[uuid.UUID]map[uuid.UUID]*SubcategorySummary
	pats    map[uuid.UUID]map[uuid.UUID]map[string]*PatternSummary
	amounts []decimal.Decimal
}

func newRollup() *rollup {
	return &rollup{
		cats: make(map[uuid.UUID]*CategorySummary),
		subs: make(map[uuid.UUID]map[uuid.UUID]*SubcategorySummary),
		pats: make(map[uuid.UUID]map[uuid.UUID]map[string]*PatternSummary),
	}
}

// uuid.Nil keys the uncategorized bucket.
func (r *rollup) category(id uuid.UUID, name string, order int, income bool) *CategorySummary {
	c, ok := r.cats[id]
	if !ok {
		c = &CategorySummary{Name: name, IsIncome: income, order: order}
		if id != uuid.Nil {
			cid := id
			c.ID = &cid
		}
		r.cats[id] = c
		r.subs[id] = make(map[uuid.UUID]*SubcategorySummary)
		r.pats[id] = make(map[uuid.UUID]map[string]*PatternSummary)
	}
	return c
}

func (r *rollup) subcategory(catID, id uuid.UUID, name string, order int) *SubcategorySummary {
	sc, ok := r.subs[catID][id]
	if !ok {
		sc = &SubcategorySummary{Name: name, order: order}
		if id != uuid.Nil {
			sid := id
			sc.ID = &sid
		}
		r.subs[catID][id] = sc
		r.pats[catID][id] = make(map[string]*PatternSummary)
	}
	return sc
}

func (r *rollup) budget(it Item) {
	r.category(it.CategoryID, it.CategoryName, it.CategoryOrder, it.IsIncome)
	sc := r.subcategory(it.CategoryID, it.SubcategoryID, it.SubcategoryName, it.SubcategoryOrder)
	sc.budgeted = sc.budgeted.Add(it.Amount)
}

func (r *rollup) add(e Entry, pattern string, carried bool) {
	catID, subID := uuid.Nil, uuid.Nil
	catName, subName := UncategorizedName, UncategorizedName
	if e.CategoryID != nil && e.SubcategoryID != nil {
		catID, subID = *e.CategoryID, *e.SubcategoryID
		catName, subName = deref(e.CategoryName), deref(e.SubcategoryName)
	}

	c := r.category(catID, catName, e.CategoryOrder, e.IsIncome)
	sc := r.subcategory(catID, subID, subName, e.SubcategoryOrder)
	p, ok := r.pats[catID][subID][pattern]
	if !ok {
		p = &PatternSummary{PatternName: pattern, Transactions: []TransactionOut{}}
		if !carried && e.PatternID != nil {
			pid := *e.PatternID
			p.PatternID = &pid
		}
		r.pats[catID][subID][pattern] = p
	}

	t := transactionOut(e)
	t.FromPreviousMonth = carried
	p.Transactions = append(p.Transactions, t)
	p.total = p.total.Add(e.Amount)
	sc.total = sc.total.Add(e.Amount)
	c.total = c.total.Add(e.Amount)
	r.amounts = append(r.amounts, e.Amount)
}

// categories renders the tree ordered by display order then name. Within a
// subcategory, named patterns come first, then the carried salary, then
// unmatched transactions.
func (r *rollup) categories() []CategorySummary {
	out := make([]CategorySummary, 0, len(r.cats))
	for catID, c := range r.cats {
		budgeted := decimal.Zero
		subs := make([]SubcategorySummary, 0, len(r.subs[catID]))
		for subID, sc := range r.subs[catID] {
			pats := make([]PatternSummary, 0, len(r.pats[catID][subID]))
			for _, p := range r.pats[catID][subID] {
				p.Total = money.Format(p.total)
				pats = append(pats, *p)
			}
			slices.SortFunc(pats, func(a, b PatternSummary) int {
				return cmp.Or(cmp.Compare(patternRank(a.PatternName), patternRank(b.PatternName)), strings.Compare(a.PatternName, b.PatternName))
			})

			sc.Patterns = pats
			sc.Total = money.Format(sc.total)
			sc.Budgeted = money.Format(sc.budgeted)
			sc.Remaining = money.Format(remaining(sc.budgeted, sc.total, c.IsIncome))
			budgeted = budgeted.Add(sc.budgeted)
			subs = append(subs, *sc)
		}
		slices.SortFunc(subs, func(a, b SubcategorySummary) int {
			return cmp.Or(cmp.Compare(a.order, b.order), strings.Compare(a.Name, b.Name))
		})

		c.Subcategories = subs
		c.Total = money.Format(c.total)
		c.Budgeted = money.Format(budgeted)
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b CategorySummary) int {
		return cmp.Or(cmp.Compare(uncategorizedRank(a.ID), uncategorizedRank(b.ID)), cmp.Compare(a.order, b.order), strings.Compare(a.Name, b.Name))
	})
	return out
}

// remaining is what is left of budgeted. Expenses are negative amounts.
func remaining(budgeted, total decimal.Decimal, income bool) decimal.Decimal {
	if income {
		return budgeted.Sub(total)
	}
	return budgeted.Add(total)
}

func patternRank(name string) int {
	switch name {
	case PreviousSalaryPattern:
		return 1
	case UnmatchedPattern:
		return 2
	default:
		return 0
	}
}

func uncategorizedRank(id *uuid.UUID) int {
	if id == nil {
		return 1
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
