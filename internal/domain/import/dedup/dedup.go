// Package dedup decides whether a candidate transaction was already stored.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/money-diary/pkg/money"
)

// DefaultThreshold is the word-set Jaccard similarity above which two
// descriptions on the same account, day and amount are duplicates.
const DefaultThreshold = 0.8

// Reason names the check that flagged a duplicate.
type Reason string

const (
	ReasonExternalID         Reason = "external_id"
	ReasonContentHash        Reason = "content_hash"
	ReasonExactMatch         Reason = "exact_match"
	ReasonSimilarDescription Reason = "similar_description"
)

// Candidate is a transaction about to be stored.
type Candidate struct {
	UserID      uuid.UUID
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	ExternalID  *string
}

// Lookup queries previously stored transactions.
type Lookup interface {
	ExternalIDExists(ctx context.Context, userID uuid.UUID, externalID string) (bool, error)
	ContentHashExists(ctx context.Context, userID uuid.UUID, hash string) (bool, error)
	ExactMatchExists(ctx context.Context, userID, accountID uuid.UUID, amount decimal.Decimal, date time.Time, description string) (bool, error)
	DescriptionsOn(ctx context.Context, userID, accountID uuid.UUID, amount decimal.Decimal, date time.Time) ([]string, error)
}

// CanonicalDescription lower-cases s and collapses its whitespace.
func CanonicalDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ContentHash is the hex SHA-256 of the candidate's identifying tuple.
func ContentHash(c Candidate) string {
	var b strings.Builder
	b.WriteString(c.UserID.String())
	b.WriteString("|")
	b.WriteString(c.AccountID.String())
	b.WriteString("|")
	b.WriteString(money.Format(c.Amount))
	b.WriteString("|")
	b.WriteString(CanonicalDescription(c.Description))
	b.WriteString("|")
	b.WriteString(c.Date.Format(time.DateOnly))
	if c.ExternalID != nil && *c.ExternalID != "" {
		b.WriteString("|")
		b.WriteString(*c.ExternalID)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Jaccard returns the similarity of the word sets of a and b.
func Jaccard(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func words(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(CanonicalDescription(s)) {
		set[w] = true
	}
	return set
}

// Detector runs the duplicate checks in order.
type Detector struct {
	threshold float64
}

// NewDetector returns a detector using threshold for the similarity check.
// Values outside (0, 1] fall back to DefaultThreshold.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Threshold returns the similarity threshold in use.
func (d *Detector) Threshold() float64 { return d.threshold }

// Check reports whether c duplicates a stored transaction and which check
// matched first.
func (d *Detector) Check(ctx context.Context, lookup Lookup, c Candidate) (bool, Reason, error) {
	if c.ExternalID != nil && *c.ExternalID != "" {
		found, err := lookup.ExternalIDExists(ctx, c.UserID, *c.ExternalID)
		if err != nil {
			return false, "", fmt.Errorf("external id lookup: %w", err)
		}
		if found {
			return true, ReasonExternalID, nil
		}
	}

	found, err := lookup.ContentHashExists(ctx, c.UserID, ContentHash(c))
	if err != nil {
		return false, "", fmt.Errorf("content hash lookup: %w", err)
	}
	if found {
		return true, ReasonContentHash, nil
	}

	found, err = lookup.ExactMatchExists(ctx, c.UserID, c.AccountID, c.Amount, c.Date, c.Description)
	if err != nil {
		return false, "", fmt.Errorf("exact match lookup: %w", err)
	}
	if found {
		return true, ReasonExactMatch, nil
	}

	stored, err := lookup.DescriptionsOn(ctx, c.UserID, c.AccountID, c.Amount, c.Date)
	if err != nil {
		return false, "", fmt.Errorf("description lookup: %w", err)
	}
	canonical := CanonicalDescription(c.Description)
	for _, s := range stored {
		if Jaccard(canonical, s) > d.threshold {
			return true, ReasonSimilarDescription, nil
		}
	}
	return false, "", nil
}
