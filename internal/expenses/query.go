package expenses

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/expense-be/internal/apperr"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxDays      = 3650
)

// ListQuery is the typed form of the listing query string.
type ListQuery struct {
	From       *time.Time
	To         *time.Time
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	CategoryID *int64
	Deleted    bool
	Page       int
	Limit      int
}

// ParseListQuery reads startDate, endDate, minAmount, maxAmount,
// expenseCategory, isDeleted, page and limit. Date-only values are
// interpreted in loc; an endDate without a time covers the whole day.
func ParseListQuery(values url.Values, loc *time.Location) (ListQuery, error) {
	q := ListQuery{Page: 1, Limit: DefaultLimit}

	if v := strings.TrimSpace(values.Get("startDate")); v != "" {
		t, _, err := ParseDate(v, loc)
		if err != nil {
			return ListQuery{}, apperr.Validation("Invalid startDate.")
		}
		q.From = &t
	}
	if v := strings.TrimSpace(values.Get("endDate")); v != "" {
		t, dateOnly, err := ParseDate(v, loc)
		if err != nil {
			return ListQuery{}, apperr.Validation("Invalid endDate.")
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		q.To = &t
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return ListQuery{}, apperr.Validation("endDate must not be before startDate.")
	}

	var err error
	if q.MinAmount, err = parseAmount(values.Get("minAmount")); err != nil {
		return ListQuery{}, apperr.Validation("Invalid minAmount.")
	}
	if q.MaxAmount, err = parseAmount(values.Get("maxAmount")); err != nil {
		return ListQuery{}, apperr.Validation("Invalid maxAmount.")
	}
	if q.MinAmount != nil && q.MaxAmount != nil && q.MaxAmount.LessThan(*q.MinAmount) {
		return ListQuery{}, apperr.Validation("maxAmount must not be less than minAmount.")
	}

	if v := strings.TrimSpace(values.Get("expenseCategory")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return ListQuery{}, apperr.Validation("Invalid expenseCategory.")
		}
		q.CategoryID = &id
	}
	if v := strings.TrimSpace(values.Get("isDeleted")); v != "" {
		q.Deleted = v == "true"
	}

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return ListQuery{}, apperr.Validation("page must be a positive integer.")
		}
		q.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return ListQuery{}, apperr.Validation("limit must be a positive integer.")
		}
		q.Limit = min(limit, MaxLimit)
	}
	if q.Page > MaxPage(q.Limit) {
		return ListQuery{}, apperr.Validation("page is out of range.")
	}
	return q, nil
}

// MaxPage is the largest page whose offset fits in an int for the given
// page size.
func MaxPage(limit int) int {
	if limit < 1 {
		limit = 1
	}
	return math.MaxInt / limit
}

// ParseDate accepts RFC 3339 timestamps or YYYY-MM-DD dates. The second
// result reports whether the value was a bare date.
func ParseDate(value string, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}

func parseAmount(value string) (*decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	// Exponent notation could force huge rescales when comparing.
	if len(value) > 32 || strings.ContainsAny(value, "eE") {
		return nil, errors.New("unsupported amount format")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseDays reads the trailing window length used by stats and insights.
func ParseDays(value string) (int, error) {
	days, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || days < 1 || days > MaxDays {
		return 0, apperr.Validation("Time period must be a whole number of days between 1 and 3650.")
	}
	return days, nil
}
