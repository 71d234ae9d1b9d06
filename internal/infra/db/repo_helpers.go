package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cityos/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("db unavailable")

func newID() string {
	return uuid.NewString()
}

// mapError translates gorm errors into domain sentinels. The connection
// must be opened with TranslateError for duplicate and foreign-key errors
// to be recognised.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	default:
		return err
	}
}

type condition struct {
	column string
	value  string
}

// filterConditions turns an Equals filter into column predicates using the
// allowlisted column mapping. Keys are emitted in sorted order.
func filterConditions(filter domain.Filter, columns map[string]string) ([]condition, error) {
	if filter.All {
		return nil, nil
	}
	keys := make([]string, 0, len(filter.Equals))
	for k := range filter.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]condition, 0, len(keys))
	for _, k := range keys {
		col, ok := columns[k]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported filter key %q", domain.ErrInvalidArgument, k)
		}
		out = append(out, condition{column: col, value: filter.Equals[k]})
	}
	return out, nil
}

func applyFilter(q *gorm.DB, filter domain.Filter, columns map[string]string) (*gorm.DB, error) {
	conds, err := filterConditions(filter, columns)
	if err != nil {
		return nil, err
	}
	for _, c := range conds {
		q = q.Where(c.column+" = ?", c.value)
	}
	return q, nil
}

func normalizeDomains(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(v)), ".")
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
