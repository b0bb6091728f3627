package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded to
// [min, max]. A missing parameter yields def.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw, ok := queryParam(r, key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, queryError(key, "must be a whole number", nil)
	case n < min || n > max:
		return 0, queryError(key, "is out of range", map[string]any{"min": min, "max": max})
	}
	return n, nil
}

// ParseQueryBool reads an optional boolean flag. A bare "?unreadOnly" counts
// as true.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	if r.URL.Query().Has(key) && strings.TrimSpace(r.URL.Query().Get(key)) == "" {
		return true, nil
	}
	raw, ok := queryParam(r, key)
	if !ok {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, queryError(key, "must be true or false", nil)
	}
	return v, nil
}

func queryParam(r *http.Request, key string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	return raw, raw != ""
}

func queryError(key, problem string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "query parameter "+key+" "+problem).WithDetails(details)
}
