package echoapi

import (
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core"
)

const orderingParam = "ordering"

var errInvalidOrdering = errors.New("invalid ordering")

// Ordering binds the "ordering" query param: comma separated fields, "-" prefix for descending order.
type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind keeps the first occurrence of each field. Fields not in allowed fail with a core.ValidationError.
func (ord *Ordering) Bind(ctx echo.Context, allowed map[string]bool) error {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}

	seen := make(map[string]bool)
	var unknown []string
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		switch {
		case field == "" || seen[field]:
			continue
		case !allowed[field]:
			unknown = append(unknown, field)
			continue
		}
		seen[field] = true
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}

	if len(unknown) > 0 {
		fields := make([]string, 0, len(allowed))
		for f := range allowed {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		return core.NewValidationError(errInvalidOrdering, core.FieldError{
			Field: orderingParam,
			Error: "unknown field(s) " + strings.Join(unknown, ", ") + "; use one of " + strings.Join(fields, ", "),
		})
	}
	return nil
}
