package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
)

var orderingParam = "ordering"

// Ordering reads "?ordering=name,-created_at" into DB orderings. A leading "-" sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		if field == "" || field == "-" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// queryBool parses an optional boolean query param.
func queryBool(ctx echo.Context, name string) (*bool, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: name, Error: "invalid boolean"})
	}
	return &b, nil
}

// queryDate parses an optional date query param, defaulting to today.
func queryDate(ctx echo.Context, name string) (core.Date, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return core.Today(), nil
	}
	d, err := core.ParseDate(val)
	if err != nil {
		return core.Date{}, core.NewValidationError(err, core.FieldError{Field: name, Error: "invalid date, expected YYYY-MM-DD"})
	}
	return d, nil
}

// requireQuery returns the values of the named query params, failing on the missing ones.
func requireQuery(ctx echo.Context, names ...string) ([]string, error) {
	vals := make([]string, len(names))
	var missing []core.FieldError
	for i, name := range names {
		vals[i] = core.CleanString(ctx.QueryParam(name))
		if vals[i] == "" {
			missing = append(missing, core.FieldError{Field: name, Error: "this field is required"})
		}
	}
	if missing != nil {
		return nil, core.NewValidationError(errors.New("missing query params"), missing...)
	}
	return vals, nil
}

// bind decodes the request body. Decoding failures are reported as bad requests.
func bind(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		var herr *echo.HTTPError
		if errors.As(err, &herr) {
			return herr
		}
		return errors.Wrap(err, "binding request")
	}
	return nil
}
