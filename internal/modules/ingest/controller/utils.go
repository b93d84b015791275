package controller

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/repository"
	"github.com/sumitkushwahji/time-traceability-backend/internal/modules/ingest/types"
)

const dateLayout = "2006-01-02"

type availabilityQuery struct {
	Sources   []string  `validate:"required,min=1,dive,required,max=64"`
	StartDate time.Time `validate:"required"`
	EndDate   time.Time `validate:"required,gtefield=StartDate"`
}

type measurementsQuery struct {
	Sources []string `validate:"omitempty,dive,required,max=64"`
	FromMJD *int     `validate:"omitempty,min=0"`
	ToMJD   *int     `validate:"omitempty,min=0"`
	Sat     *int     `validate:"omitempty,min=0"`
	Limit   int      `validate:"min=1,max=1000"`
	Offset  int      `validate:"min=0"`
}

func parseAvailabilityQuery(r *http.Request) (availabilityQuery, error) {
	q := r.URL.Query()
	var out availabilityQuery
	out.Sources = splitSources(q)

	var err error
	if s := q.Get("startDate"); s != "" {
		if out.StartDate, err = time.Parse(dateLayout, s); err != nil {
			return out, errors.New("invalid 'startDate' (expected YYYY-MM-DD)")
		}
	}
	if s := q.Get("endDate"); s != "" {
		if out.EndDate, err = time.Parse(dateLayout, s); err != nil {
			return out, errors.New("invalid 'endDate' (expected YYYY-MM-DD)")
		}
	}
	if err := validate.Struct(out); err != nil {
		return out, validationError(err)
	}
	return out, nil
}

func parseMeasurementsQuery(r *http.Request) (types.MeasurementFilter, error) {
	q := r.URL.Query()
	mq := measurementsQuery{
		Sources: splitSources(q),
		Limit:   repository.DefaultLimit,
	}

	var err error
	if mq.FromMJD, err = optionalInt(q, "fromMjd"); err != nil {
		return types.MeasurementFilter{}, err
	}
	if mq.ToMJD, err = optionalInt(q, "toMjd"); err != nil {
		return types.MeasurementFilter{}, err
	}
	if mq.Sat, err = optionalInt(q, "sat"); err != nil {
		return types.MeasurementFilter{}, err
	}
	if v, err := optionalInt(q, "limit"); err != nil {
		return types.MeasurementFilter{}, err
	} else if v != nil {
		mq.Limit = *v
	}
	if v, err := optionalInt(q, "offset"); err != nil {
		return types.MeasurementFilter{}, err
	} else if v != nil {
		mq.Offset = *v
	}

	if err := validate.Struct(mq); err != nil {
		return types.MeasurementFilter{}, validationError(err)
	}
	if mq.FromMJD != nil && mq.ToMJD != nil && *mq.FromMJD > *mq.ToMJD {
		return types.MeasurementFilter{}, errors.New("'fromMjd' must be <= 'toMjd'")
	}

	return types.MeasurementFilter{
		Sources: mq.Sources,
		FromMJD: mq.FromMJD,
		ToMJD:   mq.ToMJD,
		Sat:     mq.Sat,
		Limit:   mq.Limit,
		Offset:  mq.Offset,
	}, nil
}

// splitSources accepts both sources=A,B and repeated sources parameters.
func splitSources(q url.Values) []string {
	var out []string
	for _, v := range q["sources"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func optionalInt(q url.Values, key string) (*int, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid '%s' (expected integer)", key)
	}
	return &n, nil
}

// validationError turns validator output into a short client message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := lowerFirst(fe.StructField())
	switch fe.Tag() {
	case "required", "min":
		if fe.Kind().String() == "slice" || fe.Tag() == "required" {
			return fmt.Errorf("'%s' is required", field)
		}
		return fmt.Errorf("'%s' must be >= %s", field, fe.Param())
	case "max":
		return fmt.Errorf("'%s' must be <= %s", field, fe.Param())
	case "gtefield":
		return fmt.Errorf("'%s' must not be before '%s'", field, lowerFirst(fe.Param()))
	default:
		return fmt.Errorf("invalid '%s'", field)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
