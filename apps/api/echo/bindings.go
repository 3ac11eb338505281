package echoapi

import (
	"net/mail"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/attendance/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads "?ordering=field,-other": a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// StartRequest holds the form fields of a session start; the roster file is read separately.
type StartRequest struct {
	Department string `form:"department" validate:"printable"`
	Lab        string `form:"lab" validate:"required,printable"`
}

func (r *StartRequest) Validate(validate *validator.Validate) error {
	r.Department = core.CleanString(r.Department)
	r.Lab = core.CleanString(r.Lab)
	return validate.Struct(r)
}

type ScanRequest struct {
	Image   string `json:"image" validate:"required_without=Payload"`
	Payload string `json:"payload" validate:"required_without=Image,printable"`
}

func (r *ScanRequest) Validate(validate *validator.Validate) error {
	r.Payload = core.CleanString(r.Payload)
	return validate.Struct(r)
}

type MailRequest struct {
	To []string `json:"to" validate:"required,min=1,dive,email"`
}

func (r *MailRequest) Validate(validate *validator.Validate) ([]mail.Address, error) {
	for i, addr := range r.To {
		r.To[i] = core.CleanString(addr)
	}
	if err := validate.Struct(r); err != nil {
		return nil, err
	}
	addrs := make([]mail.Address, 0, len(r.To))
	for _, addr := range r.To {
		addrs = append(addrs, mail.Address{Address: addr})
	}
	return addrs, nil
}

type CameraRequest struct {
	URL string `json:"url" validate:"omitempty,url"`
}

func (r *CameraRequest) Validate(validate *validator.Validate) error {
	r.URL = core.CleanString(r.URL)
	return validate.Struct(r)
}
