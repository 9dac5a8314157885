package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingCustomer = errors.New("statement_missing_customer")

// StatementData is the rendered view of one subscriber and its payments.
// All values are preformatted.
type StatementData struct {
	Issuer      string
	GeneratedOn string

	CustomerNo    string
	Name          string
	Contact       string
	Plan          string
	ProfilesCount int
	StartDate     string
	EndDate       string
	Status        string
	Note          string
	AmountPaid    int64

	Payments []StatementPayment
}

type StatementPayment struct {
	PaidAt    string
	Method    string
	Reference string
	Amount    int64
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	if data.CustomerNo == "" {
		return nil, ErrMissingCustomer
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Subscription statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.Issuer, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Customer: "+data.Name, props.Text{Style: fontstyle.Bold}),
			text.New("Customer number: "+data.CustomerNo, props.Text{Top: 5}),
			text.New("Contact: "+orDash(data.Contact), props.Text{Top: 10}),
			text.New("Note: "+orDash(data.Note), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Plan: "+orDash(data.Plan), props.Text{Align: align.Right}),
			text.New("Profiles: "+strconv.Itoa(data.ProfilesCount), props.Text{Top: 5, Align: align.Right}),
			text.New("Period: "+orDash(data.StartDate)+" to "+orDash(data.EndDate), props.Text{Top: 10, Align: align.Right}),
			text.New("Status: "+data.Status, props.Text{Top: 15, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, "Total paid: "+strconv.FormatInt(data.AmountPaid, 10), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(3, "Paid at", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Method", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Reference", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if len(data.Payments) == 0 {
		m.AddRow(10, text.NewCol(12, "No renewals recorded.", props.Text{Size: 9}))
	}
	for _, payment := range data.Payments {
		m.AddRow(8,
			text.NewCol(3, payment.PaidAt, props.Text{Size: 9}),
			text.NewCol(2, payment.Method, props.Text{Size: 9}),
			text.NewCol(5, payment.Reference, props.Text{Size: 8}),
			text.NewCol(2, strconv.FormatInt(payment.Amount, 10), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(4, "Generated on "+data.GeneratedOn, props.Text{Size: 8, Align: align.Right, Top: 4}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
