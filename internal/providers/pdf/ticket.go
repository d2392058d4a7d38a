package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingQRImage = errors.New("pdf_missing_qr_image")

const dateLayout = "02/01/2006 15:04"

// TicketPDF renders a single page with the event, the holder, the QR image
// and a readable copy of the ticket identifier.
func (p *PDFProvider) TicketPDF(ctx context.Context, data TicketData) ([]byte, error) {
	if len(data.QRImage) == 0 {
		return nil, ErrMissingQRImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := maroto.New(config.NewBuilder().Build())

	m.AddRow(20,
		text.NewCol(12, data.EventName, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(16,
		col.New(12).Add(
			text.New(data.EventStartAt.Format(dateLayout), props.Text{Align: align.Center}),
			text.New(data.EventLocation, props.Text{Top: 6, Align: align.Center}),
		),
	)
	m.AddRow(20,
		col.New(6).Add(
			text.New("Ticket class", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(data.ClassName, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Holder", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(data.HolderName, props.Text{Top: 5}),
			text.New(data.HolderEmail, props.Text{Top: 10, Size: 9}),
		),
	)
	m.AddRow(80,
		image.NewFromBytesCol(12, data.QRImage, extension.Png, props.Rect{
			Center:  true,
			Percent: 90,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, data.QRCode, props.Text{Size: 9, Align: align.Center}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
