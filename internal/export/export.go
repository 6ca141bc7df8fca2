// Package export writes reservations to spreadsheet files.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// ContentType is the MIME type of the workbook WriteReservations produces.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SheetName is the single worksheet of the export.
const SheetName = "Reservations"

var headers = []string{
	"Reservation", "Guest", "Phone", "Rooms", "Check-in", "Check-out", "Nights",
	"Adults", "Children", "Amount due", "Amount paid", "Outstanding", "Payment date",
	"Note", "Created",
}

var widths = []float64{38, 24, 16, 30, 12, 12, 8, 8, 9, 12, 12, 12, 13, 40, 20}

// WriteReservations writes one row per reservation, in the given order, below
// a header row.
func WriteReservations(w io.Writer, reservations []model.Reservation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, widths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	for i := range reservations {
		if err := writeRow(f, i+2, &reservations[i]); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, r *model.Reservation) error {
	rooms := make([]string, len(r.Rooms))
	for i, room := range r.Rooms {
		rooms[i] = string(room)
	}
	var paymentDate, created string
	if r.PaymentDate != nil {
		paymentDate = string(*r.PaymentDate)
	}
	if r.CreatedAt != nil {
		created = r.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}

	values := []interface{}{
		r.ID, r.GuestName, r.GuestPhone, strings.Join(rooms, ", "),
		string(r.StayStart), string(r.StayEnd), r.StayLengthDays,
		r.AdultCount, r.ChildCount, r.AmountDue, r.AmountPaid, r.Outstanding(),
		paymentDate, r.Note, created,
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("write reservation %s: %w", r.ID, err)
	}
	return nil
}
