// Package export writes the visible calendar range to an Excel workbook,
// one sheet per business day, for the workshop's offline paperwork.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"arvera/internal/booking"
	"arvera/internal/schedule"
)

var headerColumns = []string{"Hora", "Estado", "Cliente", "Teléfono", "Servicio", "Vehículo", "Matrícula", "Notas"}

// WriteWeek renders the given business days and appointments as an xlsx
// workbook, one sheet per day with a row per slot, and writes it to w.
func WriteWeek(w io.Writer, cfg *schedule.Config, days []time.Time, appointments []booking.Appointment) error {
	file := excelize.NewFile()
	defer file.Close()

	times := cfg.Times()
	occupancy := cfg.Occupancy(days, times, toOccupants(appointments))

	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, day := range days {
		sheet := sheetName(day)
		if i == 0 {
			file.SetSheetName("Sheet1", sheet)
		} else if _, err := file.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}

		for col, name := range headerColumns {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return err
			}
			if err := file.SetCellValue(sheet, cell, name); err != nil {
				return err
			}
		}
		endCell, _ := excelize.CoordinatesToCellName(len(headerColumns), 1)
		_ = file.SetCellStyle(sheet, "A1", endCell, headerStyle)

		for rowIdx, t := range times {
			slot := cfg.SlotAt(day, t)
			row := []any{t.String(), "Libre", "", "", "", "", "", ""}
			if occ, busy := occupancy[slot.Key()]; busy {
				a := occ.(*booking.Appointment)
				row = []any{t.String(), "Ocupado", a.CustomerName, a.Phone, a.Service, a.VehicleModel, a.PlateNumber, a.Notes}
			}
			for col, val := range row {
				cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
				if err != nil {
					return err
				}
				if err := file.SetCellValue(sheet, cell, val); err != nil {
					return err
				}
			}
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetName formats a day as a sheet title within Excel's 31-char limit.
func sheetName(day time.Time) string {
	return day.Format("2006-01-02")
}

func toOccupants(appointments []booking.Appointment) []schedule.Occupant {
	out := make([]schedule.Occupant, len(appointments))
	for i := range appointments {
		out[i] = &appointments[i]
	}
	return out
}
