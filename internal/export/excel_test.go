package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"arvera/internal/booking"
	"arvera/internal/schedule"
)

func TestWriteWeek(t *testing.T) {
	intervals, err := schedule.ParseIntervals("08:30-12:15,15:45-18:00")
	require.NoError(t, err)
	cfg, err := schedule.New(intervals, 45, "Europe/Madrid", nil)
	require.NoError(t, err)
	loc := cfg.Location()

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	tuesday := time.Date(2026, 3, 3, 0, 0, 0, 0, loc)
	slot := cfg.SlotAt(monday, schedule.TimeOfDay{Hour: 10, Minute: 0})

	appointments := []booking.Appointment{{
		ID:           "a1",
		Start:        slot.StartInstant.UTC(),
		End:          slot.EndInstant.UTC(),
		CustomerName: "Ana García",
		Phone:        "600111222",
		Service:      "Alineado",
		VehicleModel: "Seat León",
		PlateNumber:  "1234ABC",
		Notes:        "ruido delantero",
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteWeek(&buf, cfg, []time.Time{monday, tuesday}, appointments))

	workbook, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer workbook.Close()

	assert.Equal(t, []string{"2026-03-02", "2026-03-03"}, workbook.GetSheetList())

	header, err := workbook.GetCellValue("2026-03-02", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Hora", header)

	// 10:00 is the third slot, so row 4 behind the header.
	hora, _ := workbook.GetCellValue("2026-03-02", "A4")
	estado, _ := workbook.GetCellValue("2026-03-02", "B4")
	cliente, _ := workbook.GetCellValue("2026-03-02", "C4")
	matricula, _ := workbook.GetCellValue("2026-03-02", "G4")
	assert.Equal(t, "10:00", hora)
	assert.Equal(t, "Ocupado", estado)
	assert.Equal(t, "Ana García", cliente)
	assert.Equal(t, "1234ABC", matricula)

	// The same slot next day stays free.
	estado, _ = workbook.GetCellValue("2026-03-03", "B4")
	assert.Equal(t, "Libre", estado)

	// One row per slot plus the header.
	rows, err := workbook.GetRows("2026-03-02")
	require.NoError(t, err)
	assert.Len(t, rows, len(cfg.Times())+1)
}
