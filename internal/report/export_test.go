package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/models"
	"agrismart-monitor/internal/repository"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutSensor(models.Sensor{
		ID: "s-temp", Type: models.SensorAirTemperature, StationID: "st-1", StationName: "Station Nord",
		ParcelID: "p-1", ParcelName: "Cacao Est", OwnerID: "u-1", Status: models.SensorActive,
	})
	store.PutSensor(models.Sensor{
		ID: "s-soil", Type: models.SensorSoilMoisture, StationID: "st-1", StationName: "Station Nord",
		ParcelID: "p-1", ParcelName: "Cacao Est", OwnerID: "u-1", Status: models.SensorActive,
	})
	store.PutSensor(models.Sensor{
		ID: "s-other", Type: models.SensorRainfall, StationID: "st-9", ParcelID: "p-9", OwnerID: "u-2",
	})

	ms := []*models.Measurement{
		{ID: "m1", SensorID: "s-temp", ParcelID: "p-1", Value: 29.5, Unit: "°C", MeasuredAt: now.Add(-3 * time.Hour)},
		{ID: "m2", SensorID: "s-soil", ParcelID: "p-1", Value: 41, Unit: "%", MeasuredAt: now.Add(-2 * time.Hour)},
		{ID: "m3", SensorID: "s-temp", ParcelID: "p-1", Value: 33.1, Unit: "°C", MeasuredAt: now.Add(-time.Hour)},
		{ID: "m4", SensorID: "s-other", ParcelID: "p-9", Value: 2, Unit: "mm", MeasuredAt: now.Add(-time.Hour)},
		{ID: "old", SensorID: "s-temp", ParcelID: "p-1", Value: 20, Unit: "°C", MeasuredAt: now.Add(-40 * 24 * time.Hour)},
	}
	require.NoError(t, store.InsertMeasurements(context.Background(), ms))
	return store
}

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestExport_ParcelNewestFirst(t *testing.T) {
	store := seed(t)
	e := NewExporter(store, store, clock.NewFake(now), zap.NewNop())

	data, err := e.Export(context.Background(), ExportRequest{ParcelID: "p-1"})
	require.NoError(t, err)

	rows := readRows(t, data)
	require.Len(t, rows, 4)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, []string{"2026-05-10 11:00:00", "Température", "33.1", "°C", "Station Nord", "Cacao Est"}, rows[1])
	assert.Equal(t, "Humidité du sol", rows[2][1])
	assert.Equal(t, "2026-05-10 09:00:00", rows[3][0])
}

func TestExport_SensorFilter(t *testing.T) {
	store := seed(t)
	e := NewExporter(store, store, clock.NewFake(now), zap.NewNop())

	from := now.Add(-50 * 24 * time.Hour)
	data, err := e.Export(context.Background(), ExportRequest{SensorID: "s-temp", From: &from})
	require.NoError(t, err)

	rows := readRows(t, data)
	require.Len(t, rows, 4)
	assert.Equal(t, "20", rows[3][2])
}

func TestExport_InvalidRange(t *testing.T) {
	store := seed(t)
	e := NewExporter(store, store, clock.NewFake(now), zap.NewNop())

	from := now
	to := now.Add(-time.Hour)
	_, err := e.Export(context.Background(), ExportRequest{From: &from, To: &to})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestExport_EmptyHasHeader(t *testing.T) {
	store := repository.NewMemoryStore()
	e := NewExporter(store, store, clock.NewFake(now), zap.NewNop())

	data, err := e.Export(context.Background(), ExportRequest{ParcelID: "nope"})
	require.NoError(t, err)
	rows := readRows(t, data)
	require.Len(t, rows, 1)
}
