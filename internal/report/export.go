// Package report renders measurement exports as xlsx workbooks.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"agrismart-monitor/internal/clock"
	"agrismart-monitor/internal/models"
)

const (
	SheetName      = "Mesures"
	DefaultSpan    = 30 * 24 * time.Hour
	MaxExportRows  = 10000
	timeCellFormat = "2006-01-02 15:04:05"
)

var exportHeader = []string{"Date mesure", "Type capteur", "Valeur", "Unité", "Station", "Parcelle"}

type MeasurementSource interface {
	ListMeasurements(ctx context.Context, filter models.MeasurementFilter) ([]*models.Measurement, error)
}

type SensorSource interface {
	GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error)
}

// ExportRequest narrows an export. From defaults to To minus 30 days; To defaults to now.
type ExportRequest struct {
	ParcelID string
	SensorID string
	From     *time.Time
	To       *time.Time
}

type Exporter struct {
	measurements MeasurementSource
	sensors      SensorSource
	clock        clock.Clock
	logger       *zap.Logger
}

func NewExporter(measurements MeasurementSource, sensors SensorSource, clk clock.Clock, logger *zap.Logger) *Exporter {
	if clk == nil {
		clk = clock.System{}
	}
	return &Exporter{measurements: measurements, sensors: sensors, clock: clk, logger: logger}
}

// Export returns an xlsx workbook with the newest measurements first.
func (e *Exporter) Export(ctx context.Context, req ExportRequest) ([]byte, error) {
	to := e.clock.Now()
	if req.To != nil {
		to = *req.To
	}
	from := to.Add(-DefaultSpan)
	if req.From != nil {
		from = *req.From
	}
	if from.After(to) {
		return nil, fmt.Errorf("export range starts after it ends: %w", models.ErrInvalidInput)
	}

	rows, err := e.measurements.ListMeasurements(ctx, models.MeasurementFilter{
		SensorID: req.SensorID,
		ParcelID: req.ParcelID,
		From:     &from,
		To:       &to,
	})
	if err != nil {
		return nil, err
	}
	// keep the newest rows when the range is larger than the cap
	if len(rows) > MaxExportRows {
		rows = rows[len(rows)-MaxExportRows:]
	}

	sensors := make(map[string]*models.Sensor)
	lookup := func(id string) (*models.Sensor, error) {
		if s, ok := sensors[id]; ok {
			return s, nil
		}
		s, err := e.sensors.GetSensor(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			s, err = &models.Sensor{ID: id}, nil
		}
		if err != nil {
			return nil, err
		}
		sensors[id] = s
		return s, nil
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("Failed to close workbook", zap.Error(err))
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2F0D9"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "F1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "A", 22); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(SheetName, "B", "F", 18); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	line := 2
	for i := len(rows) - 1; i >= 0; i-- {
		m := rows[i]
		s, err := lookup(m.SensorID)
		if err != nil {
			return nil, err
		}
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			m.MeasuredAt.UTC().Format(timeCellFormat),
			s.Type.Label(),
			m.Value,
			m.Unit,
			s.StationName,
			s.ParcelName,
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", line, err)
		}
		line++
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Measurement export generated",
		zap.String("parcel_id", req.ParcelID),
		zap.String("sensor_id", req.SensorID),
		zap.Int("rows", len(rows)),
	)
	return buf.Bytes(), nil
}
