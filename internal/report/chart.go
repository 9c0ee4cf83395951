package report

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/stellar-oracle/love-oracle/internal/models"
)

const (
	chartWidth  = 800
	chartHeight = 360
	marginLeft  = 56.0
	marginRight = 24.0
	marginTop   = 24.0
	marginBot   = 48.0
	maxTicks    = 10
)

// RenderChart draws the daily engagement series as a PNG bar chart with a
// trend line. An empty series yields a placeholder frame.
func RenderChart(series []models.DailySample) ([]byte, error) {
	dc := gg.NewContext(chartWidth, chartHeight)
	dc.SetRGB255(255, 250, 245)
	dc.Clear()

	plotW := chartWidth - marginLeft - marginRight
	plotH := chartHeight - marginTop - marginBot

	// axes
	dc.SetRGB255(120, 110, 130)
	dc.SetLineWidth(1)
	dc.DrawLine(marginLeft, marginTop, marginLeft, marginTop+plotH)
	dc.DrawLine(marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH)
	dc.Stroke()

	if len(series) == 0 {
		dc.DrawStringAnchored("no dated messages", chartWidth/2, chartHeight/2, 0.5, 0.5)
		return encode(dc)
	}

	maxScore := 1
	for _, s := range series {
		if s.Score > maxScore {
			maxScore = s.Score
		}
	}

	dc.DrawStringAnchored(fmt.Sprintf("%d", maxScore), marginLeft-6, marginTop, 1, 0.5)
	dc.DrawStringAnchored("0", marginLeft-6, marginTop+plotH, 1, 0.5)

	slot := plotW / float64(len(series))
	barW := slot * 0.7
	tickEvery := (len(series) + maxTicks - 1) / maxTicks

	points := make([][2]float64, len(series))
	for i, s := range series {
		h := plotH * float64(s.Score) / float64(maxScore)
		x := marginLeft + slot*float64(i) + (slot-barW)/2
		y := marginTop + plotH - h

		dc.SetRGB255(244, 143, 177)
		dc.DrawRectangle(x, y, barW, h)
		dc.Fill()

		points[i] = [2]float64{x + barW/2, y}

		if i%tickEvery == 0 || i == len(series)-1 {
			dc.SetRGB255(80, 70, 90)
			dc.DrawStringAnchored(s.Day, x+barW/2, marginTop+plotH+16, 0.5, 0.5)
		}
	}

	dc.SetRGB255(123, 31, 162)
	dc.SetLineWidth(2)
	for i, p := range points {
		if i == 0 {
			dc.MoveTo(p[0], p[1])
			continue
		}
		dc.LineTo(p[0], p[1])
	}
	dc.Stroke()

	return encode(dc)
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}
