package display

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/route109-tracker/internal/scorer"
)

const (
	Width  = 128
	Height = 64

	tripRowHeight = 14
	tripRowCount  = 3
	separatorY    = 42

	tickerTop    = 43
	tickerHeight = 21

	dotDiameter   = 8
	dotLeftMargin = 3

	textLeftX = 16
)

var (
	colorText            = color.RGBA{255, 255, 255, 255}
	colorPlaceholderText = color.RGBA{60, 60, 60, 255}
	colorSeparator       = color.RGBA{51, 51, 51, 255}

	colorGood           = color.RGBA{0, 200, 0, 255}
	colorRisky          = color.RGBA{220, 180, 0, 255}
	colorBad            = color.RGBA{200, 0, 0, 255}
	colorUnknown        = color.RGBA{80, 80, 80, 255}
	colorPlaceholderDot = color.RGBA{80, 80, 80, 255}
)

// trendMark is the one-character suffix after the minutes figure.
func trendMark(trend string) string {
	switch trend {
	case TrendImproving:
		return "+"
	case TrendDeteriorating:
		return "-"
	default:
		return ""
	}
}

func dotColor(reliability string) color.RGBA {
	switch reliability {
	case scorer.Good:
		return colorGood
	case scorer.Risky:
		return colorRisky
	case scorer.Bad:
		return colorBad
	default:
		return colorUnknown
	}
}

// Compose renders a 128x64 RGB frame from the frame data.
func Compose(data FrameData) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))

	trips := data.Trips
	if len(trips) > tripRowCount {
		trips = trips[:tripRowCount]
	}
	for idx := 0; idx < tripRowCount; idx++ {
		if idx < len(trips) {
			drawTripRow(img, idx, &trips[idx])
		} else {
			drawTripRow(img, idx, nil)
		}
	}

	for x := 0; x < Width; x++ {
		img.SetRGBA(x, separatorY, colorSeparator)
	}

	if data.TickerText != "" {
		face := basicfont.Face7x13
		tickerY := tickerTop + (tickerHeight-face.Height)/2 + face.Ascent
		drawText(img, dotLeftMargin, tickerY, data.TickerText, colorText)
	}

	return img
}

func drawTripRow(img *image.RGBA, rowIndex int, trip *TripRow) {
	rowTop := rowIndex * tripRowHeight
	dotTop := rowTop + (tripRowHeight-dotDiameter)/2

	var dot, text color.RGBA
	var label string
	switch {
	case trip == nil:
		dot = colorPlaceholderDot
		text = colorPlaceholderText
		label = "--"
	case trip.Cancelled:
		dot = colorUnknown
		text = colorPlaceholderText
		label = fmt.Sprintf("CXL  %s", trip.ClockTime)
	case trip.Departed:
		dot = dotColor(trip.Reliability)
		text = colorText
		label = fmt.Sprintf("DEP  %s", trip.ClockTime)
	default:
		dot = dotColor(trip.Reliability)
		text = colorText
		label = fmt.Sprintf("%d%s min  %s", int(math.Round(trip.MinutesAway)), trendMark(trip.Trend), trip.ClockTime)
		if trip.ScheduledOnly {
			label = fmt.Sprintf("%d min* %s", int(math.Round(trip.MinutesAway)), trip.ClockTime)
		}
	}

	fillCircle(img, dotLeftMargin, dotTop, dotDiameter, dot)
	drawText(img, textLeftX, rowTop+1+basicfont.Face7x13.Ascent, label, text)
}

// fillCircle draws a filled disc with its bounding box at (left, top).
func fillCircle(img *image.RGBA, left, top, diameter int, fill color.RGBA) {
	radius := float64(diameter) / 2
	cx := float64(left) + radius - 0.5
	cy := float64(top) + radius - 0.5
	for y := top; y < top+diameter; y++ {
		for x := left; x < left+diameter; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(x, y, fill)
			}
		}
	}
}

// drawText draws a string with its baseline at (x, y).
func drawText(img *image.RGBA, x, y int, text string, fill color.RGBA) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fill),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}
