package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"rsi-divergence/internal/model"
)

func newTableStyle() table.Style {
	style := table.StyleRounded
	style.Format.Header = text.FormatUpper
	return style
}

func optional(ok bool, v float64) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

// renderCandles prints candles oldest first with their indicator overlay.
func renderCandles(w io.Writer, symbol string, tf model.Timeframe, candles []model.Candle) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(newTableStyle())
	t.SetTitle("%s %s", symbol, tf)
	t.AppendHeader(table.Row{"Time (IST)", "Open", "High", "Low", "Close", "Volume", "RSI", "BB Upper", "BB Lower", "Color"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})

	for i := range candles {
		c := &candles[i]
		t.AppendRow(table.Row{
			c.TS.In(model.IST).Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", c.Open),
			fmt.Sprintf("%.2f", c.High),
			fmt.Sprintf("%.2f", c.Low),
			fmt.Sprintf("%.2f", c.Close),
			fmt.Sprintf("%.0f", c.Volume),
			optional(c.RSIReady, c.RSI),
			optional(c.BandsReady, c.UpperBand),
			optional(c.BandsReady, c.LowerBand),
			c.Color().String(),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "candles", len(candles)})
	t.Render()
}

// renderSignal prints the signal as a two-column table.
func renderSignal(w io.Writer, sig *model.Signal) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(newTableStyle())
	t.SetTitle("%s DIVERGENCE", sig.Direction)

	band := "no"
	if sig.BandTouched {
		band = "yes"
	}
	t.AppendRows([]table.Row{
		{"Strength", sig.Strength()},
		{"Pattern", sig.Pattern},
		{"Point A", fmt.Sprintf("%s close %.2f RSI %.2f", sig.PointA.TS.In(model.IST).Format("2006-01-02 15:04"), sig.PointA.Close, sig.PointA.RSI)},
		{"Point B", fmt.Sprintf("%s close %.2f RSI %.2f", sig.PointB.TS.In(model.IST).Format("2006-01-02 15:04"), sig.PointB.Close, sig.PointB.RSI)},
		{"Confirmation", fmt.Sprintf("%s close %.2f", sig.Confirmation.TS.In(model.IST).Format("2006-01-02 15:04"), sig.Confirmation.Close)},
		{"Bollinger Band Touched", band},
	})
	fmt.Fprintln(w)
	t.Render()
}
