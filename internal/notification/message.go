package notification

import (
	"fmt"
	"html"
	"strings"

	"rsi-divergence/internal/model"
)

const (
	emojiBullish = "🟢"
	emojiBearish = "🔴"
	emojiBand    = "🌊"
	rule         = "--------------------------------"
)

func directionEmoji(d model.Direction) string {
	if d == model.Bullish {
		return emojiBullish
	}
	return emojiBearish
}

// FormatHTML renders the Telegram alert (HTML parse mode). Times are shown
// in IST.
func FormatHTML(ev model.SignalEvent) string {
	s := ev.Signal
	emoji := directionEmoji(s.Direction)

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s DIVERGENCE DETECTED</b> %s\n\n", emoji, s.Direction, emoji)
	fmt.Fprintf(&b, "<b>Symbol:</b> %s\n", html.EscapeString(ev.Instrument.Symbol))
	fmt.Fprintf(&b, "<b>Timeframe:</b> %s\n", ev.Timeframe)
	fmt.Fprintf(&b, "<b>Time:</b> %s\n\n", s.Confirmation.TS.In(model.IST).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "<b>Strength:</b> %s\n", s.Strength())
	fmt.Fprintf(&b, "<b>Pattern:</b> %s\n", s.Pattern)
	fmt.Fprintf(&b, "<b>Price:</b> %.2f → %.2f\n", s.PointA.Close, s.PointB.Close)
	fmt.Fprintf(&b, "<b>RSI:</b> %.2f → %.2f\n", s.PointA.RSI, s.PointB.RSI)
	if s.BandTouched {
		fmt.Fprintf(&b, "\n%s <b>Bollinger Band Touched</b>", emojiBand)
	}
	b.WriteString("\n" + rule)
	return b.String()
}

// FormatTitle is a one-line summary, e.g. "BULLISH divergence on NIFTY 50 (FIVE_MINUTE)".
func FormatTitle(ev model.SignalEvent) string {
	return fmt.Sprintf("%s divergence on %s (%s)", ev.Signal.Direction, ev.Instrument.Symbol, ev.Timeframe)
}
