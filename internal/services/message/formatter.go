// Package message renders signals as HTML-flavoured plain text for push
// notifications.
package message

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"FinSignal/internal/domain/models"
)

const (
	barCells      = 10
	defaultReason = "Multi-timeframe analysis confirmed"
	riskWarning   = "⚠️ Manage your risk. Never invest more than you can afford to lose."
)

// Formatter is safe for concurrent use.
type Formatter struct {
	takeProfitPct float64
	stopLossPct   float64
	printer       *message.Printer
}

func NewFormatter(takeProfitPct, stopLossPct float64) *Formatter {
	return &Formatter{
		takeProfitPct: takeProfitPct,
		stopLossPct:   stopLossPct,
		printer:       message.NewPrinter(language.English),
	}
}

// Format renders a fired signal. Field order: header, price, confidence
// bar, direction, reasons, levels, risk warning.
func (f *Formatter) Format(sig *models.ConsolidatedSignal) string {
	direction, action := "📉 SHORT (SELL)", "Price should go DOWN"
	if sig.Side == models.Long {
		direction, action = "📈 LONG (BUY)", "Price should go UP"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚀 <b>SIGNAL %s</b> - %s\n\n", sig.Side, sig.Symbol)
	fmt.Fprintf(&b, "💰 <b>Price:</b> %s\n", f.Price(sig.Price))
	fmt.Fprintf(&b, "📊 <b>Confidence:</b> %s %d%%\n\n", ConfidenceBar(sig.Confidence), sig.Confidence)
	fmt.Fprintf(&b, "━━━ %s ━━━\n%s\n\n", direction, action)

	b.WriteString("<b>Why?</b>\n")
	reasons := sig.Reasons
	if len(reasons) > models.MaxReasons {
		reasons = reasons[:models.MaxReasons]
	}
	if len(reasons) == 0 {
		reasons = []string{defaultReason}
	}
	for _, r := range reasons {
		fmt.Fprintf(&b, "  • %s\n", r)
	}

	b.WriteString("\n━━━ LEVELS ━━━\n")
	fmt.Fprintf(&b, "✅ Take Profit: %s (+%s%%)\n", f.priceAs(sig.TakeProfit, sig.Price), pct(f.takeProfitPct))
	fmt.Fprintf(&b, "🛑 Stop Loss: %s (-%s%%)\n\n", f.priceAs(sig.StopLoss, sig.Price), pct(f.stopLossPct))
	b.WriteString(riskWarning)
	return b.String()
}

// Price renders prices of 1 or more with thousands separators and 4
// decimals, smaller prices with 8 decimals.
func (f *Formatter) Price(p float64) string {
	return f.priceAs(p, p)
}

// priceAs renders p in the format chosen by ref, so take-profit and
// stop-loss levels follow the entry price.
func (f *Formatter) priceAs(p, ref float64) string {
	if ref >= 1 {
		return "$" + f.printer.Sprintf("%.4f", p)
	}
	return fmt.Sprintf("$%.8f", p)
}

// ConfidenceBar draws floor(confidence/10) filled cells out of ten.
func ConfidenceBar(confidence int) string {
	filled := confidence / 10
	if filled < 0 {
		filled = 0
	}
	if filled > barCells {
		filled = barCells
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barCells-filled)
}

func pct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
