package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"FinSignal/internal/domain/models"
	domsvc "FinSignal/internal/domain/service"
	"FinSignal/pkg/logger"
)

var _ domsvc.Notifier = (*Console)(nil)

// Console prints the message and logs the signal summary. It never fails
// unless the writer does.
type Console struct {
	w   io.Writer
	log *logger.Logger
}

func NewConsole(w io.Writer, l *logger.Logger) *Console {
	if w == nil {
		w = os.Stdout
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Console{w: w, log: l}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Notify(_ context.Context, sig *models.ConsolidatedSignal, text string) error {
	c.log.Info("signal",
		logger.String("symbol", sig.Symbol),
		logger.String("side", string(sig.Side)),
		logger.Int("confidence", sig.Confidence),
		logger.Float64("price", sig.Price))
	if _, err := fmt.Fprintf(c.w, "%s\n\n", text); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}
