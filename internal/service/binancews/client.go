package binancews

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"FinSignal/internal/domain/models"
	drepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/logger"
)

// Client implements a MarketStream over the Binance futures all-market
// mini ticker stream.
type Client struct {
	url            string
	symbols        map[string]struct{}
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

var _ drepo.MarketStream = (*Client)(nil)

// New creates a stream client. An empty symbols list forwards every ticker.
func New(url string, symbols []string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) *Client {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	if pingInterval <= 0 {
		pingInterval = 3 * time.Minute
	}
	return &Client{
		url:            url,
		symbols:        set,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            l,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("binance stream connected", logger.String("url", c.url))
	return nil
}

type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Quote     string `json:"q"`
}

func (m miniTicker) toTicker() (*models.Ticker, error) {
	var (
		vals [6]float64
		err  error
	)
	for i, s := range [...]string{m.Close, m.Open, m.High, m.Low, m.Volume, m.Quote} {
		if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("%s field %d: %w", m.Symbol, i, err)
		}
	}
	return &models.Ticker{
		Symbol:      m.Symbol,
		EventTime:   time.UnixMilli(m.EventTime).UTC(),
		Close:       vals[0],
		Open:        vals[1],
		High:        vals[2],
		Low:         vals[3],
		Volume:      vals[4],
		QuoteVolume: vals[5],
	}, nil
}

// decodeFrame accepts both the array payload and single ticker objects.
func decodeFrame(b []byte) ([]miniTicker, error) {
	var arr []miniTicker
	if err := json.Unmarshal(b, &arr); err == nil {
		return arr, nil
	}
	var one miniTicker
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, err
	}
	return []miniTicker{one}, nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Read streams tickers and errors. Both channels close when the
// connection fails or ctx is done.
func (c *Client) Read(ctx context.Context) (<-chan *models.Ticker, <-chan error) {
	tickers := make(chan *models.Ticker, 1024)
	errs := make(chan error, 1)
	conn := c.current()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if conn != nil {
					_ = conn.Close()
				}
				return
			case <-done:
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}
	}()

	go func() {
		defer close(tickers)
		defer close(errs)
		defer close(done)
		if conn == nil {
			errs <- fmt.Errorf("binance stream not connected")
			return
		}
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance stream read: %w", err)
				}
				return
			}
			frame, err := decodeFrame(b)
			if err != nil {
				continue
			}
			for _, m := range frame {
				if m.Event != "" && m.Event != "24hrMiniTicker" {
					continue
				}
				if len(c.symbols) > 0 {
					if _, ok := c.symbols[m.Symbol]; !ok {
						continue
					}
				}
				t, err := m.toTicker()
				if err != nil {
					c.log.Debug("binance stream bad ticker", logger.Error(err))
					continue
				}
				select {
				case tickers <- t:
				case <-ctx.Done():
					return
				default:
					// drop on backpressure; the next frame supersedes it
				}
			}
		}
	}()

	return tickers, errs
}

// Reconnect closes, waits reconnectDelay and connects again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	t := time.NewTimer(c.reconnectDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}
	return c.Connect(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
