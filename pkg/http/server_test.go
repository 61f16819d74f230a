package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
}

func TestServerStartServeStop(t *testing.T) {
	s := NewServer(pingHandler{}, WithHost("127.0.0.1"), WithPort(0), WithTimeouts(0, 0, time.Second))
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Addr() == "" {
		t.Fatalf("addr empty after start")
	}

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + s.Addr() + "/ping")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestServerStartReportsBindFailure(t *testing.T) {
	first := NewServer(nil, WithHost("127.0.0.1"), WithPort(0), WithMetricsPath(""))
	if err := first.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer first.Stop(context.Background())

	_, p, err := net.SplitHostPort(first.Addr())
	if err != nil {
		t.Fatalf("split %s: %v", first.Addr(), err)
	}
	port, _ := strconv.Atoi(p)
	second := NewServer(nil, WithHost("127.0.0.1"), WithPort(port), WithMetricsPath(""))
	if err := second.Start(); err == nil {
		second.Stop(context.Background())
		t.Fatalf("expected bind error on %s", first.Addr())
	}
}
