package clickhouse

import (
	"net/url"
	"testing"
	"time"
)

func TestDSN(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithHost("ch.local"),
		WithPort(9440),
		WithDatabase("finsignal"),
		WithCredentials("svc", "p@ss"),
		WithTimeouts(2*time.Second, 0, 0),
		WithMaxExecutionTime(time.Minute),
		WithAsyncInsert(true, true),
	} {
		opt(&cfg)
	}

	u, err := url.Parse(DSN(cfg))
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9440" || u.Path != "/finsignal" {
		t.Fatalf("unexpected dsn %s", u)
	}
	if pw, _ := u.User.Password(); u.User.Username() != "svc" || pw != "p@ss" {
		t.Fatalf("credentials not encoded: %s", u.User)
	}
	q := u.Query()
	if q.Get("dial_timeout") != "2s" || q.Get("read_timeout") != "10s" {
		t.Fatalf("unexpected timeouts %v", q)
	}
	if q.Get("max_execution_time") != "60" || q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "1" {
		t.Fatalf("unexpected settings %v", q)
	}
	if q.Has("write_timeout") {
		t.Fatalf("write_timeout must stay client-side")
	}
}

func TestDSNHTTP(t *testing.T) {
	cfg := defaultConfig()
	WithHost("localhost")(&cfg)
	WithHTTP(true)(&cfg)
	u, err := url.Parse(DSN(cfg))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "http" || u.Path != "/default" {
		t.Fatalf("unexpected http dsn %s", u)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected host error")
	}
}
