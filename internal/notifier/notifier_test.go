package notifier

import (
	"context"
	"errors"
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TriggerBot/internal/model"
)

func newTestTelegram(t *testing.T, h http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("TOKEN", "42", "", nil)
	n.BaseURL = srv.URL
	n.MaxTries = 3
	n.Backoff = time.Millisecond
	return n
}

func TestTelegram_NotifyEscapesAndRetries(t *testing.T) {
	var calls atomic.Int32
	var got map[string]string
	n := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"ok":true}`))
	})

	ok := n.Notify(context.Background(), "Bought", "price < 100 & rising")
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>Bought</b>\nprice &lt; 100 &amp; rising", got["text"])
}

func TestTelegram_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	n := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	assert.False(t, n.Notify(context.Background(), "s", "b"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTelegram_PollOnceDispatchesCommands(t *testing.T) {
	var replies []string
	n := newTestTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":7,"message":{"text":" /fund ","chat":{"id":42}}},
				{"update_id":8,"message":{"text":"/cycle","chat":{"id":99}}}
			]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var p map[string]string
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &p)
			replies = append(replies, p["text"])
			w.Write([]byte(`{"ok":true}`))
		}
	})

	var seen []string
	next, err := n.pollOnce(context.Background(), n.Client, 0, func(_ context.Context, cmd string) string {
		seen = append(seen, cmd)
		return "available 5 < 10"
	})
	require.NoError(t, err)
	assert.Equal(t, 9, next)
	assert.Equal(t, []string{"/fund"}, seen)
	require.Len(t, replies, 1)
	assert.Equal(t, "<pre>available 5 &lt; 10</pre>", replies[0])
}

type stubNotifier struct {
	ok    bool
	calls atomic.Int32
}

func (s *stubNotifier) Notify(context.Context, string, string) bool {
	s.calls.Add(1)
	return s.ok
}

func TestMulti(t *testing.T) {
	a, b := &stubNotifier{ok: false}, &stubNotifier{ok: true}
	assert.True(t, Multi{a, b}.Notify(context.Background(), "s", "b"))
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())

	assert.False(t, Multi{a}.Notify(context.Background(), "s", "b"))
	assert.False(t, Multi{}.Notify(context.Background(), "s", "b"))
}

func TestEmail(t *testing.T) {
	n := NewEmailNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "bot@example.com", To: []string{"ops@example.com"}}, nil)
	var sent []byte
	n.send = func(_ context.Context, cfg SMTPConfig, msg []byte) error {
		assert.Equal(t, "bot@example.com", cfg.From)
		sent = msg
		return nil
	}
	require.True(t, n.Notify(context.Background(), "Low funds", "available 10\nthreshold 100"))
	msg := string(sent)
	assert.Contains(t, msg, "Subject: Low funds\r\n")
	assert.Contains(t, msg, "To: ops@example.com\r\n")
	assert.True(t, strings.HasSuffix(msg, "available 10\r\nthreshold 100"))

	n.send = func(context.Context, SMTPConfig, []byte) error { return errors.New("refused") }
	assert.False(t, n.Notify(context.Background(), "x", "y"))

	incomplete := NewEmailNotifier(SMTPConfig{Host: "smtp.example.com"}, nil)
	assert.False(t, incomplete.Notify(context.Background(), "x", "y"))
}

// smtpListener serves each accepted connection with handle until the test ends.
func smtpListener(t *testing.T, handle func(net.Conn)) SMTPConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return SMTPConfig{Host: host, Port: p, From: "bot@example.com", To: []string{"ops@example.com"}}
}

func TestEmail_SilentServerHonoursDeadline(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	cfg := smtpListener(t, func(net.Conn) { <-done })
	n := NewEmailNotifier(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.False(t, n.Notify(ctx, "Low funds", "body"))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestEmail_DeliversOverSMTP(t *testing.T) {
	received := make(chan string, 1)
	cfg := smtpListener(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		reply := func(s string) { io.WriteString(conn, s+"\r\n") }
		reply("220 test ESMTP")
		var data strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					received <- data.String()
					reply("250 queued")
					continue
				}
				data.WriteString(line)
				continue
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 test")
			case cmd == "DATA":
				inData = true
				reply("354 go ahead")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 ok")
			}
		}
	})

	n := NewEmailNotifier(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, n.Notify(ctx, "Bought", "qty 0.5"))
	select {
	case msg := <-received:
		assert.Contains(t, msg, "Subject: Bought\r\n")
		assert.Contains(t, msg, "qty 0.5")
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestFormatTrade(t *testing.T) {
	subject, body := FormatTrade(TradeReport{
		Side:      model.SideBuy,
		Pair:      "BTC/JPY",
		Reason:    "price_drop",
		OrderID:   "abc",
		Qty:       decimal.RequireFromString("0.001"),
		Price:     decimal.NewFromInt(15000000),
		Cost:      decimal.NewFromInt(15000),
		Fee:       decimal.RequireFromString("15.5"),
		Available: decimal.NewFromInt(85000),
		Time:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	assert.Equal(t, "Bought 0.001 BTC/JPY @ 15000000", subject)
	assert.Contains(t, body, "Cost: 15000.00 (fee 15.50)")
	assert.Contains(t, body, "Fund: available 85000.00, reserved 0.00")
}

func TestFormatPositions(t *testing.T) {
	st := model.NewBotState()
	st.AppendPosition(model.Position{Side: model.SideBuy, Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1)})
	st.WatchReference = decimal.NewNullDecimal(decimal.NewFromInt(100))

	out := FormatPositions(st, decimal.NewFromInt(110))
	assert.Contains(t, out, "Positions: 1")
	assert.Contains(t, out, "Watch reference: 100")
	assert.Contains(t, out, "buy 1 @ 100 (10.00%)")
}
