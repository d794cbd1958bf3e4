package stats_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/torosent/pingmill/internal/stats"
)

func TestStatusVars(t *testing.T) {
	r, err := stats.NewReceiver(stats.Options{
		Windows:        1,
		WindowDuration: 20 * time.Millisecond,
		Capacity:       64,
		HTTPListen:     "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	r.AddInterest(stats.Count(stats.MetricOk))
	r.AddInterest(stats.Percentile(stats.MetricOk))

	sender := r.GetSender()
	for i := 0; i < 10; i++ {
		if err := sender.Send(stats.Sample{Start: 0, Stop: 5000, Metric: stats.MetricOk}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	r.RunOnce(context.Background())

	resp, err := http.Get(fmt.Sprintf("http://%s/vars", r.StatusAddr()))
	if err != nil {
		t.Fatalf("GET /vars: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	if got := gjson.GetBytes(body, "combined_count").Uint(); got != 10 {
		t.Errorf("combined_count = %d, want 10", got)
	}
	if gjson.GetBytes(body, "run_id").String() == "" {
		t.Error("run_id missing from /vars")
	}
	if got := gjson.GetBytes(body, "windows_completed").Int(); got != 1 {
		t.Errorf("windows_completed = %d, want 1", got)
	}
	if got := gjson.GetBytes(body, "queue_capacity").Int(); got != 64 {
		t.Errorf("queue_capacity = %d, want 64", got)
	}
	if got := gjson.GetBytes(body, "percentiles.p50").Uint(); got == 0 {
		t.Error("expected non-zero p50 in /vars")
	}
}

func TestStatusWebsocketPushesSnapshots(t *testing.T) {
	r, err := stats.NewReceiver(stats.Options{
		Windows:        1,
		WindowDuration: 50 * time.Millisecond,
		Capacity:       64,
		HTTPListen:     "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	r.AddInterest(stats.Count(stats.MetricOk))

	url := fmt.Sprintf("ws://%s/ws", r.StatusAddr())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	defer conn.Close()

	sender := r.GetSender()
	for i := 0; i < 3; i++ {
		if err := sender.Send(stats.Sample{Start: 0, Stop: 1000, Metric: stats.MetricOk}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	go r.RunOnce(context.Background())

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if got := gjson.GetBytes(msg, "combined_count").Uint(); got != 3 {
		t.Errorf("pushed combined_count = %d, want 3", got)
	}
}
