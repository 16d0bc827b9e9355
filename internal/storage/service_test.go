package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/storage/config"
	"github.com/xtxerr/gridpower/internal/storage/query"
	"github.com/xtxerr/gridpower/internal/storage/types"
	testutil "github.com/xtxerr/gridpower/internal/testing"
)

const body = "1700000000 3.3 Voltage\n1700000000 1.5 Current\nbadrow\n"

func newRunning(t *testing.T, mutate func(*config.Config)) *Service {
	t.Helper()

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	svc, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { svc.Stop() })

	return svc
}

func dayWindow(t *testing.T) query.Window {
	t.Helper()

	w, err := query.ParseWindow("2023-11-14T00:00:00Z", "", "P1D")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	return w
}

func TestService_New(t *testing.T) {
	svc, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.IsRunning() {
		t.Error("service should not be running before Start()")
	}

	cfg := config.DefaultConfig()
	cfg.Ingestion.ChunkSize = 0
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestService_StartStop(t *testing.T) {
	svc, err := New(config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(); err == nil {
		t.Error("expected error starting twice")
	}
	if !svc.IsRunning() {
		t.Error("service should be running after Start()")
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}

	if _, err := svc.Ingest(context.Background(), strings.NewReader(body), "test"); !errors.Is(err, errors.ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	if _, err := svc.Query(context.Background(), dayWindow(t)); !errors.Is(err, errors.ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	if _, err := svc.NewSession("test"); !errors.Is(err, errors.ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestService_IngestAndQuery(t *testing.T) {
	svc := newRunning(t, nil)
	ctx := context.Background()

	stats, err := svc.Ingest(ctx, strings.NewReader(body), "test")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stats.Accepted != 2 || stats.Rejected != 1 {
		t.Errorf("expected 2 accepted and 1 rejected, got %+v", stats)
	}

	res, err := svc.Query(ctx, dayWindow(t))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Power) != 1 || res.Power[0].Value != "4.95" {
		t.Errorf("expected power 4.95, got %+v", res.Power)
	}

	rejects := svc.Rejections(10)
	if len(rejects) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(rejects))
	}
	if rejects[0].Row != "badrow" || rejects[0].Session != stats.ID {
		t.Errorf("unexpected rejection: %+v", rejects[0])
	}
	if got := svc.SessionRejections(stats.ID, 0); len(got) != 1 {
		t.Errorf("expected 1 session rejection, got %d", len(got))
	}

	st := svc.Stats()
	if st.Ingestion.RowsAccepted != 2 || st.Ingestion.RowsRejected != 1 {
		t.Errorf("unexpected ingestion stats: %+v", st.Ingestion)
	}
	if st.Store.Readings[types.ChannelCurrent] != 1 || st.Store.Readings[types.ChannelVoltage] != 1 {
		t.Errorf("unexpected store stats: %+v", st.Store)
	}
	if st.Quarantine.Count != 1 {
		t.Errorf("expected 1 quarantined row, got %d", st.Quarantine.Count)
	}
	if !st.Running || st.Uptime <= 0 {
		t.Errorf("expected running with uptime, got %+v", st)
	}

	if _, err := json.Marshal(st); err != nil {
		t.Errorf("stats should marshal: %v", err)
	}
}

func TestService_DailyAndExport(t *testing.T) {
	svc := newRunning(t, nil)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, strings.NewReader(body), "test"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	summaries, err := svc.Daily(ctx, dayWindow(t))
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if !summaries[0].HasPercentiles() {
		t.Error("expected percentiles with default config")
	}

	var buf bytes.Buffer
	n, err := svc.Export(ctx, dayWindow(t), &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 || buf.Len() == 0 {
		t.Errorf("expected 2 rows exported, got %d (%d bytes)", n, buf.Len())
	}
}

func TestService_QuarantineCapacity(t *testing.T) {
	svc := newRunning(t, func(c *config.Config) { c.Quarantine.Capacity = 2 })

	rows := "a\nb\nc\n"
	if _, err := svc.Ingest(context.Background(), strings.NewReader(rows), "test"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	rejects := svc.Rejections(0)
	if len(rejects) != 2 {
		t.Fatalf("expected 2 rejections, got %d", len(rejects))
	}
	if rejects[0].Row != "c" || rejects[1].Row != "b" {
		t.Errorf("expected newest first, got %q %q", rejects[0].Row, rejects[1].Row)
	}
}

func TestService_SweepQuarantine(t *testing.T) {
	svc := newRunning(t, func(c *config.Config) { c.Quarantine.MaxAge = time.Hour })

	if _, err := svc.Ingest(context.Background(), strings.NewReader("badrow\n"), "test"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if n := svc.sweepQuarantine(time.Now()); n != 0 {
		t.Errorf("expected nothing evicted, got %d", n)
	}
	if n := svc.sweepQuarantine(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Errorf("expected 1 evicted, got %d", n)
	}
	if len(svc.Rejections(0)) != 0 {
		t.Error("expected empty quarantine")
	}
}

func TestService_ConcurrentSessions(t *testing.T) {
	svc := newRunning(t, nil)
	gt := testutil.NewGoroutineTest(t)

	for i := 0; i < 4; i++ {
		base := 1700000000 + int64(i)*1000
		gt.Go(func() error {
			var b strings.Builder
			for j := int64(0); j < 50; j++ {
				fmt.Fprintf(&b, "%d 1.0 Current\n", base+j)
			}
			_, err := svc.Ingest(context.Background(), testutil.NewChunkedReader(b.String(), 7, 13, 64), "test")
			return err
		})
	}
	gt.Wait()

	if got := svc.Stats().Ingestion.SessionsActive; got != 0 {
		t.Errorf("expected no active sessions, got %d", got)
	}
	if got := svc.Stats().Ingestion.SessionsStarted; got != 4 {
		t.Errorf("expected 4 sessions, got %d", got)
	}
}
