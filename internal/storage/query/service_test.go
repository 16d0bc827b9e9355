package query

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/storage/parquet"
	"github.com/xtxerr/gridpower/internal/storage/types"
	"github.com/xtxerr/gridpower/internal/store"
)

const day = 86400

func seed(t *testing.T, readings ...types.Reading) *store.Store {
	t.Helper()

	st := store.New()
	for _, r := range readings {
		if _, err := st.Upsert(r.Channel, r.Time, r.Stored()); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return st
}

func mustWindow(t *testing.T, from, to string) Window {
	t.Helper()

	w, err := ParseWindow(from, to, "")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	return w
}

func TestService_QueryEndToEnd(t *testing.T) {
	st := seed(t,
		types.Reading{Time: 1700000000, Channel: types.ChannelVoltage, Value: 3.3},
		types.Reading{Time: 1700000000, Channel: types.ChannelCurrent, Value: 1.5},
	)
	svc := New(st, Options{})

	res, err := svc.Query(context.Background(), mustWindow(t, "2023-11-14T00:00:00Z", "2023-11-15T00:00:00Z"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d: %s", len(got), data)
	}

	// current, voltage, then power
	if got[0]["value"] != 1.5 || got[1]["value"] != 3.3 {
		t.Errorf("unexpected raw points: %s", data)
	}
	if got[0]["time"] != "2023-11-14T22:13:20.000Z" {
		t.Errorf("expected ISO time, got %v", got[0]["time"])
	}
	if got[2]["name"] != "Power" || got[2]["value"] != "4.95" {
		t.Errorf("expected Power 4.95, got %v", got[2])
	}
	if got[2]["time"] != "2023-11-14T00:00:00.000Z" {
		t.Errorf("expected day start, got %v", got[2]["time"])
	}

	stats := svc.Stats()
	if stats.QueriesExecuted != 1 || stats.PointsReturned != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestService_QueryBoundsExclusive(t *testing.T) {
	st := seed(t,
		types.Reading{Time: 1700000000, Channel: types.ChannelCurrent, Value: 1},
		types.Reading{Time: 1700000005, Channel: types.ChannelCurrent, Value: 2},
		types.Reading{Time: 1700000010, Channel: types.ChannelCurrent, Value: 3},
	)
	svc := New(st, Options{})

	// 22:13:20 and 22:13:30 are 1700000000 and 1700000010
	res, err := svc.Query(context.Background(), mustWindow(t, "2023-11-14T22:13:20Z", "2023-11-14T22:13:30Z"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if len(res.Current) != 1 || res.Current[0].Value != 2 {
		t.Errorf("expected only the inner reading, got %+v", res.Current)
	}
	if len(res.Power) != 0 {
		t.Errorf("expected no power without voltage, got %+v", res.Power)
	}
}

func TestService_QueryEmpty(t *testing.T) {
	svc := New(store.New(), Options{})

	res, err := svc.Query(context.Background(), mustWindow(t, "2023-11-14T00:00:00Z", "2023-11-14T00:00:00Z"))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	data, _ := json.Marshal(res)
	if string(data) != "[]" {
		t.Errorf("expected [], got %s", data)
	}
}

func TestService_QueryInvalidWindow(t *testing.T) {
	svc := New(store.New(), Options{})

	w := Window{
		From: time.Unix(1700000010, 0),
		To:   time.Unix(1700000000, 0),
	}
	if _, err := svc.Query(context.Background(), w); !errors.Is(err, errors.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if svc.Stats().Errors != 1 {
		t.Errorf("expected 1 error, got %d", svc.Stats().Errors)
	}
}

func TestService_QueryCanceled(t *testing.T) {
	svc := New(store.New(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Query(ctx, mustWindow(t, "2023-11-14T00:00:00Z", "2023-11-15T00:00:00Z"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestService_Daily(t *testing.T) {
	base := int64(1699920000) // 2023-11-14T00:00:00Z
	st := seed(t,
		types.Reading{Time: base + 10, Channel: types.ChannelCurrent, Value: 1},
		types.Reading{Time: base + 20, Channel: types.ChannelCurrent, Value: 3},
		types.Reading{Time: base + 30, Channel: types.ChannelVoltage, Value: 230},
		types.Reading{Time: base + day + 10, Channel: types.ChannelCurrent, Value: 5},
	)

	tests := []struct {
		name        string
		percentiles bool
	}{
		{"without percentiles", false},
		{"with percentiles", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(st, Options{Percentiles: tt.percentiles})

			summaries, err := svc.Daily(context.Background(), mustWindow(t, "2023-11-14T00:00:00Z", "2023-11-16T00:00:00Z"))
			if err != nil {
				t.Fatalf("Daily: %v", err)
			}
			if len(summaries) != 3 {
				t.Fatalf("expected 3 summaries, got %d", len(summaries))
			}

			first := summaries[0]
			if first.Channel != types.ChannelCurrent || first.Count != 2 || first.Mean != 2 {
				t.Errorf("unexpected first summary: %+v", first)
			}
			if first.HasPercentiles() != tt.percentiles {
				t.Errorf("expected percentiles=%v, got %+v", tt.percentiles, first)
			}
			if summaries[2].Day != "2023-11-15T00:00:00.000Z" {
				t.Errorf("expected second day last, got %s", summaries[2].Day)
			}
			if first.First != "2023-11-14T00:00:10.000Z" || first.Last != "2023-11-14T00:00:20.000Z" {
				t.Errorf("expected span 00:00:10 to 00:00:20, got %s to %s", first.First, first.Last)
			}
			if tt.percentiles && first.P99 == nil {
				t.Error("expected P99")
			}

			stats := svc.Stats()
			if stats.BucketsAggregated != 3 {
				t.Errorf("expected 3 buckets aggregated, got %d", stats.BucketsAggregated)
			}
			if stats.ReadingsAggregated != 4 {
				t.Errorf("expected 4 readings aggregated, got %d", stats.ReadingsAggregated)
			}
		})
	}
}

func TestService_Export(t *testing.T) {
	st := seed(t,
		types.Reading{Time: 1700000000, Channel: types.ChannelCurrent, Value: 1.5},
		types.Reading{Time: 1700000001, Channel: types.ChannelCurrent, Value: 1.6},
		types.Reading{Time: 1700000000, Channel: types.ChannelVoltage, Value: 3.3},
	)
	svc := New(st, Options{ExportCompression: parquet.CompressionSnappy})

	var buf bytes.Buffer
	n, err := svc.Export(context.Background(), mustWindow(t, "2023-11-14T00:00:00Z", "2023-11-15T00:00:00Z"), &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}

	readings, err := parquet.ReadReadings(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("ReadReadings: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(readings))
	}
	if readings[2].Channel != types.ChannelVoltage {
		t.Errorf("expected voltage last, got %v", readings[2].Channel)
	}

	if svc.Stats().Exports != 1 {
		t.Errorf("expected 1 export, got %d", svc.Stats().Exports)
	}
}

func TestResultMarshalOrder(t *testing.T) {
	res := Result{
		Current: []RawPoint{{Time: "a", Value: 1}},
		Voltage: []RawPoint{{Time: "b", Value: 2}},
		Power:   []types.PowerPoint{{Time: "c", Name: types.PowerName, Value: "2.00"}},
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	s := string(data)
	if !(strings.Index(s, `"a"`) < strings.Index(s, `"b"`) && strings.Index(s, `"b"`) < strings.Index(s, `"c"`)) {
		t.Errorf("unexpected order: %s", s)
	}
}
