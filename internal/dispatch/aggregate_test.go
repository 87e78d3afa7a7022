package dispatch

import (
	"testing"

	"bandwatch/internal/alerts"
	"bandwatch/internal/logging"
	"bandwatch/internal/model"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]model.ChannelResult{
		{Channel: model.ChannelPage, Success: true},
		{Channel: model.ChannelEmail, Success: false, Detail: "not enabled"},
		{Channel: model.ChannelWebhook, Success: true},
	})
	if s.Success != 2 || s.Total != 3 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if empty := Summarize(nil); empty.Total != 0 || empty.Success != 0 {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}
}

func TestAggregatorRecordsRecent(t *testing.T) {
	recent := alerts.NewStore(5)
	agg := NewAggregator(logging.Discard(), nil, recent)
	ev := model.AlertEvent{ID: 9, RuleID: 3, Kind: model.KindDeviceOffline}
	s := agg.Record(ev, []model.ChannelResult{{Channel: model.ChannelPage, Success: true}})
	if s.Success != 1 || s.Total != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	got := recent.List(0)
	if len(got) != 1 || got[0].EventID != 9 || got[0].RuleID != 3 || got[0].Kind != model.KindDeviceOffline {
		t.Fatalf("unexpected recent entry: %+v", got)
	}
}
