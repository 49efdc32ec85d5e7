package trendscout

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"trend-stack/internal/models"
	"trend-stack/shared/storage"
)

func TestMergeCandidates(t *testing.T) {
	tests := []struct {
		name     string
		uploads  [][]string
		trending []string
		limit    int
		want     []string
	}{
		{
			name:     "channels before trending",
			uploads:  [][]string{{"c1", "c2"}, {"c3"}},
			trending: []string{"t1", "t2"},
			limit:    10,
			want:     []string{"c1", "c2", "c3", "t1", "t2"},
		},
		{
			name:     "duplicates keep first position",
			uploads:  [][]string{{"x", "c1"}},
			trending: []string{"t1", "x", "c1"},
			limit:    10,
			want:     []string{"x", "c1", "t1"},
		},
		{
			name:     "hard cap",
			uploads:  [][]string{{"c1", "c2"}},
			trending: []string{"t1", "t2", "t3"},
			limit:    3,
			want:     []string{"c1", "c2", "t1"},
		},
		{
			name:     "cap inside channel uploads",
			uploads:  [][]string{{"c1", "c2", "c3"}},
			trending: []string{"t1"},
			limit:    2,
			want:     []string{"c1", "c2"},
		},
		{
			name:     "empty ids skipped",
			uploads:  [][]string{{""}},
			trending: []string{"t1", ""},
			limit:    5,
			want:     []string{"t1"},
		},
		{
			name:  "nothing",
			limit: 5,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeCandidates(tt.uploads, tt.trending, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mergeCandidates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectSkipsFailedChannels(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	snapshots := storage.NewSnapshotRepository(db)
	channels := storage.NewChannelRepository(db)

	if _, err := channels.TrackChannels(ctx, []string{"UC1", "UC2", "UC3"}); err != nil {
		t.Fatalf("TrackChannels() error = %v", err)
	}
	for _, s := range []models.VideoSnapshot{
		{VideoID: "t1", ViewVelocity: 50, SnapshotDate: testNow.Add(-time.Hour)},
		{VideoID: "u1a", ViewVelocity: 10, SnapshotDate: testNow.Add(-time.Hour)},
		// Outside the lookback.
		{VideoID: "old", ViewVelocity: 999, SnapshotDate: testNow.Add(-48 * time.Hour)},
	} {
		if err := snapshots.InsertSnapshot(ctx, &s); err != nil {
			t.Fatalf("InsertSnapshot() error = %v", err)
		}
	}

	provider := newFakeProvider()
	provider.uploads["UC1"] = []string{"u1a", "u1b", "u1c"}
	provider.uploads["UC3"] = []string{"u3a"}
	provider.failUpload["UC2"] = true

	cfg := testConfig().Pipeline
	cfg.UploadsPerChannel = 2
	sel, err := NewSelector(provider, snapshots, channels, cfg, fixedClock).Select(ctx)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	want := []string{"u1a", "u1b", "u3a", "t1"}
	if !reflect.DeepEqual(sel.IDs, want) {
		t.Errorf("Select() ids = %v, want %v", sel.IDs, want)
	}
	if sel.ChannelErrors != 1 || !errors.Is(sel.LastErr, ErrExternalFetch) {
		t.Errorf("ChannelErrors = %d, LastErr = %v", sel.ChannelErrors, sel.LastErr)
	}
	if sel.Trending != 2 || sel.ChannelVideos != 3 {
		t.Errorf("Trending = %d, ChannelVideos = %d, want 2 and 3", sel.Trending, sel.ChannelVideos)
	}

	// Every attempted channel moved to the back of the rotation.
	next, err := channels.NextChannels(ctx, 3)
	if err != nil {
		t.Fatalf("NextChannels() error = %v", err)
	}
	for _, ch := range next {
		if ch.LastSampledAt == nil || !ch.LastSampledAt.Equal(testNow) {
			t.Errorf("channel %s LastSampledAt = %v, want %v", ch.ChannelID, ch.LastSampledAt, testNow)
		}
	}
}

func TestSelectRotatesChannels(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	snapshots := storage.NewSnapshotRepository(db)
	channels := storage.NewChannelRepository(db)
	if _, err := channels.TrackChannels(ctx, []string{"UC1", "UC2", "UC3"}); err != nil {
		t.Fatalf("TrackChannels() error = %v", err)
	}

	provider := newFakeProvider()
	for _, ch := range []string{"UC1", "UC2", "UC3"} {
		provider.uploads[ch] = []string{ch + "-video"}
	}

	cfg := testConfig().Pipeline
	cfg.MaxChannels = 2

	now := testNow
	clock := func() time.Time { return now }
	selector := NewSelector(provider, snapshots, channels, cfg, clock)

	first, err := selector.Select(ctx)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	now = now.Add(time.Hour)
	second, err := selector.Select(ctx)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if !reflect.DeepEqual(first.IDs, []string{"UC1-video", "UC2-video"}) {
		t.Errorf("first run = %v", first.IDs)
	}
	// UC3 was never sampled so it leads the second run.
	if !reflect.DeepEqual(second.IDs, []string{"UC3-video", "UC1-video"}) {
		t.Errorf("second run = %v", second.IDs)
	}
}

func TestSelectZeroCapsDisableSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	snapshots := storage.NewSnapshotRepository(db)
	channels := storage.NewChannelRepository(db)
	if _, err := channels.TrackChannels(ctx, []string{"UC1"}); err != nil {
		t.Fatalf("TrackChannels() error = %v", err)
	}
	s := models.VideoSnapshot{VideoID: "t1", ViewVelocity: 50, SnapshotDate: testNow.Add(-time.Hour)}
	if err := snapshots.InsertSnapshot(ctx, &s); err != nil {
		t.Fatalf("InsertSnapshot() error = %v", err)
	}
	provider := newFakeProvider()
	provider.uploads["UC1"] = []string{"u1"}

	tests := []struct {
		name     string
		trending int
		channels int
		want     []string
	}{
		{"trending off", 0, 10, []string{"u1"}},
		{"channels off", 100, 0, []string{"t1"}},
		{"both off", 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig().Pipeline
			cfg.TrendingLimit = tt.trending
			cfg.MaxChannels = tt.channels
			sel, err := NewSelector(provider, snapshots, channels, cfg, fixedClock).Select(ctx)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if !reflect.DeepEqual(sel.IDs, tt.want) {
				t.Errorf("Select() ids = %v, want %v", sel.IDs, tt.want)
			}
		})
	}
}
