package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name, path, wd, want string
	}{
		{"relative", "a.mkv", "/home/u", "/home/u/a.mkv"},
		{"absolute", "/m/a.mkv", "/home/u", "/m/a.mkv"},
		{"url", "https://x/y.mp4", "/home/u", "https://x/y.mp4"},
		{"no working dir", "a.mkv", "", "a.mkv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.path, tt.wd))
		})
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/v.mp4"))
	assert.True(t, IsURL("ytdl://abc"))
	assert.False(t, IsURL("/media/v.mp4"))
	assert.False(t, IsURL(`C:\media\v.mp4`))
}

func TestDirFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter DirFilter
		path   string
		want   bool
	}{
		{"no monitored", DirFilter{}, "/anything/x.mkv", true},
		{"monitored match", DirFilter{Monitored: []string{"/media"}}, "/media/tv/x.mkv", true},
		{"monitored miss", DirFilter{Monitored: []string{"/media"}}, "/home/u/x.mkv", false},
		{"excluded wins", DirFilter{Monitored: []string{"/media"}, Excluded: []string{"/media/private"}}, "/media/private/x.mkv", false},
		{"excluded only", DirFilter{Excluded: []string{"/tmp"}}, "/tmp/x.mkv", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Eligible(tt.path))
		})
	}
}

func TestSnapshotComplete(t *testing.T) {
	var s Snapshot
	assert.False(t, s.Complete())
	p, wd, paused, pct, dur := "a.mkv", "/m", false, 1.0, 2.0
	s = Snapshot{Path: &p, WorkingDirectory: &wd, Paused: &paused, PercentPos: &pct, Duration: &dur}
	assert.True(t, s.Complete())
	assert.Equal(t, "/m/a.mkv", s.ResolvedPath())
}
