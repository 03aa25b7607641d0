package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestKind(t *testing.T) {
	if !KindImage.Valid() || !KindVideo.Valid() {
		t.Error("image and video should be valid kinds")
	}
	if Kind("audio").Valid() {
		t.Error("audio should not be a valid kind")
	}
	if KindImage.Dir() != "images" || KindVideo.Dir() != "videos" {
		t.Errorf("unexpected dirs: %s, %s", KindImage.Dir(), KindVideo.Dir())
	}
	if KindImage.DefaultExtension() != ".jpg" || KindVideo.DefaultExtension() != ".mp4" {
		t.Error("unexpected default extensions")
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		input   string
		want    Source
		wantErr bool
	}{
		{"pexels", SourcePexels, false},
		{"  MixKit ", SourceMixkit, false},
		{"VIDEVO", SourceVidevo, false},
		{"flickr", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSource(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSource(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSource(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAllSourcesOrder(t *testing.T) {
	all := AllSources()
	if len(all) != 6 {
		t.Fatalf("expected 6 sources, got %d", len(all))
	}
	for i, s := range all {
		if (i < 3) != s.Structured() {
			t.Errorf("source %s at %d: structured sources must come first", s, i)
		}
	}
}

func TestAssetValid(t *testing.T) {
	base := Asset{Source: SourcePexels, Kind: KindImage, DownloadURL: "https://x/a.jpg"}
	if !base.Valid() {
		t.Error("asset with url and kind should be valid")
	}
	blank := base
	blank.DownloadURL = "   "
	if blank.Valid() {
		t.Error("blank download url should be invalid")
	}
	badKind := base
	badKind.Kind = "audio"
	if badKind.Valid() {
		t.Error("unknown kind should be invalid")
	}
}

func TestResolvedExtension(t *testing.T) {
	tests := []struct {
		kind Kind
		ext  string
		want string
	}{
		{KindImage, "", ".jpg"},
		{KindVideo, ".", ".mp4"},
		{KindVideo, "webm", ".webm"},
		{KindImage, " .png ", ".png"},
	}
	for _, tt := range tests {
		a := Asset{Kind: tt.kind, Extension: tt.ext}
		if got := a.ResolvedExtension(); got != tt.want {
			t.Errorf("ResolvedExtension(%q, %q) = %q, want %q", tt.kind, tt.ext, got, tt.want)
		}
	}
}

func TestNewOutcome(t *testing.T) {
	a := Asset{Source: SourceCoverr, Kind: KindVideo, Title: "coverr-video", PageURL: "https://coverr.co", LicenseHint: "L", DownloadURL: "https://x"}
	o := NewOutcome(a)
	if o.OK || o.SHA1 != "" || o.Path != "" {
		t.Errorf("new outcome should be a failure without sha1/path: %+v", o)
	}
	if o.Source != a.Source || o.Kind != a.Kind || o.Title != a.Title || o.PageURL != a.PageURL || o.LicenseHint != a.LicenseHint {
		t.Errorf("provenance not copied: %+v", o)
	}
}

func TestDownloadOutcomeJSON(t *testing.T) {
	failed, err := json.Marshal(DownloadOutcome{Source: SourceMixkit, Kind: KindVideo, Error: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(failed)
	if strings.Contains(s, `"sha1"`) || strings.Contains(s, `"path"`) {
		t.Errorf("failed outcome must not carry sha1/path: %s", s)
	}
	if !strings.Contains(s, `"ok":false`) || !strings.Contains(s, `"page_url":""`) {
		t.Errorf("unexpected failed outcome shape: %s", s)
	}
}

func TestUnixTime(t *testing.T) {
	ts := UnixTime(time.Unix(1700000000, 500000000))
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1700000000.500000" {
		t.Errorf("unexpected encoding %s", data)
	}

	var back UnixTime
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if d := back.Time().Sub(ts.Time()); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("round trip drifted by %s", d)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &back); err == nil {
		t.Error("expected error for non-numeric timestamp")
	}
}

func TestManifestSucceeded(t *testing.T) {
	m := Manifest{Results: []DownloadOutcome{{OK: true}, {OK: false}, {OK: true}}}
	if m.Succeeded() != 2 {
		t.Errorf("Succeeded() = %d, want 2", m.Succeeded())
	}
}

func TestCredentials(t *testing.T) {
	c := Credentials{Unsplash: "u-key", Pexels: "abc", Pixabay: ""}
	if c.For(SourceUnsplash) != "u-key" || c.For(SourcePexels) != "abc" || c.For(SourceMixkit) != "" {
		t.Error("For returned the wrong key")
	}
	m := c.Masked()
	if m.Unsplash != "u-*ey" {
		t.Errorf("unexpected mask %q", m.Unsplash)
	}
	if m.Pexels != "****" {
		t.Errorf("short keys should be fully masked, got %q", m.Pexels)
	}
	if m.Pixabay != "" {
		t.Errorf("empty key should stay empty, got %q", m.Pixabay)
	}
}
