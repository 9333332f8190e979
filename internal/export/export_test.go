package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mvanhorn/capscribe/internal/cues"
)

func TestWriter_Save(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "transcripts"))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	path, err := w.Save("lecture.txt", "Hello world.")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "Hello world." {
		t.Errorf("file contents = %q", data)
	}
}

func timedCues() []cues.Cue {
	return []cues.Cue{
		{ID: "transcript-cue-0", Seconds: 1, Text: "0:01\nHello everyone"},
		{ID: "transcript-cue-1", Seconds: 65, Text: "1:05\nand welcome back."},
		{ID: "transcript-cue-2", Seconds: 3725, Text: "1:02:05\nThat concludes the lecture."},
	}
}

func TestSRTFromCues(t *testing.T) {
	got := SRTFromCues(timedCues())

	want := "1\n00:00:01,000 --> 00:01:05,000\nHello everyone\n\n" +
		"2\n00:01:05,000 --> 01:02:05,000\nand welcome back.\n\n" +
		"3\n01:02:05,000 --> 01:02:08,000\nThat concludes the lecture.\n\n"
	if got != want {
		t.Errorf("SRTFromCues:\n got %q\nwant %q", got, want)
	}
}

func TestSRTFromCues_SkipsUntimedCues(t *testing.T) {
	cs := []cues.Cue{
		{ID: "custom-cue-0", Seconds: 0, Text: "no timestamp here"},
		{ID: "custom-cue-1", Seconds: 2, Text: "0:02\ntimed cue"},
	}

	got := SRTFromCues(cs)
	if strings.Contains(got, "no timestamp here") {
		t.Errorf("untimed cue leaked into SRT:\n%s", got)
	}
	if !strings.Contains(got, "timed cue") {
		t.Errorf("timed cue missing from SRT:\n%s", got)
	}
}

func TestHTMLFromText(t *testing.T) {
	page, err := HTMLFromText("Week 3 Lecture", "First paragraph.\n\nSecond paragraph.")
	if err != nil {
		t.Fatalf("HTMLFromText: %v", err)
	}

	for _, want := range []string{
		"<title>Week 3 Lecture</title>",
		"<h1", "Week 3 Lecture",
		"<p>First paragraph.</p>",
		"<p>Second paragraph.</p>",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q:\n%s", want, page)
		}
	}
}

func TestSaveFormats(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	paths, err := w.SaveFormats("lecture.txt", []string{"txt", "srt", "html"},
		"Lecture", "Hello.", timedCues())
	if err != nil {
		t.Fatalf("SaveFormats: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v, want srt and html", paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}

func TestSaveFormats_UnknownFormat(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if _, err := w.SaveFormats("x.txt", []string{"pdf"}, "t", "x", nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
