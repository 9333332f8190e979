package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeFrame simulates a lazily rendered transcript: cues appear as the
// scroller advances, and the scroller wedges at the bottom once every
// cue has been revealed.
type fakeFrame struct {
	mu       sync.Mutex
	cueTexts []string // full cue list, revealed by scroll position
	height   float64
	client   float64
	width    float64
	top      float64
	// bare renders the cues as an anonymous list: no cue ids, no known
	// container selector, only the timestamp text to go on.
	bare bool
}

func (f *fakeFrame) revealed() int {
	// One cue per 100px of scroll progress, at least one.
	n := int(f.top/100) + 1
	if n > len(f.cueTexts) {
		n = len(f.cueTexts)
	}
	return n
}

func (f *fakeFrame) HTML(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var b strings.Builder
	if f.bare {
		b.WriteString(`<ul class="sidebar">`)
		for i := 0; i < f.revealed(); i++ {
			fmt.Fprintf(&b, `<li>%s</li>`, f.cueTexts[i])
		}
	} else {
		b.WriteString(`<ul id="transcript-list">`)
		for i := 0; i < f.revealed(); i++ {
			fmt.Fprintf(&b, `<li id="transcript-cue-%d">%s</li>`, i, f.cueTexts[i])
		}
	}
	b.WriteString(`</ul>`)
	return b.String(), nil
}

func (f *fakeFrame) ScrollMetrics(context.Context) (Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Metrics{Top: f.top, Height: f.height, Client: f.client, Width: f.width}, nil
}

func (f *fakeFrame) ScrollBy(_ context.Context, px float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.top += px
	if max := f.height - f.client; f.top > max {
		f.top = max
	}
	return nil
}

func (f *fakeFrame) ScrollToTop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.top = 0
	return nil
}

type memSaver struct {
	fileName string
	text     string
}

func (s *memSaver) Save(fileName, text string) (string, error) {
	s.fileName = fileName
	s.text = text
	return "/tmp/" + fileName, nil
}

func fastConfig(saver Saver) Config {
	return Config{
		Tick:            time.Millisecond,
		InitialSettle:   time.Millisecond,
		CompletionDelay: time.Millisecond,
		Timeout:         5 * time.Second,
		Saver:           saver,
	}
}

func TestRun_CapturesToEnd(t *testing.T) {
	f := &fakeFrame{
		cueTexts: []string{"0:01\nHello", "0:01\nHello", "0:05\nworld."},
		height:   600, client: 200, width: 400,
	}
	saver := &memSaver{}

	res, err := NewDriver(fastConfig(saver)).Run(context.Background(), f, "lecture_one")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Reason != "reached-end" {
		t.Errorf("Reason = %q, want reached-end", res.Reason)
	}
	if res.FileName != "lecture_one.txt" {
		t.Errorf("FileName = %q", res.FileName)
	}
	if res.Text != "Hello world." {
		t.Errorf("Text = %q, want %q", res.Text, "Hello world.")
	}
	if res.Segments != 3 {
		t.Errorf("Segments = %d, want 3", res.Segments)
	}
	if saver.fileName != "lecture_one.txt" || saver.text != res.Text {
		t.Errorf("saver got (%q, %q)", saver.fileName, saver.text)
	}
}

func TestRun_TimestampListFallback(t *testing.T) {
	// Neither cue ids nor a known container selector: the list is found
	// by its timestamp text alone.
	f := &fakeFrame{
		cueTexts: []string{"0:01\nHello", "0:01\nHello", "0:05\nworld."},
		height:   600, client: 200, width: 400,
		bare: true,
	}
	saver := &memSaver{}

	res, err := NewDriver(fastConfig(saver)).Run(context.Background(), f, "lecture_one")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "Hello world." {
		t.Errorf("Text = %q, want %q", res.Text, "Hello world.")
	}
	if res.Reason != "reached-end" {
		t.Errorf("Reason = %q, want reached-end", res.Reason)
	}
}

func TestRun_KeepsExistingTxtExtension(t *testing.T) {
	f := &fakeFrame{
		cueTexts: []string{"0:01\nHello"},
		height:   300, client: 200, width: 400,
	}
	saver := &memSaver{}

	res, err := NewDriver(fastConfig(saver)).Run(context.Background(), f, "lecture.txt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FileName != "lecture.txt" {
		t.Errorf("FileName = %q, want %q", res.FileName, "lecture.txt")
	}
	if saver.fileName != "lecture.txt" {
		t.Errorf("saver got %q", saver.fileName)
	}
}

func TestRun_ReportsStateTransitions(t *testing.T) {
	f := &fakeFrame{
		cueTexts: []string{"0:01\nfirst cue", "0:08\nsecond cue."},
		height:   400, client: 200, width: 300,
	}

	var mu sync.Mutex
	var states []State
	cfg := fastConfig(nil)
	cfg.Report = func(p Progress) {
		mu.Lock()
		states = append(states, p.State)
		mu.Unlock()
	}

	if _, err := NewDriver(cfg).Run(context.Background(), f, "x"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateProcessing, StateFormatting, StateSaving, StateComplete}
	tail := states[len(states)-4:]
	for i, s := range tail {
		if s != want[i] {
			t.Fatalf("finishing states = %v, want %v", tail, want)
		}
	}
	if states[0] != StateCapturing {
		t.Errorf("first state = %q, want capturing", states[0])
	}
}

func TestRun_ContainerNotFound(t *testing.T) {
	f := &emptyFrame{}

	_, err := NewDriver(fastConfig(nil)).Run(context.Background(), f, "x")
	if !errors.Is(err, ErrContainerNotFound) {
		t.Fatalf("err = %v, want ErrContainerNotFound", err)
	}
}

type emptyFrame struct{}

func (emptyFrame) HTML(context.Context) (string, error) { return "<div>no panel</div>", nil }
func (emptyFrame) ScrollMetrics(context.Context) (Metrics, error) {
	return Metrics{Height: 100, Client: 100}, nil
}
func (emptyFrame) ScrollBy(context.Context, float64) error  { return nil }
func (emptyFrame) ScrollToTop(context.Context) error        { return nil }

func TestRun_Cancelled(t *testing.T) {
	f := &fakeFrame{
		cueTexts: make([]string, 1000),
		height:   1e6, client: 200, width: 300,
	}
	for i := range f.cueTexts {
		f.cueTexts[i] = fmt.Sprintf("%d:00\ncue %d", i, i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewDriver(fastConfig(nil)).Run(ctx, f, "x")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestRun_MaxTicksStopsRunawayList(t *testing.T) {
	f := &fakeFrame{
		cueTexts: make([]string, 10000),
		height:   1e7, client: 200, width: 300,
	}
	for i := range f.cueTexts {
		f.cueTexts[i] = fmt.Sprintf("%d:00\ncue %d", i, i)
	}

	cfg := fastConfig(nil)
	cfg.MaxTicks = 10

	res, err := NewDriver(cfg).Run(context.Background(), f, "x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Reason != "max-ticks" {
		t.Errorf("Reason = %q, want max-ticks", res.Reason)
	}
	if res.Segments == 0 {
		t.Error("expected partial capture before the cap")
	}
}

func TestScrollStep_Clamped(t *testing.T) {
	cases := []struct {
		width float64
		want  float64
	}{
		{0, 225},
		{400, 305},
		{-1000, 120},
		{5000, 400},
	}
	for _, tc := range cases {
		if got := scrollStep(tc.width); got != tc.want {
			t.Errorf("scrollStep(%g) = %g, want %g", tc.width, got, tc.want)
		}
	}
}
