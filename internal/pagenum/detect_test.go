package pagenum

import (
	"context"
	"errors"
	"image"
	"testing"
)

type stubEngine struct {
	text string
	conf float64
	err  error

	gotBounds image.Rectangle
}

func (s *stubEngine) ReadText(_ context.Context, img image.Image) (string, float64, error) {
	s.gotBounds = img.Bounds()
	return s.text, s.conf, s.err
}

func TestDetector_Band(t *testing.T) {
	eng := &stubEngine{text: "42", conf: 90}
	d := NewDetector(eng, 10, 0, nil)

	img := image.NewRGBA(image.Rect(0, 0, 200, 1000))
	d.Detect(context.Background(), img, 0)

	want := image.Rect(0, 900, 200, 1000)
	if eng.gotBounds != want {
		t.Errorf("band bounds = %v, want %v", eng.gotBounds, want)
	}
}

func TestDetector_Detect(t *testing.T) {
	ctx := context.Background()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	t.Run("confident detection passes through", func(t *testing.T) {
		d := NewDetector(&stubEngine{text: "17", conf: 85}, 10, 60, nil)
		r := d.Detect(ctx, img, 3)
		if r.Raw != "17" || r.Index != 3 {
			t.Errorf("unexpected reading: %+v", r)
		}
	})

	t.Run("low confidence discarded", func(t *testing.T) {
		d := NewDetector(&stubEngine{text: "17", conf: 20}, 10, 60, nil)
		r := d.Detect(ctx, img, 3)
		if r.Raw != "" {
			t.Errorf("expected empty reading, got %q", r.Raw)
		}
	})

	t.Run("no confidence data bypasses threshold", func(t *testing.T) {
		d := NewDetector(&stubEngine{text: "17", conf: -1}, 10, 60, nil)
		r := d.Detect(ctx, img, 3)
		if r.Raw != "17" {
			t.Errorf("expected reading kept, got %q", r.Raw)
		}
	})

	t.Run("engine failure is soft", func(t *testing.T) {
		d := NewDetector(&stubEngine{err: errors.New("boom")}, 10, 60, nil)
		r := d.Detect(ctx, img, 7)
		if r.Raw != "" || r.Index != 7 {
			t.Errorf("unexpected reading: %+v", r)
		}
	})
}

func TestParseTSV(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t200\t100\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t80\t40\t20\t18\t91.5\t14\n" +
		"5\t1\t1\t1\t1\t2\t110\t40\t10\t18\t88.5\t2\n"

	text, conf := parseTSV(tsv)
	if text != "14 2" {
		t.Errorf("text = %q, want %q", text, "14 2")
	}
	if conf != 90 {
		t.Errorf("conf = %v, want 90", conf)
	}

	text, conf = parseTSV("level\tpage\n")
	if text != "" || conf != 0 {
		t.Errorf("empty tsv: got %q %v", text, conf)
	}
}
