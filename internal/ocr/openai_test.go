package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/emandor/imagetext_service/internal/recognition"
)

func visionServer(t *testing.T, statuses []int, content string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization header = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		status := http.StatusOK
		if int(n) <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func buildVision(t *testing.T, url string) recognition.Engine {
	t.Helper()
	f := OpenAIVisionFactory("sk-test", "gpt-4o-mini", url, 100, 100, 2)
	eng, err := f(context.Background(), "eng")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	t.Cleanup(func() { _ = eng.Terminate() })
	return eng
}

func TestOpenAIVisionRecognize(t *testing.T) {
	srv, calls := visionServer(t, nil, "HELLO WORLD\n")
	eng := buildVision(t, srv.URL)

	var statuses []recognition.Status
	text, err := eng.Recognize(context.Background(), recognition.Image{Data: []byte("img"), MIME: "image/png"}, func(s recognition.Status) {
		statuses = append(statuses, s)
	})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "HELLO WORLD\n" {
		t.Fatalf("text = %q", text)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", *calls)
	}
	want := []recognition.Status{
		{Phase: recognition.PhaseRecognizing, Progress: 0},
		{Phase: recognition.PhaseRecognizing, Progress: 1},
	}
	if !reflect.DeepEqual(statuses, want) {
		t.Fatalf("statuses = %+v", statuses)
	}
}

func TestOpenAIVisionRetriesOnTooManyRequests(t *testing.T) {
	srv, calls := visionServer(t, []int{http.StatusTooManyRequests, http.StatusBadGateway}, "ok")
	eng := buildVision(t, srv.URL)

	text, err := eng.Recognize(context.Background(), recognition.Image{Data: []byte("img")}, func(recognition.Status) {})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "ok" || atomic.LoadInt32(calls) != 3 {
		t.Fatalf("text = %q after %d calls", text, *calls)
	}
}

func TestOpenAIVisionFailsOnClientError(t *testing.T) {
	srv, calls := visionServer(t, []int{http.StatusBadRequest}, "")
	eng := buildVision(t, srv.URL)

	_, err := eng.Recognize(context.Background(), recognition.Image{Data: []byte("img")}, func(recognition.Status) {})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected http 400 error, got %v", err)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", *calls)
	}
}

func TestOpenAIVisionFactoryRequiresKey(t *testing.T) {
	f := OpenAIVisionFactory("", "m", "", 1, 1, 1)
	if _, err := f(context.Background(), "eng"); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestSplitLang(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"eng", []string{"eng"}},
		{"eng+deu", []string{"eng", "deu"}},
		{" eng + ind ", []string{"eng", "ind"}},
		{"", []string{"eng"}},
	}
	for _, tt := range tests {
		if got := splitLang(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitLang(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCheckTessdata(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "eng.traineddata"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := checkTessdata(dir, []string{"eng"}); err != nil {
		t.Fatalf("eng should be found: %v", err)
	}
	if err := checkTessdata(dir, []string{"eng", "jpn"}); err == nil {
		t.Fatal("expected missing jpn to fail")
	}
	if err := checkTessdata("", []string{"jpn"}); err != nil {
		t.Fatalf("empty dir skips the check: %v", err)
	}
}

func TestTesseractFactoryFailsWithoutLanguageData(t *testing.T) {
	f := TesseractFactory(TesseractOptions{TessdataDir: t.TempDir()})
	if _, err := f(context.Background(), "eng"); err == nil {
		t.Fatal("expected construction to fail without traineddata")
	}
}
