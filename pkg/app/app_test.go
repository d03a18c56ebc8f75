package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/app/config"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxsim"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/capture"
	"github.com/womat/debug"
)

func TestMain(m *testing.M) {
	debug.SetDebug(os.Stderr, debug.Standard)
	os.Exit(m.Run())
}

type jsonFrame struct {
	Start     uint64 `json:"start"`
	End       uint64 `json:"end"`
	Kind      string `json:"kind"`
	Primary   uint64 `json:"primary"`
	Secondary uint64 `json:"secondary"`
}

func newTestApp(t *testing.T, modify func(*config.Config)) *App {
	t.Helper()

	c := config.NewConfig()
	c.Webserver.URL = "http://127.0.0.1:0"
	if modify != nil {
		modify(c)
	}
	if err := c.Convert(); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	a, err := New(c)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func get(t *testing.T, a *App, target string) (int, []byte) {
	t.Helper()

	resp, err := a.web.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("GET %s error = %v", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, body
}

// commitPacket adds a decoded packet to the store.
func commitPacket(a *App, packet uint64, payload ...byte) {
	at := packet * 1000
	frames := []auxbus.Frame{
		{Start: at, End: at + 9, Symbol: auxbus.Sync{Bits: 31, BitRate: 1000000}},
		{Start: at + 10, End: at + 19, Symbol: auxbus.Start{Packet: packet}},
	}
	for i, b := range payload {
		s := at + 20 + uint64(i)*16
		frames = append(frames, auxbus.Frame{Start: s, End: s + 15, Symbol: auxbus.Data{Value: b}})
	}
	last := frames[len(frames)-1].End
	frames = append(frames, auxbus.Frame{Start: last + 1, End: last + 32, Symbol: auxbus.Stop{}})

	for _, f := range frames {
		a.store.AddFrame(f)
		a.store.Commit()
		a.store.ReportProgress(f.End)
	}
}

func TestHandleFrames(t *testing.T) {
	a := newTestApp(t, nil)
	a.initDefaultRoutes()
	commitPacket(a, 1, 0x12, 0x34)

	code, body := get(t, a, "/frames?since=2")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %s", code, body)
	}

	var resp struct {
		Next   uint64      `json:"next"`
		Frames []jsonFrame `json:"frames"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	if resp.Next != 5 || len(resp.Frames) != 3 {
		t.Fatalf("response = %+v", resp)
	}
	if f := resp.Frames[0]; f.Kind != "data" || f.Primary != 0x12 {
		t.Errorf("first frame = %+v, want data 0x12", f)
	}
	if f := resp.Frames[2]; f.Kind != "stop" {
		t.Errorf("last frame = %+v, want stop", f)
	}

	if code, _ = get(t, a, "/frames?since=x"); code != http.StatusBadRequest {
		t.Errorf("status of invalid since = %d, want 400", code)
	}
}

func TestHandleMarkersAndDump(t *testing.T) {
	a := newTestApp(t, nil)
	a.initDefaultRoutes()

	a.store.AddMarker(auxbus.Marker{Sample: 19, Kind: auxbus.MarkerStart})
	a.store.AddMarker(auxbus.Marker{Sample: 40, Kind: auxbus.MarkerErrorDot})
	a.store.Commit()
	commitPacket(a, 1, 0x01, 0x02, 0x03, 0x04, 0x05)
	commitPacket(a, 2, 0x06)

	code, body := get(t, a, "/markers")
	if code != http.StatusOK || string(body) != `[{"sample":19,"kind":"start"},{"sample":40,"kind":"error"}]` {
		t.Errorf("GET /markers = %d %s", code, body)
	}

	code, body = get(t, a, "/dump")
	if want := "00000000-> 01020304 0506\n"; code != http.StatusOK || string(body) != want {
		t.Errorf("GET /dump = %d %q, want %q", code, body, want)
	}
}

func TestHandleProgressAndHealth(t *testing.T) {
	a := newTestApp(t, nil)
	a.initDefaultRoutes()
	commitPacket(a, 1, 0xff)

	code, body := get(t, a, "/progress")
	if code != http.StatusOK || !strings.Contains(string(body), `"sample":1067`) {
		t.Errorf("GET /progress = %d %s", code, body)
	}

	code, body = get(t, a, "/health")
	if code != http.StatusOK || !strings.Contains(string(body), `"Frames":4`) {
		t.Errorf("GET /health = %d %s", code, body)
	}

	code, body = get(t, a, "/version")
	if code != http.StatusOK || !strings.Contains(string(body), VERSION) {
		t.Errorf("GET /version = %d %s", code, body)
	}
}

func TestDisabledRoute(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Webserver.Webservices["dump"] = false
	})
	a.initDefaultRoutes()

	if code, _ := get(t, a, "/dump"); code != http.StatusNotFound {
		t.Errorf("status of disabled route = %d, want 404", code)
	}
}

func TestRunCaptureFile(t *testing.T) {
	payloads := auxsim.Counter(3, 4, 1)
	sim := auxsim.Config{BitRate: 1000000, SampleRate: 16000000, Inverted: true}
	initial, events := auxsim.Generate(sim, payloads...)

	var buf bytes.Buffer
	if err := capture.WriteAll(&buf, sim.SampleRate, initial, events); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "capture.txt")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newTestApp(t, func(c *config.Config) {
		c.Input = config.InputConfig{Source: config.SourceFile, File: path}
		c.Decoder.Inverted = true
	})
	if err := a.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer func() { _ = a.Close() }()

	select {
	case <-a.done:
	case <-time.After(5 * time.Second):
		t.Fatal("decoder did not finish the capture")
	}

	got := a.store.Payloads()
	if len(got) != len(payloads) {
		t.Fatalf("%d packets decoded, want %d", len(got), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Errorf("packet %d = %x, want %x", i, got[i], payloads[i])
		}
	}

	code, body := get(t, a, "/dump")
	if want := "00000000-> 01020304 05060708 090A0B0C\n"; code != http.StatusOK || string(body) != want {
		t.Errorf("GET /dump = %d %q, want %q", code, body, want)
	}
}

func TestOpenSourceWithoutSampleRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.txt")
	if err := os.WriteFile(path, []byte("initial 0\n10 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := openSource(config.InputConfig{Source: config.SourceFile, File: path}); err != ErrNoSampleRate {
		t.Errorf("openSource() error = %v, want ErrNoSampleRate", err)
	}

	s, err := openSource(config.InputConfig{Source: config.SourceFile, File: path, SampleRate: 8000000})
	if err != nil {
		t.Fatalf("openSource() error = %v", err)
	}
	defer s.Close()
	if s.sampleRate != 8000000 {
		t.Errorf("sample rate = %d, want 8000000", s.sampleRate)
	}
}
