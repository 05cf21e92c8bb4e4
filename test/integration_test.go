//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"muse/clipboard"
)

// The suite drives the real binary headless: a fake capture device
// replays a WAV file, MUSE_FAKE_* swaps the network backends for canned
// ones, and stdin commands step the session through its phases.

var testBinary string

const (
	fakeTranscript = "a fox sleeping under cherry blossoms"
	fakePrompt     = "a red fox curled beneath blooming cherry trees, soft morning light, watercolor"
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("MUSE_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "MUSE_TEST_BIN not set; point it at a muse binary")
		os.Exit(1)
	}

	if err := os.MkdirAll("data", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(1)
	}
	tonePath := filepath.Join("data", "tone.wav")
	if err := generateToneWAV(tonePath, 16000, 1.0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(tonePath)

	artPath := filepath.Join("data", "art.png")
	if err := generatePNG(artPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate art.png: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(artPath)

	os.Exit(m.Run())
}

// generateToneWAV writes a 440 Hz sine as a speech stand-in. The fake
// backends never look at the audio, but the capture path still feeds it.
func generateToneWAV(path string, sampleRate int, durationS float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numSamples; i++ {
		sample := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(sample))
	}

	return os.WriteFile(path, buf, 0644)
}

func generatePNG(path string) error {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 40), B: 180, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

// fakeEnv returns the environment for one run: a dummy key so backend
// construction passes, plus the canned transcript and prompt.
func fakeEnv(extra ...string) []string {
	env := []string{
		"GROQ_API_KEY=test-key",
		"MUSE_FAKE_TRANSCRIPT=" + fakeTranscript,
		"MUSE_FAKE_PROMPT=" + fakePrompt,
	}
	return append(env, extra...)
}

func runMuse(t *testing.T, stdin string, env []string, args ...string) (logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"-logpath", logDir}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), env...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("muse exited with error: %v\noutput: %s", err, out)
	}
	return logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func promptLines(t *testing.T, logDir string) []string {
	t.Helper()
	text := strings.TrimSpace(readLog(t, logDir, "prompt_log.txt"))
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// --- Take tests ---

func TestTakeProducesPrompt(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result", "QUIT"),
		fakeEnv(), "-test", "data/tone.wav")

	lines := promptLines(t, logDir)
	if len(lines) != 1 {
		t.Fatalf("expected 1 prompt_log line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], fakeTranscript) || !strings.Contains(lines[0], fakePrompt) {
		t.Errorf("prompt_log line missing transcript or prompt: %q", lines[0])
	}

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "to=awaiting_result") {
		t.Error("expected to=awaiting_result phase in diagnostics")
	}
	if !strings.Contains(diag, "synthesis") {
		t.Error("expected synthesis entry in diagnostics")
	}
}

func TestPromptLogFormat(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result", "QUIT"),
		fakeEnv(), "-test", "data/tone.wav")

	lines := promptLines(t, logDir)
	if len(lines) != 1 {
		t.Fatalf("expected 1 prompt_log line, got %d", len(lines))
	}
	fields := strings.Split(lines[0], "\t")
	if len(fields) != 4 {
		t.Fatalf("expected 4 tab-separated fields, got %d: %q", len(fields), lines[0])
	}
	if fields[2] != fakeTranscript {
		t.Errorf("transcript field = %q, want %q", fields[2], fakeTranscript)
	}
	if fields[3] != fakePrompt {
		t.Errorf("prompt field = %q, want %q", fields[3], fakePrompt)
	}
}

func TestTwoTakesCounted(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result",
			"PROVIDE data/art.png", "WAIT displaying", "RESET", "WAIT idle",
			"TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result", "QUIT"),
		fakeEnv(), "-test", "data/tone.wav")

	if lines := promptLines(t, logDir); len(lines) != 2 {
		t.Errorf("expected 2 prompt_log lines, got %d", len(lines))
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "session_end") || !strings.Contains(diag, "runs=2") {
		t.Error("expected session_end with runs=2 in diagnostics")
	}
}

// --- Image hand-back tests ---

func TestProvideImageDisplays(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result",
			"PROVIDE data/art.png", "WAIT displaying", "RESET", "WAIT idle", "QUIT"),
		fakeEnv(), "-test", "data/tone.wav")

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "image_displayed") {
		t.Error("expected image_displayed in diagnostics")
	}
	if !strings.Contains(diag, "width=8") || !strings.Contains(diag, "height=6") {
		t.Error("expected decoded image dimensions in diagnostics")
	}
	if !strings.Contains(diag, "to=displaying") {
		t.Error("expected to=displaying phase in diagnostics")
	}
}

func TestProvideBadImageIgnored(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result",
			"PROVIDE data/tone.wav", "SLEEP 200", "CANCEL", "WAIT error", "ACK", "WAIT idle", "QUIT"),
		fakeEnv(), "-test", "data/tone.wav")

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if strings.Contains(diag, "image_displayed") {
		t.Error("non-image file must not reach the display")
	}
	if !strings.Contains(diag, "image load failed") {
		t.Error("expected image load failure in diagnostics")
	}
}

// --- Cancel and error tests ---

func TestCancelRequiresAck(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result",
			"CANCEL", "WAIT error", "ACK", "WAIT idle",
			"TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result", "QUIT"),
		fakeEnv(), "-test", "data/tone.wav")

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "session_failed: Operation cancelled") {
		t.Error("expected cancellation failure in diagnostics")
	}
	// The session must survive a cancel: the second take still lands.
	if lines := promptLines(t, logDir); len(lines) != 2 {
		t.Errorf("expected 2 prompt_log lines, got %d", len(lines))
	}
}

func TestTranscribeErrorFails(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT error", "ACK", "WAIT idle", "QUIT"),
		fakeEnv("MUSE_FAKE_TRANSCRIBE_ERR=api unreachable"), "-test", "data/tone.wav")

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "session_failed") || !strings.Contains(diag, "api unreachable") {
		t.Error("expected transcription failure in diagnostics")
	}
	if lines := promptLines(t, logDir); len(lines) != 0 {
		t.Errorf("expected empty prompt_log, got %d lines", len(lines))
	}
}

func TestSynthErrorFails(t *testing.T) {
	logDir := runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT error", "ACK", "WAIT idle", "QUIT"),
		fakeEnv("MUSE_FAKE_SYNTH_ERR=model overloaded"), "-test", "data/tone.wav")

	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "session_failed") || !strings.Contains(diag, "model overloaded") {
		t.Error("expected synthesis failure in diagnostics")
	}
	if lines := promptLines(t, logDir); len(lines) != 0 {
		t.Errorf("expected empty prompt_log, got %d lines", len(lines))
	}
}

// --- Clipboard tests ---

func TestHandoffClipboard(t *testing.T) {
	if _, err := clipboard.Read(); err != nil {
		t.Skip("clipboard not available")
	}

	_ = runMuse(t,
		cmds("TOGGLE", "WAIT recording", "WAIT_AUDIO_DONE", "TOGGLE", "WAIT awaiting_result", "QUIT"),
		fakeEnv(), "-test", "data/tone.wav")

	clip, err := clipboard.Read()
	if err != nil {
		t.Skip("clipboard not available")
	}
	if !strings.HasPrefix(clip, "/imagine ") {
		t.Errorf("clipboard = %q, want /imagine prefix", clip)
	}
	if !strings.Contains(clip, fakePrompt) {
		t.Errorf("clipboard missing synthesized prompt: %q", clip)
	}
}
