package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"muse/audio"
	"muse/beep"
	"muse/clipboard"
	"muse/encoder"
	"muse/handoff"
	"muse/hotkey"
	"muse/log"
	"muse/pipeline"
	"muse/prompter"
	"muse/recorder"
	"muse/session"
	"muse/transcriber"
)

// testSink is the headless notifier for -test mode. Phase transitions
// land on a buffered channel so the stdin driver can block on them.
type testSink struct {
	phases chan session.Phase
}

func newTestSink() *testSink {
	return &testSink{phases: make(chan session.Phase, 32)}
}

func (s *testSink) PhaseChanged(from, to session.Phase) {
	select {
	case s.phases <- to:
	default:
	}
}

func (s *testSink) PromptReady(o pipeline.Outcome, copied bool) {
	takeCount.Add(1)
	log.PromptText(o.Transcript, o.Prompt)
}

func (s *testSink) Failed(message string) {
	log.Error("session_failed: " + message)
}

func (s *testSink) ImageProvided(img []byte) {
	w, h := 0, 0
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(img)); err == nil {
		w, h = cfg.Width, cfg.Height
	}
	log.ImageDisplayed(float64(len(img))/1024, w, h)
}

// awaitPhase drains transitions until the wanted phase arrives.
func awaitPhase(phases <-chan session.Phase, want session.Phase) {
	for p := range phases {
		if p == want {
			return
		}
	}
}

func runTestMode(wavPath string) {
	beep.Disable()

	// MUSE_FAKE_* swaps the network backends for canned ones, so the
	// integration suite runs without API keys.
	if text := os.Getenv("MUSE_FAKE_TRANSCRIPT"); text != "" {
		activeTranscriber = transcriber.NewFake(text, nil)
	}
	if msg := os.Getenv("MUSE_FAKE_TRANSCRIBE_ERR"); msg != "" {
		activeTranscriber = transcriber.NewFake("", errors.New(msg))
	}
	if text := os.Getenv("MUSE_FAKE_PROMPT"); text != "" {
		activePrompter = prompter.NewFake(text, nil)
	}
	if msg := os.Getenv("MUSE_FAKE_SYNTH_ERR"); msg != "" {
		activePrompter = prompter.NewFake("", errors.New(msg))
	}

	if autoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: paste init failed: %v\n", err)
		}
	}

	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}
	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: encoder.SampleRate, Channels: encoder.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()
	fakeCapture := capture.(*audio.FakeCapture)

	rec := recorder.New(capture, nil)
	pipe := pipeline.New(activeTranscriber, activePrompter)
	deliver := handoff.New(autoPaste)
	snk := newTestSink()
	ctrl := session.NewController(rec, pipe, deliver, snk)
	go ctrl.Run(context.Background())

	hk := hotkey.NewFake()
	go func() {
		for range hk.Keydown() {
			ctrl.Toggle()
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "TOGGLE":
			hk.SimKeydown()
		case strings.HasPrefix(cmd, "WAIT "):
			awaitPhase(snk.phases, session.Phase(strings.TrimSpace(cmd[len("WAIT "):])))
		case cmd == "WAIT_AUDIO_DONE":
			<-fakeCapture.AudioDone()
		case strings.HasPrefix(cmd, "PROVIDE "):
			img, err := loadImageFile(strings.TrimSpace(cmd[len("PROVIDE "):]))
			if err != nil {
				log.Errorf("image load failed: %v", err)
				continue
			}
			ctrl.ProvideImage(img)
		case cmd == "CANCEL":
			ctrl.Cancel()
		case cmd == "ACK":
			ctrl.Acknowledge()
		case cmd == "RESET":
			ctrl.Reset()
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(strings.TrimSpace(cmd[len("SLEEP "):])); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case cmd == "QUIT":
			log.SessionEnd(int(takeCount.Load()))
			log.Close()
			os.Exit(0)
		}
	}
	log.SessionEnd(int(takeCount.Load()))
	log.Close()
}
