package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	// Discord saves MidJourney renders as webp.
	_ "golang.org/x/image/webp"

	"muse/audio"
	"muse/beep"
	"muse/clipboard"
	"muse/doctor"
	"muse/encoder"
	"muse/handoff"
	"muse/hotkey"
	"muse/log"
	"muse/login"
	"muse/pipeline"
	"muse/prompter"
	"muse/recorder"
	"muse/session"
	"muse/shutdown"
	"muse/transcriber"
	"muse/tray"
	"muse/update"
)

var version = "dev"

var activeTranscriber transcriber.Transcriber
var activePrompter prompter.Prompter
var autoPaste bool
var guiMode bool
var takeCount atomic.Int32

var deviceSelectChan = make(chan struct{}, 1)

var shutdownOnce sync.Once

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		if n := int(takeCount.Load()); n > 0 {
			log.SessionEnd(n)
		}
		log.Close()
		tray.Quit()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix + " (ctrl+g)"
}

func modeLineText() string {
	providerLabel := activeTranscriber.Name()
	if lang := activeTranscriber.GetLanguage(); lang != "" {
		providerLabel += " (" + lang + ")"
	}
	pasteLabel := "copy"
	if autoPaste {
		pasteLabel = "copy+paste"
	}
	return fmt.Sprintf("[%s | %s | %s]", providerLabel, activePrompter.Name(), pasteLabel)
}

// loadImageFile reads path and verifies it decodes as an image.
func loadImageFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("not an image: %w", err)
	}
	return data, nil
}

// sessionSink fans controller notifications out to the display layer,
// the diagnostics log, sounds and the tray.
type sessionSink struct {
	ui   EventSink
	ctrl *session.Controller
	gate *levelGate

	mu          sync.Mutex
	lastPrompt  string
	monitorStop chan struct{}
}

func (s *sessionSink) PhaseChanged(from, to session.Phase) {
	s.ui.PhaseChanged(from, to)
	tray.SetRecording(to == session.PhaseRecording)
	tray.SetDisplaying(to == session.PhaseDisplaying)

	switch to {
	case session.PhaseRecording:
		go beep.PlayStart()
		// Warm the connection so the TLS handshake overlaps with speech.
		if w, ok := activeTranscriber.(interface{ Warm() }); ok {
			go w.Warm()
		}
		s.startMonitor()
	case session.PhaseAwaiting:
		go beep.PlayReady()
	case session.PhaseError:
		go beep.PlayError()
	}

	if from == session.PhaseRecording {
		s.stopMonitor()
		tray.SetWarning(false)
		if to == session.PhaseProcessing {
			go beep.PlayEnd()
		}
	}
}

func (s *sessionSink) PromptReady(o pipeline.Outcome, copied bool) {
	takeCount.Add(1)
	s.mu.Lock()
	s.lastPrompt = o.Prompt
	s.mu.Unlock()

	s.ui.PromptReady(o.Prompt, o.Transcript, o.MetricLines(), copied)
	tray.SetLastPrompt(o.Prompt)

	log.PromptText(o.Transcript, o.Prompt)
	if r := o.Transcription; r != nil {
		if m := r.Metrics; m != nil {
			log.TranscriptionMetrics(log.Metrics{
				AudioLengthS:     r.Upload.AudioLengthS,
				RawSizeKB:        r.Upload.RawSizeKB,
				CompressedSizeKB: r.Upload.CompressedSizeKB,
				CompressionPct:   r.Upload.CompressionPct,
				EncodeTimeMs:     r.Upload.EncodeTimeMs,
				DNSTimeMs:        float64(m.DNS.Milliseconds()),
				TLSTimeMs:        float64(m.TLS.Milliseconds()),
				TTFBMs:           float64(m.TTFB.Milliseconds()),
				TotalTimeMs:      float64(m.Sum().Milliseconds()),
			}, activeTranscriber.Name(), m.ConnReused)
		}
		if r.Confidence > 0 {
			log.Confidence(r.Confidence)
		}
		if r.RateLimit != "" && r.RateLimit != "?/?" {
			log.Info("rate_limit: " + r.RateLimit)
			s.ui.RateLimit("requests: " + r.RateLimit + " remaining")
		}
	}
	log.SynthesisMetrics(activePrompter.Name(), len(o.Transcript), len(o.Prompt), o.SynthMs)
}

func (s *sessionSink) Failed(message string) {
	s.ui.SessionFailed(message)
	log.Error("session_failed: " + message)
	tray.SetError(message)
}

func (s *sessionSink) ImageProvided(img []byte) {
	w, h := 0, 0
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(img)); err == nil {
		w, h = cfg.Width, cfg.Height
	}
	s.ui.ImageShown(img, w, h)
	log.ImageDisplayed(float64(len(img))/1024, w, h)
}

func (s *sessionSink) startMonitor() {
	stop := make(chan struct{})
	s.mu.Lock()
	s.monitorStop = stop
	s.mu.Unlock()
	go s.monitorLoop(stop)
}

func (s *sessionSink) stopMonitor() {
	s.mu.Lock()
	if s.monitorStop != nil {
		close(s.monitorStop)
		s.monitorStop = nil
	}
	s.mu.Unlock()
}

// monitorLoop drives the per-take ticker: elapsed time for the display
// plus the silence monitor's warn and auto-stop decisions.
func (s *sessionSink) monitorLoop(stop <-chan struct{}) {
	mon := newSilenceMonitor()
	start := time.Now()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.ui.RecordingTick(time.Since(start).Seconds())
			switch mon.Tick(s.gate.Speech()) {
			case SilenceWarn:
				log.Info("no_voice_warning")
				tray.SetWarning(true)
				beep.PlayError()
			case SilenceWarnClear:
				tray.SetWarning(false)
			case SilenceRepeat:
				log.Info("silence_during_warning")
				beep.PlayError()
			case SilenceAutoStop:
				log.Info("silence_auto_stop")
				logToTUI("Recording auto-stopped after 30s of silence")
				s.ctrl.Toggle()
				return
			}
		}
	}
}

func run() {
	if len(os.Args) > 1 && os.Args[1] == "update" {
		if version == "dev" {
			fmt.Println("Dev build — cannot check for updates.")
			os.Exit(0)
		}
		fmt.Printf("muse %s — checking for updates...\n", version)
		rel, err := update.CheckLatest(version)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if rel == nil {
			fmt.Println("Already up to date.")
			os.Exit(0)
		}
		fmt.Printf("Update available: %s -> %s\n", version, rel.Version)
		fmt.Print("Continue? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			os.Exit(0)
		}
		fmt.Printf("Downloading %s...\n", rel.Version)
		if err := update.Apply(rel); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated to %s\n", rel.Version)
		os.Exit(0)
	}

	benchmarkFile := flag.String("benchmark", "", "Run the take pipeline against a WAV file instead of live recording")
	benchmarkRuns := flag.Int("runs", 3, "Number of benchmark iterations")
	autoPasteFlag := flag.Bool("autopaste", false, "Auto-paste the /imagine command into the focused window")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	langFlag := flag.String("lang", "en", "Language code for transcription (e.g., en, es, fr). Empty = auto-detect")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	flag.Bool("gui", false, "Run with the graphical interface (gui build only)")
	flag.Parse()

	// API keys may live in a .env next to the binary
	godotenv.Load()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		setCrashOutput(crashFile)
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("muse %s\n", version)
		os.Exit(0)
	}

	if *doctorFlag {
		wavFile := ""
		if len(flag.Args()) > 0 {
			wavFile = flag.Args()[0]
		}
		os.Exit(doctor.Run(wavFile))
	}
	autoPaste = *autoPasteFlag

	var initErr error
	activeTranscriber, initErr = transcriber.New()
	if initErr != nil {
		fmt.Printf("Error: %v\n", initErr)
		os.Exit(1)
	}
	if *langFlag != "" {
		activeTranscriber.SetLanguage(*langFlag)
	}
	activePrompter, initErr = prompter.New()
	if initErr != nil {
		fmt.Printf("Error: %v\n", initErr)
		os.Exit(1)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	} else {
		log.SessionStart(activeTranscriber.Name(), activePrompter.Name())
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: muse -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(args[0])
		return
	}

	if *benchmarkFile != "" {
		runBenchmark(*benchmarkFile, *benchmarkRuns)
		return
	}

	if autoPaste {
		if err := clipboard.Init(); err != nil {
			fmt.Printf("Warning: paste init failed: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		}
	}

	// In gui mode the context and capture were created on the main
	// thread by initGUI; reuse them here.
	ctx := guiAudioCtx
	if ctx == nil {
		var ctxErr error
		ctx, ctxErr = audio.NewContext()
		if ctxErr != nil {
			log.Errorf("audio context init error: %v", ctxErr)
			fmt.Printf("Error initializing audio context: %v\n", ctxErr)
			os.Exit(1)
		}
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if *deviceFlag != "" {
		if devices, err := ctx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == *deviceFlag {
					selectedDevice = &devices[i]
					break
				}
			}
		}
	} else if *setupFlag && !guiMode {
		var err error
		selectedDevice, err = audio.SelectDevice(ctx, "")
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	captureConfig := audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}
	captureDevice := guiCaptureDevice
	if captureDevice == nil {
		var capErr error
		captureDevice, capErr = ctx.NewCapture(selectedDevice, captureConfig)
		if capErr != nil {
			log.Errorf("capture device init error: %v", capErr)
			fmt.Printf("Error initializing capture device: %v\n", capErr)
			os.Exit(1)
		}
	}
	defer captureDevice.Close()

	gate := &levelGate{}
	var ui EventSink = tuiSink{}
	if guiMode {
		ui = newGUISink()
	}
	snk := &sessionSink{ui: ui, gate: gate}
	rec := recorder.New(captureDevice, func(level float64) {
		gate.Set(level)
		snk.ui.AudioLevel(level)
	})
	pipe := pipeline.New(activeTranscriber, activePrompter)
	deliver := handoff.New(autoPaste)
	ctrl := session.NewController(rec, pipe, deliver, snk)
	snk.ctrl = ctrl
	go ctrl.Run(context.Background())

	if guiMode {
		wireGUI(ctrl)
	} else {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram(ctrl)
		tuiMu.Unlock()

		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				os.Exit(1)
			}
			gracefulShutdown()
		}()
	}

	tray.OnCopyLast(func() {
		snk.mu.Lock()
		text := snk.lastPrompt
		snk.mu.Unlock()
		if text != "" {
			clipboard.Copy(handoff.Command(text))
		}
	})
	tray.OnRecord(func() {
		if ctrl.Phase() == session.PhaseIdle {
			ctrl.Toggle()
		}
	}, func() {
		if ctrl.Phase() == session.PhaseRecording {
			ctrl.Toggle()
		}
	})
	// preferredDevice remembers the user's choice so we can auto-reconnect
	preferredDevice := ""
	if selectedDevice != nil {
		preferredDevice = selectedDevice.Name
	}
	tray.SetBTCheck(audio.IsBluetooth)
	if devices, err := ctx.Devices(); err == nil && len(devices) > 0 {
		names := make([]string, len(devices))
		for i := range devices {
			names[i] = devices[i].Name
		}
		tray.SetDevices(names, preferredDevice, func(name string) {
			preferredDevice = name
			switchDeviceByName(ctx, captureConfig, rec, &selectedDevice, name)
		})
	}
	tray.SetAutoPaste(autoPaste)

	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	dgKey := os.Getenv("DEEPGRAM_API_KEY")
	tray.SetProviders([]tray.Provider{
		{Name: "groq", Label: "Groq Whisper", HasKey: groqKey != "", Active: activeTranscriber.Name() == "groq"},
		{Name: "openai", Label: "OpenAI Whisper", HasKey: openaiKey != "", Active: activeTranscriber.Name() == "openai"},
		{Name: "deepgram", Label: "Deepgram Nova", HasKey: dgKey != "", Active: activeTranscriber.Name() == "deepgram"},
	}, func(name string) {
		switch name {
		case "groq":
			activeTranscriber = transcriber.NewGroq(groqKey)
		case "openai":
			activeTranscriber = transcriber.NewOpenAI(openaiKey)
		case "deepgram":
			activeTranscriber = transcriber.NewDeepgram(dgKey)
		}
		if lang := *langFlag; lang != "" {
			activeTranscriber.SetLanguage(lang)
		}
		pipe.SetTranscriber(activeTranscriber)
		snk.ui.ModeLine(modeLineText())
	})

	tray.SetLanguage(*langFlag, func(code string) {
		activeTranscriber.SetLanguage(code)
		snk.ui.ModeLine(modeLineText())
	})

	tray.SetLogin(login.Enabled())
	tray.OnLogin(func(on bool) error {
		if on {
			if err := login.Enable(); err != nil {
				log.Errorf("start-on-login enable failed: %v", err)
				return err
			}
			return nil
		}
		if err := login.Disable(); err != nil {
			log.Errorf("start-on-login disable failed: %v", err)
			return err
		}
		return nil
	})

	trayQuit := tray.Init()
	tray.OnAutoPaste(func(on bool) {
		autoPaste = on
		deliver.SetAutoPaste(on)
		snk.ui.ModeLine(modeLineText())
	})

	// Poll for device changes (hotplug)
	go func() {
		var last []string
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			devices, err := ctx.Devices()
			if err != nil {
				continue
			}
			names := make([]string, len(devices))
			for i := range devices {
				names[i] = devices[i].Name
			}
			if slices.Equal(last, names) {
				continue
			}
			last = names
			selName := ""
			if selectedDevice != nil {
				selName = selectedDevice.Name
			}
			if selName != "" && !slices.Contains(names, selName) {
				// Selected device disappeared — fall back to default
				log.Info("device_disconnected: " + selName)
				applyDeviceSwitch(ctx, captureConfig, rec, &selectedDevice, nil)
				selName = ""
			} else if selName == "" && preferredDevice != "" && slices.Contains(names, preferredDevice) {
				// Preferred device reappeared — auto-reconnect
				log.Info("device_reconnected: " + preferredDevice)
				switchDeviceByName(ctx, captureConfig, rec, &selectedDevice, preferredDevice)
				selName = preferredDevice
			}
			tray.RefreshDevices(names, selName)
		}
	}()

	update.StartBackgroundCheck(version, log.Dir(), func(rel update.Release) {
		log.Info("update_available: " + rel.Version)
		logToTUI("Update available: %s (run 'muse update')", rel.Version)
		tray.SetUpdateAvailable(rel.Version)
	})

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-trayQuit:
		}
		gracefulShutdown()
	}()

	go beep.Init()

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer hk.Unregister()

	snk.ui.ModeLine(modeLineText())
	snk.ui.DeviceLine(deviceLineText(selectedDevice))

	for {
		select {
		case <-hk.Keydown():
			log.Info("hotkey_toggle")
			ctrl.Toggle()

		case <-deviceSelectChan:
			handleDeviceSwitch(ctx, captureConfig, rec, &selectedDevice)
		}
	}
}

func handleDeviceSwitch(ctx audio.Context, captureConfig audio.CaptureConfig, rec *recorder.Recorder, selectedDevice **audio.DeviceInfo) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.ReleaseTerminal()
	}
	current := ""
	if *selectedDevice != nil {
		current = (*selectedDevice).Name
	}
	newDevice, err := audio.SelectDevice(ctx, current)
	if p != nil {
		p.RestoreTerminal()
	}

	if err != nil {
		log.Warnf("device selection failed: %v", err)
		return
	}
	if newDevice != nil {
		applyDeviceSwitch(ctx, captureConfig, rec, selectedDevice, newDevice)
	}
}

func switchDeviceByName(ctx audio.Context, captureConfig audio.CaptureConfig, rec *recorder.Recorder, selectedDevice **audio.DeviceInfo, name string) {
	devices, err := ctx.Devices()
	if err != nil {
		log.Warnf("device enumeration failed: %v", err)
		return
	}
	for i := range devices {
		if devices[i].Name == name {
			applyDeviceSwitch(ctx, captureConfig, rec, selectedDevice, &devices[i])
			return
		}
	}
	log.Warnf("device not found: %s", name)
}

func applyDeviceSwitch(ctx audio.Context, captureConfig audio.CaptureConfig, rec *recorder.Recorder, selectedDevice **audio.DeviceInfo, newDevice *audio.DeviceInfo) {
	name := "system default"
	if newDevice != nil {
		name = newDevice.Name
	}
	newCapture, err := ctx.NewCapture(newDevice, captureConfig)
	if err != nil {
		log.Errorf("capture device reinit error: %v", err)
		return
	}
	if err := rec.SwapDevice(newCapture); err != nil {
		newCapture.Close()
		log.Warnf("device switch skipped: %v", err)
		return
	}
	log.Info("device_switch: " + name)
	*selectedDevice = newDevice
	tuiSend(DeviceLineMsg{Text: deviceLineText(newDevice)})
}

func runBenchmark(wavFile string, runs int) {
	fmt.Printf("Benchmark: %s (%d runs)\n", wavFile, runs)

	data, err := os.ReadFile(wavFile)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		return
	}
	if len(data) < audio.WAVHeaderSize {
		fmt.Println("Error: invalid WAV file")
		return
	}
	pcm := data[audio.WAVHeaderSize:]
	audioDuration := float64(len(pcm)/2) / float64(encoder.SampleRate)

	pipe := pipeline.New(activeTranscriber, activePrompter)
	for i := 1; i <= runs; i++ {
		fmt.Printf("=== Run %d ===\n", i)
		fmt.Printf("Simulating %.1fs recording...\n", audioDuration)

		o := <-pipe.Process(context.Background(), pcm)
		if o.Err != nil {
			fmt.Printf("Error: %v\n", o.Err)
			return
		}

		fmt.Printf("Heard: %s\n", o.Transcript)
		fmt.Printf("Prompt: %s\n", o.Prompt)
		for _, line := range o.MetricLines() {
			fmt.Printf("  %s\n", line)
		}
		fmt.Println()

		if i < runs {
			time.Sleep(500 * time.Millisecond)
		}
	}
}
