package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"muse/handoff"
	"muse/session"
)

// TUI message types
type PhaseMsg struct{ From, To session.Phase }
type RecordingTickMsg struct{ Duration float64 }
type AudioLevelMsg struct{ Level float64 }
type LogMsg struct{ Text string }
type PromptMsg struct {
	Prompt     string
	Transcript string
	Metrics    []string
	Copied     bool
}
type FailureMsg struct{ Message string }
type ImageMsg struct {
	Width  int
	Height int
	Bytes  int
}
type ModeLineMsg struct{ Text string }    // Backend/paste info
type DeviceLineMsg struct{ Text string }  // Microphone device name
type RateLimitMsg struct{ Text string }   // Rate limit info
type tickMsg time.Time

type tuiModel struct {
	ctrl  *session.Controller
	phase session.Phase
	frame int

	recordingDuration float64
	audioLevel        float64
	peakLevel         float64 // peak audio level during current take
	levelHist         []float64

	prompt     string
	transcript string
	metrics    []string
	copied     bool
	errMsg     string
	imageW     int
	imageH     int
	imageKB    int
	takes      int

	entering   bool // image path entry active
	pathInput  string
	pathNotice string

	lastLog       string
	width, height int
	modeLine      string
	deviceLine    string
	rateLimit     string
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// Pre-computed styles for the render loop
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	readyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	meterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	metricStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	meterWidth = 24
	meterGain  = 4.0
)

var meterRunes = []rune("▁▂▃▄▅▆▇█")

func NewTUIProgram(ctrl *session.Controller) *tea.Program {
	m := tuiModel{ctrl: ctrl, phase: session.PhaseIdle}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m *tuiModel) clearTake() {
	m.prompt = ""
	m.transcript = ""
	m.metrics = nil
	m.copied = false
	m.errMsg = ""
	m.imageW, m.imageH, m.imageKB = 0, 0, 0
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case PhaseMsg:
		m.phase = msg.To
		switch msg.To {
		case session.PhaseRecording:
			m.clearTake()
			m.recordingDuration = 0
			m.audioLevel = 0
			m.peakLevel = 0
			m.levelHist = nil
		case session.PhaseIdle:
			m.clearTake()
		}
		if msg.To != session.PhaseAwaiting {
			m.entering = false
		}

	case RecordingTickMsg:
		m.recordingDuration = msg.Duration

	case AudioLevelMsg:
		if m.phase == session.PhaseRecording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			if msg.Level > m.peakLevel {
				m.peakLevel = msg.Level
			}
			m.levelHist = append(m.levelHist, m.audioLevel)
			if len(m.levelHist) > meterWidth {
				m.levelHist = m.levelHist[len(m.levelHist)-meterWidth:]
			}
		}

	case PromptMsg:
		m.takes++
		m.prompt = msg.Prompt
		m.transcript = msg.Transcript
		m.metrics = msg.Metrics
		m.copied = msg.Copied

	case FailureMsg:
		m.errMsg = msg.Message

	case ImageMsg:
		m.imageW = msg.Width
		m.imageH = msg.Height
		m.imageKB = (msg.Bytes + 1023) / 1024

	case LogMsg:
		m.lastLog = msg.Text

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case RateLimitMsg:
		m.rateLimit = msg.Text
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.entering {
		switch msg.Type {
		case tea.KeyEsc:
			m.entering = false
			m.pathNotice = ""
		case tea.KeyEnter:
			path := strings.TrimSpace(m.pathInput)
			if path == "" {
				m.pathNotice = "enter a file path"
				break
			}
			data, err := loadImageFile(path)
			if err != nil {
				m.pathNotice = err.Error()
				break
			}
			m.ctrl.ProvideImage(data)
			m.entering = false
			m.pathNotice = ""
		case tea.KeyBackspace:
			if len(m.pathInput) > 0 {
				r := []rune(m.pathInput)
				m.pathInput = string(r[:len(r)-1])
			}
		case tea.KeySpace:
			m.pathInput += " "
		case tea.KeyRunes:
			m.pathInput += string(msg.Runes)
		case tea.KeyCtrlC:
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case " ":
		switch m.phase {
		case session.PhaseIdle, session.PhaseRecording:
			m.ctrl.Toggle()
		case session.PhaseError:
			m.ctrl.Acknowledge()
		}
	case "enter":
		switch m.phase {
		case session.PhaseError:
			m.ctrl.Acknowledge()
		case session.PhaseDisplaying:
			m.ctrl.Reset()
		}
	case "esc":
		if m.phase == session.PhaseDisplaying {
			m.ctrl.Reset()
		}
	case "i":
		if m.phase == session.PhaseAwaiting {
			m.entering = true
			m.pathInput = ""
			m.pathNotice = ""
		}
	case "c":
		if m.phase == session.PhaseAwaiting {
			m.ctrl.Cancel()
		}
	case "ctrl+g":
		if m.phase == session.PhaseIdle {
			select {
			case deviceSelectChan <- struct{}{}:
			default:
			}
		}
	}
	return m, nil
}

func (m tuiModel) wrapWidth() int {
	w := m.width - 6
	if w < 20 {
		w = 20
	}
	return w
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string
	lines = append(lines, titleStyle.Render("muse")+dimStyle.Render(" "+version))
	lines = append(lines, "")
	lines = append(lines, m.statusLines()...)
	lines = append(lines, "")

	if m.modeLine != "" {
		lines = append(lines, infoStyle.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, dimStyle.Render(m.deviceLine))
	}
	if m.rateLimit != "" {
		lines = append(lines, dimStyle.Render(m.rateLimit))
	}
	lines = append(lines, "")

	lines = append(lines, m.takeLines()...)
	lines = append(lines, "")
	lines = append(lines, faintStyle.Render(m.helpLine()))
	if m.lastLog != "" {
		lines = append(lines, faintStyle.Render(m.lastLog))
	}

	body := strings.Join(lines, "\n")
	return lipgloss.NewStyle().Padding(1, 2).MaxHeight(m.height).Render(body)
}

func (m tuiModel) statusLines() []string {
	switch m.phase {
	case session.PhaseRecording:
		status := recStyle.Render(fmt.Sprintf("● REC %.1fs", m.recordingDuration)) +
			"  " + meterStyle.Render(renderMeter(m.levelHist, meterWidth))
		out := []string{status}
		// Voice warning (after 1s of recording with no voice)
		if m.recordingDuration > 1.0 && m.peakLevel < speechLevelFloor {
			out = append(out, warnStyle.Render("  ⚠ no voice detected"))
		}
		return out
	case session.PhaseProcessing:
		spin := spinnerFrames[m.frame%len(spinnerFrames)]
		return []string{busyStyle.Render(spin + " COMPOSING PROMPT")}
	case session.PhaseAwaiting:
		return []string{readyStyle.Render("◇ AWAITING IMAGE")}
	case session.PhaseDisplaying:
		return []string{doneStyle.Render("◆ IMAGE READY")}
	case session.PhaseError:
		out := []string{recStyle.Render("✗ ERROR")}
		for _, l := range wrapText(m.errMsg, m.wrapWidth()) {
			out = append(out, warnStyle.Render(l))
		}
		return out
	default:
		return []string{dimStyle.Render("○ READY")}
	}
}

func (m tuiModel) takeLines() []string {
	var out []string

	if m.transcript != "" {
		for _, l := range wrapText("heard: "+m.transcript, m.wrapWidth()) {
			out = append(out, metricStyle.Render(l))
		}
	}

	if m.prompt != "" {
		out = append(out, infoStyle.Render(fmt.Sprintf("Prompt #%d", m.takes)))
		lines := wrapText(handoff.Command(m.prompt), m.wrapWidth())
		for i, l := range lines {
			line := promptStyle.Render(l)
			if i == len(lines)-1 && m.copied {
				line += " " + doneStyle.Render("[✓ copied]")
			}
			out = append(out, line)
		}
		if len(m.metrics) > 0 {
			out = append(out, "")
			for _, metric := range m.metrics {
				out = append(out, metricStyle.Render(metric))
			}
		}
	}

	if m.phase == session.PhaseAwaiting && !m.entering {
		out = append(out, "")
		for _, step := range handoff.Instructions() {
			out = append(out, infoStyle.Render(step))
		}
		out = append(out, infoStyle.Render("4. Press i and enter the saved file's path"))
	}

	if m.entering {
		cursor := " "
		if m.frame%10 < 5 {
			cursor = "█"
		}
		out = append(out, "")
		out = append(out, infoStyle.Render("image path: ")+m.pathInput+cursor)
		if m.pathNotice != "" {
			out = append(out, warnStyle.Render(m.pathNotice))
		}
	}

	if m.phase == session.PhaseDisplaying && m.imageW > 0 {
		out = append(out, "")
		out = append(out, doneStyle.Render(fmt.Sprintf("image %dx%d · %dKB", m.imageW, m.imageH, m.imageKB)))
	}

	if len(out) == 0 {
		out = append(out, dimStyle.Render("No takes yet"))
	}
	return out
}

func (m tuiModel) helpLine() string {
	if m.entering {
		return "enter submit · esc back"
	}
	switch m.phase {
	case session.PhaseIdle:
		return "space or Ctrl+Shift+Space to record · ctrl+g mic · ctrl+c quit"
	case session.PhaseRecording:
		return "space to stop"
	case session.PhaseAwaiting:
		return "i image file · c cancel"
	case session.PhaseDisplaying:
		return "enter for next take"
	case session.PhaseError:
		return "enter to dismiss"
	}
	return ""
}

func renderMeter(levels []float64, width int) string {
	var b strings.Builder
	for i := 0; i < width; i++ {
		j := len(levels) - width + i
		if j < 0 {
			b.WriteRune(meterRunes[0])
			continue
		}
		v := levels[j] * meterGain
		if v > 1.0 {
			v = 1.0
		}
		b.WriteRune(meterRunes[int(v*float64(len(meterRunes)-1))])
	}
	return b.String()
}

// tuiSink forwards session events to the Bubble Tea program.
type tuiSink struct{}

func (tuiSink) PhaseChanged(from, to session.Phase) { tuiSend(PhaseMsg{From: from, To: to}) }
func (tuiSink) RecordingTick(duration float64)      { tuiSend(RecordingTickMsg{Duration: duration}) }
func (tuiSink) AudioLevel(level float64)            { tuiSend(AudioLevelMsg{Level: level}) }
func (tuiSink) PromptReady(prompt, transcript string, metrics []string, copied bool) {
	tuiSend(PromptMsg{Prompt: prompt, Transcript: transcript, Metrics: metrics, Copied: copied})
}
func (tuiSink) SessionFailed(message string) { tuiSend(FailureMsg{Message: message}) }
func (tuiSink) ImageShown(image []byte, width, height int) {
	tuiSend(ImageMsg{Width: width, Height: height, Bytes: len(image)})
}
func (tuiSink) ModeLine(text string)   { tuiSend(ModeLineMsg{Text: text}) }
func (tuiSink) DeviceLine(text string) { tuiSend(DeviceLineMsg{Text: text}) }
func (tuiSink) RateLimit(text string)  { tuiSend(RateLimitMsg{Text: text}) }

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

func logToTUI(format string, args ...interface{}) {
	tuiSend(LogMsg{Text: fmt.Sprintf(format, args...)})
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
