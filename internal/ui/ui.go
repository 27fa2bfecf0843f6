package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/doridoridoriand/ipwatch/internal/config"
	"github.com/doridoridoriand/ipwatch/internal/monitor"
	"github.com/doridoridoriand/ipwatch/internal/state"
	"github.com/gdamore/tcell/v2"
)

const (
	uiRefreshInterval = 500 * time.Millisecond
	minBoxHeight      = 4
)

var newScreen = tcell.NewScreen

// StatusSource provides the view to draw.
type StatusSource interface {
	Status() monitor.StatusView
}

// UI renders a TUI view of target status.
type UI struct {
	cfg    config.GlobalOptions
	source StatusSource
	now    func() time.Time
}

// New returns a UI instance.
func New(cfg config.GlobalOptions, source StatusSource) *UI {
	return &UI{cfg: cfg, source: source, now: time.Now}
}

// Run blocks until the context is cancelled or the user quits.
func (u *UI) Run(ctx context.Context) error {
	screen, err := newScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.HideCursor()
	defer screen.Fini()

	eventCh := make(chan tcell.Event, 1)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(uiRefreshInterval)
	defer ticker.Stop()

	u.render(screen, u.source.Status())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return context.Canceled
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-ticker.C:
			u.render(screen, u.source.Status())
		}
	}
}

func (u *UI) render(screen tcell.Screen, view monitor.StatusView) {
	screen.Clear()
	width, height := screen.Size()
	if width < 20 || height < 5 {
		screen.Show()
		return
	}

	header := fmt.Sprintf(" ipwatch  %s  (q to quit)", u.now().Format(state.TimeLayout))
	drawText(screen, 0, 0, width, header, tcell.StyleDefault.Bold(true))
	drawText(screen, 0, 1, width, formatConfigInfo(u.cfg, view.Counts()), tcell.StyleDefault.Foreground(tcell.ColorGray))

	y := 2
	if banner := formatBanner(view); banner != "" {
		drawText(screen, 0, y, width, banner, tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorRed).Bold(true))
		y++
	}

	for _, group := range groupTargets(view) {
		if height-y < minBoxHeight {
			break
		}
		boxHeight := len(group.Targets) + 2
		if boxHeight > height-y {
			boxHeight = height - y
		}
		u.drawGroupBox(screen, 0, y, width, boxHeight, group)
		y += boxHeight
	}

	screen.Show()
}

type targetRow struct {
	Address string
	Name    string
	Record  state.Record
	Probed  bool
}

type targetGroup struct {
	Name    string
	Targets []targetRow
}

// groupTargets splits the view into offline, online and pending boxes, in
// that order, each sorted by address. Empty groups are dropped.
func groupTargets(view monitor.StatusView) []targetGroup {
	var offline, online, pending []targetRow
	for _, address := range view.Addresses() {
		rec, ok := view.Status[address]
		row := targetRow{Address: address, Name: view.Names[address], Record: rec, Probed: ok}
		switch {
		case !ok:
			pending = append(pending, row)
		case rec.Online:
			online = append(online, row)
		default:
			offline = append(offline, row)
		}
	}

	var groups []targetGroup
	for _, g := range []targetGroup{
		{Name: "offline", Targets: offline},
		{Name: "online", Targets: online},
		{Name: "pending", Targets: pending},
	} {
		if len(g.Targets) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

func (u *UI) drawGroupBox(screen tcell.Screen, x, y, width, height int, group targetGroup) {
	drawBox(screen, x, y, width, height)

	title := fmt.Sprintf(" %s (%d) ", group.Name, len(group.Targets))
	drawText(screen, x+2, y, width-4, title, tcell.StyleDefault.Bold(true))

	if height <= 2 {
		return
	}

	rowY := y + 1
	maxRows := height - 2
	for i := 0; i < len(group.Targets) && i < maxRows; i++ {
		line := u.formatTargetLine(width-2, group.Targets[i])
		drawStyledText(screen, x+1, rowY+i, width-2, line)
	}
}

func (u *UI) formatTargetLine(width int, row targetRow) []styledRune {
	style := rowStyle(row)
	name := padOrTrim(row.Name, minInt(16, width))
	addr := padOrTrim(row.Address, minInt(16, width))
	label := padOrTrim(stateLabel(row), 7)

	rtt := padOrTrim("RTT:"+formatRTT(row), 14)
	checked := "CHK:-"
	if row.Probed {
		checked = "CHK:" + row.Record.LastCheckedAt.Format("15:04:05")
	}
	checked = padOrTrim(checked, 13)

	parts := []styledText{
		{text: name, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
		{text: addr, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
		{text: label, style: style},
		{text: " ", style: tcell.StyleDefault},
		{text: rtt, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
		{text: checked, style: tcell.StyleDefault},
		{text: " ", style: tcell.StyleDefault},
	}

	if row.Probed && row.Record.HasLastOnline() {
		lastOnline := "LAST ONLINE:" + row.Record.LastOnlineAt.Format(state.TimeLayout)
		parts = append(parts, styledText{text: lastOnline, style: style})
		return flattenStyledText(parts, width)
	}

	used := 0
	for _, p := range parts {
		used += len([]rune(p.text))
	}
	if barWidth := width - used; barWidth > 0 {
		parts = append(parts, styledText{text: buildBar(row.Record.ResponseTime, u.cfg.UIScale, barWidth), style: style})
	}
	return flattenStyledText(parts, width)
}

func stateLabel(row targetRow) string {
	switch {
	case !row.Probed:
		return "PENDING"
	case row.Record.Online:
		return "ONLINE"
	default:
		return "OFFLINE"
	}
}

func formatRTT(row targetRow) string {
	if !row.Probed {
		return state.NotApplicable
	}
	label := row.Record.ResponseTimeLabel()
	if label == state.NotApplicable {
		return label
	}
	return label + "ms"
}

// formatBanner is the alert line listing offline targets, or "" when all
// probed targets are online.
func formatBanner(view monitor.StatusView) string {
	if len(view.Offline) == 0 {
		return ""
	}
	entries := make([]string, 0, len(view.Offline))
	for _, address := range view.Offline {
		if name := view.Names[address]; name != "" {
			entries = append(entries, fmt.Sprintf("%s (%s)", address, name))
			continue
		}
		entries = append(entries, address)
	}
	noun := "targets"
	if len(entries) == 1 {
		noun = "target"
	}
	return fmt.Sprintf(" ALERT: %d %s offline: %s", len(entries), noun, strings.Join(entries, ", "))
}

// buildBar draws one '#' per scale milliseconds of rtt, padded to width.
func buildBar(rtt time.Duration, scale int, width int) string {
	if width <= 0 {
		return ""
	}
	if scale <= 0 {
		scale = 10
	}
	ms := float64(rtt) / float64(time.Millisecond)
	if ms <= 0 {
		return strings.Repeat(" ", width)
	}
	units := int(math.Round(ms / float64(scale)))
	if units > width {
		units = width
	}
	if units < 0 {
		units = 0
	}
	return strings.Repeat("#", units) + strings.Repeat(" ", width-units)
}

func drawBox(screen tcell.Screen, x, y, width, height int) {
	if width < 2 || height < 2 {
		return
	}
	right := x + width - 1
	bottom := y + height - 1

	setCell(screen, x, y, '+', tcell.StyleDefault)
	setCell(screen, right, y, '+', tcell.StyleDefault)
	setCell(screen, x, bottom, '+', tcell.StyleDefault)
	setCell(screen, right, bottom, '+', tcell.StyleDefault)

	for col := x + 1; col < right; col++ {
		setCell(screen, col, y, '-', tcell.StyleDefault)
		setCell(screen, col, bottom, '-', tcell.StyleDefault)
	}
	for row := y + 1; row < bottom; row++ {
		setCell(screen, x, row, '|', tcell.StyleDefault)
		setCell(screen, right, row, '|', tcell.StyleDefault)
	}
}

func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	drawStyledText(screen, x, y, width, []styledRune{{r: []rune(text), style: style}})
}

type styledText struct {
	text  string
	style tcell.Style
}

type styledRune struct {
	r     []rune
	style tcell.Style
}

func drawStyledText(screen tcell.Screen, x, y, width int, parts []styledRune) {
	if width <= 0 {
		return
	}
	col := x
	for _, part := range parts {
		for _, r := range part.r {
			if col >= x+width {
				return
			}
			setCell(screen, col, y, r, part.style)
			col++
		}
	}
	for col < x+width {
		setCell(screen, col, y, ' ', tcell.StyleDefault)
		col++
	}
}

func flattenStyledText(parts []styledText, width int) []styledRune {
	result := make([]styledRune, 0, len(parts))
	used := 0
	for _, part := range parts {
		runes := []rune(part.text)
		if used+len(runes) > width {
			runes = runes[:maxInt(0, width-used)]
		}
		result = append(result, styledRune{r: runes, style: part.style})
		used += len(runes)
		if used >= width {
			break
		}
	}
	return result
}

func setCell(screen tcell.Screen, x, y int, r rune, style tcell.Style) {
	screen.SetContent(x, y, r, nil, style)
}

func padOrTrim(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) > width {
		return string(runes[:width])
	}
	if len(runes) < width {
		return value + strings.Repeat(" ", width-len(runes))
	}
	return value
}

func rowStyle(row targetRow) tcell.Style {
	switch {
	case !row.Probed:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	case row.Record.Online:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func formatConfigInfo(cfg config.GlobalOptions, counts monitor.Counts) string {
	return fmt.Sprintf(" interval=%s  timeout=%s  max_concurrency=%d  targets=%d online=%d offline=%d pending=%d",
		formatDuration(cfg.Interval), formatDuration(cfg.Timeout), cfg.MaxConcurrency,
		counts.Total, counts.Online, counts.Offline, counts.Pending)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
