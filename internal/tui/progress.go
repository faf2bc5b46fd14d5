package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/qclab/internal/driver"
	"github.com/san-kum/qclab/internal/dynamo"
	"github.com/san-kum/qclab/internal/metrics"
)

// BatchMsg reports one finished batch from any rank.
type BatchMsg driver.Progress

// DoneMsg ends the run.
type DoneMsg struct {
	Data *dynamo.Data
	Err  error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// model is the progress view of one ensemble run.
type model struct {
	title   string
	total   int
	done    int
	perRank map[int]int
	started time.Time
	elapsed time.Duration
	frame   int

	finished bool
	err      error
	data     *dynamo.Data
	pops     [][]float64

	cancel context.CancelFunc
	width  int
}

func newModel(title string, total int, cancel context.CancelFunc) model {
	return model{
		title:   title,
		total:   total,
		perRank: make(map[int]int),
		started: time.Now(),
		cancel:  cancel,
		width:   80,
	}
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.finished && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.frame++
		m.elapsed = time.Since(m.started)
		return m, tick()
	case BatchMsg:
		m.perRank[msg.Rank]++
		if msg.Done > m.done {
			m.done = msg.Done
		}
		if msg.Total > 0 {
			m.total = msg.Total
		}
		return m, nil
	case DoneMsg:
		m.finished = true
		m.elapsed = time.Since(m.started)
		m.err = msg.Err
		m.data = msg.Data
		if msg.Data != nil {
			m.pops, _ = metrics.Populations(msg.Data)
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m model) fraction() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

func (m model) View() string {
	var b strings.Builder

	status := cyan.Render(spinner(m.frame)) + " " + cyan.Render("running")
	switch {
	case m.finished && m.err != nil:
		status = red.Render("✗ failed")
	case m.finished:
		status = green.Render("● done")
	}
	b.WriteString(fmt.Sprintf("%s  %s\n\n", title.Render(m.title), status))

	barWidth := 36
	if m.width > 0 && m.width-30 < barWidth {
		barWidth = max(10, m.width-30)
	}
	b.WriteString(fmt.Sprintf("%s %s  %s\n",
		progressBar(m.fraction(), barWidth),
		white.Render(fmt.Sprintf("%d/%d batches", m.done, m.total)),
		dim.Render(m.elapsed.Round(100*time.Millisecond).String())))

	if len(m.perRank) > 1 {
		ranks := make([]int, 0, len(m.perRank))
		for r := range m.perRank {
			ranks = append(ranks, r)
		}
		sort.Ints(ranks)
		var rs strings.Builder
		for _, r := range ranks {
			rs.WriteString(metricLabel.Render(fmt.Sprintf("r%d ", r)))
			rs.WriteString(metricValue.Render(fmt.Sprintf("%d", m.perRank[r])))
			rs.WriteString("  ")
		}
		b.WriteString(rs.String() + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + red.Render(m.err.Error()) + "\n")
	}

	if len(m.pops) > 0 {
		b.WriteString("\n")
		n := len(m.pops[0])
		for i := 0; i < n && i < 8; i++ {
			series := make([]float64, len(m.pops))
			for t, row := range m.pops {
				series[t] = row[i]
			}
			b.WriteString(fmt.Sprintf("%s %s %s\n",
				metricLabel.Render(fmt.Sprintf("P%d", i)),
				cyan.Render(sparkline(series, 40)),
				metricValue.Render(fmt.Sprintf("%.4f", series[len(series)-1]))))
		}
	}

	if !m.finished {
		b.WriteString("\n" + dim.Render("q quit") + "\n")
	}
	return panel.Render(b.String()) + "\n"
}

// RunFunc integrates an ensemble, reporting every finished batch.
type RunFunc func(ctx context.Context, progress func(driver.Progress)) (*dynamo.Data, error)

// Run shows a progress view while run executes. Quitting the view cancels
// the run's context.
func Run(ctx context.Context, title string, total int, run RunFunc, opts ...tea.ProgramOption) (*dynamo.Data, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(title, total, cancel), opts...)

	type result struct {
		data *dynamo.Data
		err  error
	}
	out := make(chan result, 1)
	go func() {
		d, err := run(ctx, func(pr driver.Progress) { p.Send(BatchMsg(pr)) })
		out <- result{d, err}
		p.Send(DoneMsg{Data: d, Err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-out
		return nil, fmt.Errorf("progress view: %w", err)
	}
	cancel()
	res := <-out
	return res.data, res.err
}
