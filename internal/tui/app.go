package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/wipewatch/internal/domain"
	"github.com/mmcdole/wipewatch/internal/library"
	"github.com/mmcdole/wipewatch/internal/outbox"
	"github.com/mmcdole/wipewatch/internal/paging"
	"github.com/mmcdole/wipewatch/internal/search"
	"github.com/mmcdole/wipewatch/internal/tui/styles"
)

const (
	// header, filter, status, help
	chromeHeight = 4
	adHeight     = 3
	minRows      = 3
	statusTTL    = 4 * time.Second
)

// Launcher opens a server connect link in the game client
type Launcher interface {
	Launch(link string) error
}

// Config wires the browser to the data layer
type Config struct {
	Library  *library.Service
	Queries  *library.Queries
	Outbox   *outbox.Outbox
	Flusher  *outbox.Flusher // nil disables manual sync
	Launcher Launcher        // nil disables joining servers
	Ads      domain.AdSlots  // nil disables the banner
	AdSlot   string
	Sessions <-chan error // Authorization failures from the flusher
	Logger   *slog.Logger
}

// listState is one browsable tab backed by a store list
type listState struct {
	id      string
	title   string
	items   []domain.ListItem
	visible []search.FilterResult
	cursor  int
	offset  int
	loading bool
	end     bool
	updates <-chan []domain.ListItem
}

func (l *listState) selected() (domain.ListItem, bool) {
	if l.cursor < 0 || l.cursor >= len(l.visible) {
		return domain.ListItem{}, false
	}
	return l.visible[l.cursor].Item, true
}

// Model is the main Bubble Tea model for the browser
type Model struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	lists  []*listState
	active int

	filter    textinput.Model
	filtering bool
	spinner   spinner.Model
	help      help.Model
	showHelp  bool

	status    string
	statusErr bool
	statusSeq int

	ad             string
	sessionExpired bool

	width  int
	height int
}

// NewModel creates the browser model. Store observation starts immediately;
// call Close (or quit) to stop it.
func NewModel(cfg Config) Model {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	lists := []*listState{
		{id: domain.ListServers, title: "Servers"},
		{id: domain.ListItems, title: "Items"},
	}
	for _, l := range lists {
		l.updates = cfg.Queries.Observe(ctx, l.id)
	}

	fi := textinput.New()
	fi.Prompt = "/ "
	fi.PromptStyle = styles.FilterPromptStyle
	fi.Placeholder = "filter"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.SpinnerStyle

	h := help.New()
	h.Styles.ShortKey = styles.HelpKeyStyle
	h.Styles.ShortDesc = styles.HelpDescStyle
	h.Styles.FullKey = styles.HelpKeyStyle
	h.Styles.FullDesc = styles.HelpDescStyle

	return Model{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		lists:   lists,
		filter:  fi,
		spinner: sp,
		help:    h,
		width:   80,
		height:  24,
	}
}

// Close stops store observation
func (m Model) Close() {
	m.cancel()
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	for _, l := range m.lists {
		l.loading = true
		cmds = append(cmds,
			WaitForListCmd(l.id, l.updates),
			LoadPageCmd(m.cfg.Library, l.id, paging.Refresh),
		)
	}
	if m.cfg.Ads != nil {
		cmds = append(cmds, LoadAdCmd(m.cfg.Ads, m.cfg.AdSlot))
	}
	if m.cfg.Sessions != nil {
		cmds = append(cmds, WaitForSessionCmd(m.cfg.Sessions))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.clampScroll()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)

	case ListUpdatedMsg:
		l := m.list(msg.ListID)
		if l == nil {
			return m, nil
		}
		l.items = msg.Items
		m.applyFilter(l)
		return m, WaitForListCmd(l.id, l.updates)

	case PageLoadedMsg:
		l := m.list(msg.ListID)
		if l == nil {
			return m, nil
		}
		l.loading = false
		if msg.Err != nil {
			return m, m.setStatus(loadErrorText(msg), true)
		}
		l.end = msg.Result.EndOfPagination
		return m, nil

	case ActionQueuedMsg:
		return m, m.setStatus(msg.Description, false)

	case LaunchedMsg:
		return m, m.setStatus("Joining "+msg.Name, false)

	case FlushDoneMsg:
		text := fmt.Sprintf("Synced %d change(s)", msg.Result.Delivered)
		if msg.Result.Failed > 0 {
			text += fmt.Sprintf(", %d will retry", msg.Result.Failed)
		}
		return m, m.setStatus(text, false)

	case AdLoadedMsg:
		m.ad = msg.Text
		return m, nil

	case SessionExpiredMsg:
		m.sessionExpired = true
		cmd := m.setStatus("Session rejected by the backend; update api.token and restart", true)
		return m, tea.Batch(cmd, WaitForSessionCmd(m.cfg.Sessions))

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case ErrMsg:
		m.cfg.Logger.Error("browser action failed", "context", msg.Context, "error", msg.Err)
		return m, m.setStatus(msg.Error(), true)
	}

	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	l := m.current()
	switch msg.Type {
	case tea.KeyEsc:
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.applyFilter(l)
		return m, nil
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter(l)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	l := m.current()

	switch {
	case key.Matches(msg, Keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	case key.Matches(msg, Keys.Up):
		if l.cursor > 0 {
			l.cursor--
		}
		m.clampScroll()
		return m, nil

	case key.Matches(msg, Keys.Down):
		if l.cursor < len(l.visible)-1 {
			l.cursor++
			m.clampScroll()
			return m, nil
		}
		// Scrolling past the last row pages in more
		return m, m.loadMore(l)

	case key.Matches(msg, Keys.Home):
		l.cursor = 0
		m.clampScroll()
		return m, nil

	case key.Matches(msg, Keys.End):
		if len(l.visible) > 0 {
			l.cursor = len(l.visible) - 1
		}
		m.clampScroll()
		return m, m.loadMore(l)

	case key.Matches(msg, Keys.NextTab):
		m.active = (m.active + 1) % len(m.lists)
		m.applyFilter(m.current())
		return m, nil

	case key.Matches(msg, Keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()

	case key.Matches(msg, Keys.Escape):
		m.filter.SetValue("")
		m.applyFilter(l)
		return m, nil

	case key.Matches(msg, Keys.Refresh):
		if l.loading {
			return m, nil
		}
		l.loading = true
		return m, LoadPageCmd(m.cfg.Library, l.id, paging.Refresh)

	case key.Matches(msg, Keys.LoadMore):
		return m, m.loadMore(l)

	case key.Matches(msg, Keys.Favorite):
		item, ok := l.selected()
		if !ok {
			return m, nil
		}
		if item.Kind != domain.KindServer {
			return m, m.setStatus("Only servers can be favorited", true)
		}
		return m, ToggleFavoriteCmd(m.cfg.Outbox, l.id, item)

	case key.Matches(msg, Keys.Subscribe):
		item, ok := l.selected()
		if !ok {
			return m, nil
		}
		if item.Kind != domain.KindServer {
			return m, m.setStatus("Wipe alerts are only available for servers", true)
		}
		return m, ToggleSubscribeCmd(m.cfg.Outbox, l.id, item)

	case key.Matches(msg, Keys.Connect):
		item, ok := l.selected()
		if !ok || m.cfg.Launcher == nil {
			return m, nil
		}
		if item.ConnectURL() == "" {
			return m, m.setStatus("No connect address for "+item.Name, true)
		}
		return m, LaunchCmd(m.cfg.Launcher, item)

	case key.Matches(msg, Keys.Flush):
		if m.cfg.Flusher == nil {
			return m, nil
		}
		return m, FlushCmd(m.cfg.Flusher)
	}

	return m, nil
}

func (m *Model) loadMore(l *listState) tea.Cmd {
	if l.loading || l.end || m.filter.Value() != "" {
		return nil
	}
	l.loading = true
	return LoadPageCmd(m.cfg.Library, l.id, paging.Append)
}

func (m *Model) applyFilter(l *listState) {
	selectedID := ""
	if item, ok := l.selected(); ok {
		selectedID = item.ID
	}

	l.visible = search.Filter(m.filter.Value(), l.items)

	// Keep the selection on the same row when it is still visible
	l.cursor = 0
	for i, r := range l.visible {
		if r.Item.ID == selectedID {
			l.cursor = i
			break
		}
	}
	m.clampScroll()
}

func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.status = text
	m.statusErr = isErr
	return clearStatusAfter(m.statusSeq, statusTTL)
}

func (m *Model) current() *listState {
	return m.lists[m.active]
}

func (m *Model) list(id string) *listState {
	for _, l := range m.lists {
		if l.id == id {
			return l
		}
	}
	return nil
}

func (m *Model) rows() int {
	rows := m.height - chromeHeight
	if m.cfg.Ads != nil {
		rows -= adHeight
	}
	if m.showHelp {
		rows -= 3
	}
	if rows < minRows {
		rows = minRows
	}
	return rows
}

func (m *Model) clampScroll() {
	l := m.current()
	if l.cursor >= len(l.visible) {
		l.cursor = max(len(l.visible)-1, 0)
	}
	rows := m.rows()
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+rows {
		l.offset = l.cursor - rows + 1
	}
}

func loadErrorText(msg PageLoadedMsg) string {
	var loadErr *paging.LoadError
	switch {
	case errors.Is(msg.Err, domain.ErrAuthFailed):
		return "Session rejected by the backend; update api.token and restart"
	case errors.As(msg.Err, &loadErr) && loadErr.Retryable():
		return fmt.Sprintf("Could not load %s (press r to retry)", msg.ListID)
	default:
		return fmt.Sprintf("Could not load %s: %v", msg.ListID, msg.Err)
	}
}

// === View ===

func (m Model) View() string {
	var b strings.Builder
	l := m.lists[m.active]

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
	} else {
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("%d rows", len(l.items))))
	}
	b.WriteString("\n")

	rows := m.rows()
	end := min(l.offset+rows, len(l.visible))
	for i := l.offset; i < end; i++ {
		b.WriteString(m.renderRow(l.visible[i], i == l.cursor))
		b.WriteString("\n")
	}
	for i := end - l.offset; i < rows; i++ {
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatus(l))
	b.WriteString("\n")

	if m.cfg.Ads != nil {
		ad := m.ad
		if ad == "" {
			ad = " "
		}
		b.WriteString(styles.AdStyle.Width(max(m.width-4, 10)).Render(styles.Truncate(ad, max(m.width-6, 4))))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(Keys))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(m.lists))
	for i, l := range m.lists {
		title := l.title
		if l.loading {
			title += " " + m.spinner.View()
		}
		if i == m.active {
			tabs[i] = styles.ActiveTabStyle.Render(title)
		} else {
			tabs[i] = styles.InactiveTabStyle.Render(title)
		}
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, append([]string{styles.TitleStyle.Render("wipewatch")}, tabs...)...)
	if m.sessionExpired {
		header += " " + styles.ErrorStyle.Render("offline: session expired")
	}
	return header
}

func (m Model) renderRow(r search.FilterResult, selected bool) string {
	item := r.Item
	base := styles.NormalItemStyle
	if selected {
		base = styles.SelectedItemStyle
	}

	marks := "  "
	if item.Favorited {
		marks = styles.FavoriteMark + " "
	}
	if item.Subscribed {
		marks += styles.SubscribeMark
	} else {
		marks += " "
	}

	desc := item.Description()
	if d := item.NextWipeIn(time.Now()); d > 0 {
		desc += " · wipe in " + formatDuration(d)
	}

	nameWidth := max(m.width-lipgloss.Width(desc)-8, 10)
	name := styles.Truncate(item.Name, nameWidth)
	matched := r.MatchedIndexes
	if name != item.Name {
		matched = nil
	}

	return marks + " " + styles.Highlight(styles.Pad(name, nameWidth), matched, base) +
		base.Render(" ") + styles.DimStyle.Inherit(base).Render(desc)
}

func (m Model) renderStatus(l *listState) string {
	switch {
	case m.status != "" && m.statusErr:
		return styles.ErrorStyle.Render(m.status)
	case m.status != "":
		return styles.SuccessStyle.Render(m.status)
	case l.loading:
		return styles.DimStyle.Render("Loading " + l.title + "...")
	case l.end:
		return styles.DimStyle.Render("End of list")
	default:
		return ""
	}
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
