package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/shiftwatch/internal/api"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusOpen   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusClosed = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
)

// shiftItem implements list.Item for one merged shift
type shiftItem struct {
	shift api.ShiftView
}

func (i shiftItem) FilterValue() string { return i.member() }

func (i shiftItem) Title() string {
	return fmt.Sprintf("%s  %s", i.member(), i.shift.Block)
}

func (i shiftItem) Description() string {
	in := i.shift.Checkin.Format("15:04")
	if i.shift.Checkout == nil {
		return fmt.Sprintf("%s - ...  %s", in, statusOpen.Render("● on duty"))
	}
	return fmt.Sprintf("%s - %s  %s", in, i.shift.Checkout.Format("15:04"), statusClosed.Render("● closed"))
}

func (i shiftItem) member() string {
	if i.shift.Member == nil {
		return "?"
	}
	return i.shift.Member.Nick
}

func newDayList() list.Model {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = listTitleStyle
	return l
}

func dayItems(shifts []api.ShiftView) []list.Item {
	items := make([]list.Item, len(shifts))
	for i, s := range shifts {
		items[i] = shiftItem{shift: s}
	}
	return items
}
