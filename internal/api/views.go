package api

import (
	"time"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

const dayLayout = "2006-01-02"

// MemberRef identifies a member in responses.
type MemberRef struct {
	Mail string `json:"mail"`
	Nick string `json:"nick"`
}

func refOf(m models.Member) MemberRef {
	return MemberRef{Mail: m.Mail, Nick: m.DisplayName()}
}

// OccurrenceView is a dated block.
type OccurrenceView struct {
	Date     string    `json:"date"`
	Weekday  int       `json:"weekday"`
	Block    int       `json:"block"`
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Checkin  time.Time `json:"checkin"`
	Checkout time.Time `json:"checkout"`
}

// ShiftView is a recorded shift with the block it was located to.
type ShiftView struct {
	ID       string     `json:"id"`
	Member   *MemberRef `json:"member,omitempty"`
	Block    string     `json:"block"`
	Checkin  time.Time  `json:"checkin"`
	Checkout *time.Time `json:"checkout"`
	Reason   string     `json:"reason,omitempty"`
}

// NowView answers GET /now.
type NowView struct {
	Weekday  int            `json:"weekday"`
	Time     string         `json:"time"`
	Datetime time.Time      `json:"datetime"`
	Upcoming OccurrenceView `json:"upcoming"`
	Active   bool           `json:"active"`
	Pair     []MemberRef    `json:"pair"`
}

// MemberStatus answers GET /members/{mail}.
type MemberStatus struct {
	MemberRef
	Rol      int64          `json:"rol"`
	Name     string         `json:"name"`
	Schedule string         `json:"schedule"`
	Running  *ShiftView     `json:"running"`
	Next     OccurrenceView `json:"next"`
}

// TimelineEntry is one ideal occurrence and the shift that fulfilled it.
type TimelineEntry struct {
	Occurrence OccurrenceView `json:"occurrence"`
	Shift      *ShiftView     `json:"shift"`
}

// ReportView answers GET /shifts.
type ReportView struct {
	Member     MemberRef       `json:"member"`
	Start      string          `json:"start"`
	End        string          `json:"end"`
	Ideal      int             `json:"ideal"`
	Attended   int             `json:"attended"`
	MeanOffset *float64        `json:"mean_offset"`
	Shifts     []TimelineEntry `json:"shifts"`
	InSchedule []ShiftView     `json:"in_schedule"`
	Suspicious []ShiftView     `json:"suspicious"`
	Datapoints []*int          `json:"datapoints"`
	Labels     []string        `json:"labels"`
}

// BlockView is one catalog entry.
type BlockView struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// BlocksView answers GET /blocks.
type BlocksView struct {
	Blocks     []BlockView `json:"blocks"`
	Tolerances struct {
		BeforeStart string `json:"before_start"`
		AfterStart  string `json:"after_start"`
		AfterEnd    string `json:"after_end"`
	} `json:"tolerances"`
	Weekdays struct {
		Letters string   `json:"letters"`
		Labels  []string `json:"labels"`
	} `json:"weekdays"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`

	Sweeper map[string]interface{} `json:"sweeper,omitempty"`
}

func (s *Service) occurrenceView(occ schedule.Occurrence) OccurrenceView {
	return OccurrenceView{
		Date:     occ.Date.Format(dayLayout),
		Weekday:  occ.Weekday(),
		Block:    occ.Index,
		Name:     occ.Block.Name,
		Label:    s.engine.Label(occ),
		Checkin:  occ.Checkin(),
		Checkout: occ.Checkout(),
	}
}

// shiftView names the block nearest to the check-in; the lookup is loose
// so every shift gets one.
func (s *Service) shiftView(sh models.Shift, m *models.Member) ShiftView {
	v := ShiftView{ID: sh.ID, Checkin: sh.Checkin, Checkout: sh.Checkout}
	if occ, err := s.codec.Catalog().Locate(sh.Checkin, false); err == nil {
		v.Block = occ.Block.Name
	}
	if m != nil {
		ref := refOf(*m)
		v.Member = &ref
	}
	return v
}
