package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/shiftwatch/internal/api"
	"github.com/fentz26/shiftwatch/internal/models"
)

var shiftCmd = &cobra.Command{
	Use:   "shift",
	Short: "Record and review shifts",
}

var shiftInCmd = &cobra.Command{
	Use:   "in [mail]",
	Short: "Check in",
	Args:  cobra.ExactArgs(1),
	RunE:  runShiftIn,
}

var shiftOutCmd = &cobra.Command{
	Use:   "out [shift-id]",
	Short: "Check out",
	Args:  cobra.ExactArgs(1),
	RunE:  runShiftOut,
}

var shiftReportCmd = &cobra.Command{
	Use:   "report [mail]",
	Short: "Reconcile a member's shifts against their schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runShiftReport,
}

var shiftWeekCmd = &cobra.Command{
	Use:   "week",
	Short: "Show this week's shifts, merged per member",
	RunE:  runShiftWeek,
}

var shiftExcuseCmd = &cobra.Command{
	Use:   "excuse",
	Short: "Excuse a block on a date for every member",
	RunE:  runShiftExcuse,
}

var shiftExcusedCmd = &cobra.Command{
	Use:   "excused",
	Short: "List excused blocks",
	RunE:  runShiftExcused,
}

var (
	reportStart  string
	reportEnd    string
	excuseDate   string
	excuseBlock  int
	excuseReason string
)

func init() {
	shiftCmd.AddCommand(shiftInCmd, shiftOutCmd, shiftReportCmd, shiftWeekCmd, shiftExcuseCmd, shiftExcusedCmd)

	shiftReportCmd.Flags().StringVar(&reportStart, "start", "", "First day, YYYY-MM-DD (required)")
	shiftReportCmd.Flags().StringVar(&reportEnd, "end", "", "Last day, YYYY-MM-DD (default today)")
	shiftReportCmd.MarkFlagRequired("start")

	shiftExcuseCmd.Flags().StringVar(&excuseDate, "date", "", "Day, YYYY-MM-DD (required)")
	shiftExcuseCmd.Flags().IntVar(&excuseBlock, "block", 0, "Block index")
	shiftExcuseCmd.Flags().StringVar(&excuseReason, "reason", "", "Reason")
	shiftExcuseCmd.MarkFlagRequired("date")
}

func runShiftIn(cmd *cobra.Command, args []string) error {
	var sh api.ShiftView
	resp, err := apiPost("/shifts", map[string]string{"mail": args[0]})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp, &sh); err != nil {
		return err
	}

	fmt.Printf("Checked in to %s at %s\n", sh.Block, sh.Checkin.Format("15:04"))
	fmt.Printf("Shift ID: %s\n", sh.ID)
	return nil
}

func runShiftOut(cmd *cobra.Command, args []string) error {
	var sh api.ShiftView
	resp, err := apiPut("/shifts", map[string]string{"id": args[0]})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp, &sh); err != nil {
		return err
	}

	fmt.Printf("Checked out of %s at %s\n", sh.Block, sh.Checkout.Format("15:04"))
	return nil
}

func runShiftReport(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("mail", args[0])
	q.Set("start", reportStart)
	if reportEnd != "" {
		q.Set("end", reportEnd)
	}

	var rep api.ReportView
	if err := apiGetJSON("/shifts?"+q.Encode(), &rep); err != nil {
		return err
	}

	fmt.Printf("Member:   %s (%s)\n", rep.Member.Nick, rep.Member.Mail)
	fmt.Printf("Interval: %s .. %s\n", rep.Start, rep.End)
	fmt.Printf("Attended: %d/%d\n", rep.Attended, rep.Ideal)
	if rep.MeanOffset != nil {
		fmt.Printf("Mean:     %+.1f min before start\n", *rep.MeanOffset)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tBLOCK\tCHECKIN\tCHECKOUT\tOFFSET")
	for i, e := range rep.Shifts {
		in, out, offset := "-", "-", "missed"
		if e.Shift != nil {
			in = e.Shift.Checkin.Format("15:04")
			if e.Shift.Checkout != nil {
				out = e.Shift.Checkout.Format("15:04")
			}
		}
		if i < len(rep.Datapoints) && rep.Datapoints[i] != nil {
			offset = fmt.Sprintf("%+d", *rep.Datapoints[i])
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Occurrence.Date, e.Occurrence.Label, in, out, offset)
	}
	w.Flush()

	if len(rep.Suspicious) > 0 {
		fmt.Println()
		fmt.Println("Suspicious:")
		for _, s := range rep.Suspicious {
			out := "open"
			if s.Checkout != nil {
				out = s.Checkout.Format("15:04")
			}
			fmt.Printf("  %s %s-%s %s (%s)\n", s.Checkin.Format("2006-01-02"), s.Checkin.Format("15:04"), out, s.Block, s.Reason)
		}
	}
	return nil
}

func runShiftWeek(cmd *cobra.Command, args []string) error {
	var week [][]api.ShiftView
	if err := apiGetJSON("/shifts/week", &week); err != nil {
		return err
	}

	days := []string{"Mon", "Tue", "Wed", "Thu", "Fri"}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tMEMBER\tBLOCK\tCHECKIN\tCHECKOUT")
	for i, day := range week {
		for _, s := range day {
			member := ""
			if s.Member != nil {
				member = s.Member.Nick
			}
			out := "open"
			if s.Checkout != nil {
				out = s.Checkout.Format("15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", dayName(days, i), member, s.Block, s.Checkin.Format("15:04"), out)
		}
	}
	w.Flush()
	return nil
}

func dayName(days []string, i int) string {
	if i < len(days) {
		return days[i]
	}
	return fmt.Sprint(i)
}

func runShiftExcuse(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"date":   excuseDate,
		"block":  excuseBlock,
		"reason": excuseReason,
	}
	resp, err := apiPost("/shifts/excuse", body)
	if err != nil {
		return err
	}

	var occ api.OccurrenceView
	if err := json.Unmarshal(resp, &occ); err != nil {
		return err
	}
	fmt.Printf("Excused %s %s\n", occ.Date, occ.Label)
	return nil
}

func runShiftExcused(cmd *cobra.Command, args []string) error {
	var list []models.ExcusedOccurrence
	if err := apiGetJSON("/shifts/excuse", &list); err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No excused blocks")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tBLOCK\tREASON")
	for _, ex := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\n", ex.Date.Format("2006-01-02"), ex.Block, strings.TrimSpace(ex.Reason))
	}
	w.Flush()
	return nil
}
