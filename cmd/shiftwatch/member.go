package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/shiftwatch/internal/api"
	"github.com/fentz26/shiftwatch/internal/models"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage roster members",
}

var memberAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a member",
	RunE:  runMemberAdd,
}

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members",
	RunE:  runMemberList,
}

var memberShowCmd = &cobra.Command{
	Use:   "show [mail]",
	Short: "Show a member's running shift and next block",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberShow,
}

var memberScheduleCmd = &cobra.Command{
	Use:   "schedule [mail] [encoding]",
	Short: "Show a member's upcoming blocks, or replace the schedule",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMemberSchedule,
}

var memberRemoveCmd = &cobra.Command{
	Use:   "rm [mail]",
	Short: "Remove a member and their shifts",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberRemove,
}

var (
	memberRol      int64
	memberMail     string
	memberName     string
	memberNick     string
	memberSchedule string
)

func init() {
	memberCmd.AddCommand(memberAddCmd, memberListCmd, memberShowCmd, memberScheduleCmd, memberRemoveCmd)

	memberAddCmd.Flags().Int64Var(&memberRol, "rol", 0, "Student number (required)")
	memberAddCmd.Flags().StringVar(&memberMail, "mail", "", "Mail address (required)")
	memberAddCmd.Flags().StringVar(&memberName, "name", "", "Full name (required)")
	memberAddCmd.Flags().StringVar(&memberNick, "nick", "", "Nickname")
	memberAddCmd.Flags().StringVar(&memberSchedule, "schedule", "", "Schedule encoding, e.g. l0,2x1 (required)")
	memberAddCmd.MarkFlagRequired("rol")
	memberAddCmd.MarkFlagRequired("mail")
	memberAddCmd.MarkFlagRequired("name")
	memberAddCmd.MarkFlagRequired("schedule")
}

func memberPath(mail string) string {
	return "/members/" + url.PathEscape(mail)
}

func runMemberAdd(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{
		"rol":      memberRol,
		"mail":     memberMail,
		"name":     memberName,
		"nick":     memberNick,
		"schedule": memberSchedule,
	}

	resp, err := apiPost("/members", body)
	if err != nil {
		return err
	}

	var m models.Member
	if err := json.Unmarshal(resp, &m); err != nil {
		return err
	}

	fmt.Printf("Created member: %s (%s)\n", m.Mail, truncateID(m.ID))
	return nil
}

func runMemberList(cmd *cobra.Command, args []string) error {
	var members []models.Member
	if err := apiGetJSON("/members", &members); err != nil {
		return err
	}

	if len(members) == 0 {
		fmt.Println("No members found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROL\tMAIL\tNAME\tSCHEDULE")
	for _, m := range members {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Rol, m.Mail, truncate(m.DisplayName(), 30), m.Schedule)
	}
	w.Flush()
	return nil
}

func runMemberShow(cmd *cobra.Command, args []string) error {
	var st api.MemberStatus
	if err := apiGetJSON(memberPath(args[0]), &st); err != nil {
		return err
	}

	fmt.Printf("Mail:     %s\n", st.Mail)
	fmt.Printf("Name:     %s\n", st.Name)
	fmt.Printf("Nick:     %s\n", st.Nick)
	fmt.Printf("Rol:      %d\n", st.Rol)
	fmt.Printf("Schedule: %s\n", st.Schedule)
	if st.Running != nil {
		fmt.Printf("Running:  %s since %s (id %s)\n", st.Running.Block, st.Running.Checkin.Format("15:04"), st.Running.ID)
	}
	fmt.Printf("Next:     %s %s %s-%s\n", st.Next.Date, st.Next.Label, st.Next.Checkin.Format("15:04"), st.Next.Checkout.Format("15:04"))
	return nil
}

func runMemberSchedule(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		if _, err := apiPut(memberPath(args[0])+"/schedule", map[string]string{"schedule": args[1]}); err != nil {
			return err
		}
		fmt.Printf("Updated schedule of %s to %s\n", args[0], args[1])
	}

	var list []api.OccurrenceView
	if err := apiGetJSON(memberPath(args[0])+"/schedule", &list); err != nil {
		return err
	}
	printOccurrences(list)
	return nil
}

func runMemberRemove(cmd *cobra.Command, args []string) error {
	if err := apiDelete(memberPath(args[0])); err != nil {
		return err
	}
	fmt.Printf("Removed member: %s\n", args[0])
	return nil
}

func printOccurrences(list []api.OccurrenceView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tBLOCK\tCHECKIN\tCHECKOUT")
	for _, o := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Date, o.Label, o.Checkin.Format("15:04"), o.Checkout.Format("15:04"))
	}
	w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
