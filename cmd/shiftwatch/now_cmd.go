package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/shiftwatch/internal/api"
)

var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Show the current block and who is on duty",
	RunE:  runNow,
}

func runNow(cmd *cobra.Command, args []string) error {
	var now api.NowView
	if err := apiGetJSON("/now", &now); err != nil {
		return err
	}

	state := "upcoming"
	if now.Active {
		state = "check-in open"
	}
	fmt.Printf("Now:   %s %s\n", now.Datetime.Format("2006-01-02"), now.Time)
	fmt.Printf("Block: %s %s, %s-%s (%s)\n", now.Upcoming.Date, now.Upcoming.Label,
		now.Upcoming.Checkin.Format("15:04"), now.Upcoming.Checkout.Format("15:04"), state)
	if len(now.Pair) == 0 {
		fmt.Println("Duty:  nobody")
		return nil
	}
	for i, m := range now.Pair {
		label := "       "
		if i == 0 {
			label = "Duty:  "
		}
		fmt.Printf("%s%s <%s>\n", label, m.Nick, m.Mail)
	}
	return nil
}
