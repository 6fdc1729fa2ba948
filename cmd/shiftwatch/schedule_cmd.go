package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/shiftwatch/internal/config"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Work with schedule encodings offline",
}

var scheduleVerifyCmd = &cobra.Command{
	Use:   "verify [encoding]",
	Short: "Check a schedule encoding against the configured catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleVerify,
}

var schedulePreviewCmd = &cobra.Command{
	Use:   "preview [encoding]",
	Short: "List the next occurrences of a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulePreview,
}

var (
	previewCount int
	previewFrom  string
)

func init() {
	scheduleCmd.AddCommand(scheduleVerifyCmd, schedulePreviewCmd)

	schedulePreviewCmd.Flags().IntVar(&previewCount, "count", 10, "Number of occurrences")
	schedulePreviewCmd.Flags().StringVar(&previewFrom, "from", "", "Reference day, YYYY-MM-DD (default now)")
}

func loadCodec() (*schedule.Codec, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	codec, warnings, err := cfg.Codec()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return codec, nil
}

func runScheduleVerify(cmd *cobra.Command, args []string) error {
	codec, err := loadCodec()
	if err != nil {
		return err
	}

	s, err := codec.Decode(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("OK: %d slots, canonical form %s\n", len(s), codec.Encode(s))
	return nil
}

func runSchedulePreview(cmd *cobra.Command, args []string) error {
	codec, err := loadCodec()
	if err != nil {
		return err
	}
	s, err := codec.Decode(args[0])
	if err != nil {
		return err
	}

	ref := time.Now()
	if previewFrom != "" {
		if ref, err = time.ParseInLocation("2006-01-02", previewFrom, time.Local); err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
	}

	cur, err := schedule.NewCursor(s, ref)
	if err != nil {
		return err
	}
	alphabet := codec.Alphabet()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tDAY\tBLOCK\tCHECKIN\tCHECKOUT")
	for i := 0; i < previewCount; i++ {
		occ := cur.Next()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			occ.Date.Format("2006-01-02"), alphabet.Label(occ.Weekday()), occ.Block.Name,
			occ.Block.Start, occ.Block.End)
	}
	w.Flush()
	return nil
}
