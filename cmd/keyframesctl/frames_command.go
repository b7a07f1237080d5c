package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"keyframes-backend/internal/playback"
)

// steppedClock is a wall clock that only moves when told to.
type steppedClock struct{ now time.Time }

func (s *steppedClock) Now() time.Time { return s.now }

func newFramesCommand() *cobra.Command {
	var step time.Duration
	var from string
	cmd := &cobra.Command{
		Use:   "frames <descriptor.json>",
		Short: "Play the descriptor back in fixed steps and trace the scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if step <= 0 {
				return fmt.Errorf("step must be positive")
			}
			d, err := loadDescriptor(args[0])
			if err != nil {
				return err
			}
			start, err := parseTime(from)
			if err != nil {
				return err
			}

			wall := &steppedClock{now: time.Unix(0, 0)}
			duration := time.Duration(d.Settings.Duration) * time.Millisecond
			if duration <= 0 {
				duration = time.Duration(d.Canvas.Duration) * time.Millisecond
			}
			clock := playback.New(duration, playback.WithoutTicker(), playback.WithNow(wall.Now))
			defer clock.Close()
			clock.Seek(time.Duration(start) * time.Millisecond)
			clock.Play()

			var rows [][]string
			for {
				t := clock.Position().Milliseconds()
				sc := d.ComposeAt(t)
				rows = append(rows, []string{
					formatMs(t),
					strconv.Itoa(len(sc.Objects)),
					strconv.Itoa(len(sc.Audio)),
					strconv.Itoa(len(sc.Warnings)),
				})
				if clock.State() != playback.Playing {
					break
				}
				wall.now = wall.now.Add(step)
				clock.Advance()
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Time", "Objects", "Audio", "Warnings"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().DurationVar(&step, "step", time.Second, "Playback step between traced frames")
	cmd.Flags().StringVar(&from, "from", "0", "Start time (duration or milliseconds)")
	return cmd
}
