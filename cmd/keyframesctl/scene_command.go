package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"keyframes-backend/internal/scene"
	"keyframes-backend/internal/timeline"
)

func newSceneCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "scene <descriptor.json>",
		Short: "Show the composed scene at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDescriptor(args[0])
			if err != nil {
				return err
			}
			t, err := parseTime(at)
			if err != nil {
				return err
			}
			if t < 0 {
				return fmt.Errorf("time must not be negative")
			}
			sc := d.ComposeAt(t)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s at %s (timeline v%d)\n", d.ProjectName, formatMs(t), sc.Version)
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Kind", "Track", "Layer", "X", "Y", "Opacity", "Content"},
				sceneRows(sc),
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			for _, cue := range sc.Audio {
				fmt.Fprintf(out, "audio %s at %s volume %.2f\n", cue.Source, formatMs(cue.MediaTime), cue.Volume)
			}
			for _, w := range sc.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "0", "Time to compose (duration or milliseconds)")
	return cmd
}

func sceneRows(sc scene.Scene) [][]string {
	rows := make([][]string, 0, len(sc.Objects))
	for i, obj := range sc.Objects {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(obj.Kind),
			strconv.Itoa(obj.TrackPosition),
			strconv.Itoa(obj.LayerOrder),
			strconv.FormatFloat(obj.X, 'f', -1, 64),
			strconv.FormatFloat(obj.Y, 'f', -1, 64),
			strconv.FormatFloat(obj.Opacity, 'f', 2, 64),
			objectContent(obj),
		})
	}
	return rows
}

func objectContent(obj scene.RenderObject) string {
	switch {
	case obj.Text != nil:
		return strconv.Quote(obj.Text.Content)
	case obj.Shape != nil:
		return obj.Shape.Shape + " " + obj.Shape.Fill
	case obj.Source != "":
		if obj.Kind == scene.ObjectVideo {
			return fmt.Sprintf("%s @%s", obj.Source, formatMs(obj.MediaTime))
		}
		return obj.Source
	}
	return ""
}

func newActiveCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "active <descriptor.json>",
		Short: "List the items active at a time in paint order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDescriptor(args[0])
			if err != nil {
				return err
			}
			t, err := parseTime(at)
			if err != nil {
				return err
			}
			snap := d.Snapshot()
			items := snap.ActiveAt(t)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Item", "Track", "Start", "End", "Layer"},
				itemRows(snap, items),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "0", "Time to query (duration or milliseconds)")
	return cmd
}

func itemRows(snap timeline.Snapshot, items []timeline.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		track := it.TrackID.String()
		if tr, ok := snap.Track(it.TrackID); ok {
			track = tr.Name
		}
		rows = append(rows, []string{
			it.ID.String(),
			track,
			formatMs(it.StartTime),
			formatMs(it.EndTime),
			strconv.Itoa(it.LayerOrder),
		})
	}
	return rows
}
