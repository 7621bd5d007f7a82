package cli

import (
	"errors"
	"flag"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"yt-auto-saver/internal/catalog"
	"yt-auto-saver/internal/config"
)

func runStatus(args []string) error {
	defaults, err := config.FromEnv()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	dest := fs.String("dest", defaults.DestDir, "download directory")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dest) == "" {
		fs.Usage()
		return errors.New("--dest is required")
	}

	sum, err := catalog.New(strings.TrimSpace(*dest), nil).Summarize()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(sum)
	}
	fmt.Println(renderStatus(sum, stdoutIsTTY()))
	return nil
}

func renderStatus(sum catalog.Summary, color bool) string {
	rows := [][]string{{"media", strconv.Itoa(sum.Media)}}
	tags := make([]string, 0, len(sum.Markers))
	total := sum.Media
	for tag, n := range sum.Markers {
		tags = append(tags, tag)
		total += n
	}
	slices.Sort(tags)
	for _, tag := range tags {
		rows = append(rows, []string{"[" + tag + "]", strconv.Itoa(sum.Markers[tag])})
	}
	rows = append(rows, []string{"total", strconv.Itoa(total)})

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("STATE", "FILES").
		Rows(rows...)
	if color {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return base.Inherit(titleStyle)
			case row == 0:
				return base.Foreground(lipgloss.Color("42"))
			case row == len(rows)-1:
				return base.Bold(true)
			default:
				return base.Foreground(lipgloss.Color("203"))
			}
		})
	}
	return sum.Dir + "\n" + t.Render()
}
