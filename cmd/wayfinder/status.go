package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show campaign progress",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&userLevel, "user-level", "", "Restrict to one user level")
}

var statusColors = map[string]*color.Color{
	"discovered": color.New(color.FgYellow),
	"exploring":  color.New(color.FgBlue),
	"explored":   color.New(color.FgCyan),
	"testing":    color.New(color.FgMagenta),
	"tested":     color.New(color.FgGreen),
	"blocked":    color.New(color.FgRed),
}

func colorStatus(status string) string {
	if c, ok := statusColors[status]; ok {
		return c.Sprint(status)
	}
	return status
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := "/stats"
	if userLevel != "" {
		path += "?user_level=" + url.QueryEscape(userLevel)
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var stats struct {
		UserLevel string         `json:"user_level"`
		Counts    map[string]int `json:"counts"`
		Total     int            `json:"total"`
	}
	if err := json.Unmarshal(resp, &stats); err != nil {
		return err
	}

	if stats.UserLevel != "" {
		fmt.Printf("Campaign progress (%s)\n", stats.UserLevel)
	} else {
		fmt.Println("Campaign progress")
	}

	order := []string{"discovered", "exploring", "explored", "testing", "tested", "blocked"}
	for _, s := range order {
		n := stats.Counts[s]
		if n == 0 {
			continue
		}
		fmt.Printf("  %-12s %d\n", colorStatus(s), n)
	}
	fmt.Printf("  %-12s %d\n", "total", stats.Total)

	done := stats.Counts["tested"] + stats.Counts["blocked"]
	if stats.Total > 0 {
		fmt.Printf("\n%d/%d routes settled (%.0f%%)\n", done, stats.Total, float64(done)/float64(stats.Total)*100)
	}
	return nil
}
