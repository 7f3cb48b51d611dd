package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var bugCmd = &cobra.Command{
	Use:   "bug",
	Short: "File bugs against routes",
}

var bugReportCmd = &cobra.Command{
	Use:   "report [route]",
	Short: "Report a bug found on a route",
	Long: `Files a BUG ticket and blocks the route. Reports are deduplicated on their
signature, so re-reporting the same finding returns the original ticket.`,
	Args: cobra.ExactArgs(1),
	RunE: runBugReport,
}

var (
	bugTitle     string
	bugDesc      string
	bugSeverity  string
	bugSignature string
)

func init() {
	bugCmd.AddCommand(bugReportCmd)

	bugReportCmd.Flags().StringVar(&userLevel, "user-level", "", "User level the bug was found at (required)")
	bugReportCmd.MarkFlagRequired("user-level")
	bugReportCmd.Flags().StringVar(&bugTitle, "title", "", "Bug title (required)")
	bugReportCmd.MarkFlagRequired("title")
	bugReportCmd.Flags().StringVar(&bugDesc, "desc", "", "Bug description")
	bugReportCmd.Flags().StringVar(&bugSeverity, "severity", "medium", "Severity (low, medium, high, critical)")
	bugReportCmd.Flags().StringVar(&bugSignature, "signature", "", "Dedup signature (derived from route and title when empty)")
}

func runBugReport(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/bugs", map[string]string{
		"user_level":  userLevel,
		"route":       args[0],
		"title":       bugTitle,
		"description": bugDesc,
		"severity":    bugSeverity,
		"signature":   bugSignature,
	})
	if err != nil {
		return err
	}

	var report struct {
		Bug struct {
			BugID string `json:"bug_id"`
		} `json:"bug"`
		Duplicate bool `json:"duplicate"`
	}
	if err := json.Unmarshal(resp, &report); err != nil {
		return err
	}

	if report.Duplicate {
		fmt.Printf("Already on file as %s\n", report.Bug.BugID)
		return nil
	}
	fmt.Printf("Filed %s, route blocked\n", report.Bug.BugID)
	return nil
}

var helperCmd = &cobra.Command{
	Use:   "helper [name]",
	Short: "Create a campaign-level helper ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runHelper,
}

var helperDesc string

func init() {
	helperCmd.Flags().StringVar(&helperDesc, "desc", "", "Helper ticket description")
}

func runHelper(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/helpers", map[string]string{
		"name":        args[0],
		"description": helperDesc,
	})
	if err != nil {
		return err
	}

	var result struct {
		TicketID string `json:"ticket_id"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Helper ticket %s\n", result.TicketID)
	return nil
}
