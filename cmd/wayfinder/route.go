package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [paths...]",
	Short: "Report observed paths for discovery",
	Long: `Normalizes the given raw paths and records the resulting routes. New routes
get an EXPLORE ticket on the task board; known routes are no-ops.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Ensure EXPLORE tickets for routes that still lack one",
	RunE:  runDispatch,
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect and advance routes",
}

var routeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routes",
	RunE:  runRouteList,
}

var routeShowCmd = &cobra.Command{
	Use:   "show [route]",
	Short: "Show route details",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteShow,
}

var routeClaimCmd = &cobra.Command{
	Use:   "claim [route]",
	Short: "Claim a discovered route for exploration",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteClaim,
}

var routeExploredCmd = &cobra.Command{
	Use:   "explored [route]",
	Short: "Report a finished exploration",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteExplored,
}

var routeTestingCmd = &cobra.Command{
	Use:   "testing [route]",
	Short: "Mark a route as under test",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteTesting,
}

var routeTestedCmd = &cobra.Command{
	Use:   "tested [route]",
	Short: "Mark a route as tested",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteTested,
}

var (
	userLevel   string
	routeStatus string
	subRoutes   []string
	exploreNote string
)

func init() {
	routeCmd.AddCommand(routeListCmd, routeShowCmd, routeClaimCmd, routeExploredCmd, routeTestingCmd, routeTestedCmd)

	discoverCmd.Flags().StringVar(&userLevel, "user-level", "", "User level the paths were observed at (required)")
	discoverCmd.MarkFlagRequired("user-level")

	dispatchCmd.Flags().StringVar(&userLevel, "user-level", "", "Restrict to one user level")

	routeListCmd.Flags().StringVar(&userLevel, "user-level", "", "Filter by user level")
	routeListCmd.Flags().StringVar(&routeStatus, "status", "", "Filter by status (discovered, exploring, explored, testing, tested, blocked)")

	for _, c := range []*cobra.Command{routeShowCmd, routeClaimCmd, routeExploredCmd, routeTestingCmd, routeTestedCmd} {
		c.Flags().StringVar(&userLevel, "user-level", "", "User level (required)")
		c.MarkFlagRequired("user-level")
	}

	routeExploredCmd.Flags().StringSliceVar(&subRoutes, "sub-route", nil, "Raw sub-route found during exploration (repeatable)")
	routeExploredCmd.Flags().StringVar(&exploreNote, "notes", "", "Exploration notes for the TEST ticket")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/routes", map[string]interface{}{
		"user_level": userLevel,
		"paths":      args,
	})
	if err != nil {
		return err
	}

	var result struct {
		New     []string          `json:"new"`
		Known   int               `json:"known"`
		Tickets map[string]string `json:"tickets"`
		Busy    []string          `json:"busy"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	for _, r := range result.New {
		fmt.Printf("new      %s\n", r)
	}
	for route, ticket := range result.Tickets {
		fmt.Printf("ticket   %s -> %s\n", route, ticket)
	}
	for _, r := range result.Busy {
		fmt.Printf("busy     %s\n", r)
	}
	fmt.Printf("%d new, %d known\n", len(result.New), result.Known)
	return nil
}

func runDispatch(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/dispatch", map[string]string{"user_level": userLevel})
	if err != nil {
		return err
	}

	var result struct {
		Tickets map[string]string `json:"tickets"`
		Busy    []string          `json:"busy"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	if len(result.Tickets) == 0 && len(result.Busy) == 0 {
		fmt.Println("Nothing pending")
		return nil
	}
	for route, ticket := range result.Tickets {
		fmt.Printf("ticket   %s -> %s\n", route, ticket)
	}
	for _, r := range result.Busy {
		fmt.Printf("busy     %s\n", r)
	}
	return nil
}

func runRouteList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if userLevel != "" {
		q.Set("user_level", userLevel)
	}
	if routeStatus != "" {
		q.Set("status", routeStatus)
	}

	path := "/routes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var routes []map[string]interface{}
	if err := json.Unmarshal(resp, &routes); err != nil {
		return err
	}

	if len(routes) == 0 {
		fmt.Println("No routes found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER LEVEL\tROUTE\tSTATUS\tAUDIT\tTEST\tBUGS")
	for _, r := range routes {
		bugs := 0
		if ids, ok := r["bug_ids"].([]interface{}); ok {
			bugs = len(ids)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r["user_level"], truncate(str(r["route"]), 50), colorStatus(str(r["status"])),
			str(r["audit_id"]), str(r["test_id"]), bugs)
	}
	w.Flush()
	return nil
}

func runRouteShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/route?user_level=" + url.QueryEscape(userLevel) + "&route=" + url.QueryEscape(args[0]))
	if err != nil {
		return err
	}

	var r map[string]interface{}
	if err := json.Unmarshal(resp, &r); err != nil {
		return err
	}

	fmt.Printf("Route:       %s\n", r["route"])
	fmt.Printf("User Level:  %s\n", r["user_level"])
	fmt.Printf("Status:      %s\n", colorStatus(str(r["status"])))
	if id := str(r["audit_id"]); id != "" {
		fmt.Printf("Audit:       %s\n", id)
	}
	if id := str(r["test_id"]); id != "" {
		fmt.Printf("Test:        %s\n", id)
	}
	if ids, ok := r["bug_ids"].([]interface{}); ok && len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprint(id)
		}
		fmt.Printf("Bugs:        %s\n", strings.Join(parts, ", "))
	}
	fmt.Printf("Discovered:  %s\n", r["discovered_at"])
	if at, ok := r["last_audited_at"].(string); ok && at != "" {
		fmt.Printf("Audited:     %s\n", at)
	}
	if until, ok := r["lease_until"].(string); ok && until != "" {
		fmt.Printf("Lease Until: %s\n", until)
	}
	return nil
}

func postRouteAction(path, route string) ([]byte, error) {
	return apiPost(path, map[string]string{
		"user_level": userLevel,
		"route":      route,
	})
}

func runRouteClaim(cmd *cobra.Command, args []string) error {
	if _, err := postRouteAction("/routes/claim", args[0]); err != nil {
		return err
	}
	fmt.Printf("Claimed %s for exploration\n", args[0])
	return nil
}

func runRouteExplored(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/routes/explored", map[string]interface{}{
		"user_level": userLevel,
		"route":      args[0],
		"sub_routes": subRoutes,
		"notes":      exploreNote,
	})
	if err != nil {
		return err
	}

	var result struct {
		TestTicket string `json:"test_ticket"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Explored %s, test ticket %s\n", args[0], result.TestTicket)
	return nil
}

func runRouteTesting(cmd *cobra.Command, args []string) error {
	if _, err := postRouteAction("/routes/testing", args[0]); err != nil {
		return err
	}
	fmt.Printf("Testing %s\n", args[0])
	return nil
}

func runRouteTested(cmd *cobra.Command, args []string) error {
	if _, err := postRouteAction("/routes/tested", args[0]); err != nil {
		return err
	}
	fmt.Printf("Tested %s\n", args[0])
	return nil
}

// --- Helpers ---

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
