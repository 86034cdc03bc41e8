package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facemark/internal/config"
	"github.com/kozaktomas/facemark/internal/engine"
	"github.com/kozaktomas/facemark/internal/store"
	"github.com/kozaktomas/facemark/internal/store/postgres"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage attendance sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	RunE:  runSessionsList,
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session before its deadline",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsEnd,
}

var sessionsFinalizeCmd = &cobra.Command{
	Use:   "finalize <session-id>",
	Short: "Finalize an ended session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsFinalize,
}

var sessionsReportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Print the attendance report for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsReport,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
	sessionsCmd.AddCommand(sessionsFinalizeCmd)
	sessionsCmd.AddCommand(sessionsReportCmd)

	sessionsListCmd.Flags().String("department", "", "Filter by department")
	sessionsListCmd.Flags().String("year", "", "Filter by year")
	sessionsListCmd.Flags().String("division", "", "Filter by division")
	sessionsListCmd.Flags().Bool("json", false, "Output as JSON")

	sessionsReportCmd.Flags().Bool("json", false, "Output as JSON")
}

// newEngine connects to the database and builds an engine for CLI use.
// The caller must Close both the returned engine and pool.
func newEngine() (*engine.Engine, *postgres.Pool, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	eng := engine.New(postgres.New(pool), engine.Config{
		Threshold:  cfg.Matching.Threshold,
		CacheTTL:   cfg.Matching.CacheTTL,
		HNSWCutoff: cfg.Matching.HNSWCutoff,
	})
	return eng, pool, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	eng, pool, err := newEngine()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer eng.Close()

	scope := store.Scope{
		Department: mustGetString(cmd, "department"),
		Year:       mustGetString(cmd, "year"),
		Division:   mustGetString(cmd, "division"),
	}

	sessions, err := eng.Sessions.ListActive(context.Background(), scope)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return json.NewEncoder(os.Stdout).Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tSCOPE\tENDS AT\tREMAINING")
	for i := range sessions {
		s := &sessions[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dm\n",
			s.ID, s.Subject, s.Scope.Key(),
			s.EndsAt.Format("15:04:05"), eng.Sessions.Remaining(s))
	}
	return w.Flush()
}

func runSessionsEnd(cmd *cobra.Command, args []string) error {
	eng, pool, err := newEngine()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer eng.Close()

	if err := eng.Sessions.End(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Session %s ended\n", args[0])
	return nil
}

func runSessionsFinalize(cmd *cobra.Command, args []string) error {
	eng, pool, err := newEngine()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer eng.Close()

	if err := eng.Sessions.Finalize(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Session %s finalized\n", args[0])
	return nil
}

func runSessionsReport(cmd *cobra.Command, args []string) error {
	eng, pool, err := newEngine()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer eng.Close()

	session, records, err := eng.Attendance(context.Background(), args[0])
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"session": session,
			"records": records,
		})
	}

	fmt.Printf("Session %s: %s (%s) - %s\n", session.ID, session.Subject, session.Scope.Key(), session.Status)
	fmt.Printf("Present: %d of %d expected\n\n", len(records), len(session.Roster))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCONFIDENCE\tMARKED AT")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%.1f%%\t%s\n",
			record.Name, record.Confidence, record.MarkedAt.Format("15:04:05"))
	}
	return w.Flush()
}
