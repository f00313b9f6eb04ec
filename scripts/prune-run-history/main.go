// prune-run-history removes old execution history from the events log.
//
// An execution is pruned only when every run in it has reached a terminal
// status (COMPLETED or FAILED) and its newest run started before the
// retention cutoff. Executions with WAITING or IN_PROGRESS runs are kept
// regardless of age so stuck runs stay visible on the dashboard.
//
// Usage: go run ./scripts/prune-run-history [-dry-run=false] [-days=90]
//
// Database connection: Uses standard PG* environment variables
//
// Flags:
//
//	-dry-run   Show what would be deleted without actually deleting (default: true)
//	-days      Keep executions whose newest run started within this many days (default: 90)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	days := flag.Int("days", 90, "Keep executions whose newest run started within this many days")
	flag.Parse()

	if *days < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dry-run=false] [-days=90]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		fmt.Fprintf(os.Stderr, "  -dry-run  Show what would be deleted without deleting (default: true)\n")
		fmt.Fprintf(os.Stderr, "  -days     Retention window in days, must be at least 1 (default: 90)\n")
		os.Exit(1)
	}

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	cutoff := time.Now().AddDate(0, 0, -*days)

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually delete history")
		fmt.Println()
	}

	total, err := pruneExpiredExecutions(ctx, conn, cutoff, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error pruning run history: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Printf("\nTotal runs that would be deleted: %d\n", total)
	} else {
		fmt.Printf("\nTotal runs deleted: %d\n", total)
	}
}

// pruneExpiredExecutions deletes events-log rows for executions that finished
// before cutoff. If dryRun is true, it only shows what would be deleted
// without making changes.
func pruneExpiredExecutions(ctx context.Context, conn *pgx.Conn, cutoff time.Time, dryRun bool) (int, error) {
	if dryRun {
		rows, err := conn.Query(ctx, `
			SELECT execution_id,
			       COUNT(*),
			       COUNT(*) FILTER (WHERE run_status = 'FAILED'),
			       MIN(execution_start_time)
			FROM dcs_events_log
			GROUP BY execution_id
			HAVING bool_and(run_status IN ('COMPLETED', 'FAILED'))
			   AND MAX(execution_start_time) < $1
			ORDER BY MIN(execution_start_time)
		`, cutoff)
		if err != nil {
			return 0, fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		var total int
		for rows.Next() {
			var executionID string
			var runs, failed int64
			var started time.Time
			if err := rows.Scan(&executionID, &runs, &failed, &started); err != nil {
				return 0, fmt.Errorf("scan failed: %w", err)
			}
			total += int(runs)
			fmt.Printf("  %s: %d runs (%d failed), started %s\n",
				executionID, runs, failed, started.Format("2006-01-02"))
		}
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("rows iteration failed: %w", err)
		}

		if total == 0 {
			fmt.Println("  No executions older than the retention window")
		}
		return total, nil
	}

	result, err := conn.Exec(ctx, `
		DELETE FROM dcs_events_log
		WHERE execution_id IN (
			SELECT execution_id
			FROM dcs_events_log
			GROUP BY execution_id
			HAVING bool_and(run_status IN ('COMPLETED', 'FAILED'))
			   AND MAX(execution_start_time) < $1
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	count := int(result.RowsAffected())
	fmt.Printf("Deleted %d runs from executions older than %s\n", count, cutoff.Format("2006-01-02"))
	return count, nil
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "veil_engine")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
