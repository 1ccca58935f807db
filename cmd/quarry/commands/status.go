package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/quarryfs/quarry/internal/cli/output"
	"github.com/quarryfs/quarry/internal/cli/timeutil"
	"github.com/quarryfs/quarry/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the current status of the quarry cache daemon.

This command checks the daemon health by calling the admin API and
displays status, uptime and cache usage information.

Examples:
  # Check status (uses default settings)
  quarry status

  # Check status with custom API port
  quarry status --api-port 9080

  # Output as JSON
  quarry status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/quarry/quarry.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "Admin API port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// DaemonStatus represents the daemon status information.
type DaemonStatus struct {
	Running   bool   `json:"running" yaml:"running"`
	PID       int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message   string `json:"message" yaml:"message"`
	StartedAt string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Healthy   bool   `json:"healthy" yaml:"healthy"`

	Objects     int     `json:"objects,omitempty" yaml:"objects,omitempty"`
	OpenObjects int     `json:"open_objects,omitempty" yaml:"open_objects,omitempty"`
	FreePct     float64 `json:"free_pct,omitempty" yaml:"free_pct,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := DaemonStatus{
		Running: false,
		Healthy: false,
		Message: "Daemon is not running",
	}

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	pidData, err := os.ReadFile(pidPath)
	if err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
		if err == nil {
			// On Unix, FindProcess always succeeds; send signal 0 to probe
			process, err := os.FindProcess(pid)
			if err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	// Check the admin API (works for both daemon and foreground mode)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := apiclient.New(fmt.Sprintf("http://localhost:%d", statusAPIPort)).WithTimeout(2 * time.Second)

	hr, err := client.Health(ctx)
	if err == nil {
		status.Running = true
		status.Healthy = hr.Status == "healthy"
		status.StartedAt = hr.Data.StartedAt
		status.Uptime = hr.Data.Uptime
		if status.Healthy {
			status.Message = "Daemon is running and healthy"
		} else {
			status.Message = fmt.Sprintf("Daemon is running but unhealthy: %s", hr.Error)
		}

		// Enrich with cache counters; ignore errors, stats are best effort
		if stats, err := client.Stats(ctx); err == nil {
			status.Objects = stats.Indexed
			status.OpenObjects = stats.Open
			status.FreePct = stats.Quota.FreePct
		}
	} else if status.Running {
		// PID file says running but the health check failed
		status.Message = "Daemon process exists but health check failed"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status DaemonStatus) {
	fmt.Println()
	fmt.Println("Quarry Daemon Status")
	fmt.Println("====================")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:     \033[33m● Running (unhealthy)\033[0m\n")
		}

		pairs := [][2]string{}
		if status.PID != 0 {
			pairs = append(pairs, [2]string{"PID", strconv.Itoa(status.PID)})
		}
		if status.StartedAt != "" {
			pairs = append(pairs, [2]string{"Started", timeutil.FormatTime(status.StartedAt)})
		}
		if status.Uptime != "" {
			pairs = append(pairs, [2]string{"Uptime", timeutil.FormatUptime(status.Uptime)})
		}
		if status.Objects > 0 || status.Healthy {
			pairs = append(pairs, [2]string{"Cached objects", strconv.Itoa(status.Objects)})
			pairs = append(pairs, [2]string{"Open objects", strconv.Itoa(status.OpenObjects)})
		}
		if status.FreePct > 0 {
			pairs = append(pairs, [2]string{"Free space", fmt.Sprintf("%.1f%%", status.FreePct)})
		}

		fmt.Println()
		_ = output.SimpleTable(os.Stdout, pairs)
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
