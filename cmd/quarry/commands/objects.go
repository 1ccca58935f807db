package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/quarryfs/quarry/internal/bytesize"
	"github.com/quarryfs/quarry/internal/cli/output"
	"github.com/quarryfs/quarry/pkg/apiclient"
	"github.com/quarryfs/quarry/pkg/index"
	"github.com/spf13/cobra"
)

var (
	objectsServer string
	objectsPort   int
	objectsOutput string
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "Inspect and manage cached objects",
	Long: `Inspect and manage objects held by a running quarry daemon.

All subcommands talk to the admin API of a running daemon.

Examples:
  # List cached objects
  quarry objects list

  # Show one object's cache state
  quarry objects stat docs/readme.md

  # Evict an object from the cache
  quarry objects rm docs/readme.md

  # Mark cached data stale so the next read refetches it
  quarry objects invalidate docs/readme.md`,
}

var objectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached objects",
	RunE:  runObjectsList,
}

var objectsStatCmd = &cobra.Command{
	Use:   "stat <key>",
	Short: "Show cache state for an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjectsStat,
}

var objectsRmCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Evict an object from the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjectsRm,
}

var objectsInvalidateCmd = &cobra.Command{
	Use:   "invalidate <key>",
	Short: "Mark an object's cached data stale",
	Args:  cobra.ExactArgs(1),
	RunE:  runObjectsInvalidate,
}

func init() {
	objectsCmd.PersistentFlags().StringVar(&objectsServer, "server", "", "Admin API base URL (default: http://localhost:<api-port>)")
	objectsCmd.PersistentFlags().IntVar(&objectsPort, "api-port", 8080, "Admin API port")
	objectsCmd.PersistentFlags().StringVarP(&objectsOutput, "output", "o", "table", "Output format (table|json|yaml)")

	objectsCmd.AddCommand(objectsListCmd)
	objectsCmd.AddCommand(objectsStatCmd)
	objectsCmd.AddCommand(objectsRmCmd)
	objectsCmd.AddCommand(objectsInvalidateCmd)
}

// objectsClient builds a client for the admin API from the flags.
func objectsClient() *apiclient.Client {
	server := objectsServer
	if server == "" {
		server = fmt.Sprintf("http://localhost:%d", objectsPort)
	}
	return apiclient.New(server)
}

// ObjectList renders index entries as a table.
type ObjectList []*index.Entry

// Headers implements TableRenderer.
func (ol ObjectList) Headers() []string {
	return []string{"KEY", "SIZE", "BLOCKS", "STATE", "LAST USED"}
}

// Rows implements TableRenderer.
func (ol ObjectList) Rows() [][]string {
	rows := make([][]string, 0, len(ol))
	for _, e := range ol {
		rows = append(rows, []string{
			e.Key,
			bytesize.ByteSize(e.Size).String(),
			strconv.FormatUint(e.Blocks, 10),
			objectState(e),
			e.LastUsed.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func objectState(e *index.Entry) string {
	if e.Degraded {
		return "degraded"
	}
	return "cached"
}

func runObjectsList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(objectsOutput)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := objectsClient().ListObjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list objects: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, entries)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, entries)
	default:
		if len(entries) == 0 {
			fmt.Println("No objects cached.")
			return nil
		}
		return output.PrintTable(os.Stdout, ObjectList(entries))
	}
}

func runObjectsStat(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(objectsOutput)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry, err := objectsClient().DescribeObject(ctx, args[0])
	if err != nil {
		if apiclient.IsNotFound(err) {
			return fmt.Errorf("object not cached: %s", args[0])
		}
		return fmt.Errorf("failed to stat object: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, entry)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, entry)
	default:
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Key", entry.Key},
			{"File ID", entry.FileID.String()},
			{"Size", bytesize.ByteSize(entry.Size).String()},
			{"ETag", entry.ETag},
			{"Cached blocks", strconv.FormatUint(entry.Blocks, 10)},
			{"State", objectState(entry)},
			{"Created", entry.CreatedAt.Local().Format("2006-01-02 15:04:05")},
			{"Last used", entry.LastUsed.Local().Format("2006-01-02 15:04:05")},
		})
	}
}

func runObjectsRm(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := objectsClient().RemoveObject(ctx, args[0]); err != nil {
		if apiclient.IsNotFound(err) {
			return fmt.Errorf("object not cached: %s", args[0])
		}
		return fmt.Errorf("failed to remove object: %w", err)
	}

	fmt.Printf("Object %q evicted from cache\n", args[0])
	return nil
}

func runObjectsInvalidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := objectsClient().InvalidateObject(ctx, args[0]); err != nil {
		if apiclient.IsNotFound(err) {
			return fmt.Errorf("object not cached: %s", args[0])
		}
		return fmt.Errorf("failed to invalidate object: %w", err)
	}

	fmt.Printf("Object %q invalidated, next read refetches from origin\n", args[0])
	return nil
}
