package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"batch-agent/pkg/client"
	"batch-agent/pkg/types"
)

var (
	agentAddr  string
	outputJSON bool
	timeout    time.Duration
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: !term.IsTerminal(int(os.Stderr.Fd())),
	})

	rootCmd := &cobra.Command{
		Use:   "batchctl",
		Short: "CLI for batch agents",
		Long:  "batchctl talks to a batch agent the way the management server does: health checks, path listings, batch submission and result collection.",
	}

	rootCmd.PersistentFlags().StringVarP(&agentAddr, "agent", "a", "localhost:9100", "Agent address")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(lsCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(listenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the agent is serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := getClient().HealthCheck(cmd.Context())
			if outputJSON {
				return printJSON(map[string]any{"agent": agentAddr, "healthy": err == nil})
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s: on\n", agentAddr)
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir]",
		Short: "List directories and files on the agent host",
		Long:  "List the children of dir on the agent host. Without dir the agent's batch path is listed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			listing, err := getClient().ListPath(cmd.Context(), dir)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			if outputJSON {
				return printJSON(listing)
			}
			for _, d := range listing.Dirs {
				fmt.Printf("d  %s\n", d)
			}
			for _, f := range listing.Files {
				fmt.Printf("-  %s\n", f)
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var (
		file       string
		param      string
		wait       bool
		listenAddr string
		waitFor    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [path...]",
		Short: "Submit a batch group",
		Long: "Submit a batch group read from --file, or built from the given artifact paths in order.\n" +
			"With --wait, results are collected on --listen; the agent must be configured to report there.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var bf *BatchFile
			switch {
			case file != "" && len(args) > 0:
				return fmt.Errorf("use either --file or paths, not both")
			case file != "":
				var err error
				if bf, err = LoadBatchFile(file); err != nil {
					return err
				}
			case len(args) > 0:
				bf = BatchFromPaths(args, param)
			default:
				return fmt.Errorf("nothing to run: pass --file or at least one path")
			}
			items := bf.Items()

			if !wait {
				if err := getClient().Run(cmd.Context(), items); err != nil {
					return fmt.Errorf("submit failed: %w", err)
				}
				if outputJSON {
					return printJSON(map[string]any{"batch_log_id": bf.BatchLogID, "items": len(items)})
				}
				fmt.Printf("Batch submitted: %s (%d jobs)\n", bf.BatchLogID, len(items))
				return nil
			}

			reports, err := client.Listen(listenAddr)
			if err != nil {
				return err
			}
			defer reports.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), waitFor)
			defer cancel()
			summary, err := getClient().RunAndWait(ctx, reports, items)
			if summary != nil {
				if perr := printResults(summary.Results); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("batch %s: %w", bf.BatchLogID, err)
			}
			if !summary.IsSuccess() {
				return fmt.Errorf("batch %s failed", bf.BatchLogID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Batch file (YAML or JSON)")
	cmd.Flags().StringVarP(&param, "param", "p", "", "Parameter passed to every path argument")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for all results")
	cmd.Flags().StringVar(&listenAddr, "listen", ":9200", "Report listen address used with --wait")
	cmd.Flags().DurationVar(&waitFor, "wait-timeout", time.Hour, "Maximum time to wait for results")

	return cmd
}

func listenCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive and print result reports",
		Long:  "Act as the reporting endpoint of a management server and print every result agents send.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := client.Listen(listenAddr)
			if err != nil {
				return err
			}
			defer reports.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("address", reports.Addr().String()).Msg("waiting for reports")
			for {
				select {
				case <-ctx.Done():
					return nil
				case item, ok := <-reports.Reports():
					if !ok {
						return nil
					}
					if err := printResults([]types.JobResultItem{item}); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", ":9200", "Listen address")

	return cmd
}

func getClient() *client.Client {
	return client.New(agentAddr).WithTimeout(timeout)
}

func printResults(results []types.JobResultItem) error {
	if outputJSON {
		for _, r := range results {
			if err := printJSON(r); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range results {
		last := ""
		if r.Last {
			last = "  (last)"
		}
		fmt.Printf("%-20s  %3d  %-12s  %s  %8s  %s%s\n",
			r.BatchLogID,
			r.Order,
			r.ProgramID,
			statusStyle(r.Status).Render(fmt.Sprintf("%-7s", r.Status.String())),
			r.Duration().Round(time.Millisecond),
			r.Message,
			last,
		)
	}
	return nil
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func statusStyle(s types.StatusCode) lipgloss.Style {
	if s == types.StatusSuccess {
		return successStyle
	}
	return failStyle
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
