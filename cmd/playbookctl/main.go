// playbookctl inspects and administers playbook namespaces stored in a
// SQLite-backed key-value store.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/playbook-go/pkg/kv"
	"github.com/XiaoConstantine/playbook-go/pkg/playbook"
)

var (
	dbPath string
	domain string
)

func main() {
	root := &cobra.Command{
		Use:   "playbookctl",
		Short: "Inspect and administer agent playbooks",
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "playbooks.db", "path to the SQLite store")
	root.PersistentFlags().StringVar(&domain, "domain", "default", "playbook domain")

	root.AddCommand(statsCmd(), searchCmd(), historyCmd(), purgeCmd(), typesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*playbook.Store, *kv.SQLiteStore, error) {
	backend, err := kv.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return playbook.NewStore(backend, domain), backend, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <agent-type>",
		Short: "Summarize a namespace's playbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, backend, err := openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			stats, err := store.Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		query         string
		category      string
		tags          []string
		minConfidence float64
	)

	cmd := &cobra.Command{
		Use:   "search <agent-type>",
		Short: "Search playbook entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, backend, err := openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			entries, err := store.SearchEntries(cmd.Context(), args[0], playbook.SearchOptions{
				Query:         query,
				Category:      playbook.Category(category),
				Tags:          tags,
				MinConfidence: minConfidence,
			})
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "substring to match in content")
	cmd.Flags().StringVarP(&category, "category", "c", "", "exact category (helpful, harmful, neutral)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "required tags (repeatable)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "confidence floor")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <agent-type>",
		Short: "List persisted playbook versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, backend, err := openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			versions, err := store.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, pb := range versions {
				fmt.Printf("v%-4d entries=%-4d executions=%-5d updated=%s\n",
					pb.Version, len(pb.Entries), pb.TotalExecutions,
					pb.LastUpdated.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum versions to list")
	return cmd
}

func purgeCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "purge <agent-type>",
		Short: "Delete every persisted version in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to purge %q without --yes", args[0])
			}

			store, backend, err := openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := store.Purge(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("purged namespace %s/%s\n", domain, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the purge")
	return cmd
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List recognized agent types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(strings.Join(playbook.RecognizedAgentTypes(), "\n"))
		},
	}
}
