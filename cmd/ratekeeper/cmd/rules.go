package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/ratekeeper/internal/core/db"
	"github.com/solatis/ratekeeper/internal/rules"
	"github.com/solatis/ratekeeper/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage stored rule documents",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a rule document (JSON or YAML) as a new rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesImport,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current rule documents",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a rule document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesShow,
}

var rulesActivateCmd = &cobra.Command{
	Use:   "activate ID",
	Short: "Make a rule the ACTIVE rule of its scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRulesSetStatus(cmd, args[0], types.RuleStatusActive)
	},
}

var rulesDeactivateCmd = &cobra.Command{
	Use:   "deactivate ID",
	Short: "Withdraw a rule from live pricing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRulesSetStatus(cmd, args[0], types.RuleStatusInactive)
	},
}

var rulesPatchCmd = &cobra.Command{
	Use:   "patch ID",
	Short: "Apply an RFC 6902 JSON patch to a rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesPatch,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesImportCmd, rulesListCmd, rulesShowCmd, rulesActivateCmd, rulesDeactivateCmd, rulesPatchCmd)

	rulesImportCmd.Flags().Bool("activate", false, "store the rule as ACTIVE")
	rulesListCmd.Flags().String("kind", "", "filter by kind (INSURANCE, REGISTRATION)")
	rulesShowCmd.Flags().Int("version", 0, "historical version (default current)")

	for _, c := range []*cobra.Command{rulesActivateCmd, rulesDeactivateCmd, rulesPatchCmd} {
		c.Flags().Int("version", 0, "expected current version")
		c.MarkFlagRequired("version")
	}
	rulesPatchCmd.Flags().String("file", "", "JSON patch file")
	rulesPatchCmd.MarkFlagRequired("file")
}

// openRuleStore opens the configured database and returns a rule store that
// validates documents by compiling them.
func openRuleStore() (*db.RuleStore, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { database.Close() }
	if err := requireMigrated(database); err != nil {
		closeDB()
		return nil, nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return db.NewRuleStore(queries, rules.NewEngine(0).Validate), closeDB, nil
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := types.DecodeRuleDocument(data)
	if err != nil {
		return err
	}
	doc.Status = types.RuleStatusInactive
	if activate, _ := cmd.Flags().GetBool("activate"); activate {
		doc.Status = types.RuleStatusActive
	}

	store, closeDB, err := openRuleStore()
	if err != nil {
		return err
	}
	defer closeDB()

	created, err := store.Create(cmd.Context(), doc)
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), created)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")

	store, closeDB, err := openRuleStore()
	if err != nil {
		return err
	}
	defer closeDB()

	docs, err := store.List(cmd.Context(), types.RuleKind(kind))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tVERSION\tSTATUS\tSCOPE\tNAME")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", d.ID, d.Kind, d.Version, d.Status, d.ScopeKey(), d.Name)
	}
	return w.Flush()
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	version, _ := cmd.Flags().GetInt("version")

	store, closeDB, err := openRuleStore()
	if err != nil {
		return err
	}
	defer closeDB()

	var doc *types.RuleDocument
	if version > 0 {
		doc, err = store.GetVersion(cmd.Context(), types.RuleID(args[0]), version)
	} else {
		doc, err = store.Get(cmd.Context(), types.RuleID(args[0]))
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), doc)
}

func runRulesSetStatus(cmd *cobra.Command, id string, status types.RuleStatus) error {
	version, _ := cmd.Flags().GetInt("version")

	store, closeDB, err := openRuleStore()
	if err != nil {
		return err
	}
	defer closeDB()

	doc, err := store.SetStatus(cmd.Context(), types.RuleID(id), status, version)
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), doc)
}

func runRulesPatch(cmd *cobra.Command, args []string) error {
	version, _ := cmd.Flags().GetInt("version")
	file, _ := cmd.Flags().GetString("file")
	patch, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	store, closeDB, err := openRuleStore()
	if err != nil {
		return err
	}
	defer closeDB()

	doc, err := store.Patch(cmd.Context(), types.RuleID(args[0]), version, patch)
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), doc)
}

func printSummary(w io.Writer, doc *types.RuleDocument) error {
	return printJSON(w, map[string]any{
		"id":      doc.ID,
		"kind":    doc.Kind,
		"version": doc.Version,
		"status":  doc.Status,
		"scope":   doc.ScopeKey(),
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
