package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/ratekeeper/internal/core/api"
	"github.com/solatis/ratekeeper/internal/rules"
	"github.com/solatis/ratekeeper/internal/types"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a quote offline from rule and context files",
}

var quoteInsuranceCmd = &cobra.Command{
	Use:   "insurance",
	Short: "Price an insurance quote",
	Args:  cobra.NoArgs,
	RunE:  runQuoteInsurance,
}

var quoteRegistrationCmd = &cobra.Command{
	Use:   "registration",
	Short: "Price a registration quote",
	Args:  cobra.NoArgs,
	RunE:  runQuoteRegistration,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.AddCommand(quoteInsuranceCmd, quoteRegistrationCmd)

	addQuoteFlags(quoteInsuranceCmd)
	addQuoteFlags(quoteRegistrationCmd)
	quoteInsuranceCmd.Flags().IntSlice("selection", nil, "selected add-on indices (default: mandatory and included add-ons)")
}

func addQuoteFlags(c *cobra.Command) {
	c.Flags().String("rule", "", "rule document file (JSON or YAML)")
	c.Flags().String("context", "", "evaluation context file (JSON or YAML)")
	c.MarkFlagRequired("rule")
	c.MarkFlagRequired("context")
}

// offlineService prices inline rules only: no database, no persistence.
func offlineService() (*api.QuoteService, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.PersistQuotes = false
	return api.NewQuoteService(rules.NewEngine(1), nil, nil, cfg, nil, logger)
}

func readQuoteInputs(cmd *cobra.Command) (*types.RuleDocument, types.EvaluationContext, error) {
	rulePath, _ := cmd.Flags().GetString("rule")
	ctxPath, _ := cmd.Flags().GetString("context")

	ruleData, err := os.ReadFile(rulePath)
	if err != nil {
		return nil, types.EvaluationContext{}, err
	}
	doc, err := types.DecodeRuleDocument(ruleData)
	if err != nil {
		return nil, types.EvaluationContext{}, err
	}

	ctxData, err := os.ReadFile(ctxPath)
	if err != nil {
		return nil, types.EvaluationContext{}, err
	}
	evalCtx, err := types.DecodeEvaluationContext(ctxData)
	if err != nil {
		return nil, types.EvaluationContext{}, err
	}
	return doc, evalCtx, nil
}

func runQuoteInsurance(cmd *cobra.Command, args []string) error {
	doc, evalCtx, err := readQuoteInputs(cmd)
	if err != nil {
		return err
	}
	svc, err := offlineService()
	if err != nil {
		return err
	}

	req := &api.InsuranceRequest{
		RuleSelector: api.RuleSelector{Rule: doc},
		Context:      evalCtx,
	}
	if cmd.Flags().Changed("selection") {
		req.Selection, _ = cmd.Flags().GetIntSlice("selection")
		if req.Selection == nil {
			req.Selection = []int{}
		}
	}

	quote, err := svc.QuoteInsurance(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("pricing failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), quote)
}

func runQuoteRegistration(cmd *cobra.Command, args []string) error {
	doc, evalCtx, err := readQuoteInputs(cmd)
	if err != nil {
		return err
	}
	svc, err := offlineService()
	if err != nil {
		return err
	}

	quote, err := svc.QuoteRegistration(cmd.Context(), &api.RegistrationRequest{
		RuleSelector: api.RuleSelector{Rule: doc},
		Context:      evalCtx,
	})
	if err != nil {
		return fmt.Errorf("pricing failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), quote)
}
