package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/supplylist-worker/internal/standardize"
	"github.com/adverant/nexus/supplylist-worker/internal/storage"
)

var (
	reviewEntity    string
	reviewAll       bool
	reviewCanonical string
	reviewLimit     int
)

var entityAliases = map[string]standardize.EntityType{
	"school":  standardize.EntitySchools,
	"schools": standardize.EntitySchools,
	"year":    standardize.EntitySchoolYears,
	"years":   standardize.EntitySchoolYears,
	"level":   standardize.EntityLevels,
	"levels":  standardize.EntityLevels,
}

func parseEntityType(value string) (standardize.EntityType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if et, ok := entityAliases[value]; ok {
		return et, nil
	}
	if et := standardize.EntityType(value); et.Valid() {
		return et, nil
	}
	return "", fmt.Errorf("unknown entity type %q (want school, year or level)", value)
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review learned standardization mappings",
	Long: `Every term the model resolved, or could not resolve, is stored as
PENDING_REVIEW. Only VALIDATED mappings feed later runs.`,
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mappings awaiting review",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()

		types := standardize.AllEntityTypes
		if reviewEntity != "" {
			et, err := parseEntityType(reviewEntity)
			if err != nil {
				return err
			}
			types = []standardize.EntityType{et}
		}

		var statuses []standardize.Status
		if !reviewAll {
			statuses = []standardize.Status{standardize.StatusPendingReview}
		}

		type row struct {
			Entity    string `json:"entity" yaml:"entity"`
			Raw       string `json:"raw" yaml:"raw"`
			Canonical string `json:"canonical" yaml:"canonical"`
			Status    string `json:"status" yaml:"status"`
		}
		rows := []row{}
		for _, et := range types {
			entries, err := pg.ListEntries(cmd.Context(), et, statuses...)
			if err != nil {
				return err
			}
			for _, e := range entries {
				rows = append(rows, row{
					Entity:    string(e.EntityType),
					Raw:       e.RawNormalized,
					Canonical: e.Canonical,
					Status:    string(e.Status),
				})
			}
		}

		return printOutput(cmd.OutOrStdout(), rows)
	},
}

func setStatusCmd(use, short string, status standardize.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <entity> <raw-value>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			et, err := parseEntityType(args[0])
			if err != nil {
				return err
			}
			raw := standardize.Normalize(args[1])

			pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()

			if status == standardize.StatusValidated && reviewCanonical != "" {
				err = pg.Upsert(cmd.Context(), et, raw, reviewCanonical, status)
			} else {
				err = pg.SetStatus(cmd.Context(), et, raw, status)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %q -> %s\n", et, raw, status)
			return nil
		},
	}
}

var reviewSimilarCmd = &cobra.Command{
	Use:   "similar <title>",
	Short: "Find saved textbooks close to a title",
	Long: `Search the Qdrant textbook index for likely duplicates of a title.
Requires QDRANT_URL and VOYAGE_API_KEY.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.TextbookIndexEnabled() {
			return fmt.Errorf("textbook index is disabled: set QDRANT_URL and VOYAGE_API_KEY")
		}

		sm, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer sm.Close()

		matches, err := sm.Index().SimilarTextbooks(cmd.Context(), args[0], reviewLimit)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), matches)
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewEntity, "entity", "", "only this entity type (school, year or level)")
	reviewListCmd.Flags().BoolVar(&reviewAll, "all", false, "include validated and rejected mappings")

	validateCmd := setStatusCmd("validate", "Mark a mapping as VALIDATED", standardize.StatusValidated)
	validateCmd.Flags().StringVar(&reviewCanonical, "canonical", "", "correct the canonical name while validating")

	reviewSimilarCmd.Flags().IntVar(&reviewLimit, "limit", 10, "maximum number of matches")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(validateCmd)
	reviewCmd.AddCommand(setStatusCmd("reject", "Mark a mapping as REJECTED", standardize.StatusRejected))
	reviewCmd.AddCommand(reviewSimilarCmd)
	rootCmd.AddCommand(reviewCmd)
}
