package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lueurxax/maritime-claim-validator/internal/app"
	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/validation"
)

var (
	themeID    int64
	claimID    int64
	bulkLimit  int
	quarter    string
	sqlText    string
	themeTitle string
	themeType  string
	themeFile  string
	guidance   string
	targets    []string

	claimText   string
	claimType   string
	claimLogic  string
	claimVessel string
	claimRoute  string
	claimPeriod string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health and metrics and revalidate stale claims periodically",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.RunServe(ctx)
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply metadata store migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer rt.Close()

		rt.logger.Info().Msg("migrations applied")

		return nil
	},
}

var addThemeCmd = &cobra.Command{
	Use:   "add-theme",
	Short: "Store a research theme from a narrative file (- for stdin)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		content, err := readNarrative(cmd.InOrStdin(), themeFile)
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			id, err := a.CreateTheme(ctx, &domain.Theme{
				Quarter:           strings.ToUpper(strings.TrimSpace(quarter)),
				ThemeType:         themeType,
				Title:             themeTitle,
				UserGuidance:      guidance,
				ResearchContent:   content,
				ValidationTargets: targets,
			})
			if err != nil {
				return err //nolint:wrapcheck
			}

			return writeJSON(cmd.OutOrStdout(), map[string]int64{"theme_id": id})
		})
	},
}

var addClaimCmd = &cobra.Command{
	Use:   "add-claim",
	Short: "Store a manual claim validated by an operator-written SELECT",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rec, err := a.CreateManualClaim(ctx, manualClaimFromFlags())
			if err != nil {
				return err //nolint:wrapcheck
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"claim_id":          rec.ID,
				"data_points_found": rec.DataPointsFound,
			})
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Extract and validate the claims of a theme",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			summary, err := a.ValidateTheme(ctx, themeID)
			if summary != nil {
				if werr := writeJSON(cmd.OutOrStdout(), summary); werr != nil {
					return werr
				}
			}

			return err //nolint:wrapcheck
		})
	},
}

var generateClaimsCmd = &cobra.Command{
	Use:   "generate-claims",
	Short: "Replace the stored claims of a theme with freshly extracted pending claims",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			records, err := a.GenerateClaims(ctx, themeID)
			if err != nil {
				return err //nolint:wrapcheck
			}

			return writeJSON(cmd.OutOrStdout(), records)
		})
	},
}

var revalidateCmd = &cobra.Command{
	Use:   "revalidate",
	Short: "Re-run validation for one stored claim",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.RevalidateClaim(ctx, claimID)
			if result != nil {
				if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
					return werr
				}
			}

			return err //nolint:wrapcheck
		})
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Revalidate claims with no confidence or no support verdict",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.RevalidateStale(ctx, bulkLimit)
			if report != nil {
				if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			}

			return err //nolint:wrapcheck
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a theme's claims or a quarter's findings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if themeID != 0 && quarter != "" {
			return fmt.Errorf("--theme and --quarter are mutually exclusive")
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if themeID != 0 {
				report, err := a.ThemeSummary(ctx, themeID)
				if err != nil {
					return err //nolint:wrapcheck
				}

				return writeJSON(cmd.OutOrStdout(), report)
			}

			report, err := a.QuarterlySummary(ctx, strings.ToUpper(strings.TrimSpace(quarter)))
			if err != nil {
				return err //nolint:wrapcheck
			}

			return writeJSON(cmd.OutOrStdout(), report)
		})
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a read-only SELECT against the traffic database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rs, err := a.RunCustomQuery(ctx, sqlText)
			if err != nil {
				return err //nolint:wrapcheck
			}

			return writeJSON(cmd.OutOrStdout(), resultRows(rs))
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, addThemeCmd, addClaimCmd, validateCmd, generateClaimsCmd, revalidateCmd, bulkCmd, summaryCmd, queryCmd)

	addThemeCmd.Flags().StringVar(&quarter, "quarter", "", "quarter as YYYYQn (default DEFAULT_QUARTER)")
	addThemeCmd.Flags().StringVar(&themeTitle, "title", "", "theme title")
	addThemeCmd.Flags().StringVar(&themeType, "type", "", "theme type")
	addThemeCmd.Flags().StringVar(&themeFile, "file", "-", "narrative file, - for stdin")
	addThemeCmd.Flags().StringVar(&guidance, "guidance", "", "user guidance")
	addThemeCmd.Flags().StringSliceVar(&targets, "target", nil, "validation target (repeatable)")

	for _, c := range []*cobra.Command{validateCmd, generateClaimsCmd} {
		c.Flags().Int64Var(&themeID, "theme", 0, "theme id")
		_ = c.MarkFlagRequired("theme") //nolint:errcheck // flag is defined above
	}

	addClaimCmd.Flags().Int64Var(&themeID, "theme", 0, "theme id")
	addClaimCmd.Flags().StringVar(&claimText, "text", "", "claim text")
	addClaimCmd.Flags().StringVar(&claimType, "type", "", "claim type (default general)")
	addClaimCmd.Flags().StringVar(&sqlText, "sql", "", "SELECT or WITH statement validating the claim")
	addClaimCmd.Flags().StringVar(&claimLogic, "logic", "", "what the query measures")
	addClaimCmd.Flags().StringVar(&claimVessel, "vessel", "", "vessel or operator descriptor")
	addClaimCmd.Flags().StringVar(&claimRoute, "route", "", "route descriptor")
	addClaimCmd.Flags().StringVar(&claimPeriod, "period", "", "period descriptor")

	for _, name := range []string{"theme", "text", "sql"} {
		_ = addClaimCmd.MarkFlagRequired(name) //nolint:errcheck // flags are defined above
	}

	revalidateCmd.Flags().Int64Var(&claimID, "claim", 0, "claim id")
	_ = revalidateCmd.MarkFlagRequired("claim") //nolint:errcheck // flag is defined above

	bulkCmd.Flags().IntVar(&bulkLimit, "limit", 0, "maximum claims to revalidate (default BULK_BATCH_SIZE)")

	summaryCmd.Flags().Int64Var(&themeID, "theme", 0, "theme id")
	summaryCmd.Flags().StringVar(&quarter, "quarter", "", "quarter as YYYYQn (default DEFAULT_QUARTER)")

	queryCmd.Flags().StringVar(&sqlText, "sql", "", "SELECT or WITH statement")
	_ = queryCmd.MarkFlagRequired("sql") //nolint:errcheck // flag is defined above
}

func manualClaimFromFlags() validation.ManualClaim {
	mc := validation.ManualClaim{
		ThemeID: themeID,
		Text:    claimText,
		Vessel:  claimVessel,
		Route:   claimRoute,
		Period:  claimPeriod,
		Query:   sqlText,
		Logic:   claimLogic,
	}

	if strings.TrimSpace(claimType) != "" {
		mc.Type = domain.ParseClaimType(claimType)
	}

	return mc
}

func readNarrative(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)

	if path == "-" || path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}

	if err != nil {
		return "", fmt.Errorf("read narrative: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("narrative is empty")
	}

	return content, nil
}

// resultRows renders a result set as one object per row.
func resultRows(rs domain.ResultSet) []map[string]any {
	out := make([]map[string]any, 0, rs.Len())

	for _, row := range rs.Rows {
		m := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}

		out = append(out, m)
	}

	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}
