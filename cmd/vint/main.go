package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vintner/internal/app"
	"vintner/internal/config"
	"vintner/internal/db"
	"vintner/internal/engine"
	"vintner/internal/migrate"
	"vintner/internal/repo"
	"vintner/internal/server"
	"vintner/internal/work"
)

var rootCmd = &cobra.Command{
	Use:   "vint",
	Short: "Vintner CLI",
	Long: `Vintner runs a winery simulation where every job takes real work and real weeks.
Core concepts:
- Workspace: your .vintner directory with only the database; config is stored in the DB and imported explicitly.
- Game: one winery save. Clock moves in weeks, twelve per season, four seasons per year.
- Activities: anything slow (planting, harvest, crushing, a staff search) becomes an activity
  with a work total; assigned staff pay it down each week and the outcome fires on completion.
- Staff: each member has weekly work capacity and field/cellar/admin skills; assign them with
  'vint staff assign'. Unstaffed activities simply wait.
- Tick: 'vint game advance' runs one week: work is applied, wages and loans are paid, vines ripen.
- Event log: diary of everything that happened, view with 'vint log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VINTNER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("game", "", "game id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("game", rootCmd.PersistentFlags().Lookup("game"))
}

func registerCommands() {
	rootCmd.AddCommand(gameCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(vineyardCmd())
	rootCmd.AddCommand(cellarCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(financeCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func gameCmd() *cobra.Command {
	g := &cobra.Command{Use: "game", Short: "Manage game saves"}
	g.AddCommand(gameInitCmd())
	g.AddCommand(gameListCmd())
	g.AddCommand(gameStatusCmd())
	g.AddCommand(gameAdvanceCmd())
	g.AddCommand(gameUseCmd())
	return g
}

func gameInitCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new game",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			e := engine.New(conn, cfg)
			g, err := e.NewGame(cmd.Context(), id, name)
			if err != nil {
				return err
			}
			return printJSONOrTable(g)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "game id")
	cmd.Flags().StringVar(&name, "name", "", "winery name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func gameListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListGames(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func gameStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the winery scoreboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				gameID := e.Config.Game.ID
				g, err := e.Repo.GetGame(ctx, gameID)
				if err != nil {
					return err
				}
				activities, err := e.Repo.ListActivities(ctx, gameID)
				if err != nil {
					return err
				}
				staff, err := e.Repo.ListStaff(ctx, gameID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"game":       g,
					"activities": len(activities),
					"staff":      len(staff),
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("%s - week %d of %s, year %d\n", g.Name, g.Week, g.Season, g.Year)
				fmt.Printf("Cash: %.2f  Prestige: %.2f\n", g.Cash, g.Prestige)
				fmt.Printf("Staff: %d  Activities in flight: %d\n", len(staff), len(activities))
				return nil
			})
		},
	}
	return cmd
}

func gameAdvanceCmd() *cobra.Command {
	var weeks int
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Advance the game clock",
		Long:  "Runs one tick per week: staff capacity pays down activities, outcomes fire, wages and loan payments go out, vines ripen.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if weeks < 1 {
				return fmt.Errorf("--weeks must be >= 1")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var reports []engine.TickReport
				for i := 0; i < weeks; i++ {
					rep, err := e.AdvanceWeek(ctx, e.Config.Game.ID)
					if err != nil {
						return err
					}
					reports = append(reports, rep)
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				for _, rep := range reports {
					fmt.Printf("Week %d of %s, year %d\n", rep.Game.Week, rep.Game.Season, rep.Game.Year)
					for _, t := range rep.Activities {
						mark := fmt.Sprintf("%3.0f%%", t.Fraction*100)
						if t.Completed {
							mark = "done"
						}
						fmt.Printf("  %-15s %s  +%.1f work  [%s]\n", t.Category, t.ActivityID, t.Delta, mark)
						if t.HandlerErr != "" {
							fmt.Printf("    handler failed: %s\n", t.HandlerErr)
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&weeks, "weeks", 1, "number of weeks to advance")
	return cmd
}

func gameUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set the current game for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID := strings.TrimSpace(args[0])
			if gameID == "" {
				return fmt.Errorf("game id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "VINTNER_GAME", gameID); err != nil {
				return err
			}
			fmt.Printf("Set VINTNER_GAME=%s in %s/.env\n", gameID, workspace)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect game config",
		Long:  "Config is the tuning sheet (stored in DB): work rates per category, staff economics, vineyard yields. Import from vintner.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import game config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			gameID := cfg.Game.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if gameID == "" {
					gameID = e.Config.Game.ID
				}
				if err := e.Repo.UpsertGameConfig(ctx, gameID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func vineyardCmd() *cobra.Command {
	v := &cobra.Command{
		Use:   "vineyard",
		Short: "Manage vineyards",
		Long:  "Vineyards are plots of land. Planting, harvesting, clearing, and uprooting all run as activities; the plot's status shows the work in progress.",
	}
	v.AddCommand(vineyardBuyCmd())
	v.AddCommand(vineyardListCmd())
	v.AddCommand(vineyardShowCmd())
	v.AddCommand(vineyardPlantCmd())
	v.AddCommand(vineyardHarvestCmd())
	v.AddCommand(vineyardClearCmd())
	v.AddCommand(vineyardUprootCmd())
	return v
}

func vineyardBuyCmd() *cobra.Command {
	var name string
	var acres, altitude, price float64
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy a plot of land",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.BuyVineyard(ctx, e.Config.Game.ID, name, acres, altitude, price)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "vineyard name")
	cmd.Flags().Float64Var(&acres, "acres", 0, "plot size in acres")
	cmd.Flags().Float64Var(&altitude, "altitude", 250, "altitude in meters")
	cmd.Flags().Float64Var(&price, "price", 0, "purchase price")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("acres")
	return cmd
}

func vineyardListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vineyards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListVineyards(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Acres", "Grape", "Status", "Ripeness"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Name, v.Acres, v.Grape, v.Status, fmt.Sprintf("%.0f%%", v.Ripeness*100)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func vineyardShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a vineyard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Repo.GetVineyard(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func vineyardPlantCmd() *cobra.Command {
	var grape string
	var density int
	var fragility float64
	var estimateOnly bool
	cmd := &cobra.Command{
		Use:   "plant <vineyard-id>",
		Short: "Start planting a vineyard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if estimateOnly {
					est, err := e.PreviewPlanting(ctx, args[0], grape, density, fragility)
					if err != nil {
						return err
					}
					return printEstimate(est)
				}
				a, err := e.StartPlanting(ctx, e.Config.Game.ID, args[0], grape, density, fragility)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&grape, "grape", "", "grape variety")
	cmd.Flags().IntVar(&density, "density", 1000, "vines per acre")
	cmd.Flags().Float64Var(&fragility, "fragility", 0, "grape fragility 0..1")
	cmd.Flags().BoolVar(&estimateOnly, "estimate", false, "show the work estimate without starting")
	_ = cmd.MarkFlagRequired("grape")
	return cmd
}

func vineyardHarvestCmd() *cobra.Command {
	var fragility float64
	var estimateOnly bool
	cmd := &cobra.Command{
		Use:   "harvest <vineyard-id>",
		Short: "Start harvesting a vineyard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if estimateOnly {
					est, err := e.PreviewHarvest(ctx, args[0], fragility)
					if err != nil {
						return err
					}
					return printEstimate(est)
				}
				a, err := e.StartHarvest(ctx, e.Config.Game.ID, args[0], fragility)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().Float64Var(&fragility, "fragility", 0, "grape fragility 0..1")
	cmd.Flags().BoolVar(&estimateOnly, "estimate", false, "show the work estimate without starting")
	return cmd
}

func vineyardClearCmd() *cobra.Command {
	var estimateOnly bool
	cmd := &cobra.Command{
		Use:   "clear <vineyard-id>",
		Short: "Start clearing a plot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if estimateOnly {
					est, err := e.PreviewClearing(ctx, args[0])
					if err != nil {
						return err
					}
					return printEstimate(est)
				}
				a, err := e.StartClearing(ctx, e.Config.Game.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&estimateOnly, "estimate", false, "show the work estimate without starting")
	return cmd
}

func vineyardUprootCmd() *cobra.Command {
	var estimateOnly bool
	cmd := &cobra.Command{
		Use:   "uproot <vineyard-id>",
		Short: "Start uprooting vines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if estimateOnly {
					est, err := e.PreviewUprooting(ctx, args[0])
					if err != nil {
						return err
					}
					return printEstimate(est)
				}
				a, err := e.StartUprooting(ctx, e.Config.Game.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&estimateOnly, "estimate", false, "show the work estimate without starting")
	return cmd
}

func cellarCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "cellar",
		Short: "Manage wine batches",
		Long:  "Batches move grapes -> must -> wine. Crushing and fermentation run as activities against a batch.",
	}
	c.AddCommand(cellarListCmd())
	c.AddCommand(cellarCrushCmd())
	c.AddCommand(cellarFermentCmd())
	return c
}

func cellarListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List wine batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListBatches(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Grape", "Stage", "Kg", "Liters", "Age (weeks)"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Grape, b.Stage, fmt.Sprintf("%.0f", b.QuantityKg), fmt.Sprintf("%.0f", b.Liters), b.AgeWeeks})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func cellarCrushCmd() *cobra.Command {
	var estimateOnly bool
	cmd := &cobra.Command{
		Use:   "crush <batch-id>",
		Short: "Start crushing a grape batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if estimateOnly {
					est, err := e.PreviewCrushing(ctx, args[0])
					if err != nil {
						return err
					}
					return printEstimate(est)
				}
				a, err := e.StartCrushing(ctx, e.Config.Game.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&estimateOnly, "estimate", false, "show the work estimate without starting")
	return cmd
}

func cellarFermentCmd() *cobra.Command {
	var estimateOnly bool
	cmd := &cobra.Command{
		Use:   "ferment <batch-id>",
		Short: "Start fermenting a must batch (not cancellable)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if estimateOnly {
					est, err := e.PreviewFermentation(ctx, args[0])
					if err != nil {
						return err
					}
					return printEstimate(est)
				}
				a, err := e.StartFermentation(ctx, e.Config.Game.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&estimateOnly, "estimate", false, "show the work estimate without starting")
	return cmd
}

func staffCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "staff",
		Short: "Manage staff and hiring",
		Long:  "Staff supply weekly work capacity. A search produces candidates, hiring a candidate is paperwork (an administration activity), and assignments decide where capacity goes.",
	}
	s.AddCommand(staffListCmd())
	s.AddCommand(staffCandidatesCmd())
	s.AddCommand(staffSearchCmd())
	s.AddCommand(staffHireCmd())
	s.AddCommand(staffAssignCmd())
	s.AddCommand(staffUnassignCmd())
	s.AddCommand(staffFireCmd())
	return s
}

func staffListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListStaff(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Work/wk", "Field", "Cellar", "Admin", "Wage/wk"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Name, s.WeeklyWork, s.SkillField, s.SkillCellar, s.SkillAdmin, s.WeeklyWage})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func staffCandidatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List candidates from completed searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCandidates(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func staffSearchCmd() *cobra.Command {
	var candidates int
	var skill float64
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Start a staff search (recruiter fee applies)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.StartStaffSearch(ctx, e.Config.Game.ID, candidates, skill)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().IntVar(&candidates, "candidates", 3, "number of candidates to find")
	cmd.Flags().Float64Var(&skill, "skill", 0.3, "minimum skill level 0..1")
	return cmd
}

func staffHireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hire <candidate-id>",
		Short: "Start the hiring paperwork for a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.StartHiring(ctx, e.Config.Game.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func staffAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <activity-id> <staff-id>",
		Short: "Assign a staff member to an activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.AssignStaff(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func staffUnassignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unassign <activity-id> <staff-id>",
		Short: "Remove a staff member from an activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.UnassignStaff(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func staffFireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fire <staff-id>",
		Short: "Remove a staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteStaff(ctx, args[0])
			})
		},
	}
	return cmd
}

func financeCmd() *cobra.Command {
	f := &cobra.Command{
		Use:   "finance",
		Short: "Money: ledger, lenders, loans",
		Long:  "A lender search produces loan offers; taking one credits cash and starts weekly payments at every tick. Bookkeeping turns ledger size into prestige.",
	}
	f.AddCommand(financeLedgerCmd())
	f.AddCommand(financeSearchCmd())
	f.AddCommand(financeOffersCmd())
	f.AddCommand(financeTakeCmd())
	f.AddCommand(financeLoansCmd())
	f.AddCommand(financeBooksCmd())
	return f
}

func financeLedgerCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTransactions(ctx, e.Config.Game.ID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func financeSearchCmd() *cobra.Command {
	var amount float64
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Start a lender search",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.StartLenderSearch(ctx, e.Config.Game.ID, amount)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "desired principal")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func financeOffersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "List loan offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListLoanOffers(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func financeTakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take <offer-id>",
		Short: "Take a loan offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.TakeLoan(ctx, e.Config.Game.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	return cmd
}

func financeLoansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List active loans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListLoans(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func financeBooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Start a bookkeeping run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.StartBookkeeping(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func activityCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "activity",
		Short: "Inspect and cancel activities",
		Long:  "Activities are the in-flight jobs. List them to see progress; cancel the cancellable ones. Progress already made is abandoned, not undone.",
	}
	a.AddCommand(activityListCmd())
	a.AddCommand(activityShowCmd())
	a.AddCommand(activityCancelCmd())
	a.AddCommand(activityRetotalCmd())
	return a
}

func activityListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List in-flight activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListActivities(ctx, e.Config.Game.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Target", "Progress", "Cancellable"})
				for _, a := range items {
					target := ""
					if a.TargetID != nil {
						target = *a.TargetID
					}
					tw.AppendRow(table.Row{a.ID, a.Category, target, fmt.Sprintf("%.1f/%.1f (%.0f%%)", a.AppliedWork, a.TotalWork, a.Fraction()*100), a.Cancellable})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func activityShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func activityCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.CancelActivity(ctx, args[0])
			})
		},
	}
	return cmd
}

func activityRetotalCmd() *cobra.Command {
	var total float64
	cmd := &cobra.Command{
		Use:   "retotal <id>",
		Short: "Recompute total work before any work is applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RetotalActivity(ctx, args[0], total)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().Float64Var(&total, "total-work", 0, "new total work")
	_ = cmd.MarkFlagRequired("total-work")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: activity progress, completions, hires, loans.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Game.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveGameAndConfig(cmd.Context(), viper.GetString("game"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("VINTNER_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("VINTNER_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Vintner API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveGameAndConfig(ctx, viper.GetString("game"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEstimate(est work.Estimate) error {
	if viper.GetBool("json") {
		return printJSON(est)
	}
	fmt.Printf("%s: %.1f work", est.Category, est.TotalWork)
	if len(est.Factors) > 0 {
		fmt.Printf(" (base %.1f", est.BaseWork)
		for _, f := range est.Factors {
			fmt.Printf(", %s x%.2f", f.Label, f.Multiplier)
		}
		fmt.Print(")")
	}
	fmt.Println()
	return nil
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
