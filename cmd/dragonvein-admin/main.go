// Command dragonvein-admin is the operator tool for an event: it applies the
// schema, seeds the reward pool from the supply manifest and prints the
// current standings.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/config"
	"github.com/dragonvein/dragonvein-server-go/internal/repository"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"github.com/pterm/pterm"
	"go.uber.org/zap"
)

const usage = `usage: dragonvein-admin [-config path] <command> [flags]

commands:
  migrate          apply the database schema
  seed [-force]    write the supply manifest into an empty pool
  status           print the battlefield, team card counts and supply
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	verbose := flag.Bool("v", false, "log database activity")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		pterm.Fatal.Printfln("failed to load configuration: %v", err)
	}
	if cfg.Store.Driver != "postgres" {
		pterm.Fatal.Printfln("store.driver is %q; the admin tool only operates on postgres", cfg.Store.Driver)
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			pterm.Fatal.Printfln("failed to initialize logger: %v", err)
		}
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := repository.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		pterm.Fatal.Printfln("failed to connect to database: %v", err)
	}
	defer db.Close()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "migrate":
		err = runMigrate(ctx, db)
	case "seed":
		err = runSeed(ctx, db, cfg, logger, args)
	case "status":
		err = runStatus(ctx, db, cfg, logger)
	default:
		flag.Usage()
		db.Close()
		os.Exit(2)
	}
	if err != nil {
		pterm.Error.Printfln("%s: %v", cmd, err)
		db.Close()
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, db *repository.DB) error {
	spinner, _ := pterm.DefaultSpinner.Start("applying schema")
	if err := db.Migrate(ctx); err != nil {
		spinner.Fail("schema not applied")
		return err
	}
	spinner.Success("schema applied")
	return nil
}

func newService(db *repository.DB, cfg *config.Config, m *reward.Manifest, logger *zap.Logger) *reward.Service {
	store := repository.NewStore(db, cfg.Database, logger)
	return reward.NewService(store, reward.Options{
		Sites:         m.Sites,
		FragmentBatch: cfg.Event.FragmentBatch,
		BindAttempts:  cfg.Event.BindAttempts,
	}, logger)
}

func runSeed(ctx context.Context, db *repository.DB, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	force := fs.Bool("force", false, "wipe claims, checkins and the battlefield before seeding")
	manifestPath := fs.String("manifest", cfg.Event.SupplyManifest, "supply manifest to seed from")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := reward.LoadManifest(*manifestPath)
	if err != nil {
		return err
	}
	cards, items := m.BuildSupply()
	pterm.Info.Printfln("manifest %s: %d sites, %d cards, %d items", *manifestPath, len(m.Sites), len(cards), len(items))

	if *force {
		ok, _ := pterm.DefaultInteractiveConfirm.
			WithDefaultText("Force reseed discards every claim and the battlefield. Continue?").
			Show()
		if !ok {
			pterm.Warning.Println("seed aborted")
			return nil
		}
	}

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	svc := newService(db, cfg, m, logger)
	if err := svc.Seed(ctx, m, *force); err != nil {
		if errors.Is(err, reward.ErrAlreadySeeded) {
			pterm.Warning.Println("pool already seeded; rerun with -force to reset it")
			return nil
		}
		return err
	}
	pterm.Success.Printfln("seeded %d cards and %d items", len(cards), len(items))
	return nil
}

func runStatus(ctx context.Context, db *repository.DB, cfg *config.Config, logger *zap.Logger) error {
	m, err := reward.LoadManifest(cfg.Event.SupplyManifest)
	if err != nil {
		return err
	}
	view, err := newService(db, cfg, m, logger).Battlefield(ctx)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Battlefield")
	pterm.Println(battlefieldBox(view.BattlefieldState))

	pterm.DefaultSection.Println("Teams")
	if err := pterm.DefaultTable.WithHasHeader().WithData(teamTable(view)).Render(); err != nil {
		return err
	}

	pterm.DefaultSection.Println("Supply")
	return pterm.DefaultTable.WithHasHeader().WithData(supplyTable(view.Supply)).Render()
}

func battlefieldBox(st reward.BattlefieldState) string {
	box := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	if st.Uncontested() {
		return box.WithTitle(pterm.LightYellow("|UNCONTESTED|")).WithTitleTopCenter().Sprint("no team holds the battlefield")
	}

	faces := make([]string, 0, len(st.Snapshot))
	for _, cv := range st.Snapshot {
		faces = append(faces, cv.Display)
	}
	body := pterm.Sprintfln("team %s holds it with %s", pterm.LightCyan(st.ControllingTeam), st.Hand.Type)
	body += pterm.BgGreen.Sprint(strings.Join(faces, " "))
	body += pterm.Sprintfln("\nversion %d, updated %s", st.Version, st.UpdatedAt.Format(time.RFC3339))
	return box.WithTitle(pterm.LightGreen("|CONTROLLED|")).WithTitleTopCenter().Sprint(body)
}

func teamTable(view *reward.BattlefieldView) pterm.TableData {
	teams := make([]int64, 0, len(view.TeamCardCounts))
	for id := range view.TeamCardCounts {
		teams = append(teams, id)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i] < teams[j] })

	data := pterm.TableData{{"Team", "Unplayed cards", "Controls"}}
	for _, id := range teams {
		controls := ""
		if id == view.ControllingTeam {
			controls = pterm.LightGreen("yes")
		}
		data = append(data, []string{strconv.FormatInt(id, 10), strconv.Itoa(view.TeamCardCounts[id]), controls})
	}
	return data
}

func supplyTable(s reward.Supply) pterm.TableData {
	return pterm.TableData{
		{"Pool", "Unclaimed", "Held", "Played/Used", "Wild"},
		{"cards", strconv.Itoa(s.CardsUnclaimed), strconv.Itoa(s.CardsHeld), strconv.Itoa(s.CardsPlayed), strconv.Itoa(s.CardsWild)},
		{"items", strconv.Itoa(s.ItemsUnclaimed), strconv.Itoa(s.ItemsHeld), strconv.Itoa(s.ItemsUsed), "-"},
	}
}
