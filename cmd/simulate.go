package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/config"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
)

const simulateActor = "simulator"

// Roster is the simulate input: a tournament with its teams listed per class.
// A team named in several classes is registered once.
type Roster struct {
	Name        string                `yaml:"name"`
	SwissRounds int                   `yaml:"swiss_rounds"`
	Rotation    models.RotationPolicy `yaml:"rotation"`
	Classes     []RosterClass         `yaml:"classes"`
}

type RosterClass struct {
	Name                 string       `yaml:"name"`
	MatchDurationSeconds int          `yaml:"match_duration_seconds"`
	Teams                []RosterTeam `yaml:"teams"`
}

type RosterTeam struct {
	Name string                `yaml:"name"`
	Tier models.ExperienceTier `yaml:"tier"`
}

func newSimulateCmd() *cobra.Command {
	var (
		rulesFile string
		seed      int64
	)
	cmd := &cobra.Command{
		Use:   "simulate <roster.yaml>",
		Short: "Play a whole tournament offline with random winners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(slog.LevelWarn)
			if err != nil {
				return err
			}
			rules, err := config.LoadRules(rulesFile)
			if err != nil {
				return err
			}
			roster, err := loadRoster(args[0])
			if err != nil {
				return err
			}
			summary, err := Simulate(cmd.Context(), roster, rules, rand.New(rand.NewSource(seed)), logger)
			if err != nil {
				return err
			}
			return summary.Print(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rules file")
	cmd.Flags().Int64Var(&seed, "seed", 1, "seed for picking winners")
	return cmd
}

func loadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	return &roster, nil
}

type ClassResult struct {
	Class     *models.RobotClass
	Champion  string
	Standings []*models.Standing
}

type Summary struct {
	Tournament *models.Tournament
	Classes    []ClassResult
	Matches    int
	Events     map[events.Type]int
}

// Simulate runs the roster to completion on an in-memory store, picking each
// winner at random.
func Simulate(ctx context.Context, roster *Roster, rules config.Rules, rng *rand.Rand, logger *slog.Logger) (*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	recorder := &events.Recorder{}
	engine := services.NewEngine(services.EngineDeps{
		Store:     repositories.NewMemoryStore(),
		Rules:     rules,
		Publisher: recorder,
		Logger:    logger,
	})

	spec := services.TournamentSpec{Name: roster.Name, SwissRounds: roster.SwissRounds, Rotation: roster.Rotation}
	for _, rc := range roster.Classes {
		spec.Classes = append(spec.Classes, services.ClassSpec{Name: rc.Name, MatchDurationSeconds: rc.MatchDurationSeconds})
	}
	tournament, classes, err := engine.CreateTournament(ctx, spec)
	if err != nil {
		return nil, err
	}
	if err := registerRoster(ctx, engine, tournament.ID, roster, classes); err != nil {
		return nil, err
	}

	played := 0
	// bounded in case a class never finishes
	for pass := 0; pass < 10000; pass++ {
		work, err := engine.NextEligibleWork(ctx, tournament.ID)
		if err != nil {
			return nil, err
		}
		for _, w := range work {
			if err := doWork(ctx, engine, w); err != nil {
				return nil, err
			}
		}

		match, err := engine.StartNextMatch(ctx, tournament.ID, simulateActor)
		if errors.Is(err, services.ErrQueueEmpty) {
			if len(work) == 0 {
				break
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		teams := match.TeamIDs()
		winner := teams[rng.Intn(len(teams))]
		if _, err := engine.ApplyResult(ctx, services.ResultInput{
			MatchID:         match.ID,
			ExpectedVersion: match.Version,
			WinnerID:        models.IntPtr(winner),
			Completion:      models.CompletionCompleted,
			Actor:           simulateActor,
		}); err != nil {
			return nil, err
		}
		played++
	}

	return summarize(ctx, engine, tournament.ID, classes, played, recorder)
}

func registerRoster(ctx context.Context, engine *services.Engine, tournamentID int, roster *Roster, classes []*models.RobotClass) error {
	byName := make(map[string]*models.Team)
	var order []*models.Team
	for i, rc := range roster.Classes {
		for _, rt := range rc.Teams {
			team, ok := byName[rt.Name]
			if !ok {
				team = &models.Team{TournamentID: tournamentID, Name: rt.Name, Tier: rt.Tier}
				byName[rt.Name] = team
				order = append(order, team)
			}
			team.ClassIDs = append(team.ClassIDs, classes[i].ID)
		}
	}
	for _, team := range order {
		if err := engine.RegisterTeam(ctx, team); err != nil {
			return fmt.Errorf("registering %q: %w", team.Name, err)
		}
	}
	return nil
}

func doWork(ctx context.Context, engine *services.Engine, w services.ClassWork) error {
	class, err := engine.Class(ctx, w.ClassID)
	if err != nil {
		return err
	}
	switch w.Kind {
	case services.WorkNextRound:
		_, err = engine.ComputeNextRound(ctx, class.ID, class.Version, simulateActor)
	case services.WorkStartElimination:
		_, err = engine.StartElimination(ctx, class.ID, class.Version, simulateActor)
	}
	return err
}

func summarize(ctx context.Context, engine *services.Engine, tournamentID int, classes []*models.RobotClass, played int, recorder *events.Recorder) (*Summary, error) {
	tournament, err := engine.Tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	teams, err := engine.Teams(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}

	s := &Summary{Tournament: tournament, Matches: played, Events: make(map[events.Type]int)}
	for _, c := range classes {
		class, err := engine.Class(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		standings, err := engine.Standings(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		res := ClassResult{Class: class, Standings: standings}
		if class.ChampionID != nil {
			res.Champion = names[*class.ChampionID]
		}
		s.Classes = append(s.Classes, res)
	}
	for _, e := range recorder.Events() {
		s.Events[e.Type]++
	}
	return s, nil
}

func (s *Summary) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tphase %s\t%d matches played\n", s.Tournament.Name, s.Tournament.Phase, s.Matches)
	for _, c := range s.Classes {
		champion := c.Champion
		if champion == "" {
			champion = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\tchampion %s\n", c.Class.Name, c.Class.Phase, champion)
	}
	return tw.Flush()
}
