package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/arena"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/brackets"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/config"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
)

type EngineDeps struct {
	Store     *repositories.Store
	Rules     config.Rules
	Publisher events.Publisher
	Arena     arena.Client
	Logger    *slog.Logger
	// Clock drives queue estimates and timestamps; nil means time.Now.
	Clock func() time.Time
}

// Engine is the tournament progression engine. Every state change goes
// through one of its methods, and every method that writes an existing entity
// does so through a ConflictArbiter.
type Engine struct {
	store     *repositories.Store
	rules     config.Rules
	publisher events.Publisher
	arena     arena.Client
	logger    *slog.Logger
	now       func() time.Time

	matches     *ConflictArbiter[*models.Match]
	classes     *ConflictArbiter[*models.RobotClass]
	tournaments *ConflictArbiter[*models.Tournament]

	pairing     *PairingService
	bracket     *BracketService
	coordinator *ClassCoordinator

	queuesMu sync.Mutex
	queues   map[int]*ScheduleQueue
}

func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Discard{}
	}
	client := deps.Arena
	if client == nil {
		client = arena.NewOfflineClient(logger)
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		store:     deps.Store,
		rules:     deps.Rules,
		publisher: publisher,
		arena:     client,
		logger:    logger,
		now:       now,
		queues:    make(map[int]*ScheduleQueue),
	}
	e.matches = NewConflictArbiter[*models.Match](matchStore{deps.Store.Matches}, deps.Store.Operations, publisher, logger,
		func(m *models.Match) int { return m.TournamentID })
	e.classes = NewConflictArbiter[*models.RobotClass](classStore{deps.Store.Classes}, deps.Store.Operations, publisher, logger,
		func(c *models.RobotClass) int { return c.TournamentID })
	e.tournaments = NewConflictArbiter[*models.Tournament](tournamentStore{deps.Store.Tournaments}, deps.Store.Operations, publisher, logger,
		func(t *models.Tournament) int { return t.ID })
	e.matches.now, e.classes.now, e.tournaments.now = now, now, now

	e.pairing = NewPairingService(deps.Store, deps.Rules.TierGuardRounds, logger)
	e.pairing.now = now
	e.bracket = NewBracketService(deps.Store, e.matches, logger)
	e.bracket.now = now
	e.coordinator = NewClassCoordinator(deps.Store, logger)
	return e
}

func (e *Engine) queueFor(tournamentID int) *ScheduleQueue {
	e.queuesMu.Lock()
	defer e.queuesMu.Unlock()
	q, ok := e.queues[tournamentID]
	if !ok {
		q = NewScheduleQueue(tournamentID, e.rules.TurnoverBuffer, e.now)
		e.queues[tournamentID] = q
	}
	return q
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	e.publisher.Publish(ctx, ev)
}

func (e *Engine) matchDuration(class *models.RobotClass) time.Duration {
	if d := class.MatchDuration(); d > 0 {
		return d
	}
	return e.rules.DefaultMatchDuration
}

// --- Setup ---

// ClassSpec describes a class at tournament creation. Zero values take the rules defaults.
type ClassSpec struct {
	Name                 string               `json:"name"`
	MatchDurationSeconds int                  `json:"match_duration_seconds"`
	SwissRounds          int                  `json:"swiss_rounds"`
	Hazards              *models.HazardConfig `json:"hazards,omitempty"`
}

type TournamentSpec struct {
	Name        string                `json:"name"`
	SwissRounds int                   `json:"swiss_rounds"`
	Rotation    models.RotationPolicy `json:"rotation"`
	Classes     []ClassSpec           `json:"classes"`
}

// CreateTournament stores a tournament and its classes in setup phase.
func (e *Engine) CreateTournament(ctx context.Context, spec TournamentSpec) (*models.Tournament, []*models.RobotClass, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, nil, fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	if len(spec.Classes) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one class is required", ErrValidationFailed)
	}
	rounds := spec.SwissRounds
	if rounds == 0 {
		rounds = e.rules.SwissRounds
	}
	rotation := spec.Rotation
	if rotation == "" {
		rotation = e.rules.Rotation
	}
	if !rotation.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown rotation %q", ErrValidationFailed, rotation)
	}
	if err := e.checkRounds(rounds); err != nil {
		return nil, nil, err
	}

	t := &models.Tournament{Name: spec.Name, SwissRounds: rounds, Rotation: rotation, Phase: models.TournamentPhaseSetup}
	if err := e.store.Tournaments.Create(ctx, t); err != nil {
		return nil, nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	classes := make([]*models.RobotClass, 0, len(spec.Classes))
	for _, cs := range spec.Classes {
		class, err := e.newClass(t, cs)
		if err != nil {
			return nil, nil, err
		}
		if err := e.store.Classes.Create(ctx, class); err != nil {
			return nil, nil, fmt.Errorf("failed to create class %q: %w", cs.Name, translateRepoError(err))
		}
		classes = append(classes, class)
		t.ClassIDs = append(t.ClassIDs, class.ID)
	}
	if err := e.store.Tournaments.Update(ctx, t, t.Version); err != nil {
		return nil, nil, fmt.Errorf("failed to store class order of tournament %d: %w", t.ID, err)
	}
	e.logger.Info("tournament created", "tournament_id", t.ID, "classes", len(classes), "rotation", rotation)
	return t, classes, nil
}

func (e *Engine) checkRounds(rounds int) error {
	if rounds < 1 || rounds > e.rules.MaxSwissRounds {
		return fmt.Errorf("%w: swiss rounds must be between 1 and %d, got %d", ErrValidationFailed, e.rules.MaxSwissRounds, rounds)
	}
	return nil
}

func (e *Engine) newClass(t *models.Tournament, cs ClassSpec) (*models.RobotClass, error) {
	if strings.TrimSpace(cs.Name) == "" {
		return nil, fmt.Errorf("%w: class name is required", ErrValidationFailed)
	}
	rounds := cs.SwissRounds
	if rounds == 0 {
		rounds = t.SwissRounds
	}
	if err := e.checkRounds(rounds); err != nil {
		return nil, err
	}
	duration := cs.MatchDurationSeconds
	if duration == 0 {
		duration = int(e.rules.DefaultMatchDuration / time.Second)
	}
	if duration < 0 {
		return nil, fmt.Errorf("%w: match duration must be positive", ErrValidationFailed)
	}
	hazards := models.HazardConfig{PitActivationSeconds: int(e.rules.DefaultPitActivation / time.Second)}
	if cs.Hazards != nil {
		hazards = *cs.Hazards
	}
	return &models.RobotClass{
		TournamentID:         t.ID,
		Name:                 cs.Name,
		MatchDurationSeconds: duration,
		Hazards:              hazards,
		SwissRounds:          rounds,
		Phase:                models.ClassPhaseSwiss,
	}, nil
}

// RegisterTeam adds a team to classes still in Swiss. A late team joins at the
// next round computation; it never enters a round already paired.
func (e *Engine) RegisterTeam(ctx context.Context, team *models.Team) error {
	if strings.TrimSpace(team.Name) == "" {
		return fmt.Errorf("%w: team name is required", ErrValidationFailed)
	}
	if team.Tier == "" {
		team.Tier = models.TierNovice
	}
	if !team.Tier.Valid() {
		return fmt.Errorf("%w: unknown experience tier %q", ErrValidationFailed, team.Tier)
	}
	if len(team.ClassIDs) == 0 {
		return fmt.Errorf("%w: team must enter at least one class", ErrValidationFailed)
	}
	for _, classID := range team.ClassIDs {
		class, err := e.store.Classes.GetByID(ctx, classID)
		if err != nil {
			return translateRepoError(err)
		}
		if class.TournamentID != team.TournamentID {
			return fmt.Errorf("%w: class %d belongs to another tournament", ErrValidationFailed, classID)
		}
		if class.Phase != models.ClassPhaseSwiss {
			return fmt.Errorf("%w: class %d is in %s phase", ErrClassClosed, classID, class.Phase)
		}
		if class.CurrentRound >= class.SwissRounds {
			return fmt.Errorf("%w: class %d already paired its last swiss round", ErrClassClosed, classID)
		}
		entered, err := e.store.Teams.ListByClass(ctx, classID)
		if err != nil {
			return fmt.Errorf("failed to count teams of class %d: %w", classID, err)
		}
		if len(entered) >= e.rules.MaxTeamsPerClass {
			return fmt.Errorf("%w: class %d is full (%d teams)", ErrClassClosed, classID, len(entered))
		}
	}
	if err := e.store.Teams.Create(ctx, team); err != nil {
		return translateRepoError(err)
	}
	e.logger.Info("team registered", "tournament_id", team.TournamentID, "team_id", team.ID,
		"classes", team.ClassIDs, "registration_order", team.RegistrationOrder)
	return nil
}

// --- Swiss rounds ---

type RoundResult struct {
	Class   *models.RobotClass  `json:"class"`
	Plan    *brackets.RoundPlan `json:"plan"`
	Matches []*models.Match     `json:"matches"`
}

// ComputeNextRound pairs the class's next Swiss round and stores it with the
// class in one commit guarded by the class version.
func (e *Engine) ComputeNextRound(ctx context.Context, classID, expectedVersion int, actor string) (*RoundResult, error) {
	var outcome *RoundOutcome
	class, err := e.classes.ApplyCommit(ctx, classID, expectedVersion, actor, "compute_next_round",
		func(c *models.RobotClass) error {
			var err error
			outcome, err = e.pairing.PlanNextRound(ctx, c)
			if err != nil {
				return err
			}
			now := e.now()
			for _, m := range outcome.Matches {
				if m.Status == models.MatchStatusPending {
					m.Status = models.MatchStatusScheduled
					m.ScheduledAt = &now
				}
			}
			c.CurrentRound = outcome.Plan.Round
			return nil
		},
		func(ctx context.Context, c *models.RobotClass, expected int) error {
			return e.store.Classes.CommitWithMatches(ctx, c, expected, nil, outcome.Matches)
		})
	if err != nil {
		return nil, err
	}

	q := e.queueFor(class.TournamentID)
	for _, m := range outcome.Matches {
		if m.Status.Terminal() {
			continue
		}
		if err := q.Enqueue(m, e.matchDuration(class)); err != nil {
			e.logger.Error("failed to enqueue swiss match", "match_id", m.ID, "error", err)
		}
	}

	ev := events.New(events.PairingsGenerated, class.TournamentID, outcome.Plan)
	ev.ClassID = class.ID
	for _, w := range outcome.Plan.Warnings {
		ev.Warnings = append(ev.Warnings, w.Message)
	}
	e.publish(ctx, ev)
	e.logger.Info("swiss round paired", "tournament_id", class.TournamentID, "class_id", class.ID,
		"round", outcome.Plan.Round, "matches", len(outcome.Matches), "warnings", len(outcome.Plan.Warnings))

	e.rollUp(ctx, class.TournamentID)
	return &RoundResult{Class: class, Plan: outcome.Plan, Matches: outcome.Matches}, nil
}

func (e *Engine) Standings(ctx context.Context, classID int) ([]*models.Standing, error) {
	if _, err := e.store.Classes.GetByID(ctx, classID); err != nil {
		return nil, translateRepoError(err)
	}
	return e.pairing.Standings(ctx, classID)
}

// --- Elimination ---

type EliminationResult struct {
	Class   *models.RobotClass `json:"class"`
	Bracket *models.Bracket    `json:"bracket"`
	Matches []*models.Match    `json:"matches"`
}

// StartElimination seeds the class bracket from its final Swiss standings.
func (e *Engine) StartElimination(ctx context.Context, classID, expectedVersion int, actor string) (*EliminationResult, error) {
	var generated *GeneratedBracket
	class, err := e.classes.ApplyCommit(ctx, classID, expectedVersion, actor, "start_elimination",
		func(c *models.RobotClass) error {
			if err := e.coordinator.CheckEliminationStart(ctx, c); err != nil {
				return err
			}
			standings, err := e.pairing.Standings(ctx, c.ID)
			if err != nil {
				return err
			}
			generated, err = e.bracket.Generate(ctx, c, brackets.SeedsFromStandings(standings))
			if err != nil {
				return err
			}
			now := e.now()
			for _, m := range generated.NowPlayable {
				m.Status = models.MatchStatusScheduled
				m.ScheduledAt = &now
			}
			c.Phase = models.ClassPhaseElimination
			return nil
		},
		func(ctx context.Context, c *models.RobotClass, expected int) error {
			return e.store.Classes.CommitWithMatches(ctx, c, expected, generated.Bracket, generated.Matches)
		})
	if err != nil {
		return nil, err
	}

	q := e.queueFor(class.TournamentID)
	for _, m := range generated.NowPlayable {
		if err := q.Enqueue(m, e.matchDuration(class)); err != nil {
			e.logger.Error("failed to enqueue elimination match", "match_id", m.ID, "error", err)
		}
	}
	e.classPhaseEvents(ctx, class, events.ClassEnteredElimination)
	e.rollUp(ctx, class.TournamentID)
	return &EliminationResult{Class: class, Bracket: generated.Bracket, Matches: generated.Matches}, nil
}

func (e *Engine) classPhaseEvents(ctx context.Context, class *models.RobotClass, specific events.Type) {
	payload := map[string]interface{}{"class_id": class.ID, "phase": class.Phase, "champion_id": class.ChampionID}
	for _, t := range []events.Type{specific, events.ClassPhaseChanged} {
		ev := events.New(t, class.TournamentID, payload)
		ev.ClassID = class.ID
		e.publish(ctx, ev)
	}
	e.logger.Info("class phase changed", "tournament_id", class.TournamentID, "class_id", class.ID, "phase", class.Phase)
}

func (e *Engine) completeClass(ctx context.Context, classID, championID int) {
	class, err := e.classes.ApplyLatest(ctx, classID, "complete_class", func(c *models.RobotClass) error {
		if c.Phase == models.ClassPhaseComplete && c.ChampionID != nil && *c.ChampionID == championID {
			return ErrNoChange
		}
		c.Phase = models.ClassPhaseComplete
		c.ChampionID = models.IntPtr(championID)
		return nil
	})
	if err != nil {
		e.logger.Error("failed to complete class", "class_id", classID, "team_id", championID, "error", err)
		return
	}
	e.classPhaseEvents(ctx, class, events.ClassCompleted)
	e.rollUp(ctx, class.TournamentID)
}

// rollUp keeps the tournament phase in step with its classes.
func (e *Engine) rollUp(ctx context.Context, tournamentID int) {
	classes, err := e.store.Classes.ListByTournament(ctx, tournamentID)
	if err != nil {
		e.logger.Error("failed to list classes for phase roll-up", "tournament_id", tournamentID, "error", err)
		return
	}
	phase := RollUpPhase(classes)
	_, err = e.tournaments.ApplyLatest(ctx, tournamentID, "roll_up_phase", func(t *models.Tournament) error {
		if t.Phase == phase {
			return ErrNoChange
		}
		t.Phase = phase
		return nil
	})
	if err != nil {
		e.logger.Error("failed to roll up tournament phase", "tournament_id", tournamentID, "error", err)
	}
}

func (e *Engine) NextEligibleWork(ctx context.Context, tournamentID int) ([]ClassWork, error) {
	return e.coordinator.NextEligibleWork(ctx, tournamentID)
}

func (e *Engine) Operations(ctx context.Context, entityKind string, entityID int) ([]*models.ConcurrentOperation, error) {
	return e.store.Operations.ListByEntity(ctx, entityKind, entityID)
}
