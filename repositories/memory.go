package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

// memoryDB backs the in-process Store. Entities are cloned on the way in and
// out so callers never share pointers with stored state.
type memoryDB struct {
	mu sync.RWMutex

	tournaments map[int]*models.Tournament
	classes     map[int]*models.RobotClass
	teams       map[int]*models.Team
	matches     map[int]*models.Match
	brackets    map[int]*models.Bracket // by class id
	operations  []*models.ConcurrentOperation

	nextID   int
	sequence int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		tournaments: make(map[int]*models.Tournament),
		classes:     make(map[int]*models.RobotClass),
		teams:       make(map[int]*models.Team),
		matches:     make(map[int]*models.Match),
		brackets:    make(map[int]*models.Bracket),
	}
}

func (m *memoryDB) id() int {
	m.nextID++
	return m.nextID
}

type memoryTournamentRepository struct {
	db *memoryDB
}

func (r *memoryTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	t.ID = r.db.id()
	t.Version = 1
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Phase == "" {
		t.Phase = models.TournamentPhaseSetup
	}
	r.db.tournaments[t.ID] = t.Clone()
	return nil
}

func (r *memoryTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return t.Clone(), nil
}

func (r *memoryTournamentRepository) Update(ctx context.Context, t *models.Tournament, expectedVersion int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.tournaments[t.ID]
	if !ok {
		return ErrTournamentNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	t.UpdatedAt = time.Now()
	r.db.tournaments[t.ID] = t.Clone()
	return nil
}

type memoryClassRepository struct {
	db *memoryDB
}

func (r *memoryClassRepository) Create(ctx context.Context, c *models.RobotClass) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tournaments[c.TournamentID]; !ok {
		return ErrClassTournamentInvalid
	}
	c.ID = r.db.id()
	c.Version = 1
	c.UpdatedAt = time.Now()
	if c.Phase == "" {
		c.Phase = models.ClassPhaseSwiss
	}
	r.db.classes[c.ID] = c.Clone()
	return nil
}

func (r *memoryClassRepository) GetByID(ctx context.Context, id int) (*models.RobotClass, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.classes[id]
	if !ok {
		return nil, ErrClassNotFound
	}
	return c.Clone(), nil
}

func (r *memoryClassRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.RobotClass, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var classes []*models.RobotClass
	for _, c := range r.db.classes {
		if c.TournamentID == tournamentID {
			classes = append(classes, c.Clone())
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes, nil
}

func (r *memoryClassRepository) Update(ctx context.Context, c *models.RobotClass, expectedVersion int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.update(c, expectedVersion)
}

func (r *memoryClassRepository) update(c *models.RobotClass, expectedVersion int) error {
	stored, ok := r.db.classes[c.ID]
	if !ok {
		return ErrClassNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	c.Version = expectedVersion + 1
	c.UpdatedAt = time.Now()
	r.db.classes[c.ID] = c.Clone()
	return nil
}

func (r *memoryClassRepository) CommitWithMatches(ctx context.Context, c *models.RobotClass, expectedVersion int, bracket *models.Bracket, matches []*models.Match) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if bracket != nil {
		if _, exists := r.db.brackets[bracket.ClassID]; exists {
			return ErrVersionConflict
		}
	}
	if err := r.update(c, expectedVersion); err != nil {
		return err
	}
	now := time.Now()
	if bracket != nil {
		bracket.ID = r.db.id()
		bracket.CreatedAt = now
		r.db.brackets[bracket.ClassID] = bracket.Clone()
	}
	for _, m := range matches {
		insertMatch(r.db, m, now)
	}
	return nil
}

type memoryTeamRepository struct {
	db *memoryDB
}

func (r *memoryTeamRepository) Create(ctx context.Context, t *models.Team) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tournaments[t.TournamentID]; !ok {
		return ErrTeamTournamentInvalid
	}
	order := 0
	for _, existing := range r.db.teams {
		if existing.TournamentID != t.TournamentID {
			continue
		}
		if existing.Name == t.Name {
			return ErrTeamNameConflict
		}
		if existing.RegistrationOrder > order {
			order = existing.RegistrationOrder
		}
	}
	t.ID = r.db.id()
	t.RegistrationOrder = order + 1
	t.CreatedAt = time.Now()
	r.db.teams[t.ID] = t.Clone()
	return nil
}

func (r *memoryTeamRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return t.Clone(), nil
}

func (r *memoryTeamRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	return r.list(func(t *models.Team) bool { return t.TournamentID == tournamentID }), nil
}

func (r *memoryTeamRepository) ListByClass(ctx context.Context, classID int) ([]*models.Team, error) {
	return r.list(func(t *models.Team) bool { return t.InClass(classID) }), nil
}

func (r *memoryTeamRepository) list(keep func(*models.Team) bool) []*models.Team {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var teams []*models.Team
	for _, t := range r.db.teams {
		if keep(t) {
			teams = append(teams, t.Clone())
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].RegistrationOrder < teams[j].RegistrationOrder })
	return teams
}

func (r *memoryTeamRepository) Update(ctx context.Context, t *models.Team) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.teams[t.ID]; !ok {
		return ErrTeamNotFound
	}
	r.db.teams[t.ID] = t.Clone()
	return nil
}

type memoryMatchRepository struct {
	db *memoryDB
}

func insertMatch(db *memoryDB, m *models.Match, now time.Time) {
	db.sequence++
	m.ID = db.id()
	m.Sequence = db.sequence
	m.Version = 1
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Status == "" {
		m.Status = models.MatchStatusPending
	}
	db.matches[m.ID] = m.Clone()
}

func (r *memoryMatchRepository) Create(ctx context.Context, m *models.Match) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.classes[m.ClassID]; !ok {
		return ErrMatchClassInvalid
	}
	insertMatch(r.db, m, time.Now())
	return nil
}

func (r *memoryMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	m, ok := r.db.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m.Clone(), nil
}

func (r *memoryMatchRepository) Update(ctx context.Context, m *models.Match, expectedVersion int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.matches[m.ID]
	if !ok {
		return ErrMatchNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.Version = expectedVersion + 1
	m.UpdatedAt = time.Now()
	r.db.matches[m.ID] = m.Clone()
	return nil
}

func (r *memoryMatchRepository) ListByClass(ctx context.Context, classID int, statuses ...models.MatchStatus) ([]*models.Match, error) {
	return r.list(func(m *models.Match) bool { return m.ClassID == classID }, statuses), nil
}

func (r *memoryMatchRepository) ListByTournament(ctx context.Context, tournamentID int, statuses ...models.MatchStatus) ([]*models.Match, error) {
	return r.list(func(m *models.Match) bool { return m.TournamentID == tournamentID }, statuses), nil
}

func (r *memoryMatchRepository) list(keep func(*models.Match) bool, statuses []models.MatchStatus) []*models.Match {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var matches []*models.Match
	for _, m := range r.db.matches {
		if keep(m) && statusIn(m.Status, statuses) {
			matches = append(matches, m.Clone())
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Sequence < matches[j].Sequence })
	return matches
}

func statusIn(s models.MatchStatus, statuses []models.MatchStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

type memoryBracketRepository struct {
	db *memoryDB
}

func (r *memoryBracketRepository) GetByClass(ctx context.Context, classID int) (*models.Bracket, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	b, ok := r.db.brackets[classID]
	if !ok {
		return nil, ErrBracketNotFound
	}
	return b.Clone(), nil
}

type memoryOperationRepository struct {
	db *memoryDB
}

func (r *memoryOperationRepository) Record(ctx context.Context, op *models.ConcurrentOperation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := *op
	r.db.operations = append(r.db.operations, &stored)
	return nil
}

func (r *memoryOperationRepository) ListByEntity(ctx context.Context, entityKind string, entityID int) ([]*models.ConcurrentOperation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var ops []*models.ConcurrentOperation
	for _, op := range r.db.operations {
		if op.EntityKind == entityKind && op.EntityID == entityID {
			cp := *op
			ops = append(ops, &cp)
		}
	}
	return ops, nil
}
