package repositories

import (
	"database/sql"
)

// Store bundles every repository behind the persistence contract: versioned
// load/store per entity plus the class-and-status match query. Components
// receive it explicitly; there is no package-level state.
type Store struct {
	Tournaments TournamentRepository
	Classes     ClassRepository
	Teams       TeamRepository
	Matches     MatchRepository
	Brackets    BracketRepository
	Operations  OperationRepository
}

func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Tournaments: NewPostgresTournamentRepository(db),
		Classes:     NewPostgresClassRepository(db),
		Teams:       NewPostgresTeamRepository(db),
		Matches:     NewPostgresMatchRepository(db),
		Brackets:    NewPostgresBracketRepository(db),
		Operations:  NewPostgresOperationRepository(db),
	}
}

// NewMemoryStore returns a Store kept in process memory. All repositories share
// one lock so multi-entity commits stay atomic.
func NewMemoryStore() *Store {
	m := newMemoryDB()
	return &Store{
		Tournaments: &memoryTournamentRepository{db: m},
		Classes:     &memoryClassRepository{db: m},
		Teams:       &memoryTeamRepository{db: m},
		Matches:     &memoryMatchRepository{db: m},
		Brackets:    &memoryBracketRepository{db: m},
		Operations:  &memoryOperationRepository{db: m},
	}
}
