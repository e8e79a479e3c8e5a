package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/handlers"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/middleware"
)

type Handlers struct {
	Tournament *handlers.TournamentHandler
	Class      *handlers.ClassHandler
	Match      *handlers.MatchHandler
	Queue      *handlers.QueueHandler
	WebSocket  *handlers.WebSocketHandler
}

func SetupRoutes(h Handlers, jwtSecret []byte, allowedOrigins []string) http.Handler {
	router := chi.NewRouter()

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	authenticate := middleware.Authenticate(jwtSecret)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/{tournamentID}", h.Tournament.GetTournament)
		r.Get("/{tournamentID}/teams", h.Tournament.ListTeams)
		r.Get("/{tournamentID}/work", h.Tournament.NextWork)
		r.Get("/{tournamentID}/statistics", h.Tournament.Statistics)
		r.Get("/{tournamentID}/pending", h.Tournament.PendingMatches)
		r.Get("/{tournamentID}/queue", h.Queue.GetQueue)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(middleware.RoleOrganizer, middleware.RoleAdmin))

			r.Post("/", h.Tournament.CreateTournament)
			r.Post("/{tournamentID}/teams", h.Tournament.RegisterTeam)
			r.Post("/{tournamentID}/queue/next", h.Queue.StartNext)
			r.Post("/{tournamentID}/queue/restore", h.Queue.Restore)
		})
	})

	router.Route("/classes/{classID}", func(r chi.Router) {
		r.Get("/", h.Class.GetClass)
		r.Get("/standings", h.Class.Standings)
		r.Get("/snapshot", h.Class.Snapshot)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(middleware.RoleOrganizer, middleware.RoleAdmin))

			r.Post("/rounds", h.Class.NextRound)
			r.Post("/elimination", h.Class.StartElimination)
		})
	})

	router.Route("/matches/{matchID}", func(r chi.Router) {
		r.Get("/", h.Match.GetMatch)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(middleware.RoleOrganizer, middleware.RoleAdmin))

			r.Post("/result", h.Match.SubmitResult)
			r.Post("/forfeit", h.Match.Forfeit)
			r.Post("/resolve", h.Match.ResolveForfeit)
			r.Post("/delay", h.Match.Delay)
			r.Put("/position", h.Match.Reschedule)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(middleware.RoleAdmin))
		r.Get("/operations/{kind}/{entityID}", h.Match.Operations)
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(middleware.RoleArena, middleware.RoleAdmin))
		r.Use(chiMiddleware.Timeout(10 * time.Second))
		r.Post("/arena/results", h.Match.ReportArenaResult)
	})

	return router
}
