package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"vidgen-backend/internal/handlers"
	"vidgen-backend/internal/middleware"
)

type Options struct {
	CallbackSecret string
	FrontendURL    string
	// GenerateLimiter throttles POST /generate when set. The caller owns it
	// and stops it on shutdown.
	GenerateLimiter *middleware.RateLimiter
}

func New(
	jwtAuth *middleware.JWTAuth,
	videoHandler *handlers.VideoHandler,
	wsHandler http.HandlerFunc,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(opts.FrontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/video", func(r chi.Router) {
		// ──── Provider callback (shared secret) ────
		r.With(middleware.CallbackSecret(opts.CallbackSecret)).Post("/callback", videoHandler.Callback)

		// ──── WebSocket (token in query) ────
		if wsHandler != nil {
			r.Get("/ws", wsHandler)
		}

		// ──── Authenticated routes ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			if opts.GenerateLimiter != nil {
				r.With(opts.GenerateLimiter.Middleware).Post("/generate", videoHandler.Generate)
			} else {
				r.Post("/generate", videoHandler.Generate)
			}
			r.Get("/list", videoHandler.List)
			r.Get("/status/{task_id}", videoHandler.Status)
			r.Get("/stream/{task_id}", videoHandler.Stream)
			r.Get("/thumb/{task_id}.jpg", videoHandler.Thumbnail)
			r.Post("/upload/youtube", videoHandler.UploadYouTube)

			r.Route("/videos", func(r chi.Router) {
				r.Post("/finalize", videoHandler.Finalize)
				r.Get("/library", videoHandler.Library)
			})
		})
	})

	return r
}
