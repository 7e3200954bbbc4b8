package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inboxops/autotag/internal/inbox"
	"github.com/inboxops/autotag/internal/letters"
	"github.com/inboxops/autotag/internal/model"
	"github.com/inboxops/autotag/internal/nomenclature"
	"github.com/inboxops/autotag/internal/pipeline"
)

var servePort int

// httpPrompter surfaces queue events through logs only; decisions arrive
// over the HTTP API instead of a terminal.
type httpPrompter struct{}

func (httpPrompter) Present(item model.QueueItem) {
	zap.L().Info("letter decision needed",
		zap.String("url", item.URL),
		zap.String("panel", item.PanelName))
}

func (httpPrompter) Drained() {
	zap.L().Info("letter queue drained")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline with an HTTP control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		replay, err := inbox.OpenReplay(cfg.Inbox.SnapshotPath)
		if err != nil {
			return err
		}
		builder, err := nomenclature.NewBuilder(cfg.Pipeline.Timezone)
		if err != nil {
			return err
		}

		resolver := letters.NewResolver(st, httpPrompter{})
		directory := newDirectory(st)
		p := pipeline.New(cfg.Pipeline, replay, replay, directory, resolver, builder, st, newAlerter())

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(resolver, st, directory, st),
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			err := p.Run(gCtx)
			if gCtx.Err() != nil {
				return nil
			}
			return err
		})
		g.Go(func() error {
			zap.L().Info("control server starting", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			zap.L().Info("shutting down control server")
			return srv.Shutdown(context.Background())
		})

		return g.Wait()
	},
}

// The control API surfaces are small interfaces so the router is
// testable without a live pipeline.
type queueAPI interface {
	Pending() []model.QueueItem
	Active() (model.QueueItem, bool)
	Assign(ctx context.Context, letter string) error
	Skip(ctx context.Context) error
}

type mappingAPI interface {
	ListLetters(ctx context.Context) (map[string]string, error)
	SetLetter(ctx context.Context, url, letter string) error
	DeleteLetter(ctx context.Context, url string) error
}

type panelAPI interface {
	Panels(ctx context.Context) []model.Panel
}

type auditAPI interface {
	ListAudit(ctx context.Context) (map[string]string, error)
}

func newRouter(queue queueAPI, mappings mappingAPI, panelDir panelAPI, audit auditAPI) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			items := queue.Pending()
			if items == nil {
				items = []model.QueueItem{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"pending": items})
		})
		r.Get("/active", func(w http.ResponseWriter, _ *http.Request) {
			item, ok := queue.Active()
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "queue is empty"})
				return
			}
			writeJSON(w, http.StatusOK, item)
		})
		r.Post("/assign", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Letter string `json:"letter"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if err := queue.Assign(req.Context(), body.Letter); err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
		})
		r.Post("/skip", func(w http.ResponseWriter, req *http.Request) {
			if err := queue.Skip(req.Context()); err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
		})
	})

	r.Route("/mappings", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			all, err := mappings.ListLetters(req.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"mappings": all})
		})
		r.Put("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL    string `json:"url"`
				Letter string `json:"letter"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url and letter are required"})
				return
			}
			if err := mappings.SetLetter(req.Context(), body.URL, body.Letter); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
		})
		r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			url := req.URL.Query().Get("url")
			if url == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url parameter is required"})
				return
			}
			if err := mappings.DeleteLetter(req.Context(), url); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		})
	})

	r.Get("/panels", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"panels": panelDir.Panels(req.Context())})
	})

	r.Get("/audit", func(w http.ResponseWriter, req *http.Request) {
		all, err := audit.ListAudit(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"audit": all})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
