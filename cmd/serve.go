package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the retrieval API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		retriever, closeFn, err := buildRetriever(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(120 * time.Second))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/retrieve", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Query   string `json:"query"`
				TopK    int    `json:"top_k"`
				MaxHops *int   `json:"max_hops"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.Query == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
				return
			}

			resp, err := retriever.Retrieve(req.Context(), body.Query, body.TopK, body.MaxHops)
			if err != nil {
				zap.L().Error("retrieval failed", zap.String("query", body.Query), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "retrieval failed"})
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/companies", func(w http.ResponseWriter, req *http.Request) {
			companies, err := s.Companies.ListAll(req.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
				return
			}
			writeJSON(w, http.StatusOK, companies)
		})

		r.Get("/metrics/{ticker}", func(w http.ResponseWriter, req *http.Request) {
			ticker := chi.URLParam(req, "ticker")
			rows, err := s.Normalization.Normalized(req.Context(), ticker)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
				return
			}
			if len(rows) == 0 {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no metrics for ticker"})
				return
			}
			writeJSON(w, http.StatusOK, rows)
		})

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			summary, err := s.Analytics.Summary(req.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "summary failed"})
				return
			}
			writeJSON(w, http.StatusOK, summary)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
