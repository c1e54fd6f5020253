package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/catalog"
	"github.com/carematch/community-recommender/internal/crm"
	"github.com/carematch/community-recommender/internal/extract"
	"github.com/carematch/community-recommender/internal/pipeline"
)

const maxAudioUpload = 32 << 20

// Server is the thin HTTP facade over the pipeline and the catalog store.
type Server struct {
	pipeline      *pipeline.Pipeline
	store         *catalog.Store
	crm           crm.Writer
	llmConfigured bool
	logger        *zap.Logger
}

func NewServer(p *pipeline.Pipeline, store *catalog.Store, writer crm.Writer, llmConfigured bool, logger *zap.Logger) *Server {
	return &Server{
		pipeline:      p,
		store:         store,
		crm:           writer,
		llmConfigured: llmConfigured,
		logger:        logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/process-audio", s.handleProcessAudio)
		r.Post("/process-text", s.handleProcessText)

		r.Route("/communities", func(r chi.Router) {
			r.Get("/", s.handleListCommunities)
			r.Post("/", s.handleAddCommunity)
			r.Get("/{id}", s.handleGetCommunity)
			r.Put("/{id}", s.handleUpdateCommunity)
			r.Delete("/{id}", s.handleDeleteCommunity)
		})

		r.Get("/stats", s.handleStats)
		r.Get("/health", s.handleHealth)
	})

	return r
}

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		badRequest(w, r, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		badRequest(w, r, "no audio file provided")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil || len(audio) == 0 {
		badRequest(w, r, "audio file is empty or unreadable")
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = audioMIMEFromName(header.Filename)
	}

	push := true
	if v := r.FormValue("push_to_crm"); v != "" {
		push = strings.EqualFold(v, "true")
	}

	s.process(w, r, extract.Input{Audio: audio, MIME: mime}, push, nil)
}

type processTextRequest struct {
	Text      string             `json:"text"`
	PushToCRM *bool              `json:"push_to_crm"`
	Weights   map[string]float64 `json:"weights"`
}

func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var req processTextRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, r, "no text provided")
		return
	}

	push := req.PushToCRM == nil || *req.PushToCRM

	s.process(w, r, extract.Input{Text: req.Text}, push, req.Weights)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, in extract.Input, push bool, weights map[string]float64) {
	result, err := s.pipeline.Process(r.Context(), in, pipeline.Options{Weights: weights})
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrExtraction):
			render.Status(r, http.StatusUnprocessableEntity)
		case errors.Is(err, ai.ErrUnavailable):
			render.Status(r, http.StatusServiceUnavailable)
		default:
			render.Status(r, http.StatusInternalServerError)
		}
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}

	if push && s.crm != nil {
		if err := s.crm.Push(r.Context(), result); err != nil {
			s.logger.Warn("crm push failed",
				zap.String("consultation_id", result.ConsultationID),
				zap.Error(err),
			)
		} else {
			result.CRMPushed = true
		}
	}

	render.JSON(w, r, result)
}

func (s *Server) handleListCommunities(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	render.JSON(w, r, map[string]any{"communities": snap.All()})
}

func (s *Server) handleGetCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityID(w, r)
	if !ok {
		return
	}

	c, found := s.store.Snapshot().Get(id)
	if !found {
		notFound(w, r, id)
		return
	}
	render.JSON(w, r, c)
}

type communityRequest struct {
	CommunityID int               `json:"community_id"`
	Fields      map[string]string `json:"fields"`
}

func (s *Server) handleAddCommunity(w http.ResponseWriter, r *http.Request) {
	var req communityRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}

	id := req.CommunityID
	if id == 0 {
		id = s.nextID()
	} else if _, exists := s.store.Snapshot().Get(id); exists {
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, map[string]string{"error": "community_id already exists"})
		return
	}

	if _, err := s.store.Upsert(id, req.Fields); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]int{"community_id": id})
}

func (s *Server) handleUpdateCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityID(w, r)
	if !ok {
		return
	}
	if _, found := s.store.Snapshot().Get(id); !found {
		notFound(w, r, id)
		return
	}

	var req communityRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}

	if _, err := s.store.Upsert(id, req.Fields); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	render.JSON(w, r, map[string]string{"message": "community updated"})
}

func (s *Server) handleDeleteCommunity(w http.ResponseWriter, r *http.Request) {
	id, ok := communityID(w, r)
	if !ok {
		return
	}
	if !s.store.Delete(id) {
		notFound(w, r, id)
		return
	}
	render.JSON(w, r, map[string]string{"message": "community deleted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.store.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":         "ok",
		"llm_configured": s.llmConfigured,
	})
}

func (s *Server) nextID() int {
	max := 0
	for _, c := range s.store.Snapshot().All() {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}

func communityID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, r, "invalid community id")
		return 0, false
	}
	return id, true
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"error": msg})
}

func notFound(w http.ResponseWriter, r *http.Request, id int) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, map[string]string{"error": "community " + strconv.Itoa(id) + " not found"})
}

func audioMIMEFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
