package student

import (
	"errors"
	"log/slog"
	"net/http"

	"course-service/internal/httputil"
	"course-service/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	service  Service
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewHandler(service Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
		metrics:  metrics,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Route("/students", func(r chi.Router) {
		r.Post("/", h.CreateStudent)
		r.Get("/", h.GetAllStudents)
		r.Get("/{id}", h.GetStudent)
		r.Delete("/{id}", h.DeleteStudent)
	})
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil || h.validate.Struct(&req) != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	student, err := req.ToModel()
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "creating student", "name", student.Name)
	created, err := h.service.CreateStudent(r.Context(), student)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordStudentCreated(r.Context())

	httputil.RespondWithJSON(w, http.StatusCreated, ToResponse(created))
}

func (h *Handler) GetAllStudents(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "fetching all students")

	students, err := h.service.GetAllStudents(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, ToResponses(students))
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.IDParam(r, "id")
	if !ok {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid student ID")
		return
	}

	h.logger.InfoContext(r.Context(), "fetching student by ID", "student_id", id)
	student, err := h.service.GetStudentByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, ToResponse(student))
}

func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.IDParam(r, "id")
	if !ok {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid student ID")
		return
	}

	h.logger.InfoContext(r.Context(), "deleting student", "student_id", id)
	if err := h.service.DeleteStudent(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordStudentDeleted(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrStudentNotFound) {
		h.logger.InfoContext(r.Context(), "student not found")
		httputil.RespondWithError(w, http.StatusNotFound, "Student not found")
		return
	}
	if errors.Is(err, ErrInvalidInput) {
		h.logger.InfoContext(r.Context(), "invalid input", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "internal error", "error", err)
	httputil.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
}
