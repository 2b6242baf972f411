package course

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

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
	router.Route("/courses", func(r chi.Router) {
		r.Post("/", h.CreateCourse)
		r.Get("/", h.ListCourses)
		r.Get("/{id}", h.GetCourse)
		r.Put("/{id}", h.UpdateCourse)
		r.Patch("/{id}", h.PatchCourse)
		r.Delete("/{id}", h.DeleteCourse)
	})
}

func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CourseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil || h.validate.Struct(&req) != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	h.logger.InfoContext(r.Context(), "creating course", "name", req.Name, "students", len(req.Students))
	course, err := h.service.CreateCourse(r.Context(), req.Name, req.Students)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, ToResponse(course))
}

func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	query := r.URL.Query()
	if query.Has("id") {
		id, err := strconv.Atoi(query.Get("id"))
		if err != nil {
			httputil.RespondWithError(w, http.StatusBadRequest, "Invalid course ID")
			return
		}
		filter.ID = &id
	}
	if query.Has("name") {
		name := query.Get("name")
		filter.Name = &name
	}

	h.logger.InfoContext(r.Context(), "fetching courses", "filter_id", filter.ID != nil, "filter_name", filter.Name != nil)
	courses, err := h.service.ListCourses(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, ToResponses(courses))
}

func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.IDParam(r, "id")
	if !ok {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	h.logger.InfoContext(r.Context(), "fetching course by ID", "course_id", id)
	course, err := h.service.GetCourseByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordCourseViewed(r.Context())

	httputil.RespondWithJSON(w, http.StatusOK, ToResponse(course))
}

func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.IDParam(r, "id")
	if !ok {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	var req CourseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil || h.validate.Struct(&req) != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	h.logger.InfoContext(r.Context(), "updating course", "course_id", id)
	h.applyUpdate(w, r, id, req.ToUpdate())
}

func (h *Handler) PatchCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.IDParam(r, "id")
	if !ok {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	var req CoursePatchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil || h.validate.Struct(&req) != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Students.Null {
		httputil.RespondWithError(w, http.StatusBadRequest, "students must be a list")
		return
	}

	h.logger.InfoContext(r.Context(), "patching course", "course_id", id)
	h.applyUpdate(w, r, id, req.ToUpdate())
}

func (h *Handler) applyUpdate(w http.ResponseWriter, r *http.Request, id int, update Update) {
	course, err := h.service.UpdateCourse(r.Context(), id, update)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, ToResponse(course))
}

func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.IDParam(r, "id")
	if !ok {
		httputil.RespondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	h.logger.InfoContext(r.Context(), "deleting course", "course_id", id)
	if err := h.service.DeleteCourse(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrCourseNotFound):
		h.logger.InfoContext(r.Context(), "course not found")
		httputil.RespondWithError(w, http.StatusNotFound, "Course not found")
	case errors.Is(err, ErrTooManyStudents),
		errors.Is(err, ErrUnknownStudent),
		errors.Is(err, ErrInvalidInput):
		h.logger.InfoContext(r.Context(), "invalid input", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
