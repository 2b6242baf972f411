package course_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-service/internal/course"
	"course-service/internal/logger"
	"course-service/internal/metrics"
	"course-service/internal/student"
	"course-service/testing/testdb"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var tables = []string{"course_students", "courses", "students"}

func newRouter(db *bun.DB, maxStudents int, producer course.Producer) http.Handler {
	m := metrics.NewMock()
	log := logger.Discard()

	repo := course.NewRepository(db, m)
	service := course.NewService(repo, course.NewEnrollmentPolicy(maxStudents), producer, log, m)
	handler := course.NewHandler(service, log, m)

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Route("/api/v1", handler.RegisterRoutes)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func makeCourses(t *testing.T, db *bun.DB, n int) []*course.Course {
	t.Helper()

	ctx := context.Background()
	courses := make([]*course.Course, n)
	for i := range courses {
		c := &course.Course{Name: fmt.Sprintf("course-%02d", i)}
		_, err := db.NewInsert().Model(c).Exec(ctx)
		require.NoError(t, err)
		require.NotZero(t, c.ID)
		courses[i] = c
	}
	return courses
}

func makeStudents(t *testing.T, db *bun.DB, n int) []*student.Student {
	t.Helper()

	ctx := context.Background()
	students := make([]*student.Student, n)
	for i := range students {
		s := &student.Student{
			Name:      fmt.Sprintf("student-%02d", i),
			BirthDate: time.Date(2000, time.January, 1+i%28, 0, 0, 0, 0, time.UTC),
		}
		_, err := db.NewInsert().Model(s).Exec(ctx)
		require.NoError(t, err)
		require.NotZero(t, s.ID)
		students[i] = s
	}
	return students
}

func studentIDs(students []*student.Student) []int {
	ids := make([]int, len(students))
	for i, s := range students {
		ids[i] = s.ID
	}
	return ids
}

func decodeCourse(t *testing.T, w *httptest.ResponseRecorder) course.CourseResponse {
	t.Helper()
	var resp course.CourseResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func decodeCourses(t *testing.T, w *httptest.ResponseRecorder) []course.CourseResponse {
	t.Helper()
	var resp []course.CourseResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestCourseAPI_SQLite(t *testing.T) {
	db := testdb.NewSQLite(t, course.Models()...)
	runCourseAPISuite(t, db)
}

func TestCourseAPI_Postgres(t *testing.T) {
	pgContainer := testdb.SetupSharedPostgres(t)
	defer pgContainer.Cleanup(t)

	pgContainer.RunMigrations(t, course.Models()...)
	runCourseAPISuite(t, pgContainer.DB)
}

func runCourseAPISuite(t *testing.T, db *bun.DB) {
	// Create router ONCE and reuse across subtests that use the default limit
	router := newRouter(db, 20, nil)

	t.Run("RetrieveCourse", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		courses := makeCourses(t, db, 1)

		w := do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/courses/%d/", courses[0].ID), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeCourse(t, w)
		assert.Equal(t, courses[0].Name, resp.Name)
		assert.Equal(t, courses[0].ID, resp.ID)
		assert.Empty(t, resp.Students)
	})

	t.Run("RetrieveCourse_NotFound", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)

		w := do(t, router, http.MethodGet, "/api/v1/courses/99999/", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("RetrieveCourse_InvalidID", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/courses/abc/", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("RetrieveCourse_ZeroAndNegativeID", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		makeCourses(t, db, 1)

		for _, path := range []string{"/api/v1/courses/0/", "/api/v1/courses/-1/"} {
			assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, path, nil).Code, path)
			assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, path, nil).Code, path)
			assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPatch, path, map[string]interface{}{
				"name": "nobody",
			}).Code, path)
		}
	})

	t.Run("ListCourses_PreservesCreationOrder", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		courses := makeCourses(t, db, 25)

		w := do(t, router, http.MethodGet, "/api/v1/courses/", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeCourses(t, w)
		require.Len(t, resp, len(courses))
		for i, c := range resp {
			assert.Equal(t, courses[i].Name, c.Name)
			assert.Equal(t, courses[i].ID, c.ID)
		}
	})

	t.Run("ListCourses_Empty", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)

		w := do(t, router, http.MethodGet, "/api/v1/courses", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("ListCourses_FilterByID", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		courses := makeCourses(t, db, 15)

		w := do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/courses/?id=%d", courses[0].ID), nil)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeCourses(t, w)
		require.Len(t, resp, 1)
		assert.Equal(t, courses[0].Name, resp[0].Name)
		assert.Equal(t, courses[0].ID, resp[0].ID)
	})

	t.Run("ListCourses_FilterByInvalidID", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/courses/?id=first", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ListCourses_FilterByZeroID", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		makeCourses(t, db, 3)

		for _, query := range []string{"?id=0", "?id=-1"} {
			w := do(t, router, http.MethodGet, "/api/v1/courses/"+query, nil)

			assert.Equal(t, http.StatusOK, w.Code, query)
			assert.JSONEq(t, "[]", w.Body.String(), query)
		}
	})

	t.Run("ListCourses_FilterByName", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		courses := makeCourses(t, db, 15)
		twin := &course.Course{Name: courses[0].Name}
		_, err := db.NewInsert().Model(twin).Exec(context.Background())
		require.NoError(t, err)

		w := do(t, router, http.MethodGet, "/api/v1/courses/?name="+courses[0].Name, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeCourses(t, w)
		require.Len(t, resp, 2)
		for _, c := range resp {
			assert.Equal(t, courses[0].Name, c.Name)
		}
		assert.Equal(t, courses[0].ID, resp[0].ID)
		assert.Equal(t, twin.ID, resp[1].ID)
	})

	t.Run("CreateCourse", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 2)

		w := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "python_course",
			"students": studentIDs(students),
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decodeCourse(t, w)
		assert.NotZero(t, resp.ID)
		assert.Equal(t, "python_course", resp.Name)
		assert.Equal(t, studentIDs(students), resp.Students)
	})

	t.Run("CreateCourse_WithoutStudents", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)

		w := do(t, router, http.MethodPost, "/api/v1/courses", map[string]interface{}{
			"name": "go_course",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decodeCourse(t, w)
		assert.Equal(t, "go_course", resp.Name)
		assert.Empty(t, resp.Students)
	})

	t.Run("CreateCourse_DuplicateStudentIDs", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 2)

		w := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "dups",
			"students": []int{students[1].ID, students[0].ID, students[1].ID},
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decodeCourse(t, w)
		assert.ElementsMatch(t, studentIDs(students), resp.Students)
	})

	t.Run("CreateCourse_MissingName", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)

		w := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"students": []int{},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CreateCourse_MalformedJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/courses/", bytes.NewReader([]byte(`{"name":`)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CreateCourse_TrailingGarbage", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)

		for _, body := range []string{`{"name":"x"}garbage`, `{"name":"x"}{"name":"y"}`} {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/courses/", bytes.NewReader([]byte(body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}

		count, err := db.NewSelect().Model((*course.Course)(nil)).Count(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("CreateCourse_UnknownStudent", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 1)

		w := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "ghosts",
			"students": []int{students[0].ID, 4242},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown student")

		list := do(t, router, http.MethodGet, "/api/v1/courses/", nil)
		assert.Empty(t, decodeCourses(t, list))
	})

	t.Run("PatchCourse_ReplacesStudents", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		vasya := &student.Student{Name: "Vasya", BirthDate: time.Date(1812, time.January, 1, 0, 0, 0, 0, time.UTC)}
		_, err := db.NewInsert().Model(vasya).Exec(context.Background())
		require.NoError(t, err)
		courses := makeCourses(t, db, 1)

		w := do(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/courses/%d/", courses[0].ID), map[string]interface{}{
			"students": []int{vasya.ID},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeCourse(t, w)
		assert.Equal(t, []int{vasya.ID}, resp.Students)
		assert.Equal(t, courses[0].Name, resp.Name)
	})

	t.Run("PatchCourse_NameOnlyKeepsStudents", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 3)

		created := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "before",
			"students": studentIDs(students),
		})
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeCourse(t, created).ID

		w := do(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/courses/%d/", id), map[string]interface{}{
			"name": "after",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeCourse(t, w)
		assert.Equal(t, "after", resp.Name)
		assert.Equal(t, studentIDs(students), resp.Students)
	})

	t.Run("PatchCourse_NotFound", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)

		w := do(t, router, http.MethodPatch, "/api/v1/courses/99999/", map[string]interface{}{
			"name": "nobody",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("PatchCourse_EmptyName", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		courses := makeCourses(t, db, 1)

		w := do(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/courses/%d/", courses[0].ID), map[string]interface{}{
			"name": "",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("PatchCourse_NullStudents", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 2)

		created := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "kept",
			"students": studentIDs(students),
		})
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeCourse(t, created).ID

		w := do(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/courses/%d/", id), map[string]interface{}{
			"students": nil,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/courses/%d/", id), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, studentIDs(students), decodeCourse(t, w).Students)
	})

	t.Run("PatchCourse_EmptyStudentsClearsEnrollment", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 2)

		created := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "cleared",
			"students": studentIDs(students),
		})
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeCourse(t, created).ID

		w := do(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/courses/%d/", id), map[string]interface{}{
			"students": []int{},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeCourse(t, w).Students)
	})

	t.Run("UpdateCourse_ReplacesEverything", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 2)

		created := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "old",
			"students": studentIDs(students),
		})
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeCourse(t, created).ID

		w := do(t, router, http.MethodPut, fmt.Sprintf("/api/v1/courses/%d/", id), map[string]interface{}{
			"name": "new",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeCourse(t, w)
		assert.Equal(t, "new", resp.Name)
		assert.Empty(t, resp.Students)
	})

	t.Run("DeleteCourse", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		courses := makeCourses(t, db, 2)

		w := do(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/courses/%d/", courses[0].ID), nil)

		assert.Equal(t, http.StatusNoContent, w.Code)

		get := do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/courses/%d/", courses[0].ID), nil)
		assert.Equal(t, http.StatusNotFound, get.Code)

		list := do(t, router, http.MethodGet, "/api/v1/courses/", nil)
		resp := decodeCourses(t, list)
		require.Len(t, resp, 1)
		assert.Equal(t, courses[1].ID, resp[0].ID)
	})

	t.Run("DeleteCourse_KeepsStudents", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		students := makeStudents(t, db, 3)

		created := do(t, router, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "doomed",
			"students": studentIDs(students),
		})
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeCourse(t, created).ID

		w := do(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/courses/%d", id), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		count, err := db.NewSelect().Model((*student.Student)(nil)).Count(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		enrolled, err := db.NewSelect().Model((*course.CourseStudent)(nil)).Count(context.Background())
		require.NoError(t, err)
		assert.Zero(t, enrolled)
	})

	t.Run("DeleteCourse_NotFound", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)

		w := do(t, router, http.MethodDelete, "/api/v1/courses/99999/", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	maxStudentsCases := []struct {
		maxCount      int
		studentsCount int
		statusCode    int
	}{
		{20, 20, http.StatusCreated},
		{20, 12, http.StatusCreated},
		{20, 25, http.StatusBadRequest},
	}
	for _, tc := range maxStudentsCases {
		t.Run(fmt.Sprintf("MaxStudents_%d_of_%d", tc.studentsCount, tc.maxCount), func(t *testing.T) {
			testdb.CleanupTables(t, db, tables...)
			limited := newRouter(db, tc.maxCount, nil)
			students := makeStudents(t, db, tc.studentsCount)

			w := do(t, limited, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
				"name":     "python",
				"students": studentIDs(students),
			})

			assert.Equal(t, tc.statusCode, w.Code)

			count, err := db.NewSelect().Model((*course.Course)(nil)).Count(context.Background())
			require.NoError(t, err)
			if tc.statusCode == http.StatusCreated {
				assert.Equal(t, 1, count)
			} else {
				assert.Zero(t, count, "rejected create must not persist a course")
			}
		})
	}

	t.Run("PatchCourse_OverLimitLeavesEnrollment", func(t *testing.T) {
		testdb.CleanupTables(t, db, tables...)
		limited := newRouter(db, 3, nil)
		students := makeStudents(t, db, 5)

		created := do(t, limited, http.MethodPost, "/api/v1/courses/", map[string]interface{}{
			"name":     "small",
			"students": studentIDs(students[:2]),
		})
		require.Equal(t, http.StatusCreated, created.Code)
		id := decodeCourse(t, created).ID

		w := do(t, limited, http.MethodPatch, fmt.Sprintf("/api/v1/courses/%d/", id), map[string]interface{}{
			"name":     "renamed",
			"students": studentIDs(students),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "at most 3 students")

		get := do(t, limited, http.MethodGet, fmt.Sprintf("/api/v1/courses/%d/", id), nil)
		require.Equal(t, http.StatusOK, get.Code)
		resp := decodeCourse(t, get)
		assert.Equal(t, "small", resp.Name)
		assert.Equal(t, studentIDs(students[:2]), resp.Students)
	})
}
