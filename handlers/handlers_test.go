package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollbook-server-go/auth"
	"rollbook-server-go/db"
	"rollbook-server-go/directory"
	"rollbook-server-go/export"
	"rollbook-server-go/models"
)

type testServer struct {
	router   *gin.Engine
	handler  *Handler
	sessions *auth.MemoryStore
	dataFile string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	dataFile := filepath.Join(dir, "user_data.json")
	store, err := db.NewDocumentStore(dataFile, filepath.Join(dir, "user_accounts.json"))
	require.NoError(t, err)

	sessions := auth.NewMemoryStore(time.Hour).WithMaxEntries(100)
	h := NewHandler(
		directory.NewService(store),
		auth.NewAccounts(store),
		sessions,
		auth.NewTokens("test-secret", time.Hour),
		time.Hour,
	)
	router, err := NewRouter(h, Options{DisableRequestLogs: true})
	require.NoError(t, err)

	return &testServer{router: router, handler: h, sessions: sessions, dataFile: dataFile}
}

// client carries the session cookie between requests like a browser would
type client struct {
	t      *testing.T
	srv    *testServer
	cookie *http.Cookie
}

func (s *testServer) client(t *testing.T) *client {
	return &client{t: t, srv: s}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.srv.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == sessionCookie {
			c.cookie = ck
		}
	}
	return w
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// follow asserts a redirect and fetches its target
func (c *client) follow(w *httptest.ResponseRecorder, location string) *httptest.ResponseRecorder {
	c.t.Helper()
	require.Equal(c.t, http.StatusFound, w.Code)
	require.Equal(c.t, location, w.Header().Get("Location"))
	return c.get(location)
}

func (s *testServer) loggedIn(t *testing.T) *client {
	t.Helper()
	require.NoError(t, s.handler.Accounts.Register(context.Background(), "alice", "pw1"))
	c := s.client(t)
	w := c.postForm("/login", url.Values{"username": {"alice"}, "password": {"pw1"}})
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/", w.Header().Get("Location"))
	return c
}

func TestPingHandler(t *testing.T) {
	srv := setupServer(t)
	w := srv.client(t).get("/ping")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Pong!"}`, w.Body.String())
}

func TestRequireAuth(t *testing.T) {
	srv := setupServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/"},
		{http.MethodGet, "/search?query=a"},
		{http.MethodPost, "/add_division"},
		{http.MethodGet, "/choose_division/10A"},
		{http.MethodGet, "/export/all_students"},
		{http.MethodPost, "/delete_student/10A/stu00001"},
	}
	for _, tt := range paths {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			c := srv.client(t)
			w := c.do(httptest.NewRequest(tt.method, tt.path, nil))
			body := c.follow(w, "/login").Body.String()
			assert.Contains(t, body, "You need to log in first!")
		})
	}
}

func TestRegisterThenLogin(t *testing.T) {
	srv := setupServer(t)
	c := srv.client(t)

	w := c.postForm("/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	body := c.follow(w, "/login").Body.String()
	assert.Contains(t, body, "Registration successful! You can now log in.")

	w = c.postForm("/login", url.Values{"username": {"alice"}, "password": {"pw1"}})
	home := c.follow(w, "/")
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), "Login successful!")
	assert.Contains(t, home.Body.String(), "alice")

	// flashes are shown once
	assert.NotContains(t, c.get("/").Body.String(), "Login successful!")
}

func TestRegister_Duplicate(t *testing.T) {
	srv := setupServer(t)
	c := srv.client(t)
	form := url.Values{"username": {"alice"}, "password": {"pw1"}}

	c.postForm("/register", form)
	w := c.postForm("/register", url.Values{"username": {"alice"}, "password": {"other"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Username already exists!")
	assert.NoError(t, srv.handler.Accounts.Authenticate(context.Background(), "alice", "pw1"))
}

func TestRegister_MissingFields(t *testing.T) {
	srv := setupServer(t)
	w := srv.client(t).postForm("/register", url.Values{"username": {"alice"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Username and password are required!")
}

func TestLogin_Failures(t *testing.T) {
	srv := setupServer(t)
	require.NoError(t, srv.handler.Accounts.Register(context.Background(), "alice", "pw1"))

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "nope"},
		{"unknown user", "bob", "pw1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := srv.client(t)
			w := c.postForm("/login", url.Values{"username": {tt.username}, "password": {tt.password}})

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), "Invalid username or password!")

			// still anonymous
			assert.Equal(t, http.StatusFound, c.get("/").Code)
		})
	}
}

func TestLogout(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	oldCookie := c.cookie

	w := c.get("/logout")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	// the logged-in session is gone server side
	stale := srv.client(t)
	stale.cookie = oldCookie
	assert.Equal(t, http.StatusFound, stale.get("/").Code)

	w = c.get("/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Contains(t, c.get("/login").Body.String(), "You have been logged out.")
}

func TestInvalidSessionCookie(t *testing.T) {
	srv := setupServer(t)
	c := srv.client(t)
	c.cookie = &http.Cookie{Name: sessionCookie, Value: "forged"}

	w := c.get("/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestCookielessRequestsStayBounded(t *testing.T) {
	srv := setupServer(t)
	user := srv.loggedIn(t)

	for i := 0; i < 1000; i++ {
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusFound, w.Code)
	}

	assert.LessOrEqual(t, srv.sessions.Len(), 100)
	// logged-in sessions outlive anonymous ones
	assert.Equal(t, http.StatusOK, user.get("/").Code)
}

func TestDivisionLifecycle(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	c.get("/")

	w := c.postForm("/add_division", url.Values{"division_name": {"10A"}})
	body := c.follow(w, "/").Body.String()
	assert.Contains(t, body, "added successfully!")
	assert.Contains(t, body, "/choose_division/10A")

	w = c.postForm("/add_division", url.Values{"division_name": {"10A"}})
	assert.Contains(t, c.follow(w, "/").Body.String(), "already exists!")

	w = c.postForm("/add_division", url.Values{})
	assert.Contains(t, c.follow(w, "/").Body.String(), "Division name is required!")

	w = c.postForm("/delete_division/10A", nil)
	assert.Contains(t, c.follow(w, "/").Body.String(), "deleted successfully!")

	w = c.postForm("/delete_division/10A", nil)
	assert.Contains(t, c.follow(w, "/").Body.String(), "does not exist!")

	dir, err := srv.handler.Directory.Directory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dir.Divisions)
}

func TestDivisionNameWithSlash(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	require.NoError(t, srv.handler.Directory.AddDivision(context.Background(), "10/A"))

	w := c.postForm("/add_student/10%2FA", url.Values{"name": {"Ann"}})
	body := c.follow(w, "/choose_division/10%2FA").Body.String()
	assert.Contains(t, body, "Ann")

	students, err := srv.handler.Directory.Students(context.Background(), "10/A")
	require.NoError(t, err)
	assert.Len(t, students, 1)
}

func TestStudentLifecycle(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	ctx := context.Background()
	require.NoError(t, srv.handler.Directory.AddDivision(ctx, "10A"))

	assert.Equal(t, http.StatusOK, c.get("/add_student/10A").Code)

	w := c.postForm("/add_student/10A", url.Values{"name": {"Ann"}, "email": {"ann@x.io"}, "phone": {"555"}})
	body := c.follow(w, "/choose_division/10A").Body.String()
	assert.Contains(t, body, "Student added successfully!")
	assert.Contains(t, body, "ann@x.io")

	students, err := srv.handler.Directory.Students(ctx, "10A")
	require.NoError(t, err)
	require.Len(t, students, 1)
	id := students[0].ID
	assert.Regexp(t, `^stu[0-9a-f]{5}$`, id)

	form := c.get("/update/" + id)
	assert.Equal(t, http.StatusOK, form.Code)
	assert.Contains(t, form.Body.String(), `value="Ann"`)

	w = c.postForm("/update/"+id, url.Values{"name": {"Ann B"}, "email": {"annb@x.io"}, "phone": {"556"}})
	assert.Contains(t, c.follow(w, "/search").Body.String(), "Student updated successfully!")

	st, found, err := srv.handler.Directory.GetStudent(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.Student{ID: id, Name: "Ann B", Email: "annb@x.io", Phone: "556", Division: "10A"}, st)

	w = c.postForm("/delete_student/10A/"+id, nil)
	assert.Contains(t, c.follow(w, "/choose_division/10A").Body.String(), "Student deleted successfully!")

	students, err = srv.handler.Directory.Students(ctx, "10A")
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestStudent_NotFoundCases(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)

	w := c.get("/update/stu00000")
	assert.Contains(t, c.follow(w, "/search").Body.String(), "Student not found!")

	w = c.postForm("/update/stu00000", url.Values{"name": {"X"}})
	assert.Contains(t, c.follow(w, "/search").Body.String(), "Student not found!")

	w = c.postForm("/add_student/nope", url.Values{"name": {"X"}})
	assert.Contains(t, c.follow(w, "/").Body.String(), "does not exist!")

	w = c.postForm("/delete_student/nope/stu00000", nil)
	assert.Contains(t, c.follow(w, "/").Body.String(), "does not exist!")
}

func TestAddStudent_EmptyFieldsAccepted(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	ctx := context.Background()
	require.NoError(t, srv.handler.Directory.AddDivision(ctx, "10A"))

	w := c.postForm("/add_student/10A", url.Values{"name": {""}, "email": {""}, "phone": {""}})
	assert.Contains(t, c.follow(w, "/choose_division/10A").Body.String(), "Student added successfully!")

	students, err := srv.handler.Directory.Students(ctx, "10A")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Empty(t, students[0].Name)

	w = c.postForm("/update/"+students[0].ID, url.Values{"name": {""}, "email": {"a@x.io"}, "phone": {""}})
	assert.Contains(t, c.follow(w, "/search").Body.String(), "Student updated successfully!")

	st, found, err := srv.handler.Directory.GetStudent(ctx, students[0].ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a@x.io", st.Email)
}

func TestSearch(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	ctx := context.Background()
	require.NoError(t, srv.handler.Directory.AddDivision(ctx, "10A"))
	_, err := srv.handler.Directory.AddStudent(ctx, "10A", "Ann", "", "")
	require.NoError(t, err)
	_, err = srv.handler.Directory.AddStudent(ctx, "10A", "Bob", "", "")
	require.NoError(t, err)

	w := c.get("/search?query=ANN")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ann")
	assert.NotContains(t, w.Body.String(), "Bob")

	all := c.get("/search")
	assert.Contains(t, all.Body.String(), "Ann")
	assert.Contains(t, all.Body.String(), "Bob")
}

func TestExport(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	ctx := context.Background()
	require.NoError(t, srv.handler.Directory.AddDivision(ctx, "10A"))
	require.NoError(t, srv.handler.Directory.AddDivision(ctx, "10B"))
	_, err := srv.handler.Directory.AddStudent(ctx, "10A", "Ann", "ann@x.io", "555")
	require.NoError(t, err)
	_, err = srv.handler.Directory.AddStudent(ctx, "10B", "Bob", "bob@x.io", "556")
	require.NoError(t, err)

	tests := []struct {
		path     string
		filename string
		names    []string
	}{
		{"/export/10A", "10A_students.xlsx", []string{"Ann"}},
		{"/export/all_students", "All_Students.xlsx", []string{"Ann", "Bob"}},
		{"/export/empty", "empty_students.xlsx", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := c.get(tt.path)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
			assert.Contains(t, w.Header().Get("Content-Disposition"), tt.filename)

			rows, err := export.ReadStudents(bytes.NewReader(w.Body.Bytes()))
			require.NoError(t, err)
			var names []string
			for _, st := range rows {
				names = append(names, st.Name)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestExport_StoreFailure(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	require.NoError(t, os.WriteFile(srv.dataFile, []byte("{not json"), 0o644))

	w := c.get("/export/10A")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An error occurred while exporting the file.", w.Body.String())
}

func TestHome_StoreFailure(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	require.NoError(t, os.WriteFile(srv.dataFile, []byte("{not json"), 0o644))

	w := c.get("/")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
}

func uploadRequest(t *testing.T, path string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "students.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImport(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	ctx := context.Background()
	require.NoError(t, srv.handler.Directory.AddDivision(ctx, "10A"))

	workbook, err := export.StudentsWorkbook([]models.Student{
		{ID: "stu00001", Name: "Ann", Email: "ann@x.io", Phone: "555", Division: "old"},
		{ID: "stu00002", Name: "Bob", Email: "bob@x.io", Phone: "556", Division: "old"},
	})
	require.NoError(t, err)

	w := c.do(uploadRequest(t, "/import/10A", workbook))
	assert.Contains(t, c.follow(w, "/choose_division/10A").Body.String(), "Imported 2 students!")

	students, err := srv.handler.Directory.Students(ctx, "10A")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Ann", students[0].Name)
	assert.Equal(t, "Bob", students[1].Name)
	assert.Regexp(t, `^stu[0-9a-f]{5}$`, students[0].ID)
}

func TestImport_BadInput(t *testing.T) {
	srv := setupServer(t)
	c := srv.loggedIn(t)
	require.NoError(t, srv.handler.Directory.AddDivision(context.Background(), "10A"))

	w := c.postForm("/import/10A", nil)
	assert.Contains(t, c.follow(w, "/choose_division/10A").Body.String(), "No file uploaded!")

	w = c.do(uploadRequest(t, "/import/10A", []byte("not a workbook")))
	assert.Contains(t, c.follow(w, "/choose_division/10A").Body.String(), "Could not read the uploaded file!")

	workbook, err := export.StudentsWorkbook(nil)
	require.NoError(t, err)
	w = c.do(uploadRequest(t, "/import/nope", workbook))
	assert.Contains(t, c.follow(w, "/").Body.String(), "does not exist!")
}
