package handlers

import (
	"github.com/gin-gonic/gin"
)

// Options tweaks router construction
type Options struct {
	// DisableRequestLogs drops the gin request logger, mostly for tests
	DisableRequestLogs bool
}

// NewRouter wires every route onto a new gin engine
func NewRouter(h *Handler, opts Options) (*gin.Engine, error) {
	tmpl, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	if !opts.DisableRequestLogs {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(tmpl)
	router.MaxMultipartMemory = 8 << 20
	// Division names may contain escaped slashes
	router.UseRawPath = true
	router.UnescapePathValues = true

	router.GET("/ping", PingHandler)

	router.Use(h.LoadSession())

	router.GET("/register", h.RegisterForm)
	router.POST("/register", h.Register)
	router.GET("/login", h.LoginForm)
	router.POST("/login", h.Login)
	router.GET("/logout", h.Logout)

	app := router.Group("", h.RequireAuth())
	{
		app.GET("/", h.Home)
		app.GET("/search", h.Search)

		app.POST("/add_division", h.AddDivision)
		app.POST("/delete_division/:division_name", h.DeleteDivision)
		app.GET("/choose_division/:division_name", h.ChooseDivision)

		app.GET("/add_student/:division_name", h.AddStudentForm)
		app.POST("/add_student/:division_name", h.AddStudent)
		app.GET("/update/:student_id", h.UpdateStudentForm)
		app.POST("/update/:student_id", h.UpdateStudent)
		app.POST("/delete_student/:division_name/:student_id", h.DeleteStudent)

		app.GET("/export/:division_name", h.Export)
		app.POST("/import/:division_name", h.Import)
	}

	return router, nil
}
