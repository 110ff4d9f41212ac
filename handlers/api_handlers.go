package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollbook-server-go/auth"
	"rollbook-server-go/directory"
	"rollbook-server-go/export"
	"rollbook-server-go/models"
)

// allStudentsDivision is the reserved export name covering every division
const allStudentsDivision = "all_students"

type divisionForm struct {
	DivisionName string `form:"division_name" binding:"required"`
}

type studentForm struct {
	Name  string `form:"name"`
	Email string `form:"email"`
	Phone string `form:"phone"`
}

type divisionSummary struct {
	Name  string
	Count int
}

// --- Division Handlers ---

// Home handles GET /
func (h *Handler) Home(c *gin.Context) {
	dir, err := h.Directory.Directory(c.Request.Context())
	if err != nil {
		h.serverError(c, "Error loading directory", err)
		return
	}
	divisions := make([]divisionSummary, 0, len(dir.Divisions))
	for _, name := range dir.Names() {
		divisions = append(divisions, divisionSummary{Name: name, Count: len(dir.Divisions[name])})
	}
	h.render(c, http.StatusOK, "home.html", gin.H{"divisions": divisions})
}

// AddDivision handles POST /add_division
func (h *Handler) AddDivision(c *gin.Context) {
	var form divisionForm
	if err := c.ShouldBind(&form); err != nil {
		h.redirectFlash(c, "/", auth.FlashError, "Division name is required!")
		return
	}

	err := h.Directory.AddDivision(c.Request.Context(), form.DivisionName)
	switch {
	case errors.Is(err, directory.ErrDivisionExists):
		h.redirectFlash(c, "/", auth.FlashError, fmt.Sprintf("Division %q already exists!", form.DivisionName))
	case err != nil:
		h.serverError(c, "Error adding division", err)
	default:
		h.redirectFlash(c, "/", auth.FlashSuccess, fmt.Sprintf("Division %q added successfully!", form.DivisionName))
	}
}

// DeleteDivision handles POST /delete_division/:division_name
func (h *Handler) DeleteDivision(c *gin.Context) {
	division := c.Param("division_name")

	err := h.Directory.DeleteDivision(c.Request.Context(), division)
	switch {
	case errors.Is(err, directory.ErrDivisionNotFound):
		h.redirectFlash(c, "/", auth.FlashError, fmt.Sprintf("Division %q does not exist!", division))
	case err != nil:
		h.serverError(c, "Error deleting division", err)
	default:
		h.redirectFlash(c, "/", auth.FlashSuccess, fmt.Sprintf("Division %q deleted successfully!", division))
	}
}

// ChooseDivision handles GET /choose_division/:division_name
func (h *Handler) ChooseDivision(c *gin.Context) {
	division := c.Param("division_name")

	students, err := h.Directory.Students(c.Request.Context(), division)
	if err != nil {
		h.serverError(c, "Error loading students", err)
		return
	}
	h.render(c, http.StatusOK, "display_students.html", gin.H{
		"division_name": division,
		"students":      students,
	})
}

// Search handles GET /search?query=
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("query")

	students, err := h.Directory.Search(c.Request.Context(), query)
	if err != nil {
		h.serverError(c, "Error searching students", err)
		return
	}
	h.render(c, http.StatusOK, "search_results.html", gin.H{
		"query":    query,
		"students": students,
	})
}

// --- Student Handlers ---

// AddStudentForm handles GET /add_student/:division_name
func (h *Handler) AddStudentForm(c *gin.Context) {
	h.render(c, http.StatusOK, "add_student.html", gin.H{"division_name": c.Param("division_name")})
}

// AddStudent handles POST /add_student/:division_name
func (h *Handler) AddStudent(c *gin.Context) {
	division := c.Param("division_name")

	var form studentForm
	if err := c.ShouldBind(&form); err != nil {
		h.redirectFlash(c, "/add_student/"+pathSegment(division), auth.FlashError, "Invalid student form!")
		return
	}

	st, err := h.Directory.AddStudent(c.Request.Context(), division, form.Name, form.Email, form.Phone)
	switch {
	case errors.Is(err, directory.ErrDivisionNotFound):
		h.redirectFlash(c, "/", auth.FlashError, fmt.Sprintf("Division %q does not exist!", division))
	case err != nil:
		h.serverError(c, "Error adding student", err)
	default:
		slog.Info("student added", "id", st.ID, "division", division)
		h.redirectFlash(c, divisionPath(division), auth.FlashSuccess, "Student added successfully!")
	}
}

// UpdateStudentForm handles GET /update/:student_id
func (h *Handler) UpdateStudentForm(c *gin.Context) {
	st, found, err := h.Directory.GetStudent(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		h.serverError(c, "Error loading student", err)
		return
	}
	if !found {
		h.redirectFlash(c, "/search", auth.FlashError, "Student not found!")
		return
	}
	h.render(c, http.StatusOK, "update_student.html", gin.H{"student": st})
}

// UpdateStudent handles POST /update/:student_id
func (h *Handler) UpdateStudent(c *gin.Context) {
	id := c.Param("student_id")

	var form studentForm
	if err := c.ShouldBind(&form); err != nil {
		h.redirectFlash(c, "/update/"+pathSegment(id), auth.FlashError, "Invalid student form!")
		return
	}

	_, err := h.Directory.UpdateStudent(c.Request.Context(), id, form.Name, form.Email, form.Phone)
	switch {
	case errors.Is(err, directory.ErrStudentNotFound):
		h.redirectFlash(c, "/search", auth.FlashError, "Student not found!")
	case err != nil:
		h.serverError(c, "Error updating student", err)
	default:
		h.redirectFlash(c, "/search", auth.FlashSuccess, "Student updated successfully!")
	}
}

// DeleteStudent handles POST /delete_student/:division_name/:student_id
func (h *Handler) DeleteStudent(c *gin.Context) {
	division := c.Param("division_name")
	id := c.Param("student_id")

	err := h.Directory.DeleteStudent(c.Request.Context(), division, id)
	switch {
	case errors.Is(err, directory.ErrDivisionNotFound):
		h.redirectFlash(c, "/", auth.FlashError, fmt.Sprintf("Division %q does not exist!", division))
	case err != nil:
		h.serverError(c, "Error deleting student", err)
	default:
		h.redirectFlash(c, divisionPath(division), auth.FlashSuccess, "Student deleted successfully!")
	}
}

// --- Export / Import Handlers ---

const exportFailedMessage = "An error occurred while exporting the file."

// Export handles GET /export/:division_name. The reserved name all_students
// exports every division.
func (h *Handler) Export(c *gin.Context) {
	division := c.Param("division_name")

	var (
		students []models.Student
		filename string
		err      error
	)
	if division == allStudentsDivision {
		students, err = h.Directory.AllStudents(c.Request.Context())
		filename = export.AllStudentsFilename
	} else {
		students, err = h.Directory.Students(c.Request.Context(), division)
		filename = export.DivisionFilename(division)
	}
	if err != nil {
		slog.Error("Error loading students for export", "division", division, "error", err)
		c.String(http.StatusInternalServerError, exportFailedMessage)
		return
	}

	data, err := export.StudentsWorkbook(students)
	if err != nil {
		slog.Error("Error building workbook", "division", division, "error", err)
		c.String(http.StatusInternalServerError, exportFailedMessage)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, export.ContentType, data)
}

// Import handles POST /import/:division_name with a multipart "file" field
func (h *Handler) Import(c *gin.Context) {
	division := c.Param("division_name")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.redirectFlash(c, divisionPath(division), auth.FlashError, "No file uploaded!")
		return
	}
	defer file.Close()

	slog.Info("received student import", "file", header.Filename, "division", division)

	students, err := export.ReadStudents(file)
	if err != nil {
		slog.Error("Error reading import file", "file", header.Filename, "error", err)
		h.redirectFlash(c, divisionPath(division), auth.FlashError, "Could not read the uploaded file!")
		return
	}

	count, err := h.Directory.ImportStudents(c.Request.Context(), division, students)
	switch {
	case errors.Is(err, directory.ErrDivisionNotFound):
		h.redirectFlash(c, "/", auth.FlashError, fmt.Sprintf("Division %q does not exist!", division))
	case err != nil:
		h.serverError(c, "Error importing students", err)
	default:
		h.redirectFlash(c, divisionPath(division), auth.FlashSuccess, fmt.Sprintf("Imported %d students!", count))
	}
}
