package httptransport

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	accountModel "cloudgate/internal/account/models"
	"cloudgate/internal/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page is the data every template receives. Message is an already
// localized string; templates never see raw error values.
type Page struct {
	Lang         string
	Title        string
	T            map[string]string
	Message      string
	Form         map[string]string
	Profile      *accountModel.Profile
	Principal    *principalView
	Confirmation *confirmationView
}

type confirmationView struct {
	Error            string
	ErrorCode        string
	ErrorDescription string
	UUID             string
}

// Renderer executes the embedded page templates with localized strings.
type Renderer struct {
	templates *template.Template
	catalog   *i18n.Catalog
	logger    *slog.Logger
}

// NewRenderer parses the embedded templates.
func NewRenderer(catalog *i18n.Catalog, logger *slog.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl, catalog: catalog, logger: logger}, nil
}

// page starts a Page for lang with the catalog strings resolved.
func (rd *Renderer) page(lang, titleKey string) Page {
	set := rd.catalog.Set(lang)
	return Page{
		Lang:  set.Language,
		Title: rd.catalog.Message(lang, titleKey),
		T:     set.Messages,
	}
}

// errorMessage resolves an error key; the empty key means no message.
func (rd *Renderer) errorMessage(lang, key string) string {
	if key == "" {
		return ""
	}
	return rd.catalog.Error(lang, key)
}

// render buffers the template so a failing execution can still become a
// clean 500.
func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, status int, name string, p Page) {
	var buf bytes.Buffer
	if err := rd.templates.ExecuteTemplate(&buf, name, p); err != nil {
		rd.logger.ErrorContext(r.Context(), "failed to render template",
			"template", name,
			"error", err,
			"request_id", requestID(r),
		)
		rd.generalError(w, p.Lang)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// generalError writes the localized generic failure with a 500. Nothing
// from the underlying error is included.
func (rd *Renderer) generalError(w http.ResponseWriter, lang string) {
	rd.text(w, http.StatusInternalServerError, rd.catalog.Error(lang, i18n.GeneralError))
}

func (rd *Renderer) text(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
