package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"inmoelegance/internal/core"
	"inmoelegance/pkg/domain"
)

const maxFormMemory = 32 << 20

var dashboardFlashes = map[string]string{
	"creada":      "Propiedad creada.",
	"actualizada": "Propiedad actualizada.",
	"eliminada":   "Propiedad eliminada.",
	"estado":      "Estado actualizado.",
}

type dashboardData struct {
	Items      []core.Property
	Stats      core.DashboardStats
	Filter     url.Values
	Types      []domain.PropertyType
	Operations []domain.Operation
	Statuses   []domain.PropertyStatus
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filter, err := core.ParseDashboardFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.opts.Service.FilterDashboard(r.Context(), adminID(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.opts.Service.DashboardStats(r.Context(), adminID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := h.newView(r, "Panel de Administración", dashboardData{
		Items:      items,
		Stats:      stats,
		Filter:     r.URL.Query(),
		Types:      domain.PropertyTypes,
		Operations: domain.Operations,
		Statuses:   []domain.PropertyStatus{domain.StatusPublished, domain.StatusUnpublished},
	})
	v.Flash = dashboardFlashes[r.URL.Query().Get("ok")]
	h.render(w, r, http.StatusOK, "dashboard", v)
}

type propertyForm struct {
	Action     string
	Editing    bool
	Property   core.Property
	Types      []domain.PropertyType
	Operations []domain.Operation
	Uploads    bool
}

func (h *Handler) formView(r *http.Request, action string, p core.Property) view {
	title := "Nueva Propiedad"
	if p.ID != "" {
		title = "Editar Propiedad"
	}
	return h.newView(r, title, propertyForm{
		Action:     action,
		Editing:    p.ID != "",
		Property:   p,
		Types:      domain.PropertyTypes,
		Operations: domain.Operations,
		Uploads:    h.opts.Images != nil,
	})
}

func (h *Handler) handleNewProperty(w http.ResponseWriter, r *http.Request) {
	p := core.Property{Status: domain.StatusPublished, Currency: domain.DefaultCurrency}
	h.render(w, r, http.StatusOK, "property_form", h.formView(r, "/dashboard/nueva-propiedad", p))
}

func (h *Handler) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	const action = "/dashboard/nueva-propiedad"
	p, problems := h.readPropertyForm(r)
	if len(problems) > 0 {
		v := h.formView(r, action, p)
		v.Errors = problems
		h.render(w, r, http.StatusBadRequest, "property_form", v)
		return
	}
	h.saveListing(w, r, action, p, func(next core.Property) error {
		_, _, err := h.opts.Service.CreateProperty(r.Context(), adminID(r), next)
		return err
	}, "/dashboard?ok=creada")
}

// ownedProperty loads a listing and checks that the session admin owns it.
func (h *Handler) ownedProperty(r *http.Request) (core.Property, error) {
	p, err := h.opts.Service.GetProperty(r.Context(), r.PathValue("id"))
	if err != nil {
		return core.Property{}, err
	}
	if p.AdminID != adminID(r) {
		return core.Property{}, core.ErrForbidden
	}
	return p, nil
}

func (h *Handler) handleEditProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.ownedProperty(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "property_form", h.formView(r, "/dashboard/editar/"+p.ID, p))
}

func (h *Handler) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	current, err := h.ownedProperty(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	action := "/dashboard/editar/" + current.ID
	p, problems := h.readPropertyForm(r)
	p.ID = current.ID
	if len(problems) > 0 {
		v := h.formView(r, action, p)
		v.Errors = problems
		h.render(w, r, http.StatusBadRequest, "property_form", v)
		return
	}
	h.saveListing(w, r, action, p, func(next core.Property) error {
		_, _, err := h.opts.Service.UpdateProperty(r.Context(), adminID(r), current.ID, next)
		return err
	}, "/dashboard?ok=actualizada")
}

// saveListing hosts the images attached to a parsed listing form and stores
// the listing with save. Images uploaded by the request are removed again
// when the listing is not saved.
func (h *Handler) saveListing(w http.ResponseWriter, r *http.Request, action string, entered core.Property, save func(core.Property) error, done string) {
	next := entered
	uploaded, problems := h.attachUploads(r, &next)
	if len(problems) > 0 {
		h.discardUploads(r, uploaded)
		v := h.formView(r, action, entered)
		v.Errors = problems
		h.render(w, r, http.StatusBadRequest, "property_form", v)
		return
	}
	err := save(next)
	if err != nil {
		h.discardUploads(r, uploaded)
	}
	if msgs := violations(err); msgs != nil {
		v := h.formView(r, action, entered)
		v.Errors = msgs
		h.render(w, r, http.StatusUnprocessableEntity, "property_form", v)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	redirect(w, r, done)
}

// attachUploads hosts the files posted as "uploads" and appends their URLs to
// p. It returns the URLs it uploaded along with any problems.
func (h *Handler) attachUploads(r *http.Request, p *core.Property) ([]string, []string) {
	if r.MultipartForm == nil || len(r.MultipartForm.File["uploads"]) == 0 {
		return nil, nil
	}
	if h.opts.Images == nil {
		return nil, []string{"La subida de imágenes no está configurada."}
	}
	var uploaded, problems []string
	for _, header := range r.MultipartForm.File["uploads"] {
		file, err := header.Open()
		if err != nil {
			problems = append(problems, fmt.Sprintf("No se pudo leer %s.", header.Filename))
			continue
		}
		image, err := h.opts.Images.Upload(r.Context(), adminID(r), header.Filename, file)
		_ = file.Close()
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", header.Filename, err))
			continue
		}
		uploaded = append(uploaded, image.URL)
	}
	p.Images = append(append([]string(nil), p.Images...), uploaded...)
	return uploaded, problems
}

func (h *Handler) discardUploads(r *http.Request, urls []string) {
	for _, u := range urls {
		if err := h.opts.Images.Delete(context.WithoutCancel(r.Context()), adminID(r), u); err != nil {
			h.logger.Warn("discard upload failed", zap.String("url", u), zap.Error(err))
		}
	}
}

func (h *Handler) handleToggleProperty(w http.ResponseWriter, r *http.Request) {
	if _, _, err := h.opts.Service.TogglePropertyStatus(r.Context(), adminID(r), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	redirect(w, r, "/dashboard?ok=estado")
}

func (h *Handler) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	if _, err := h.opts.Service.DeleteProperty(r.Context(), adminID(r), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	redirect(w, r, "/dashboard?ok=eliminada")
}

// readPropertyForm decodes the listing form. It returns the listing as
// entered along with parse problems; attached files are left to saveListing.
func (h *Handler) readPropertyForm(r *http.Request) (core.Property, []string) {
	if err := parseForm(r); err != nil {
		return core.Property{}, []string{"Formulario inválido."}
	}
	f := formReader{values: r.PostForm}
	p := core.Property{
		Title:       f.text("title"),
		Type:        domain.PropertyType(f.text("type")),
		Operation:   domain.Operation(f.text("operation")),
		Location:    f.text("location"),
		Address:     f.text("address"),
		Price:       f.number("price", "Precio"),
		Currency:    f.text("currency"),
		Featured:    f.flag("featured"),
		Images:      splitList(f.values.Get("images"), "\n"),
		Bedrooms:    f.integer("bedrooms", "Dormitorios"),
		Bathrooms:   f.integer("bathrooms", "Baños"),
		Area:        f.number("area", "Superficie"),
		Garage:      f.flag("garage"),
		Floor:       f.text("floor"),
		Year:        f.integer("year", "Año"),
		Orientation: f.text("orientation"),
		Expenses:    f.number("expenses", "Gastos comunes"),
		PetsAllowed: f.flag("pets_allowed"),
		Furnished:   f.flag("furnished"),
		MaxTenants:  f.integer("max_tenants", "Máx. ocupantes"),
		Description: f.values.Get("description"),
		Features:    splitList(f.values.Get("features"), ","),
		Rating:      f.number("rating", "Valoración"),
		Status:      domain.PropertyStatus(f.text("status")),
	}
	return p, f.problems
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}

// formReader collects conversion problems while reading form values.
type formReader struct {
	values   url.Values
	problems []string
}

func (f *formReader) text(key string) string { return strings.TrimSpace(f.values.Get(key)) }

func (f *formReader) flag(key string) bool {
	switch f.text(key) {
	case "on", "true", "1":
		return true
	}
	return false
}

func (f *formReader) integer(key, label string) int {
	raw := f.text(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f.problems = append(f.problems, label+" debe ser un número entero.")
	}
	return n
}

func (f *formReader) number(key, label string) float64 {
	raw := strings.ReplaceAll(f.text(key), ",", "")
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		f.problems = append(f.problems, label+" debe ser un número.")
	}
	return n
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type profileData struct {
	Profile core.Profile
	Exists  bool
	Uploads bool
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, exists, err := h.opts.Service.GetProfile(r.Context(), adminID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := h.newView(r, "Mi Perfil", profileData{Profile: profile, Exists: exists, Uploads: h.opts.Images != nil})
	if r.URL.Query().Get("guardado") == "1" {
		v.Flash = "Perfil guardado."
	}
	h.render(w, r, http.StatusOK, "profile", v)
}

func (h *Handler) handleProfileSave(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Formulario inválido.")
		return
	}
	f := formReader{values: r.PostForm}
	input := core.Profile{
		DisplayName: f.text("display_name"),
		NumberPhone: f.text("number_phone"),
		Email:       f.text("email"),
		PhotoURL:    f.text("photo_url"),
	}
	var uploaded string
	if r.MultipartForm != nil && h.opts.Images != nil {
		if headers := r.MultipartForm.File["photo"]; len(headers) > 0 {
			file, err := headers[0].Open()
			if err == nil {
				image, upErr := h.opts.Images.Upload(r.Context(), adminID(r), headers[0].Filename, file)
				_ = file.Close()
				err = upErr
				if err == nil {
					input.PhotoURL = image.URL
					uploaded = image.URL
				}
			}
			if err != nil {
				v := h.newView(r, "Mi Perfil", profileData{Profile: input, Uploads: true})
				v.Errors = []string{"No se pudo subir la foto: " + err.Error()}
				h.render(w, r, http.StatusUnprocessableEntity, "profile", v)
				return
			}
		}
	}
	if _, _, err := h.opts.Service.SaveProfile(r.Context(), adminID(r), input); err != nil {
		if uploaded != "" {
			h.discardUploads(r, []string{uploaded})
		}
		h.fail(w, r, err)
		return
	}
	redirect(w, r, "/dashboard/perfil?guardado=1")
}

func (h *Handler) handleLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := h.opts.Service.ListLeads(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "leads", h.newView(r, "Consultas", map[string]any{"Leads": leads}))
}

func (h *Handler) handleLeadDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.opts.Service.DeleteLead(r.Context(), adminID(r), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	redirect(w, r, "/dashboard/consultas")
}
