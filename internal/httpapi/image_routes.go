package httpapi

import (
	"net/http"
	"strings"

	"mediaflow/internal/media"
	"mediaflow/internal/model"
)

func (s *server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.handleMultipartReadError(w, r, "image", err)
		return
	}
	defer cleanupMultipartForm(r)

	form, ok := s.readImageForm(w, r)
	if !ok {
		return
	}
	fh, err := upload(r, "image")
	if err != nil {
		s.handleMultipartReadError(w, r, "image", err)
		return
	}
	img, err := s.normalizeUpload(fh)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	s.writeOutcome(w, s.generator.AnalyzeImages(r.Context(), form.Prompt, []*media.Image{img}, form.Temperature))
}

func (s *server) handleAnalyzeMultiple(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.handleMultipartReadError(w, r, "images", err)
		return
	}
	defer cleanupMultipartForm(r)

	form, ok := s.readImageForm(w, r)
	if !ok {
		return
	}
	files := uploads(r, "images")
	if len(files) == 0 {
		s.handleMultipartReadError(w, r, "images", errMissingUpload)
		return
	}
	images := make([]*media.Image, 0, len(files))
	for _, fh := range files {
		img, err := s.normalizeUpload(fh)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		images = append(images, img)
	}
	s.writeOutcome(w, s.generator.AnalyzeImages(r.Context(), form.Prompt, images, form.Temperature))
}

func (s *server) handleCompareImages(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.handleMultipartReadError(w, r, "image1", err)
		return
	}
	defer cleanupMultipartForm(r)

	temperature, err := floatField(r, "temperature", s.cfg.DefaultTemperature)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	form := model.CompareForm{Prompt: strings.TrimSpace(r.FormValue("prompt")), Temperature: temperature}
	if !s.validateRequest(w, r, &form) {
		return
	}

	var pair [2]*media.Image
	for i, field := range []string{"image1", "image2"} {
		fh, err := upload(r, field)
		if err != nil {
			s.handleMultipartReadError(w, r, field, err)
			return
		}
		if pair[i], err = s.normalizeUpload(fh); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
	}
	s.writeOutcome(w, s.generator.CompareImages(r.Context(), pair[0], pair[1], form.Prompt, form.Temperature))
}

func (s *server) readImageForm(w http.ResponseWriter, r *http.Request) (model.ImageForm, bool) {
	temperature, err := floatField(r, "temperature", s.cfg.DefaultTemperature)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return model.ImageForm{}, false
	}
	form := model.ImageForm{Prompt: strings.TrimSpace(r.FormValue("prompt")), Temperature: temperature}
	return form, s.validateRequest(w, r, &form)
}
