package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"adloader/internal/ads"
	"adloader/internal/content"
	"adloader/internal/store"
	"adloader/pkg/logger"
)

type resolveRequest struct {
	Experience *content.Experience  `json:"experience"`
	Campaign   string               `json:"campaign"`
	Categories []string             `json:"categories"`
	Params     content.RenderParams `json:"params"`
}

func handleGetExperience(st store.Store, loader *ads.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		exp, err := st.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				errorJSON(w, http.StatusNotFound, "experience not found")
				return
			}
			zerolog.Ctx(r.Context()).Error().Err(err).Str("experience", id).Msg("load experience")
			errorJSON(w, http.StatusInternalServerError, "failed to load experience")
			return
		}
		q := r.URL.Query()
		exp.Params = renderParams(r)
		writeJSON(w, http.StatusOK, resolve(r.Context(), loader, exp, splitCategories(q["categories"]), q.Get("campaign")))
	}
}

func handleResolve(loader *ads.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Experience == nil || req.Experience.ID == "" {
			errorJSON(w, http.StatusBadRequest, "experience with id is required")
			return
		}
		req.Experience.Params = req.Params
		writeJSON(w, http.StatusOK, resolve(r.Context(), loader, req.Experience, req.Categories, req.Campaign))
	}
}

func handleGetCard(loader *ads.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		params := renderParams(r)
		card, err := loader.GetCard(r.Context(), id, params.Query(), logger.TraceID(r.Context()))
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("card", id).Msg("card lookup failed")
			errorJSON(w, http.StatusBadGateway, "card lookup failed")
			return
		}
		if card == nil {
			errorJSON(w, http.StatusNotFound, "card not found")
			return
		}
		exp := &content.Experience{Params: params}
		ads.AddTrackingPixels(ads.TrackingPixels(loader.Config().PixelURL, exp, card), card)
		writeJSON(w, http.StatusOK, card)
	}
}

// resolve fills the sponsored slots of exp and applies tracking pixels. When
// resolution fails exp is served without its placeholders.
func resolve(ctx context.Context, loader *ads.Loader, exp *content.Experience, categories []string, campaign string) *content.Experience {
	out, err := loader.LoadAds(ctx, exp, categories, campaign, logger.TraceID(ctx))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("experience", exp.ID).
			Str("campaign", campaign).
			Msg("ad resolution failed, serving without placeholders")
		out = ads.RemovePlaceholders(exp)
	}
	return ads.ApplyPixels(loader.Config().PixelURL, out)
}

func renderParams(r *http.Request) content.RenderParams {
	q := r.URL.Query()
	preview, _ := strconv.ParseBool(q.Get("preview"))
	return content.RenderParams{
		Container: q.Get("container"),
		HostApp:   q.Get("hostApp"),
		Network:   q.Get("network"),
		PageURL:   q.Get("pageUrl"),
		Preview:   preview,
	}
}

// splitCategories accepts repeated and comma separated values. An absent
// parameter is nil so the experience's own categories apply.
func splitCategories(raw []string) []string {
	if raw == nil {
		return nil
	}
	out := []string{}
	for _, v := range raw {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}
