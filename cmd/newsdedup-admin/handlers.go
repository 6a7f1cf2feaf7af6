package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
)

type handlers struct {
	engine *newsdedup.Engine
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID parses a numeric path parameter; 0 means absent or invalid.
func pathID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// limitOffset reads pagination query parameters with sane bounds.
func limitOffset(r *http.Request) (int, int) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) handleFeedList(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.engine.ListFeeds()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, feeds)
}

func (h *handlers) handleFeedImport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	count, err := h.engine.ImportFeeds(body.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (h *handlers) handleFeedEnable(w http.ResponseWriter, r *http.Request) {
	h.setFeedEnabled(w, r, true)
}

func (h *handlers) handleFeedDisable(w http.ResponseWriter, r *http.Request) {
	h.setFeedEnabled(w, r, false)
}

func (h *handlers) setFeedEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	feedID := pathID(r, "feedID")
	if feedID == 0 {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return
	}
	if err := h.engine.SetFeedEnabled(feedID, enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": feedID, "enabled": enabled})
}

func (h *handlers) handleFeedDelete(w http.ResponseWriter, r *http.Request) {
	feedID := pathID(r, "feedID")
	if feedID == 0 {
		writeError(w, http.StatusBadRequest, "invalid feed id")
		return
	}
	if err := h.engine.DeleteFeed(feedID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleArticleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffset(r)
	articles, err := h.engine.ListArticles(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Omit bodies from listings
	for i := range articles {
		articles[i].Content = ""
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *handlers) handleArticleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit, _ := limitOffset(r)
	articles, err := h.engine.SearchArticles(query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range articles {
		articles[i].Content = ""
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *handlers) handleArticleGet(w http.ResponseWriter, r *http.Request) {
	articleID := pathID(r, "articleID")
	if articleID == 0 {
		writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	article, err := h.engine.GetArticle(articleID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, article)
}

func (h *handlers) handleDuplicateList(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffset(r)
	links, err := h.engine.ListDuplicates(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *handlers) handleClusterList(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffset(r)
	clusters, err := h.engine.ListClusters(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, clusters)
}

func (h *handlers) handleClusterArticles(w http.ResponseWriter, r *http.Request) {
	clusterID := pathID(r, "clusterID")
	if clusterID == 0 {
		writeError(w, http.StatusBadRequest, "invalid cluster id")
		return
	}
	articles, err := h.engine.GetClusterArticles(clusterID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range articles {
		articles[i].Content = ""
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *handlers) handleAlertList(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffset(r)
	alerts, err := h.engine.ListAlerts(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *handlers) handleAlertResend(w http.ResponseWriter, r *http.Request) {
	alertID := pathID(r, "alertID")
	if alertID == 0 {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	alert, err := h.engine.ResendAlert(r.Context(), alertID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
