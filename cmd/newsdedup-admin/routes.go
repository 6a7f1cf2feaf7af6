package main

import (
	"net/http"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
)

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *newsdedup.Engine) http.Handler {
	mux := http.NewServeMux()

	h := &handlers{engine: engine}

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/stats", h.handleStats)

	mux.HandleFunc("GET /api/feeds", h.handleFeedList)
	mux.HandleFunc("POST /api/feeds/import", h.handleFeedImport)
	mux.HandleFunc("POST /api/feeds/{feedID}/enable", h.handleFeedEnable)
	mux.HandleFunc("POST /api/feeds/{feedID}/disable", h.handleFeedDisable)
	mux.HandleFunc("DELETE /api/feeds/{feedID}", h.handleFeedDelete)

	mux.HandleFunc("GET /api/articles", h.handleArticleList)
	mux.HandleFunc("GET /api/articles/search", h.handleArticleSearch)
	mux.HandleFunc("GET /api/articles/{articleID}", h.handleArticleGet)

	mux.HandleFunc("GET /api/duplicates", h.handleDuplicateList)
	mux.HandleFunc("GET /api/clusters", h.handleClusterList)
	mux.HandleFunc("GET /api/clusters/{clusterID}/articles", h.handleClusterArticles)

	mux.HandleFunc("GET /api/alerts", h.handleAlertList)
	mux.HandleFunc("POST /api/alerts/{alertID}/resend", h.handleAlertResend)

	return mux
}
