package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	newsdedup "github.com/aakash-priyadarshi/news-duplication-system"
)

// JSON-RPC 2.0 types

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// server is the stdio inspection server.
type server struct {
	engine *newsdedup.Engine
	poller *poller // non-nil when --poll is enabled
}

func newServer(engine *newsdedup.Engine) *server {
	return &server{engine: engine}
}

// run starts the server, reading from stdin and writing to stdout.
func (s *server) run() error {
	log.SetOutput(os.Stderr)
	log.Printf("newsdedup-inspect starting")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		var req jsonRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("invalid json-rpc: %v", err)
			continue
		}

		// Notifications have no ID; don't respond
		if req.ID == nil || string(req.ID) == "null" {
			log.Printf("notification: %s", req.Method)
			continue
		}

		resp := s.handleRequest(req)
		respBytes, _ := json.Marshal(resp)
		fmt.Fprintf(os.Stdout, "%s\n", respBytes)
	}

	return scanner.Err()
}

func (s *server) handleRequest(req jsonRPCRequest) jsonRPCResponse {
	resp := jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case "stats":
		stats, err := s.engine.Stats()
		if err != nil {
			resp.Error = &rpcError{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = stats
	case "feeds_list":
		feeds, err := s.engine.ListFeeds()
		if err != nil {
			resp.Error = &rpcError{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = feeds
	case "articles_recent":
		resp = s.handleArticlesRecent(resp, req.Params)
	case "articles_search":
		resp = s.handleArticlesSearch(resp, req.Params)
	case "article_get":
		resp = s.handleArticleGet(resp, req.Params)
	case "duplicates_list":
		resp = s.handleDuplicatesList(resp, req.Params)
	case "clusters_list":
		resp = s.handleClustersList(resp, req.Params)
	case "alerts_list":
		resp = s.handleAlertsList(resp, req.Params)
	case "poll_now":
		resp = s.handlePollNow(resp)
	case "ping":
		resp.Result = map[string]any{}
	default:
		resp.Error = &rpcError{
			Code:    -32601,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}

	return resp
}

type pageParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func parsePage(params json.RawMessage) pageParams {
	page := pageParams{Limit: 20}
	if len(params) > 0 {
		json.Unmarshal(params, &page)
	}
	if page.Limit <= 0 {
		page.Limit = 20
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

func (s *server) handleArticlesRecent(resp jsonRPCResponse, params json.RawMessage) jsonRPCResponse {
	page := parsePage(params)
	articles, err := s.engine.ListArticles(page.Limit, page.Offset)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		return resp
	}
	for i := range articles {
		articles[i].Content = "" // omit bodies from listings
	}
	log.Printf("articles_recent: limit=%d -> %d results", page.Limit, len(articles))
	resp.Result = articles
	return resp
}

func (s *server) handleArticlesSearch(resp jsonRPCResponse, params json.RawMessage) jsonRPCResponse {
	var p struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Query == "" {
		resp.Error = &rpcError{Code: -32602, Message: "query parameter is required"}
		return resp
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	articles, err := s.engine.SearchArticles(p.Query, p.Limit)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		return resp
	}
	for i := range articles {
		articles[i].Content = ""
	}
	log.Printf("articles_search: %q -> %d results", p.Query, len(articles))
	resp.Result = articles
	return resp
}

func (s *server) handleArticleGet(resp jsonRPCResponse, params json.RawMessage) jsonRPCResponse {
	var p struct {
		ArticleID int64 `json:"article_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.ArticleID == 0 {
		resp.Error = &rpcError{Code: -32602, Message: "article_id parameter is required"}
		return resp
	}
	article, err := s.engine.GetArticle(p.ArticleID)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		return resp
	}
	log.Printf("article_get: id=%d", p.ArticleID)
	resp.Result = article
	return resp
}

func (s *server) handleDuplicatesList(resp jsonRPCResponse, params json.RawMessage) jsonRPCResponse {
	page := parsePage(params)
	links, err := s.engine.ListDuplicates(page.Limit, page.Offset)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		return resp
	}
	log.Printf("duplicates_list: %d results", len(links))
	resp.Result = links
	return resp
}

func (s *server) handleClustersList(resp jsonRPCResponse, params json.RawMessage) jsonRPCResponse {
	page := parsePage(params)
	clusters, err := s.engine.ListClusters(page.Limit, page.Offset)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		return resp
	}
	log.Printf("clusters_list: %d results", len(clusters))
	resp.Result = clusters
	return resp
}

func (s *server) handleAlertsList(resp jsonRPCResponse, params json.RawMessage) jsonRPCResponse {
	page := parsePage(params)
	alerts, err := s.engine.ListAlerts(page.Limit, page.Offset)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		return resp
	}
	log.Printf("alerts_list: %d results", len(alerts))
	resp.Result = alerts
	return resp
}

func (s *server) handlePollNow(resp jsonRPCResponse) jsonRPCResponse {
	if s.poller == nil {
		resp.Error = &rpcError{Code: -32000, Message: "polling is not enabled (start with --poll)"}
		return resp
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fetch, dedup, err := s.poller.poll(ctx)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: fmt.Sprintf("poll failed: %v", err)}
		return resp
	}

	resp.Result = map[string]any{
		"fetch": fetch,
		"dedup": dedup,
	}
	return resp
}
