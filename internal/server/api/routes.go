package api

import (
	"fmt"
	"net/http"
)

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/conversations", s.listConversations)
	api.HandleFunc("POST /api/conversations", s.createConversation)
	api.HandleFunc("GET /api/conversations/{id}", s.getConversation)
	api.HandleFunc("PATCH /api/conversations/{id}", s.updateConversation)
	api.HandleFunc("PUT /api/conversations/{id}", s.updateConversation)
	api.HandleFunc("DELETE /api/conversations/{id}", s.deleteConversation)

	api.HandleFunc("GET /api/conversations/{id}/messages", s.listMessages)
	api.HandleFunc("POST /api/conversations/{id}/messages", s.sendMessage)
	api.HandleFunc("POST /api/conversations/{id}/regenerate", s.regenerate)
	api.HandleFunc("POST /api/conversations/{id}/handoff", s.handoff)

	api.HandleFunc("POST /api/conversations/{id}/archive", s.archiveConversation)
	api.HandleFunc("POST /api/conversations/{id}/restore", s.restoreConversation)
	api.HandleFunc("POST /api/conversations/{id}/pin", s.pinConversation)
	api.HandleFunc("PUT /api/conversations/{id}/pin", s.pinConversation)

	api.HandleFunc("POST /api/conversations/{id}/images", s.uploadImage)
	api.HandleFunc("POST /api/conversations/{id}/files", s.uploadFile)

	api.HandleFunc("POST /api/conversations/{id}/export", s.exportConversation)
	api.HandleFunc("GET /api/conversations/{id}/export", s.downloadConversation)
	api.HandleFunc("GET /api/exports/{key...}", s.downloadExport)

	api.HandleFunc("PUT /api/messages/{id}/annotation", s.annotate)
	api.HandleFunc("DELETE /api/messages/{id}/annotation", s.unannotate)

	api.HandleFunc("GET /api/search", s.search)
	api.HandleFunc("GET /api/gossip", s.gossipFeed)
	api.HandleFunc("POST /api/gossip/water-cooler", s.triggerWaterCooler)
	api.HandleFunc("POST /api/summarize", s.triggerSummaries)
	api.HandleFunc("GET /api/model", s.modelStatus)
	api.HandleFunc("POST /api/tts", s.speech)

	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorString(w, http.StatusNotFound, "Not found")
	})

	root := http.NewServeMux()
	root.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	root.HandleFunc("POST /api/auth/login", s.login)
	// uploads are addressed by random ids and served without a token so
	// they can be embedded directly
	root.HandleFunc("GET /api/images/{id}", s.serveImage)
	root.HandleFunc("GET /api/files/{id}", s.serveFile)
	root.Handle("/api/", s.requireAuth(api))

	return s.logRequests(root)
}
