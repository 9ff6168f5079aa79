package api

import (
	"net/http"
	"strconv"

	"github.com/njarm23/ClaudeMemories/internal/server/archive"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
)

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("include_archived"))
	convs, err := s.deps.Conversations.List(r.Context(), includeArchived)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var in models.ConversationPatch
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.deps.Conversations.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Conversations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) updateConversation(w http.ResponseWriter, r *http.Request) {
	var in services.ConversationUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Conversations.Update(r.Context(), r.PathValue("id"), in); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Conversations.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Conversations.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handoff(w http.ResponseWriter, r *http.Request) {
	h, err := s.deps.Handoff.Generate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type archiveResponse struct {
	OK bool `json:"ok"`
	*archive.Result
}

func (s *Server) archiveConversation(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Archive.Archive(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{OK: true, Result: res})
}

func (s *Server) restoreConversation(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Archive.Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{OK: true, Result: res})
}

func (s *Server) pinConversation(w http.ResponseWriter, r *http.Request) {
	in := struct {
		Pinned *bool `json:"pinned"`
	}{}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	pinned := in.Pinned == nil || *in.Pinned
	if err := s.deps.Conversations.SetPinned(r.Context(), r.PathValue("id"), pinned); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK     bool `json:"ok"`
		Pinned bool `json:"pinned"`
	}{OK: true, Pinned: pinned})
}

func (s *Server) annotate(w http.ResponseWriter, r *http.Request) {
	in := struct {
		Type  string  `json:"type"`
		Label *string `json:"label"`
	}{}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.deps.Conversations.Annotate(r.Context(), r.PathValue("id"), in.Type, in.Label)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) unannotate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Conversations.Unannotate(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.deps.Conversations.Search(r.Context(), q.Get("q"), q.Get("conversation_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
