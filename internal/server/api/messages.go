package api

import (
	"net/http"

	"github.com/njarm23/ClaudeMemories/internal/server/chat"
)

type sendRequest struct {
	Content  string   `json:"content"`
	ParentID string   `json:"parent_message_id"`
	ImageIDs []string `json:"image_ids"`
	FileIDs  []string `json:"file_ids"`
}

// sendMessage stores the user turn and streams the assistant reply.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in sendRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, _, err := s.deps.Chat.Send(r.Context(), chat.SendInput{
		ConversationID: r.PathValue("id"),
		Content:        in.Content,
		ParentID:       in.ParentID,
		ImageIDs:       in.ImageIDs,
		FileIDs:        in.FileIDs,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.streamSession(w, r, sess)
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	in := struct {
		MessageID string `json:"message_id"`
	}{}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.deps.Chat.Regenerate(r.Context(), r.PathValue("id"), in.MessageID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.streamSession(w, r, sess)
}
