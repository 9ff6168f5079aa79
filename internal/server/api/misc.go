package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/services"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	in := struct {
		Password string `json:"password"`
	}{}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.deps.Auth.Login(r.Context(), in.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) exportConversation(w http.ResponseWriter, r *http.Request) {
	in := struct {
		Format string `json:"format"`
	}{}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	stored, err := s.deps.Exporter.Export(r.Context(), r.PathValue("id"), in.Format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) downloadConversation(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Exporter.Render(r.Context(), r.PathValue("id"), r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, out)
}

func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Exporter.Download(r.Context(), r.PathValue("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, out)
}

func writeAttachment(w http.ResponseWriter, out *services.Rendered) {
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	_, _ = w.Write(out.Body)
}

func (s *Server) gossipFeed(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	feed, err := s.deps.Gossip.Feed(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

type triggerResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (s *Server) triggerWaterCooler(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Queue.Send(r.Context(), jobs.WaterCooler{}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{OK: true, Message: "Water cooler chat triggered!"})
}

func (s *Server) triggerSummaries(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Queue.Send(r.Context(), jobs.SummarizeBatch{}); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{OK: true, Message: "Summarization queued"})
}

func (s *Server) modelStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Models.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) speech(w http.ResponseWriter, r *http.Request) {
	in := struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{}
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	audio, err := s.deps.Speech.Synthesize(r.Context(), in.Text, in.Voice)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer audio.Close()
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := io.Copy(w, audio); err != nil {
		s.logger.Warn(r.Context(), "speech copy interrupted", "error", err)
	}
}
