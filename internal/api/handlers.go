package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/agriguardian/agriguardian/internal/advice"
	"github.com/agriguardian/agriguardian/internal/prompt"
	"github.com/agriguardian/agriguardian/internal/sensors"
	"github.com/agriguardian/agriguardian/internal/session"
	"github.com/agriguardian/agriguardian/internal/web"
)

// askRequest is the POST /api/ask body. SensorData and CropInfo are
// optional overrides; absent they come from the simulator and the
// session respectively.
type askRequest struct {
	Question   string           `json:"question"`
	SensorData *sensors.Reading `json:"sensor_data,omitempty"`
	CropInfo   *cropInfo        `json:"crop_info,omitempty"`
}

// cropInfo is the REST shape of the farmer's crop context.
type cropInfo struct {
	Crops    string `json:"crops"`
	Stage    string `json:"stage"`
	Issues   string `json:"issues,omitempty"`
	Location string `json:"location,omitempty"`
	FarmSize string `json:"farm_size,omitempty"`
}

func (c *cropInfo) toContext() prompt.Context {
	if c == nil {
		return prompt.Context{}
	}
	return prompt.Context{
		Crops:    c.Crops,
		Stage:    c.Stage,
		Issues:   c.Issues,
		Location: c.Location,
		FarmSize: c.FarmSize,
	}
}

// askResponse is the POST /api/ask success body.
type askResponse struct {
	Success      bool            `json:"success"`
	Response     string          `json:"response"`
	ResponseHTML string          `json:"response_html"`
	Fallback     bool            `json:"fallback,omitempty"`
	RequestCount int64           `json:"request_count"`
	SensorData   sensors.Reading `json:"sensor_data"`
}

// errorResponse is any non-2xx body.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// maxBodyBytes bounds request bodies; advice questions are small.
const maxBodyBytes = 1 << 20

func decodeJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, errorResponse{Success: false, Message: message}, s.logger)
}

// handleAsk answers one advice question. The daily budget gate runs
// before anything else; a rejected request never reaches the model.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	counter := s.pipeline.Counter()
	if counter.Exceeded() {
		s.writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Daily API limit exceeded (%d/%d requests used)", counter.Limit(), counter.Limit()))
		return
	}

	var req askRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "No question provided")
		return
	}

	sess := s.session(w, r)

	crop := s.sessions.Crop(sess.ID)
	if req.CropInfo != nil {
		crop = req.CropInfo.toContext()
		s.sessions.UpdateCrop(sess.ID, crop)
	}

	reading := s.sensors.Reading("")
	if req.SensorData != nil {
		reading = *req.SensorData
	}

	history := s.sessions.History(sess.ID)

	resp := s.pipeline.Ask(r.Context(), advice.Request{
		Question: req.Question,
		Reading:  reading,
		Context:  crop,
		History:  history,
	})

	s.sessions.AppendTurn(sess.ID, "user", req.Question)
	s.sessions.AppendTurn(sess.ID, "assistant", resp.Text)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, askResponse{
		Success:      true,
		Response:     resp.Text,
		ResponseHTML: web.RenderMarkdown(resp.Text),
		Fallback:     resp.Fallback,
		RequestCount: resp.Count,
		SensorData:   reading,
	}, s.logger)
}

// handleSensorData returns a fresh simulated reading.
func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.sensors.Reading(""), s.logger)
}

// handleSetup stores crop context on the browser session and clears
// its history.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var info cropInfo
	if err := decodeJSONBody(r, &info); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess := s.session(w, r)
	s.sessions.SetCrop(sess.ID, info.toContext())

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success": true,
		"message": "Crop information stored",
	}, s.logger)
}

// handleReset clears the session's crop context and history.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.sessions.Reset(sess.ID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"success": true}, s.logger)
}

// session resolves the browser session from the cookie, minting one
// (and setting the cookie) when absent.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(session.CookieName); err == nil {
		id = c.Value
	}

	sess := s.sessions.GetOrCreate(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}
