package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voxlabel/voxlabel/internal/app"
	"github.com/voxlabel/voxlabel/internal/speaker"
	"github.com/voxlabel/voxlabel/internal/transcript"
)

// maxUploadBytes caps audio uploads on /api/transcribe.
const maxUploadBytes = 256 << 20

// errorBody is the JSON error response shape.
type errorBody struct {
	Error  string                    `json:"error"`
	Fields []speaker.ValidationError `json:"fields,omitempty"`
}

// ─── Session lifecycle ───

func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Status())
}

func (s *Server) handleSessionTouch(w http.ResponseWriter, _ *http.Request) {
	s.sess.Touch()
	writeJSON(w, http.StatusOK, s.sess.Status())
}

func (s *Server) handleSessionExtend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Minutes <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("minutes must be positive"))
		return
	}
	st := s.sess.Extend(time.Duration(req.Minutes) * time.Minute)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSessionClear(w http.ResponseWriter, _ *http.Request) {
	st := s.sess.ClearSession()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSessionDismiss(w http.ResponseWriter, _ *http.Request) {
	s.sess.DismissWarning()
	writeJSON(w, http.StatusOK, s.sess.Status())
}

// ─── Speakers ───

// speakersResponse is the GET /api/speakers response shape.
type speakersResponse struct {
	Committed []speaker.Entry `json:"committed"`
	Draft     []speaker.Entry `json:"draft"`
	Mapped    int             `json:"mapped"`
	Unmapped  int             `json:"unmapped"`
	Pending   bool            `json:"pending"`
}

func (s *Server) handleSpeakersGet(w http.ResponseWriter, _ *http.Request) {
	mapped, unmapped := s.sess.Counts()
	writeJSON(w, http.StatusOK, speakersResponse{
		Committed: s.sess.Speakers(),
		Draft:     s.sess.DraftSpeakers(),
		Mapped:    mapped,
		Unmapped:  unmapped,
		Pending:   s.sess.HasPendingChanges(),
	})
}

// speakerCommand is the POST /api/speakers request shape. Action selects
// the edit operation; ID, Name, and Role apply where relevant.
type speakerCommand struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

func (s *Server) handleSpeakersCommand(w http.ResponseWriter, r *http.Request) {
	var cmd speakerCommand
	if err := decodeJSON(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch cmd.Action {
	case "add":
		entry := s.sess.AddSpeaker()
		writeJSON(w, http.StatusCreated, entry)

	case "request_remove":
		prompt, err := s.sess.RequestRemoveSpeaker(cmd.ID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, prompt)

	case "confirm_remove":
		if err := s.sess.ConfirmRemoveSpeaker(cmd.ID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"removed": cmd.ID})

	case "start_edit":
		if err := s.sess.StartEdit(cmd.ID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"editing": true})

	case "update":
		verrs, err := s.sess.UpdateDraft(cmd.ID, cmd.Name, cmd.Role)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		resp := map[string]any{"errors": verrs}
		// Advisory only: a near-duplicate name is legal, but the UI shows a
		// hint so typos like "Jon"/"John" get a second look.
		if match, ok := speaker.NearDuplicate(cmd.Name, s.sess.DraftSpeakers(), cmd.ID); ok {
			resp["hint"] = fmt.Sprintf("name is very close to existing speaker %q", match)
		}
		writeJSON(w, http.StatusOK, resp)

	case "confirm_edit":
		if err := s.sess.ConfirmEdit(cmd.ID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"editing": false})

	case "cancel_edit":
		if err := s.sess.CancelEdit(cmd.ID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"editing": false})

	case "save":
		if err := s.sess.SaveSpeakers(); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, s.sess.Speakers())

	case "discard":
		s.sess.DiscardEdits()
		writeJSON(w, http.StatusOK, s.sess.DraftSpeakers())

	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown action "+cmd.Action))
	}
}

// ─── Overrides ───

func (s *Server) handleOverridesGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active": s.sess.Overrides(),
		"log":    s.sess.OverrideLog(),
	})
}

func (s *Server) handleOverrideApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpeakerID string `json:"speaker_id"`
		Name      string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SpeakerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("speaker_id is required"))
		return
	}
	rec, err := s.sess.ApplyOverride(req.SpeakerID, req.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleOverrideRevert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sess.RevertOverride(id) {
		writeError(w, http.StatusNotFound, errors.New("no active override for "+id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reverted": id})
}

// ─── Transcript ───

func (s *Server) handleSegmentsGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Segments())
}

func (s *Server) handleTranscriptImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Segments []transcript.Segment `json:"segments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.sess.SetSegments(req.Segments)
	writeJSON(w, http.StatusOK, map[string]int{"segments": len(req.Segments)})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("multipart field \"audio\" is required"))
		return
	}
	defer file.Close()

	language := r.FormValue("language")
	if err := s.sess.Transcribe(r.Context(), file, header.Filename, language); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Segments())
}

// ─── Summary ───

func (s *Server) handleSummaryGet(w http.ResponseWriter, _ *http.Request) {
	summary := s.sess.Summary()
	if summary == "" {
		writeError(w, http.StatusNotFound, errors.New("no summary generated yet"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instructions string `json:"instructions"`
		MaxWords     int    `json:"max_words"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := s.sess.Summarize(r.Context(), req.Instructions, req.MaxWords)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// ─── Helpers ───

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verrs speaker.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	case errors.Is(err, speaker.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, speaker.ErrLastSpeaker),
		errors.Is(err, speaker.ErrEntryEditing),
		errors.Is(err, speaker.ErrNotEditing):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoSegments),
		errors.Is(err, app.ErrNoSummarizer),
		errors.Is(err, app.ErrNoTranscriber):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response, attaching field-scoped
// validation details when present.
func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var verrs speaker.ValidationErrors
	if errors.As(err, &verrs) {
		body.Fields = verrs
	}
	writeJSON(w, status, body)
}
