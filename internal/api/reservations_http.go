package api

import (
	"net/http"
	"strings"

	"retreat/internal/database"
	"retreat/internal/models"
	"retreat/internal/service"
)

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	onlyAvailable := q.Get("available") == "true"

	list, err := s.deps.Resources.ListResources(r.Context(), strings.TrimSpace(q.Get("kind")), onlyAvailable)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	if list == nil {
		list = []models.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": list})
}

func (s *HTTPServer) handleGetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Resources.GetResource(r.Context(), id)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var res models.Resource
	if !decodeJSON(w, r, &res) {
		return
	}
	res.ID = 0
	if err := s.deps.Resources.CreateResource(r.Context(), &res); err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var res models.Resource
	if !decodeJSON(w, r, &res) {
		return
	}
	res.ID = id
	if err := s.deps.Resources.UpdateResource(r.Context(), &res); err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleReorderResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		SortOrder int64 `json:"sort_order"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.deps.Resources.ReorderResource(r.Context(), id, body.SortOrder); err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDeactivateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Resources.DeactivateResource(r.Context(), id); err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(r.URL.Query().Get("date")) == "" {
		writeServiceError(w, &s.log, &service.ValidationError{Fields: map[string]string{"date": "This field is required"}})
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}

	day, err := s.deps.Reservations.Schedule(r.Context(), id, date)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	resourceID, err := queryInt(r, "resource_id")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	if resourceID == 0 {
		writeServiceError(w, &s.log, &service.ValidationError{Fields: map[string]string{"resource_id": "This field is required"}})
		return
	}

	q := r.URL.Query()
	av, err := s.deps.Reservations.CheckAvailability(r.Context(), resourceID, q.Get("date"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, av)
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	resourceID, err := queryInt(r, "resource_id")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}

	list, err := s.deps.Reservations.ListReservations(r.Context(), database.ReservationFilter{
		From:       from,
		To:         to,
		ResourceID: resourceID,
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	if list == nil {
		list = []*models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Reservations.GetReservation(r.Context(), id)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, replayed, err := s.deps.Reservations.CreateReservation(r.Context(), &req, r.Header.Get(idempotencyHeader))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	if replayed {
		w.Header().Set(replayedHeader, "true")
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var change models.StatusChange
	if !decodeJSON(w, r, &change) {
		return
	}

	res, err := s.deps.Reservations.ChangeStatus(r.Context(), id, &change, s.actor(r))
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Reservations.DeleteReservation(r.Context(), id, s.actor(r)); err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// actor names who made an admin change: the API client name when known.
func (s *HTTPServer) actor(r *http.Request) string {
	apiKey := strings.TrimSpace(r.Header.Get(s.keys.apiKeyName))
	if c, ok := s.keys.clientByKey[apiKey]; ok && c.Name != "" {
		return c.Name
	}
	return "admin"
}
