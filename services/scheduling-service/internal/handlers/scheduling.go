package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/directory"
	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

// Registrar lets the availability endpoint register professionals in the
// static directory when no remote directory service is configured.
type Registrar interface {
	RegisterProfessional(prof directory.Professional)
}

type SchedulingHandler struct {
	coordinator *booking.Coordinator
	store       *availability.Store
	registrar   Registrar
	logger      *slog.Logger
}

func NewSchedulingHandler(coordinator *booking.Coordinator, store *availability.Store, registrar Registrar, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{
		coordinator: coordinator,
		store:       store,
		registrar:   registrar,
		logger:      logger,
	}
}

type bookRequest struct {
	ProfessionalID string `json:"professional_id"`
	ClientID       string `json:"client_id"`
	Medium         string `json:"medium"`
	Location       string `json:"location"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	RangeStart     string `json:"range_start"`
	RangeEnd       string `json:"range_end"`
	DurationMins   int    `json:"duration_minutes"`
}

type appointmentItem struct {
	AppointmentID  string `json:"appointment_id"`
	ProfessionalID string `json:"professional_id"`
	ClientID       string `json:"client_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Medium         string `json:"medium"`
	Location       string `json:"location,omitempty"`
	Status         string `json:"status"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CheckedInAt    string `json:"checked_in_at,omitempty"`
	CreatedAt      string `json:"created_at"`
	LastModifiedAt string `json:"last_modified_at"`
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:  a.ID,
		ProfessionalID: a.ProfessionalID,
		ClientID:       a.ClientID,
		StartTime:      a.Start.UTC().Format(time.RFC3339),
		EndTime:        a.End.UTC().Format(time.RFC3339),
		Medium:         string(a.Medium),
		Location:       a.Location,
		Status:         string(a.Status),
		CancelReason:   a.CancelReason,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		LastModifiedAt: a.LastModifiedAt.UTC().Format(time.RFC3339),
	}
	if a.CheckedInAt != nil {
		item.CheckedInAt = a.CheckedInAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	medium, err := model.ParseMedium(req.Medium)
	if err != nil {
		http.Error(w, "invalid medium", http.StatusBadRequest)
		return
	}

	book := booking.BookRequest{
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ClientID:       strings.TrimSpace(req.ClientID),
		Medium:         medium,
		Location:       req.Location,
		Duration:       time.Duration(req.DurationMins) * time.Minute,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}

	if req.StartTime != "" || req.EndTime != "" {
		if book.Start, err = time.Parse(time.RFC3339, req.StartTime); err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		if book.End, err = time.Parse(time.RFC3339, req.EndTime); err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
	} else {
		if book.RangeStart, err = time.Parse(time.RFC3339, req.RangeStart); err != nil {
			http.Error(w, "invalid range_start", http.StatusBadRequest)
			return
		}
		if book.RangeEnd, err = time.Parse(time.RFC3339, req.RangeEnd); err != nil {
			http.Error(w, "invalid range_end", http.StatusBadRequest)
			return
		}
	}

	appt, err := h.coordinator.Book(r.Context(), book)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

func (h *SchedulingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transitionID(w, r, nil)
	if !ok {
		return
	}
	appt, err := h.coordinator.Confirm(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	id, ok := h.transitionID(w, r, &req)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		http.Error(w, "reason required", http.StatusBadRequest)
		return
	}
	appt, err := h.coordinator.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	id, ok := h.transitionID(w, r, &req)
	if !ok {
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	newEnd, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	appt, err := h.coordinator.Reschedule(r.Context(), id, newStart, newEnd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.transitionID(w, r, nil)
	if !ok {
		return
	}
	appt, err := h.coordinator.CheckIn(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}

// transitionID decodes the shared transition request shape and validates
// the appointment id. A nil req decodes into a scratch value.
func (h *SchedulingHandler) transitionID(w http.ResponseWriter, r *http.Request, req *transitionRequest) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	if req == nil {
		req = &transitionRequest{}
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", false
	}
	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	participantID := strings.TrimSpace(r.URL.Query().Get("participant_id"))
	if participantID == "" {
		http.Error(w, "participant_id required", http.StatusBadRequest)
		return
	}

	var status model.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, err := model.ParseStatus(raw)
		if err != nil {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		status = parsed
	}
	from, ok := h.optionalTime(w, r, "from")
	if !ok {
		return
	}
	to, ok := h.optionalTime(w, r, "to")
	if !ok {
		return
	}

	appts, err := h.coordinator.ListAppointments(participantID, status, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

type slotItem struct {
	ProfessionalID string `json:"professional_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	if professionalID == "" {
		http.Error(w, "professional_id required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(r.URL.Query().Get("from")))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	durationMins, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("duration_minutes")))
	if err != nil || durationMins <= 0 || durationMins > 8*60 {
		http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
		return
	}

	slots, err := h.coordinator.ListSlots(professionalID, from, to, time.Duration(durationMins)*time.Minute)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			ProfessionalID: s.ProfessionalID,
			StartTime:      s.Start.UTC().Format(time.RFC3339),
			EndTime:        s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type weeklyRuleItem struct {
	Weekday int    `json:"weekday"` // 0 = Sunday
	Start   string `json:"start"`   // "09:00"
	End     string `json:"end"`
	Blocked bool   `json:"blocked"`
}

type windowItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Blocked   bool   `json:"blocked"`
}

type availabilityRequest struct {
	ProfessionalID     string           `json:"professional_id"`
	ConfirmationPolicy string           `json:"confirmation_policy,omitempty"`
	ReschedulePolicy   string           `json:"reschedule_policy,omitempty"`
	NoShowGraceMinutes int              `json:"no_show_grace_minutes,omitempty"`
	Weekly             []weeklyRuleItem `json:"weekly"`
	Windows            []windowItem     `json:"windows"`
}

// SetAvailability replaces a professional's recurring rules and appends
// one-off windows. Policies are registered alongside when the engine runs
// with the static directory.
func (h *SchedulingHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	professionalID := strings.TrimSpace(req.ProfessionalID)
	if professionalID == "" {
		http.Error(w, "professional_id required", http.StatusBadRequest)
		return
	}

	rules := make([]availability.WeeklyRule, 0, len(req.Weekly))
	for _, item := range req.Weekly {
		if item.Weekday < 0 || item.Weekday > 6 {
			http.Error(w, "invalid weekday", http.StatusBadRequest)
			return
		}
		startMin, ok := parseClock(item.Start)
		if !ok {
			http.Error(w, "invalid weekly start", http.StatusBadRequest)
			return
		}
		endMin, ok := parseClock(item.End)
		if !ok {
			http.Error(w, "invalid weekly end", http.StatusBadRequest)
			return
		}
		rules = append(rules, availability.WeeklyRule{
			Weekday:     time.Weekday(item.Weekday),
			StartMinute: startMin,
			EndMinute:   endMin,
			Blocked:     item.Blocked,
		})
	}

	h.store.Register(professionalID)
	if err := h.store.SetWeekly(professionalID, rules); err != nil {
		h.writeError(w, err)
		return
	}
	for _, item := range req.Windows {
		start, err := time.Parse(time.RFC3339, item.StartTime)
		if err != nil {
			http.Error(w, "invalid window start_time", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(time.RFC3339, item.EndTime)
		if err != nil {
			http.Error(w, "invalid window end_time", http.StatusBadRequest)
			return
		}
		if err := h.store.AddWindow(professionalID, availability.Window{Start: start, End: end, Blocked: item.Blocked}); err != nil {
			h.writeError(w, err)
			return
		}
	}

	if h.registrar != nil {
		h.registrar.RegisterProfessional(directory.Professional{
			ID:                 professionalID,
			ConfirmationPolicy: directory.ConfirmationPolicy(strings.TrimSpace(req.ConfirmationPolicy)),
			ReschedulePolicy:   directory.ReschedulePolicy(strings.TrimSpace(req.ReschedulePolicy)),
			NoShowGrace:        time.Duration(req.NoShowGraceMinutes) * time.Minute,
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"professional_id": professionalID, "status": "ok"})
}

func parseClock(raw string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func (h *SchedulingHandler) optionalTime(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		http.Error(w, "invalid "+key, http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}

func (h *SchedulingHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case model.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case model.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case model.IsCallerError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
