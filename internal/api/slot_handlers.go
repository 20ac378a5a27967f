package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/muhzee733/madical-erp-backend/internal/appointment"
)

func createSlotHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor := GetActor(r.Context())
		doctorID, ok := resolveDoctorID(w, actor, req.DoctorID)
		if !ok {
			return
		}

		slot, err := svc.CreateSlot(r.Context(), actor, doctorID, req.Start, req.End, appointment.SlotKind(req.Kind))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func createSlotsBulkHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor := GetActor(r.Context())
		doctorID, ok := resolveDoctorID(w, actor, req.DoctorID)
		if !ok {
			return
		}

		from, err := time.ParseInLocation("2006-01-02", req.From, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
			return
		}
		to, err := time.ParseInLocation("2006-01-02", req.To, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
			return
		}

		var weekdays []time.Weekday
		for _, name := range req.Weekdays {
			wd, ok := weekdayNames[name]
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_weekday", name)
				return
			}
			weekdays = append(weekdays, wd)
		}

		created, err := svc.CreateSlotsBulk(r.Context(), actor, doctorID, appointment.BulkSlotSpec{
			From:     from,
			To:       to,
			Weekdays: weekdays,
			DayStart: req.DayStart,
			DayEnd:   req.DayEnd,
			Kind:     appointment.SlotKind(req.Kind),
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, slotListResponse(created))
	}
}

func createCustomSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CustomSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor := GetActor(r.Context())
		doctorID, ok := resolveDoctorID(w, actor, req.DoctorID)
		if !ok {
			return
		}

		date, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		created, err := svc.CreateCustomSlots(r.Context(), actor, doctorID, date, req.Times, appointment.SlotKind(req.Kind))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, slotListResponse(created))
	}
}

func editSlotHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req EditSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.EditSlot(r.Context(), GetActor(r.Context()), id, req.Start, req.End, appointment.SlotKind(req.Kind))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func deleteSlotHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSlot(r.Context(), GetActor(r.Context()), id); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusNoContent, nil)
	}
}

func listSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f appointment.SlotFilter

		if v := r.URL.Query().Get("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = &id
		}
		if v := r.URL.Query().Get("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
				return
			}
			f.From = &t
		}
		if v := r.URL.Query().Get("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
				return
			}
			f.To = &t
		}
		f.OnlyFree = r.URL.Query().Get("only_free") == "true"

		slots, err := svc.ListSlots(r.Context(), f)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slotListResponse(slots))
	}
}

// resolveDoctorID lets admins act on behalf of any doctor; doctors always act
// on themselves.
func resolveDoctorID(w http.ResponseWriter, actor appointment.Actor, raw string) (uuid.UUID, bool) {
	if raw == "" {
		return actor.ID, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func slotListResponse(slots []appointment.AvailabilitySlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}
