package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mbalug7/go-tarts/pkg/ident"
	"github.com/mbalug7/go-tarts/pkg/sensor"
	"github.com/mbalug7/go-tarts/pkg/tarts"
)

var (
	errNotFound    = errors.New("not found")
	errNoControl   = errors.New("sensor has no control output")
	errBadArgument = errors.New("bad argument")
)

type GatewayView struct {
	ID                  string   `json:"id"`
	State               string   `json:"state"`
	Channel             uint8    `json:"channel"`
	ChannelMask         uint32   `json:"channelMask"`
	Sensors             []string `json:"sensors"`
	ReportedSensorCount uint16   `json:"reportedSensorCount"`
	PendingRemovals     int      `json:"pendingRemovals"`
	LastUnknownID       string   `json:"lastUnknownId,omitempty"`
}

type ControlView struct {
	DefaultClosed bool   `json:"defaultClosed"`
	LowPower      bool   `json:"lowPower"`
	LEDMode       uint8  `json:"ledMode"`
	PollRate      uint16 `json:"pollRate"`
}

type SensorView struct {
	ID             string          `json:"id"`
	Type           uint16          `json:"type"`
	TypeName       string          `json:"typeName"`
	Name           string          `json:"name"`
	Settings       sensor.Settings `json:"settings"`
	PendingActions bool            `json:"pendingActions"`
	Control        *ControlView    `json:"control,omitempty"`
}

func gatewayView(gw *tarts.Gateway) GatewayView {
	view := GatewayView{
		ID:                  gw.ID(),
		State:               gw.State().String(),
		Channel:             gw.OperatingChannel(),
		ChannelMask:         gw.ChannelMask(),
		Sensors:             []string{},
		ReportedSensorCount: gw.ReportedSensorCount(),
		PendingRemovals:     gw.PendingRemovals(),
	}
	if id := gw.LastUnknownID(); id != ident.Encode(0) {
		view.LastUnknownID = id
	}
	for _, s := range gw.Sensors() {
		view.Sensors = append(view.Sensors, s.Label())
	}
	return view
}

func sensorView(s *sensor.Sensor) SensorView {
	view := SensorView{
		ID:             s.Label(),
		Type:           uint16(s.Type()),
		TypeName:       s.Type().String(),
		Name:           s.Name(),
		Settings:       s.Settings(),
		PendingActions: s.PendingActions(),
	}
	if ctl, ok := s.Control(); ok {
		view.Control = &ControlView{
			DefaultClosed: ctl.DefaultSwitchClosed(),
			LowPower:      ctl.UseLowPower(),
			LEDMode:       uint8(ctl.LEDMode()),
			PollRate:      ctl.PollRate(),
		}
	}
	return view
}

func (obj *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (obj *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	views := []GatewayView{}
	err := obj.ctrl.Do(r.Context(), func(lib *tarts.Lib) error {
		for _, gw := range lib.Gateways() {
			views = append(views, gatewayView(gw))
		}
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"gateways": views})
}

func (obj *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var view SensorView
	err := obj.ctrl.Do(r.Context(), func(lib *tarts.Lib) error {
		s := lib.FindSensor(id)
		if s == nil {
			return fmt.Errorf("%w: sensor %s", errNotFound, id)
		}
		view = sensorView(s)
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (obj *Server) handleRequestConfigurations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := obj.ctrl.Do(r.Context(), func(lib *tarts.Lib) error {
		s := lib.FindSensor(id)
		if s == nil {
			return fmt.Errorf("%w: sensor %s", errNotFound, id)
		}
		s.RequestConfigurations()
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (obj *Server) handleReform(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		ChannelMask *uint32 `json:"channelMask"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	err := obj.ctrl.Do(r.Context(), func(lib *tarts.Lib) error {
		gw := lib.FindGateway(id)
		if gw == nil {
			return fmt.Errorf("%w: gateway %s", errNotFound, id)
		}
		if req.ChannelMask != nil {
			gw.ReformNetworkWithMask(*req.ChannelMask)
		} else {
			gw.ReformNetwork()
		}
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (obj *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Option   string `json:"option"`
		Duration uint16 `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	option, err := sensor.ParseSwitchOption(req.Option)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = obj.ctrl.Do(r.Context(), func(lib *tarts.Lib) error {
		s := lib.FindSensor(id)
		if s == nil {
			return fmt.Errorf("%w: sensor %s", errNotFound, id)
		}
		ctl, ok := s.Control()
		if !ok {
			return fmt.Errorf("%w: %s", errNoControl, s)
		}
		ctl.SendControl(option, req.Duration)
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (obj *Server) handleRemoveSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if ident.Decode(id) == 0 {
		respondErr(w, fmt.Errorf("%w: sensor id %q", errBadArgument, id))
		return
	}
	if err := obj.ctrl.RemoveSensor(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound), errors.Is(err, tarts.ErrSensorNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errNoControl):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errBadArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	response, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
