package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"arvera/internal/schedule"
)

// envPayload is the environment collaborator's response shape.
type envPayload struct {
	Timezone       string     `json:"TIMEZONE"`
	Horarios       [][]string `json:"HORARIOS"`
	DuracionCita   int        `json:"DURACION_CITA"`
	DiasLaborables []int      `json:"DIAS_LABORABLES"`
	PollInterval   int        `json:"POLL_INTERVAL"`
}

// ResolveSchedule builds the schedule configuration. When an environment
// endpoint is configured its values override the local ones; when the fetch
// fails the local values stand, so the calendar still renders. It mutates
// cfg.Sync.PollIntervalMS when the collaborator supplies one.
func ResolveSchedule(ctx context.Context, cfg *Config, logger *zerolog.Logger) (*schedule.Config, error) {
	timezone := cfg.Schedule.Timezone
	workingHours := cfg.Schedule.WorkingHours
	slotMinutes := cfg.Schedule.SlotMinutes
	businessDays := cfg.Schedule.BusinessDays

	if cfg.Env.URL != "" {
		payload, err := fetchEnv(ctx, cfg.Env.URL, cfg.Env.ConfigToken)
		if err != nil {
			logger.Warn().Err(err).Msg("environment collaborator unavailable, using local schedule values")
		} else {
			if payload.Timezone != "" {
				timezone = payload.Timezone
			}
			if len(payload.Horarios) > 0 {
				workingHours = joinHorarios(payload.Horarios)
			}
			if payload.DuracionCita > 0 {
				slotMinutes = payload.DuracionCita
			}
			if len(payload.DiasLaborables) > 0 {
				businessDays = joinInts(payload.DiasLaborables)
			}
			if payload.PollInterval > 0 {
				cfg.Sync.PollIntervalMS = payload.PollInterval
			}
		}
	}

	intervals, err := schedule.ParseIntervals(workingHours)
	if err != nil {
		return nil, fmt.Errorf("working hours: %w", err)
	}
	weekdays, err := schedule.ParseWeekdays(businessDays)
	if err != nil {
		return nil, fmt.Errorf("business days: %w", err)
	}
	return schedule.New(intervals, slotMinutes, timezone, weekdays)
}

func fetchEnv(ctx context.Context, url, token string) (*envPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("X-Config-Token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("env endpoint returned http %d", resp.StatusCode)
	}
	var payload envPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode env payload: %w", err)
	}
	return &payload, nil
}

func joinHorarios(horarios [][]string) string {
	var parts []string
	for _, h := range horarios {
		if len(h) == 2 {
			parts = append(parts, h[0]+"-"+h[1])
		}
	}
	return strings.Join(parts, ",")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
