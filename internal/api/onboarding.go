package api

import (
	"encoding/json"
	"net/http"
)

type onboardingStatus struct {
	HasOnboarded bool             `json:"has_onboarded"`
	Industry     string           `json:"industry,omitempty"`
	Role         string           `json:"role,omitempty"`
	Industries   []industryChoice `json:"industries"`
}

type industryChoice struct {
	ID    string       `json:"id"`
	Label string       `json:"label"`
	Roles []roleChoice `json:"roles"`
}

type roleChoice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func handleGetOnboarding(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := onboardingStatus{
			HasOnboarded: deps.State.HasOnboarded(),
			Industry:     deps.State.Industry(),
			Role:         deps.State.Role(),
		}
		for _, industry := range deps.Taxonomy.Industries() {
			choice := industryChoice{
				ID:    industry,
				Label: deps.Taxonomy.IndustryLabel(industry),
			}
			for _, role := range deps.Taxonomy.Roles(industry) {
				choice.Roles = append(choice.Roles, roleChoice{
					ID:    role,
					Label: deps.Taxonomy.RoleLabel(industry, role),
				})
			}
			status.Industries = append(status.Industries, choice)
		}
		writeJSON(w, status)
	}
}

type onboardingRequest struct {
	Industry string `json:"industry"`
	Role     string `json:"role"`
}

// handleCompleteOnboarding records the industry and role selection. The
// same endpoint also re-runs onboarding: selecting a new pair simply
// moves the active context.
func handleCompleteOnboarding(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req onboardingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if !deps.Taxonomy.HasRole(req.Industry, req.Role) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown industry/role pair %q/%q", req.Industry, req.Role)
			return
		}

		if err := deps.State.SetIndustry(req.Industry); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving industry: %v", err)
			return
		}
		if err := deps.State.SetRole(req.Role); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving role: %v", err)
			return
		}
		if err := deps.State.CompleteOnboarding(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "completing onboarding: %v", err)
			return
		}

		writeJSON(w, map[string]any{
			"status":      "onboarded",
			"context_key": deps.State.ContextKey(),
			"topics":      deps.State.Topics(),
		})
	}
}

func handleTopics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics := deps.State.Topics()
		if topics == nil {
			topics = []string{}
		}
		writeJSON(w, map[string]any{
			"context_key": deps.State.ContextKey(),
			"topics":      topics,
		})
	}
}
