package registry

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/coffersTech/redlogic/internal/pkg/filterlogic"
	"github.com/coffersTech/redlogic/internal/rules"
)

const maxRuleBody = 1 << 20

// RuleView is the JSON form of one filter.
type RuleView struct {
	Condition string                 `json:"condition"`
	Parsed    *filterlogic.Condition `json:"parsed"`
	Changes   []rules.Change         `json:"changes"`
}

// RuleSetView is the JSON form of a rule set.
type RuleSetView struct {
	Name   string     `json:"name"`
	Source string     `json:"source,omitempty"`
	Rules  []RuleView `json:"rules"`
}

// NewRuleSetView converts rs for output.
func NewRuleSetView(rs *rules.RuleSet) RuleSetView {
	v := RuleSetView{Name: rs.Name, Source: rs.Source, Rules: make([]RuleView, 0, len(rs.Filters))}
	for _, f := range rs.Filters {
		changes := f.Changes
		if changes == nil {
			changes = []rules.Change{}
		}
		v.Rules = append(v.Rules, RuleView{Condition: f.Logic(), Parsed: f.Condition, Changes: changes})
	}
	return v
}

// Validator checks a rule set before it is stored.
type Validator func(*rules.RuleSet) error

// Server handles rule set HTTP requests.
type Server struct {
	store    *Store
	validate Validator
}

// NewServer creates a new registry server. validate may be nil.
func NewServer(store *Store, validate Validator) *Server {
	return &Server{
		store:    store,
		validate: validate,
	}
}

// HandleList returns summaries of all rule sets.
// GET /api/rulesets
func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.List())
}

// HandleItem serves one rule set.
// GET|PUT|DELETE /api/rulesets/{name}
// PUT takes a YAML rule document; its name field is overridden by the path.
func (s *Server) HandleItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/rulesets/")
	if name == "" || strings.Contains(name, "/") {
		http.Error(w, "Rule set name required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rs, ok := s.store.Get(name)
		if !ok {
			http.Error(w, "Rule set not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(NewRuleSetView(rs))

	case http.MethodPut:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRuleBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Rule document too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}
		rs, err := rules.Parse(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rs.Name = name
		if s.validate != nil {
			if err := s.validate(rs); err != nil {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
		}
		s.store.Put(rs)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(NewRuleSetView(rs))

	case http.MethodDelete:
		if !s.store.Delete(name) {
			http.Error(w, "Rule set not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
