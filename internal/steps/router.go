package steps

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

const defaultIntent = "unknown"

type routeSpec struct {
	Intent    string   `mapstructure:"intent"`
	Keywords  []string `mapstructure:"keywords"`
	Pattern   string   `mapstructure:"pattern"`
	Condition string   `mapstructure:"condition"`
}

type routerConfig struct {
	Strategy      string         `mapstructure:"strategy"`
	Routes        []routeSpec    `mapstructure:"routes"`
	DefaultIntent string         `mapstructure:"default_intent"`
	InputKey      string         `mapstructure:"input_key"`
	Extra         map[string]any `mapstructure:",remain"`
}

type routerStep struct {
	nodeID   string
	cfg      routerConfig
	patterns map[string]*regexp.Regexp
	log      *slog.Logger
}

// NewRouter builds the factory for router nodes: they classify the input
// into an intent that conditional dispatch then routes on. Regex routes are
// compiled at build time so a broken pattern fails compilation, not a run.
func NewRouter(deps Deps) types.StepFactory {
	return func(nodeID string, config map[string]any) (types.Step, error) {
		var cfg routerConfig
		if err := decodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Strategy == "" {
			cfg.Strategy = "keyword"
		}
		if cfg.DefaultIntent == "" {
			cfg.DefaultIntent = defaultIntent
		}
		if cfg.InputKey == "" {
			cfg.InputKey = state.KeyUserInput
		}

		step := &routerStep{nodeID: nodeID, cfg: cfg, log: deps.logger()}
		if cfg.Strategy == "pattern" {
			step.patterns = make(map[string]*regexp.Regexp, len(cfg.Routes))
			for _, route := range cfg.Routes {
				if route.Pattern == "" {
					continue
				}
				re, err := regexp.Compile("(?i)" + route.Pattern)
				if err != nil {
					step.log.Warn("invalid route pattern, skipping",
						"node_id", nodeID, "pattern", route.Pattern, "error", err)
					continue
				}
				step.patterns[route.Pattern] = re
			}
		}
		return step, nil
	}
}

func (s *routerStep) Execute(_ context.Context, snapshot state.State) (state.Delta, error) {
	input := snapshot.String(s.cfg.InputKey)

	var intent string
	switch s.cfg.Strategy {
	case "pattern":
		intent = s.routeByPattern(input)
	case "rules":
		intent = s.routeByRules(input)
	case "llm":
		// Classification by model is not wired; keyword matching stands in.
		s.log.Debug("llm routing falls back to keyword matching", "node_id", s.nodeID)
		intent = s.routeByKeyword(input)
	case "keyword":
		intent = s.routeByKeyword(input)
	default:
		s.log.Warn("unknown routing strategy", "node_id", s.nodeID, "strategy", s.cfg.Strategy)
		intent = s.cfg.DefaultIntent
	}

	s.log.Debug("router classified input", "node_id", s.nodeID, "intent", intent)
	return state.Delta{state.KeyIntent: intent}, nil
}

func (s *routerStep) routeByKeyword(input string) string {
	lowered := strings.ToLower(input)
	for _, route := range s.cfg.Routes {
		if route.Intent == "" {
			continue
		}
		for _, keyword := range route.Keywords {
			if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
				return route.Intent
			}
		}
	}
	return s.cfg.DefaultIntent
}

func (s *routerStep) routeByPattern(input string) string {
	for _, route := range s.cfg.Routes {
		if route.Intent == "" || route.Pattern == "" {
			continue
		}
		re, ok := s.patterns[route.Pattern]
		if !ok {
			continue
		}
		// Anchored at the start like the classic match semantics.
		if loc := re.FindStringIndex(input); loc != nil && loc[0] == 0 {
			return route.Intent
		}
	}
	return s.cfg.DefaultIntent
}

func (s *routerStep) routeByRules(input string) string {
	for _, route := range s.cfg.Routes {
		if route.Intent == "" || route.Condition == "" {
			continue
		}
		if s.evaluateCondition(route.Condition, input) {
			return route.Intent
		}
	}
	return s.cfg.DefaultIntent
}

var (
	textCondition   = regexp.MustCompile(`^(contains|starts_with|ends_with|equals)\(['"](.+)['"]\)$`)
	lengthCondition = regexp.MustCompile(`^(length_gt|length_lt)\((\d+)\)$`)
)

// evaluateCondition interprets the small rule expressions supported in
// route definitions: contains('x'), starts_with('x'), ends_with('x'),
// equals('x'), length_gt(n), length_lt(n). Text comparisons ignore case.
func (s *routerStep) evaluateCondition(condition, input string) bool {
	lowered := strings.ToLower(input)

	if m := textCondition.FindStringSubmatch(condition); m != nil {
		arg := strings.ToLower(m[2])
		switch m[1] {
		case "contains":
			return strings.Contains(lowered, arg)
		case "starts_with":
			return strings.HasPrefix(lowered, arg)
		case "ends_with":
			return strings.HasSuffix(lowered, arg)
		case "equals":
			return lowered == arg
		}
	}
	if m := lengthCondition.FindStringSubmatch(condition); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return false
		}
		switch m[1] {
		case "length_gt":
			return len(input) > n
		case "length_lt":
			return len(input) < n
		}
	}

	s.log.Warn("unsupported route condition", "node_id", s.nodeID, "condition", condition)
	return false
}
