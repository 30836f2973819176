package steps

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/avi3tal/agentflow/internal/sources"
	"github.com/avi3tal/agentflow/internal/state"
	"github.com/avi3tal/agentflow/internal/types"
)

type dbConfig struct {
	SourceID      string         `mapstructure:"source_id"`
	Query         string         `mapstructure:"query"`
	QueryTemplate string         `mapstructure:"query_template"`
	Params        []any          `mapstructure:"params"`
	OutputKey     string         `mapstructure:"output_key"`
	Limit         int            `mapstructure:"limit"`
	Timeout       int            `mapstructure:"timeout"`
	Extra         map[string]any `mapstructure:",remain"`
}

type dbStep struct {
	nodeID string
	cfg    dbConfig
	client *sources.DBClient
	log    *slog.Logger
}

// NewDB builds the factory for db nodes. Queries are restricted to reads:
// anything but SELECT/WITH/EXPLAIN is rejected before touching the pool.
func NewDB(deps Deps) types.StepFactory {
	return func(nodeID string, config map[string]any) (types.Step, error) {
		var cfg dbConfig
		if err := decodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Query == "" && cfg.QueryTemplate == "" {
			return nil, errors.New("db node needs query or query_template")
		}
		if cfg.OutputKey == "" {
			cfg.OutputKey = state.KeyDBResult
		}
		if cfg.Limit == 0 {
			cfg.Limit = 100
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = 30
		}

		client, err := deps.resolver().DB(cfg.SourceID, config)
		if err != nil {
			return nil, err
		}
		return &dbStep{nodeID: nodeID, cfg: cfg, client: client, log: deps.logger()}, nil
	}
}

func (s *dbStep) Execute(ctx context.Context, snapshot state.State) (state.Delta, error) {
	query := s.cfg.Query
	if s.cfg.QueryTemplate != "" {
		query = Interpolate(s.cfg.QueryTemplate, snapshot)
	}

	if err := checkReadOnly(query); err != nil {
		return nil, err
	}
	if s.cfg.Limit > 0 && !strings.Contains(strings.ToUpper(query), "LIMIT") {
		query = fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(query), ";"), s.cfg.Limit)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
	defer cancel()

	rows, err := s.client.Query(ctx, query, s.cfg.Params...)
	if err != nil {
		return nil, err
	}
	s.log.Debug("db query completed", "node_id", s.nodeID, "row_count", len(rows))

	delta := state.Delta{}
	setOutput(delta, s.cfg.OutputKey, rows)
	return delta, nil
}

// Write operations rejected regardless of position in the statement.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "REPLACE", "MERGE", "GRANT", "REVOKE", "EXECUTE",
}

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// checkReadOnly rejects any statement that is not a plain read. Comments
// are stripped first so keywords cannot hide inside them.
func checkReadOnly(query string) error {
	cleaned := lineComment.ReplaceAllString(query, " ")
	cleaned = blockComment.ReplaceAllString(cleaned, " ")

	fields := strings.Fields(strings.ToUpper(cleaned))
	if len(fields) == 0 {
		return errors.New("empty query")
	}
	switch fields[0] {
	case "SELECT", "WITH", "EXPLAIN":
	default:
		return errors.Errorf("only read queries are allowed, got %s", fields[0])
	}
	for _, word := range fields {
		for _, blocked := range writeKeywords {
			if word == blocked || strings.HasPrefix(word, blocked+"(") {
				return errors.Errorf("write operation %s is blocked", blocked)
			}
		}
	}
	return nil
}
