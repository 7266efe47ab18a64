package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/loflimit/internal/contracts"
	"github.com/wonny/loflimit/pkg/logger"
)

// Generator is the model call the service depends on.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service turns announcement texts into stored raw assertions.
type Service struct {
	llm    Generator
	parses contracts.ParseRepository
	log    *logger.Logger
}

func NewService(llm Generator, parses contracts.ParseRepository, log *logger.Logger) *Service {
	return &Service{llm: llm, parses: parses, log: log}
}

// Announcement is one document to extract from.
type Announcement struct {
	Ticker      string
	SourceID    string
	PublishedAt time.Time
	Text        string
}

// Stats counts one extraction batch, mirroring what the batch driver
// reports to the operator.
type Stats struct {
	Total     int `json:"total"`
	Extracted int `json:"extracted"`
	NonLimit  int `json:"non_limit"`
	Failed    int `json:"failed"`
}

// Extract parses one announcement and stores the resulting assertion.
// Returns (nil, nil) for announcements that are not purchase limits.
func (s *Service) Extract(ctx context.Context, ann *Announcement) (*contracts.RawAssertion, error) {
	reply, err := s.llm.Generate(ctx, BuildPrompt(ann.Text))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", ann.SourceID, err)
	}

	result, err := ParseResponse(reply)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", ann.SourceID, err)
	}

	assertion, ok := result.ToAssertion(ann.Ticker, ann.SourceID, ann.PublishedAt)
	if !ok {
		s.log.WithField("source_id", ann.SourceID).Debug("not a purchase limit announcement")
		return nil, nil
	}

	if err := s.parses.SaveParse(ctx, assertion, ann.Text); err != nil {
		return nil, fmt.Errorf("extract %s: %w", ann.SourceID, err)
	}

	return assertion, nil
}

// ExtractBatch runs Extract over many announcements, isolating
// per-document failures.
func (s *Service) ExtractBatch(ctx context.Context, anns []*Announcement) *Stats {
	stats := &Stats{Total: len(anns)}

	for _, ann := range anns {
		if ctx.Err() != nil {
			break
		}
		assertion, err := s.Extract(ctx, ann)
		switch {
		case err != nil:
			stats.Failed++
			s.log.WithField("source_id", ann.SourceID).WithError(err).Warn("extraction failed")
		case assertion == nil:
			stats.NonLimit++
		default:
			stats.Extracted++
		}
	}

	s.log.WithFields(map[string]interface{}{
		"total":     stats.Total,
		"extracted": stats.Extracted,
		"non_limit": stats.NonLimit,
		"failed":    stats.Failed,
	}).Info("extraction batch finished")

	return stats
}
