package service

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

type Dashboard struct {
	Recommendations *backend.Recommendations `json:"recommendations"`
	FeedbackStatus  *backend.FeedbackStatus  `json:"feedback_status"`
}

// LoadDashboard fetches recommendations and feedback status concurrently.
func (s *Service) LoadDashboard(ctx context.Context) (*Dashboard, error) {
	var out Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.backend.GetRecommendations(gctx)
		if err != nil {
			return Classify(err, "Error loading recommendations")
		}
		out.Recommendations = recs
		return nil
	})
	g.Go(func() error {
		status, err := s.backend.GetFeedbackStatus(gctx)
		if err != nil {
			return Classify(err, "Error loading feedback status")
		}
		out.FeedbackStatus = status
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

type InterviewBundle struct {
	Result   json.RawMessage `json:"result"`
	Projects json.RawMessage `json:"projects,omitempty"`
}

// LoadInterview returns the interview materials together with the classified
// projects. Projects are optional and a failure to load them is only logged.
func (s *Service) LoadInterview(ctx context.Context) (*InterviewBundle, error) {
	st := s.store.Snapshot()
	if st.Interview.InterviewID == "" {
		return nil, NewError(ErrValidation, "No interview preparation has been started")
	}

	out := InterviewBundle{Result: st.Interview.Result}
	g, gctx := errgroup.WithContext(ctx)
	if len(out.Result) == 0 {
		g.Go(func() error {
			result, err := s.backend.GetInterviewResult(gctx, st.Interview.InterviewID)
			if err != nil {
				return Classify(err, "Error loading interview materials")
			}
			out.Result = result
			return nil
		})
	}
	g.Go(func() error {
		projects, err := s.backend.GetClassifiedProjects(gctx)
		if err != nil {
			log.Warn("Classified projects unavailable: %v", err)
			return nil
		}
		out.Projects = projects
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
