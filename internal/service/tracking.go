package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/progress"
	"github.com/MimeLyc/jobhunt-companion/internal/session"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

const (
	resultLoadTimeout = 30 * time.Second
	stallNotice       = "No progress update for a while; the job may be stuck. You can keep waiting or start over."
)

func (s *Service) track(kind backend.Kind, id string) {
	var cb progress.Callbacks
	if kind == backend.KindWorkflow {
		cb = s.workflowCallbacks(id)
	} else {
		cb = s.interviewCallbacks(id)
	}

	cancel := s.tracker.Track(s.root, kind, id, cb)

	s.mu.Lock()
	prev := s.cancels[kind]
	s.cancels[kind] = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *Service) workflowCallbacks(id string) progress.Callbacks {
	return progress.Callbacks{
		OnUpdate: func(snap progress.Snapshot) {
			s.update(func(st session.AppState) session.AppState {
				if st.Workflow.WorkflowID != id {
					return st
				}
				wf := &st.Workflow
				wf.Status = snap.Status
				wf.CurrentStep = snap.CurrentStep
				wf.Progress = snap.Progress
				wf.Message = snap.Message
				wf.Error = snap.Error
				if snap.Status == progress.StatusFailed && wf.Error == "" {
					wf.Error = "Workflow failed"
				}
				if len(snap.Results) > 0 {
					wf.Results = copyResults(snap.Results)
				}
				wf.Stalled = false
				wf.Notice = ""
				return st
			})
			switch snap.Status {
			case progress.StatusCompleted:
				log.Info("Workflow %s completed", id)
				s.loadWorkflowResult(id)
			case progress.StatusFailed:
				log.Error("Workflow %s failed: %s", id, snap.Error)
			}
		},
		OnTransportError: func(err error) {
			s.transportError(backend.KindWorkflow, id, err)
		},
		OnStall: func(stalled bool) {
			s.update(func(st session.AppState) session.AppState {
				if st.Workflow.WorkflowID != id {
					return st
				}
				st.Workflow.Stalled = stalled
				if stalled {
					st.Workflow.Notice = stallNotice
				} else if st.Workflow.Notice == stallNotice {
					st.Workflow.Notice = ""
				}
				return st
			})
		},
	}
}

func (s *Service) interviewCallbacks(id string) progress.Callbacks {
	return progress.Callbacks{
		OnUpdate: func(snap progress.Snapshot) {
			s.update(func(st session.AppState) session.AppState {
				if st.Interview.InterviewID != id {
					return st
				}
				iv := &st.Interview
				iv.Status = snap.Status
				iv.Progress = snap.Progress
				iv.Message = snap.Message
				iv.Error = snap.Error
				if snap.Status == progress.StatusFailed && iv.Error == "" {
					iv.Error = "Interview preparation failed"
				}
				if len(snap.Result) > 0 && string(snap.Result) != "null" {
					iv.Result = append(json.RawMessage(nil), snap.Result...)
				}
				iv.Stalled = false
				iv.Notice = ""
				return st
			})
			if snap.Status == progress.StatusCompleted {
				log.Info("Interview %s completed", id)
				if len(snap.Result) == 0 || string(snap.Result) == "null" {
					s.loadInterviewResult(id)
				}
			}
		},
		OnTransportError: func(err error) {
			s.transportError(backend.KindInterview, id, err)
		},
		OnStall: func(stalled bool) {
			s.update(func(st session.AppState) session.AppState {
				if st.Interview.InterviewID != id {
					return st
				}
				st.Interview.Stalled = stalled
				if stalled {
					st.Interview.Notice = stallNotice
				} else if st.Interview.Notice == stallNotice {
					st.Interview.Notice = ""
				}
				return st
			})
		},
	}
}

// transportError marks a give-up as abandoned so the user is never left
// waiting, and records anything else as a notice. A give-up never touches the
// status, which only reflects what the backend reported.
func (s *Service) transportError(kind backend.Kind, id string, err error) {
	if errors.Is(err, progress.ErrPushUnavailable) {
		log.Debug("%s %s: %v", kind, id, err)
		return
	}

	abandoned := progress.IsAbandoned(err)
	if abandoned {
		log.Error("%s", Classify(err, "Stopped tracking "+string(kind)).WithContext("id", id))
	}
	msg := userMessage(err)

	s.update(func(st session.AppState) session.AppState {
		switch kind {
		case backend.KindWorkflow:
			if st.Workflow.WorkflowID != id {
				return st
			}
			if abandoned {
				st.Workflow.Abandoned = true
				st.Workflow.GiveUpReason = msg
				st.Workflow.Stalled = false
			} else {
				st.Workflow.Notice = msg
			}
		case backend.KindInterview:
			if st.Interview.InterviewID != id {
				return st
			}
			if abandoned {
				st.Interview.Abandoned = true
				st.Interview.GiveUpReason = msg
				st.Interview.Stalled = false
			} else {
				st.Interview.Notice = msg
			}
		}
		return st
	})
}

// claimLoad reports whether the caller is the first to load key.
func (s *Service) claimLoad(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded[key] {
		return false
	}
	s.loaded[key] = true
	s.loads.Add(1)
	return true
}

// loadWorkflowResult fetches the final result once per workflow and moves the
// user to the dashboard.
func (s *Service) loadWorkflowResult(id string) {
	if !s.claimLoad("workflow:" + id) {
		return
	}
	go func() {
		defer s.loads.Done()
		ctx, cancel := context.WithTimeout(s.root, resultLoadTimeout)
		defer cancel()

		results, err := s.backend.GetWorkflowResult(ctx, id)
		if err != nil {
			log.Error("Failed to load result of workflow %s: %v", id, err)
		}
		s.update(func(st session.AppState) session.AppState {
			if st.Workflow.WorkflowID != id {
				return st
			}
			if err != nil {
				st.Workflow.Notice = "Failed to load results: " + userMessage(err)
			} else {
				if st.Workflow.Results == nil {
					st.Workflow.Results = map[string]json.RawMessage{}
				}
				for k, v := range results {
					st.Workflow.Results[k] = append(json.RawMessage(nil), v...)
				}
			}
			st.CurrentPage = session.PageDashboard
			return st
		})
	}()
}

func (s *Service) loadInterviewResult(id string) {
	if !s.claimLoad("interview:" + id) {
		return
	}
	go func() {
		defer s.loads.Done()
		ctx, cancel := context.WithTimeout(s.root, resultLoadTimeout)
		defer cancel()

		result, err := s.backend.GetInterviewResult(ctx, id)
		if err != nil {
			log.Error("Failed to load result of interview %s: %v", id, err)
		}
		s.update(func(st session.AppState) session.AppState {
			if st.Interview.InterviewID != id {
				return st
			}
			if err != nil {
				st.Interview.Notice = "Failed to load interview materials: " + userMessage(err)
			} else {
				st.Interview.Result = result
			}
			return st
		})
	}()
}

func copyResults(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
