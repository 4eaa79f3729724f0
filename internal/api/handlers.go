package api

import (
	"net/http"
)

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) startGenerate(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.swap(r.Context(), req.Overrides); err != nil {
		s.writeServiceError(w, err)
		return
	}
	arc, err := s.service.StartGenerate(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"archive": arc.Name, "path": arc.Path})
}

func (s *Server) generateStep(w http.ResponseWriter, r *http.Request) {
	s.withService(w, func(svc Service) (any, error) {
		return svc.GenerateStep(r.Context())
	})
}

func (s *Server) startDeploy(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.swap(r.Context(), req.Overrides); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if req.ResetCache {
		if err := s.service.ResetCache(r.Context()); err != nil {
			s.writeServiceError(w, err)
			return
		}
	}
	queued, err := s.service.StartDeploy(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

func (s *Server) deployStep(w http.ResponseWriter, r *http.Request) {
	s.withService(w, func(svc Service) (any, error) {
		return svc.DeployStep(r.Context())
	})
}

func (s *Server) testDeploy(w http.ResponseWriter, r *http.Request) {
	s.withService(w, func(svc Service) (any, error) {
		if err := svc.TestDeploy(r.Context()); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.withService(w, func(svc Service) (any, error) {
		return svc.Status(r.Context())
	})
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	retain := 1
	if req.Retain != nil {
		retain = *req.Retain
	}
	s.withService(w, func(svc Service) (any, error) {
		removed, err := svc.Cleanup(retain)
		if err != nil {
			return nil, err
		}
		return map[string]int{"removed": removed}, nil
	})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.withService(w, func(svc Service) (any, error) {
		if err := svc.Reset(r.Context()); err != nil {
			return nil, err
		}
		return map[string]string{"status": "reset"}, nil
	})
}
