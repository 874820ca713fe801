package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/stats"
)

func (s *Server) report(w http.ResponseWriter, r *http.Request, pick func(stats.Report) any) {
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.svc.Statistics(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, pick(rep))
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	s.report(w, r, func(rep stats.Report) any { return rep })
}

func (s *Server) statisticsReasons(w http.ResponseWriter, r *http.Request) {
	s.report(w, r, func(rep stats.Report) any { return rep.ReasonBreakdown })
}

func (s *Server) statisticsTimeline(w http.ResponseWriter, r *http.Request) {
	s.report(w, r, func(rep stats.Report) any { return rep.Timeline })
}

func (s *Server) statisticsOperators(w http.ResponseWriter, r *http.Request) {
	s.report(w, r, func(rep stats.Report) any { return rep.OperatorImpact })
}

func (s *Server) regions(w http.ResponseWriter, r *http.Request) {
	regions := s.svc.Regions()
	okCount(w, regions, len(regions))
}

func (s *Server) regionDetails(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.RegionDetails(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, d)
}

func (s *Server) regionCounts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	counts, err := s.svc.RegionCounts(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, counts)
}
