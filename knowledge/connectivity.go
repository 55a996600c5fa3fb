package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/radar/connectivity"
)

// RegisterConnectivity registers knowledge handlers on a connectivity Router.
//
// Registered services:
//
//	radar_submit_file  submit a knowledge file (SubmitRequest JSON)
//	radar_get_file     read a file by domain and path
//	radar_search       full-text search over files
func (s *Service) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("radar_submit_file", s.handleSubmitFile)
	router.RegisterLocal("radar_get_file", s.handleGetFile)
	router.RegisterLocal("radar_search", s.handleSearch)
}

func (s *Service) handleSubmitFile(ctx context.Context, payload []byte) ([]byte, error) {
	var req SubmitRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	res, err := s.Submit(ctx, &req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (s *Service) handleGetFile(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Domain string `json:"domain"`
		Path   string `json:"path"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	f, err := s.GetFile(ctx, req.Domain, req.Path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("file not found: %s/%s", req.Domain, req.Path)
	}
	return json.Marshal(f)
}

func (s *Service) handleSearch(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Query  string `json:"query"`
		Domain string `json:"domain"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	files, err := s.SearchFiles(ctx, req.Query, req.Domain, req.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(files)
}
