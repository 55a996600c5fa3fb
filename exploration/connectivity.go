package exploration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/radar/connectivity"
)

// RegisterConnectivity registers exploration handlers on a connectivity
// Router.
//
// Registered services:
//
//	radar_explore              start an exploration (StartRequest JSON)
//	radar_exploration_status   read an exploration by id
func (o *Orchestrator) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("radar_explore", o.handleExplore)
	router.RegisterLocal("radar_exploration_status", o.handleStatus)
}

func (o *Orchestrator) handleExplore(ctx context.Context, payload []byte) ([]byte, error) {
	var req StartRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	e, err := o.Start(ctx, &req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func (o *Orchestrator) handleStatus(ctx context.Context, payload []byte) ([]byte, error) {
	var req statusRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	e, err := o.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("exploration %s not found", req.ID)
	}
	return json.Marshal(e)
}
