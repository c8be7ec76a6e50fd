package milestone

import (
	"context"
	"fmt"
	"sort"

	"contracthub/internal/apperr"
	"contracthub/internal/model"
)

type enqueued struct {
	aggregateType string
	aggregateID   int64
	routingKey    string
	payload       any
}

// memStore is an in-memory Store. WithinTx restores a snapshot when fn fails.
type memStore struct {
	milestones map[int64]model.Milestone
	contracts  map[int64]model.Contract
	projects   map[int64]model.ProjectStatus
	events     []enqueued
	nextID     int64

	// beforeStatusUpdate runs right before the compare-and-set, to simulate
	// a concurrent writer.
	beforeStatusUpdate func(s *memStore, id int64)
}

func newMemStore() *memStore {
	return &memStore{
		milestones: map[int64]model.Milestone{},
		contracts:  map[int64]model.Contract{},
		projects:   map[int64]model.ProjectStatus{},
		nextID:     100,
	}
}

func (s *memStore) addProject(id int64, status model.ProjectStatus) {
	s.projects[id] = status
}

func (s *memStore) addContract(c model.Contract) {
	if c.Status == "" {
		c.Status = model.ContractActive
	}
	s.contracts[c.ID] = c
}

func (s *memStore) addMilestone(m model.Milestone) {
	s.milestones[m.ID] = m
}

func (s *memStore) WithinTx(_ context.Context, fn func(q Queries) error) error {
	ms := make(map[int64]model.Milestone, len(s.milestones))
	for k, v := range s.milestones {
		ms[k] = v
	}
	cs := make(map[int64]model.Contract, len(s.contracts))
	for k, v := range s.contracts {
		cs[k] = v
	}
	ps := make(map[int64]model.ProjectStatus, len(s.projects))
	for k, v := range s.projects {
		ps[k] = v
	}
	events := append([]enqueued(nil), s.events...)

	if err := fn(s); err != nil {
		s.milestones, s.contracts, s.projects, s.events = ms, cs, ps, events
		return err
	}
	return nil
}

func (s *memStore) GetMilestone(_ context.Context, id int64) (*model.Milestone, error) {
	m, ok := s.milestones[id]
	if !ok {
		return nil, fmt.Errorf("milestone %d: %w", id, apperr.ErrNotFound)
	}
	return &m, nil
}

func (s *memStore) ListMilestones(_ context.Context, contractID int64) ([]model.Milestone, error) {
	var out []model.Milestone
	for _, m := range s.milestones {
		if m.ContractID == contractID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order == out[j].Order {
			return out[i].ID < out[j].ID
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (s *memStore) InsertMilestone(_ context.Context, m *model.Milestone) error {
	s.nextID++
	m.ID = s.nextID
	s.milestones[m.ID] = *m
	return nil
}

func (s *memStore) UpdateMilestoneDetails(_ context.Context, m *model.Milestone) (bool, error) {
	cur, ok := s.milestones[m.ID]
	if !ok || cur.Status != model.MilestonePending {
		return false, nil
	}
	s.milestones[m.ID] = *m
	return true, nil
}

func (s *memStore) UpdateMilestoneStatus(_ context.Context, m *model.Milestone, from model.MilestoneStatus) (bool, error) {
	if s.beforeStatusUpdate != nil {
		s.beforeStatusUpdate(s, m.ID)
	}
	cur, ok := s.milestones[m.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	s.milestones[m.ID] = *m
	return true, nil
}

func (s *memStore) GetContract(_ context.Context, id int64) (*model.Contract, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %d: %w", id, apperr.ErrNotFound)
	}
	return &c, nil
}

func (s *memStore) LockContract(ctx context.Context, id int64) (*model.Contract, error) {
	return s.GetContract(ctx, id)
}

func (s *memStore) SetContractStatus(_ context.Context, id int64, status model.ContractStatus) error {
	c := s.contracts[id]
	c.Status = status
	s.contracts[id] = c
	return nil
}

func (s *memStore) LockProject(_ context.Context, id int64) error {
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("project %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *memStore) CountActiveContracts(_ context.Context, projectID int64) (int, error) {
	n := 0
	for _, c := range s.contracts {
		if c.ProjectID == projectID && c.Status == model.ContractActive {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SetProjectStatus(_ context.Context, id int64, status model.ProjectStatus) error {
	s.projects[id] = status
	return nil
}

func (s *memStore) EnqueueEvent(_ context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	s.events = append(s.events, enqueued{
		aggregateType: aggregateType,
		aggregateID:   aggregateID,
		routingKey:    routingKey,
		payload:       payload,
	})
	return nil
}

func (s *memStore) routingKeys() []string {
	keys := make([]string, 0, len(s.events))
	for _, e := range s.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}
