package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"adimporter/shared/domain/entity/creative"
	"adimporter/shared/domain/entity/job"

	"adimporter/workers/orchestrator/internal/jobs"
)

// MockJobController is a mock implementation of api.JobController
type MockJobController struct {
	mock.Mock
}

func (m *MockJobController) Start(ctx context.Context, batch []byte, debug bool) (*jobs.StartResult, error) {
	args := m.Called(ctx, batch, debug)

	var res *jobs.StartResult
	if args.Get(0) != nil {
		res = args.Get(0).(*jobs.StartResult)
	}
	return res, args.Error(1)
}

func (m *MockJobController) Poll(ctx context.Context, id string, debug bool) (*jobs.View, error) {
	args := m.Called(ctx, id, debug)

	var view *jobs.View
	if args.Get(0) != nil {
		view = args.Get(0).(*jobs.View)
	}
	return view, args.Error(1)
}

func (m *MockJobController) Stop(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)

	var j *job.Job
	if args.Get(0) != nil {
		j = args.Get(0).(*job.Job)
	}
	return j, args.Error(1)
}

// MockHashLister is a mock implementation of api.HashLister
type MockHashLister struct {
	mock.Mock
}

func (m *MockHashLister) ListHashes(ctx context.Context) ([]creative.HashedCreative, error) {
	args := m.Called(ctx)

	var out []creative.HashedCreative
	if args.Get(0) != nil {
		out = args.Get(0).([]creative.HashedCreative)
	}
	return out, args.Error(1)
}
